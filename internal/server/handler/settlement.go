package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/wagerpool/internal/crypto"
	"github.com/alanyoungcy/wagerpool/internal/domain"
)

// SettlementService defines the methods the settlement handler requires from
// the service layer.
type SettlementService interface {
	Resolve(ctx context.Context, marketID int64, outcomeYes bool) (domain.Market, crypto.Receipt, error)
	Claim(ctx context.Context, marketID int64, account common.Address) (domain.Claim, error)
	PayoutQuote(ctx context.Context, marketID int64, account common.Address) (domain.PayoutQuote, error)
}

// SettlementHandler serves resolution, claim, and payout preview endpoints.
type SettlementHandler struct {
	settlement SettlementService
	logger     *slog.Logger
}

// NewSettlementHandler creates a SettlementHandler with the given service and
// logger.
func NewSettlementHandler(settlement SettlementService, logger *slog.Logger) *SettlementHandler {
	return &SettlementHandler{
		settlement: settlement,
		logger:     logHandler(logger, "settlement"),
	}
}

// resolveRequest is the body for market resolution.
type resolveRequest struct {
	OutcomeYes bool `json:"outcome_yes"`
}

// resolveResponse returns the resolved market with its signed receipt.
type resolveResponse struct {
	Market  marketView     `json:"market"`
	Receipt crypto.Receipt `json:"receipt"`
}

// Resolve fixes a market's outcome after its deadline. Owner only.
// POST /api/markets/{id}/resolve
func (h *SettlementHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	var req resolveRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	market, receipt, err := h.settlement.Resolve(r.Context(), id, req.OutcomeYes)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "resolve failed",
			slog.Int64("market_id", id),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resolveResponse{
		Market:  toMarketView(market),
		Receipt: receipt,
	})
}

// claimRequest is the body for claiming winnings.
type claimRequest struct {
	Account string `json:"account"`
}

// claimResponse reports the completed payout.
type claimResponse struct {
	MarketID  int64     `json:"market_id"`
	Account   string    `json:"account"`
	Payout    string    `json:"payout"`
	Fee       string    `json:"fee"`
	UserShare string    `json:"user_share"`
	ClaimedAt time.Time `json:"claimed_at"`
}

// Claim pays out a winning stake.
// POST /api/markets/{id}/claims
func (h *SettlementHandler) Claim(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	var req claimRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	account, ok := parseAccount(req.Account)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid account address")
		return
	}

	claim, err := h.settlement.Claim(r.Context(), id, account)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "claim failed",
			slog.Int64("market_id", id),
			slog.String("account", account.Hex()),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, claimResponse{
		MarketID:  claim.MarketID,
		Account:   claim.Account.Hex(),
		Payout:    domain.FormatAmount(claim.Payout),
		Fee:       domain.FormatAmount(claim.Fee),
		UserShare: domain.FormatAmount(claim.UserShare),
		ClaimedAt: claim.ClaimedAt,
	})
}

// payoutResponse reports what a claim would pay right now.
type payoutResponse struct {
	MarketID  int64  `json:"market_id"`
	Account   string `json:"account"`
	Payout    string `json:"payout"`
	Fee       string `json:"fee"`
	UserShare string `json:"user_share"`
	Claimed   bool   `json:"claimed"`
}

// GetPayout previews the payout for one account without mutating anything.
// GET /api/markets/{id}/payout/{account}
func (h *SettlementHandler) GetPayout(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}
	account, ok := pathAccount(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid account address")
		return
	}

	quote, err := h.settlement.PayoutQuote(r.Context(), id, account)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "payout quote failed",
			slog.Int64("market_id", id),
			slog.String("account", account.Hex()),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, payoutResponse{
		MarketID:  quote.MarketID,
		Account:   account.Hex(),
		Payout:    domain.FormatAmount(quote.Payout),
		Fee:       domain.FormatAmount(quote.Fee),
		UserShare: domain.FormatAmount(quote.UserShare),
		Claimed:   quote.Claimed,
	})
}
