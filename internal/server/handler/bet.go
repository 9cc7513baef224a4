package handler

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/wagerpool/internal/domain"
)

// BetService defines the methods the bet handler requires from the service
// layer.
type BetService interface {
	PlaceBet(ctx context.Context, marketID int64, account common.Address, side domain.Side, amount *big.Int) (domain.Market, error)
	UserStakes(ctx context.Context, marketID int64, account common.Address) (domain.StakePair, error)
}

// BetHandler serves bet placement and stake query endpoints.
type BetHandler struct {
	bets   BetService
	logger *slog.Logger
}

// NewBetHandler creates a BetHandler with the given service and logger.
func NewBetHandler(bets BetService, logger *slog.Logger) *BetHandler {
	return &BetHandler{
		bets:   bets,
		logger: logHandler(logger, "bet"),
	}
}

// placeBetRequest is the body for bet placement. Amount is a decimal string
// in whole token units, e.g. "12.5".
type placeBetRequest struct {
	Account string `json:"account"`
	Side    string `json:"side"`
	Amount  string `json:"amount"`
}

// PlaceBet escrows a stake on one side of an open market.
// POST /api/markets/{id}/bets
func (h *BetHandler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	var req placeBetRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	account, ok := parseAccount(req.Account)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid account address")
		return
	}
	side, err := domain.ParseSide(req.Side)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	market, err := h.bets.PlaceBet(r.Context(), id, account, side, amount)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "place bet failed",
			slog.Int64("market_id", id),
			slog.String("account", account.Hex()),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toMarketView(market))
}

// stakesResponse reports both sides of one account's position.
type stakesResponse struct {
	MarketID int64  `json:"market_id"`
	Account  string `json:"account"`
	Yes      string `json:"yes"`
	No       string `json:"no"`
}

// GetStakes returns both-side stakes for one account in one market.
// GET /api/markets/{id}/stakes/{account}
func (h *BetHandler) GetStakes(w http.ResponseWriter, r *http.Request) {
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

	pair, err := h.bets.UserStakes(r.Context(), id, account)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "get stakes failed",
			slog.Int64("market_id", id),
			slog.String("account", account.Hex()),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, stakesResponse{
		MarketID: pair.MarketID,
		Account:  account.Hex(),
		Yes:      domain.FormatAmount(pair.Yes),
		No:       domain.FormatAmount(pair.No),
	})
}
