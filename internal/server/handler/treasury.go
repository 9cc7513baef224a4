package handler

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/wagerpool/internal/domain"
)

// TreasuryService defines the methods the treasury handler requires from the
// service layer.
type TreasuryService interface {
	Treasury(ctx context.Context) (domain.TreasurySnapshot, error)
	WithdrawFees(ctx context.Context, to common.Address) (*big.Int, error)
	SetFee(ctx context.Context, bps int64) error
	SetBetLimits(ctx context.Context, minBet, maxBet *big.Int) error
	AuditLog(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error)
}

// TreasuryHandler serves treasury and admin endpoints.
type TreasuryHandler struct {
	treasury TreasuryService
	logger   *slog.Logger
}

// NewTreasuryHandler creates a TreasuryHandler with the given service and
// logger.
func NewTreasuryHandler(treasury TreasuryService, logger *slog.Logger) *TreasuryHandler {
	return &TreasuryHandler{
		treasury: treasury,
		logger:   logHandler(logger, "treasury"),
	}
}

// treasuryResponse is the API shape of the treasury snapshot.
type treasuryResponse struct {
	FeeBps        int64     `json:"fee_bps"`
	MinBet        string    `json:"min_bet"`
	MaxBet        string    `json:"max_bet"`
	CollectedFees string    `json:"collected_fees"`
	Custodied     string    `json:"custodied"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// GetTreasury returns the fee configuration and accumulators.
// GET /api/treasury
func (h *TreasuryHandler) GetTreasury(w http.ResponseWriter, r *http.Request) {
	snap, err := h.treasury.Treasury(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "get treasury failed",
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, treasuryResponse{
		FeeBps:        snap.FeeBps,
		MinBet:        domain.FormatAmount(snap.MinBet),
		MaxBet:        domain.FormatAmount(snap.MaxBet),
		CollectedFees: domain.FormatAmount(snap.CollectedFees),
		Custodied:     domain.FormatAmount(snap.Custodied),
		UpdatedAt:     snap.UpdatedAt,
	})
}

// withdrawRequest is the body for a fee withdrawal.
type withdrawRequest struct {
	To string `json:"to"`
}

// WithdrawFees drains the fee accumulator to the given address. Owner only.
// POST /api/treasury/withdraw
func (h *TreasuryHandler) WithdrawFees(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	to, ok := parseAccount(req.To)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid destination address")
		return
	}

	amount, err := h.treasury.WithdrawFees(r.Context(), to)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "withdraw fees failed",
			slog.String("to", to.Hex()),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"to":     to.Hex(),
		"amount": domain.FormatAmount(amount),
	})
}

// setFeeRequest is the body for a fee change.
type setFeeRequest struct {
	FeeBps int64 `json:"fee_bps"`
}

// SetFee updates the protocol fee rate. Owner only.
// PUT /api/admin/fee
func (h *TreasuryHandler) SetFee(w http.ResponseWriter, r *http.Request) {
	var req setFeeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.treasury.SetFee(r.Context(), req.FeeBps); err != nil {
		h.logger.ErrorContext(r.Context(), "set fee failed",
			slog.Int64("fee_bps", req.FeeBps),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{"fee_bps": req.FeeBps})
}

// setLimitsRequest is the body for a bet limit change. Amounts are decimal
// strings; max_bet "0" disables the ceiling.
type setLimitsRequest struct {
	MinBet string `json:"min_bet"`
	MaxBet string `json:"max_bet"`
}

// SetBetLimits updates the per-bet bounds. Owner only.
// PUT /api/admin/limits
func (h *TreasuryHandler) SetBetLimits(w http.ResponseWriter, r *http.Request) {
	var req setLimitsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	minBet, err := domain.ParseAmount(req.MinBet)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	maxBet, err := domain.ParseAmount(req.MaxBet)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if err := h.treasury.SetBetLimits(r.Context(), minBet, maxBet); err != nil {
		h.logger.ErrorContext(r.Context(), "set bet limits failed",
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"min_bet": req.MinBet,
		"max_bet": req.MaxBet,
	})
}

// ListAudit returns audit log entries, newest first.
// GET /api/audit?limit=50&offset=0
func (h *TreasuryHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := h.treasury.AuditLog(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list audit failed",
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
