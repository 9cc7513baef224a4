package handler

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/wagerpool/internal/domain"
)

// AccountService defines the methods the account handler requires from the
// service layer.
type AccountService interface {
	Deposit(ctx context.Context, account common.Address, amount *big.Int) (*big.Int, error)
	Balance(ctx context.Context, account common.Address) (*big.Int, error)
}

// AccountHandler serves custody balance endpoints.
type AccountHandler struct {
	accounts AccountService
	logger   *slog.Logger
}

// NewAccountHandler creates an AccountHandler with the given service and
// logger.
func NewAccountHandler(accounts AccountService, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{
		accounts: accounts,
		logger:   logHandler(logger, "account"),
	}
}

// depositRequest is the body for a custody deposit. Amount is a decimal
// string.
type depositRequest struct {
	Amount string `json:"amount"`
}

// balanceResponse is the API shape of an account's custody balance.
type balanceResponse struct {
	Account string `json:"account"`
	Balance string `json:"balance"`
}

// Deposit credits funds to an account's spendable custody balance. Owner only;
// this is the fiat/token on-ramp the operator drives after confirming an
// external transfer.
// POST /api/accounts/{account}/deposits
func (h *AccountHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	account, ok := pathAccount(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid account address")
		return
	}

	var req depositRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	balance, err := h.accounts.Deposit(r.Context(), account, amount)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "deposit failed",
			slog.String("account", account.Hex()),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, balanceResponse{
		Account: account.Hex(),
		Balance: domain.FormatAmount(balance),
	})
}

// GetBalance returns an account's spendable custody balance.
// GET /api/accounts/{account}/balance
func (h *AccountHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	account, ok := pathAccount(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid account address")
		return
	}

	balance, err := h.accounts.Balance(r.Context(), account)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "get balance failed",
			slog.String("account", account.Hex()),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, balanceResponse{
		Account: account.Hex(),
		Balance: domain.FormatAmount(balance),
	})
}
