package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/wagerpool/internal/domain"
)

// MarketService defines the methods that the market handler requires from the
// service layer. It is declared locally so the handler package does not depend
// on the concrete service implementation.
type MarketService interface {
	CreateMarket(ctx context.Context, question string, deadline time.Time) (domain.Market, error)
	GetMarket(ctx context.Context, id int64) (domain.Market, error)
	ListMarkets(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error)
	CountMarkets(ctx context.Context) (int64, error)
	GetOdds(ctx context.Context, id int64) (domain.Odds, error)
}

// MarketHandler serves market-related HTTP endpoints.
type MarketHandler struct {
	markets MarketService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler with the given service and logger.
func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		logger:  logHandler(logger, "market"),
	}
}

// marketView is the API shape of a market. Pool amounts are decimal strings
// so clients never lose precision to JSON numbers.
type marketView struct {
	ID         int64      `json:"id"`
	Question   string     `json:"question"`
	Deadline   time.Time  `json:"deadline"`
	Status     string     `json:"status"`
	Resolved   bool       `json:"resolved"`
	OutcomeYes *bool      `json:"outcome_yes,omitempty"`
	YesPool    string     `json:"yes_pool"`
	NoPool     string     `json:"no_pool"`
	TotalPool  string     `json:"total_pool"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

func toMarketView(m domain.Market) marketView {
	v := marketView{
		ID:         m.ID,
		Question:   m.Question,
		Deadline:   m.Deadline,
		Status:     string(m.Status(time.Now())),
		Resolved:   m.Resolved,
		YesPool:    domain.FormatAmount(m.YesPool),
		NoPool:     domain.FormatAmount(m.NoPool),
		TotalPool:  domain.FormatAmount(m.TotalPool()),
		CreatedAt:  m.CreatedAt,
		ResolvedAt: m.ResolvedAt,
	}
	if m.Resolved {
		outcome := m.OutcomeYes
		v.OutcomeYes = &outcome
	}
	return v
}

// listMarketsResponse wraps the list endpoint output with metadata.
type listMarketsResponse struct {
	Markets []marketView `json:"markets"`
	Total   int64        `json:"total"`
	Limit   int          `json:"limit"`
	Offset  int          `json:"offset"`
}

// ListMarkets returns markets with pagination.
// GET /api/markets?limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	markets, err := h.markets.ListMarkets(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list markets failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list markets")
		return
	}

	total, err := h.markets.CountMarkets(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "count markets failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to count markets")
		return
	}

	views := make([]marketView, 0, len(markets))
	for _, m := range markets {
		views = append(views, toMarketView(m))
	}

	writeJSON(w, http.StatusOK, listMarketsResponse{
		Markets: views,
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}

// GetMarket returns a single market by its ID.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	market, err := h.markets.GetMarket(r.Context(), id)
	if err != nil {
		h.logFailure(r, "get market", id, err)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toMarketView(market))
}

// GetOdds returns the implied odds for a market.
// GET /api/markets/{id}/odds
func (h *MarketHandler) GetOdds(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	odds, err := h.markets.GetOdds(r.Context(), id)
	if err != nil {
		h.logFailure(r, "get odds", id, err)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, odds)
}

// createMarketRequest is the body for market creation.
type createMarketRequest struct {
	Question string    `json:"question"`
	Deadline time.Time `json:"deadline"`
}

// CreateMarket opens a new market. Owner only.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req createMarketRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "question must not be empty")
		return
	}

	market, err := h.markets.CreateMarket(r.Context(), req.Question, req.Deadline)
	if err != nil {
		h.logFailure(r, "create market", 0, err)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toMarketView(market))
}

func (h *MarketHandler) logFailure(r *http.Request, op string, id int64, err error) {
	h.logger.ErrorContext(r.Context(), op+" failed",
		slog.Int64("market_id", id),
		slog.String("error", err.Error()),
	)
}
