package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bettitlabs/bettit/internal/domain"
	"github.com/bettitlabs/bettit/internal/service"
)

// MarketService defines the methods that the market handler requires from the
// service layer. It is declared locally so the handler package does not depend
// on the concrete service implementation.
type MarketService interface {
	CreateMarket(ctx context.Context, params service.CreateMarketParams) (domain.Market, error)
	GetMarket(ctx context.Context, id string) (domain.Market, error)
	ListMarkets(ctx context.Context, status domain.MarketStatus, opts domain.ListOpts) ([]domain.Market, error)
	GetQuote(ctx context.Context, marketID string) (domain.Quote, error)
	ResolveMarket(ctx context.Context, marketID string, outcome domain.Side) (int, error)
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

// createMarketRequest is the JSON body for market creation.
type createMarketRequest struct {
	Question           string          `json:"question"`
	Description        string          `json:"description"`
	ResolutionCriteria string          `json:"resolutionCriteria"`
	ResolutionDate     time.Time       `json:"resolutionDate"`
	CreatedBy          string          `json:"createdBy"`
	Community          string          `json:"community"`
	Liquidity          decimal.Decimal `json:"liquidity"`
}

// CreateMarket opens a new market.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req createMarketRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	market, err := h.markets.CreateMarket(r.Context(), service.CreateMarketParams{
		Question:           req.Question,
		Description:        req.Description,
		ResolutionCriteria: req.ResolutionCriteria,
		ResolutionDate:     req.ResolutionDate,
		CreatedBy:          req.CreatedBy,
		Community:          req.Community,
		Liquidity:          req.Liquidity,
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidLiquidity) {
			writeError(w, http.StatusBadRequest, "liquidity must be positive")
			return
		}
		h.logger.ErrorContext(r.Context(), "create market failed",
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, market)
}

// listMarketsResponse wraps the list endpoint output with metadata.
type listMarketsResponse struct {
	Markets []domain.Market `json:"markets"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

// ListMarkets returns markets with pagination, optionally filtered by status.
// GET /api/markets?status=open&limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)
	status := domain.MarketStatus(r.URL.Query().Get("status"))

	markets, err := h.markets.ListMarkets(r.Context(), status, opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list markets failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list markets")
		return
	}
	if markets == nil {
		markets = []domain.Market{}
	}

	writeJSON(w, http.StatusOK, listMarketsResponse{
		Markets: markets,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}

// GetMarket returns a single market by its ID.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	market, err := h.markets.GetMarket(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "market not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "get market failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get market")
		return
	}

	writeJSON(w, http.StatusOK, market)
}

// GetQuote returns the current price pair for a market.
// GET /api/markets/{id}/quote
func (h *MarketHandler) GetQuote(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	quote, err := h.markets.GetQuote(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "market not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "get quote failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get quote")
		return
	}

	writeJSON(w, http.StatusOK, quote)
}

// resolveMarketRequest is the JSON body for market resolution.
type resolveMarketRequest struct {
	Outcome string `json:"outcome"`
}

// ResolveMarket resolves a market to YES or NO and settles every bet on it.
// POST /api/markets/{id}/resolve
func (h *MarketHandler) ResolveMarket(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	var req resolveMarketRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	outcome, err := domain.ParseSide(req.Outcome)
	if err != nil {
		writeError(w, http.StatusBadRequest, "outcome must be YES or NO")
		return
	}

	settled, err := h.markets.ResolveMarket(r.Context(), id, outcome)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "resolve market failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"marketId": id,
		"outcome":  outcome,
		"settled":  settled,
	})
}
