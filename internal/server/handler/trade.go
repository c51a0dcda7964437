package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/bettitlabs/bettit/internal/domain"
	"github.com/bettitlabs/bettit/internal/service"
)

// TradeService defines the methods that the trade handler requires from the
// service layer.
type TradeService interface {
	PreviewTrade(ctx context.Context, marketID string, side domain.Side, amount decimal.Decimal) (service.TradePreview, error)
	PlaceTrade(ctx context.Context, marketID, accountID string, side domain.Side, amount decimal.Decimal) (domain.Bet, domain.Quote, error)
}

// TradeHandler serves the preview and trade endpoints.
type TradeHandler struct {
	trades TradeService
	logger *slog.Logger
}

// NewTradeHandler creates a TradeHandler with the given service and logger.
func NewTradeHandler(trades TradeService, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{
		trades: trades,
		logger: logHandler(logger, "trade"),
	}
}

// tradeRequest is the JSON body for both preview and trade placement.
// AccountID is ignored by the preview endpoint.
type tradeRequest struct {
	AccountID string          `json:"accountId"`
	Side      string          `json:"side"`
	Amount    decimal.Decimal `json:"amount"`
}

// placeTradeResponse pairs the recorded bet with the post-trade quote.
type placeTradeResponse struct {
	Bet   domain.Bet   `json:"bet"`
	Quote domain.Quote `json:"quote"`
}

// PreviewTrade simulates a trade without persisting anything.
// POST /api/markets/{id}/preview
func (h *TradeHandler) PreviewTrade(w http.ResponseWriter, r *http.Request) {
	marketID := pathParam(r, "id")
	if marketID == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	var req tradeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	side, err := domain.ParseSide(req.Side)
	if err != nil {
		writeError(w, http.StatusBadRequest, "side must be YES or NO")
		return
	}

	preview, err := h.trades.PreviewTrade(r.Context(), marketID, side, req.Amount)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "preview trade failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, preview)
}

// PlaceTrade executes a trade for an account.
// POST /api/markets/{id}/trades
func (h *TradeHandler) PlaceTrade(w http.ResponseWriter, r *http.Request) {
	marketID := pathParam(r, "id")
	if marketID == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	var req tradeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AccountID == "" {
		writeError(w, http.StatusBadRequest, "missing account id")
		return
	}

	side, err := domain.ParseSide(req.Side)
	if err != nil {
		writeError(w, http.StatusBadRequest, "side must be YES or NO")
		return
	}

	bet, quote, err := h.trades.PlaceTrade(r.Context(), marketID, req.AccountID, side, req.Amount)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "place trade failed",
			slog.String("market_id", marketID),
			slog.String("account_id", req.AccountID),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, placeTradeResponse{
		Bet:   bet,
		Quote: quote,
	})
}
