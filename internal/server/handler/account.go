package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/bettitlabs/bettit/internal/domain"
)

// AccountService defines the methods that the account handler requires from
// the service layer.
type AccountService interface {
	GetAccount(ctx context.Context, id string) (domain.Account, error)
	ListBets(ctx context.Context, accountID string, opts domain.ListOpts) ([]domain.Bet, error)
	ListLedger(ctx context.Context, accountID string, opts domain.ListOpts) ([]domain.LedgerEntry, error)
	Leaderboard(ctx context.Context, limit int) ([]domain.Account, error)
}

// AccountHandler serves account-related HTTP endpoints.
type AccountHandler struct {
	accounts AccountService
	logger   *slog.Logger
}

// NewAccountHandler creates an AccountHandler with the given service and logger.
func NewAccountHandler(accounts AccountService, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{
		accounts: accounts,
		logger:   logHandler(logger, "account"),
	}
}

// GetAccount returns a single account by its ID.
// GET /api/accounts/{id}
func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing account id")
		return
	}

	account, err := h.accounts.GetAccount(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "account not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "get account failed",
			slog.String("account_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get account")
		return
	}

	writeJSON(w, http.StatusOK, account)
}

// ListBets returns an account's bets, newest first.
// GET /api/accounts/{id}/bets?limit=50&offset=0
func (h *AccountHandler) ListBets(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing account id")
		return
	}

	bets, err := h.accounts.ListBets(r.Context(), id, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list bets failed",
			slog.String("account_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list bets")
		return
	}
	if bets == nil {
		bets = []domain.Bet{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"bets": bets})
}

// ListLedger returns an account's ledger entries, newest first.
// GET /api/accounts/{id}/ledger?limit=50&offset=0
func (h *AccountHandler) ListLedger(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing account id")
		return
	}

	entries, err := h.accounts.ListLedger(r.Context(), id, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list ledger failed",
			slog.String("account_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list ledger")
		return
	}
	if entries == nil {
		entries = []domain.LedgerEntry{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// Leaderboard returns the top accounts by lifetime winnings.
// GET /api/leaderboard?limit=10
func (h *AccountHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	accounts, err := h.accounts.Leaderboard(r.Context(), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "leaderboard failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load leaderboard")
		return
	}
	if accounts == nil {
		accounts = []domain.Account{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"accounts": accounts})
}
