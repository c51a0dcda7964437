// Package service implements the use-case layer between the HTTP boundary
// and the engine: balance checks and debits around trade execution,
// resolution plus settlement, and the read paths.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bettitlabs/bettit/internal/amm"
	"github.com/bettitlabs/bettit/internal/domain"
	"github.com/bettitlabs/bettit/internal/engine"
)

// TradePreview is a read-only simulation of a prospective trade. Nothing is
// persisted; the caller sees what the fill would look like against the
// current share state.
type TradePreview struct {
	MarketID        string          `json:"marketId"`
	Side            domain.Side     `json:"side"`
	Amount          decimal.Decimal `json:"amount"`
	Shares          decimal.Decimal `json:"shares"`
	EffectivePrice  decimal.Decimal `json:"effectivePrice"`
	PotentialPayout decimal.Decimal `json:"potentialPayout"`
	NewYesPrice     decimal.Decimal `json:"newYesPrice"`
	NewNoPrice      decimal.Decimal `json:"newNoPrice"`
	LowConfidence   bool            `json:"lowConfidence,omitempty"`
}

// CreateMarketParams are the inputs for opening a new market.
type CreateMarketParams struct {
	Question           string
	Description        string
	ResolutionCriteria string
	ResolutionDate     time.Time
	CreatedBy          string
	Community          string
	Liquidity          decimal.Decimal
}

// Exchange wires the market maker and settlement engine behind the boundary
// the transport layer consumes. QuoteCache, SignalBus, and
// SettlementArchiver are optional; a nil value disables that concern.
type Exchange struct {
	markets  domain.MarketStore
	bets     domain.BetStore
	accounts domain.AccountStore
	ledger   domain.LedgerStore
	maker    *engine.MarketMaker
	settler  *engine.SettlementEngine
	quotes   domain.QuoteCache
	bus      domain.SignalBus
	archiver domain.SettlementArchiver
	logger   *slog.Logger
}

// NewExchange creates the Exchange service.
func NewExchange(
	markets domain.MarketStore,
	bets domain.BetStore,
	accounts domain.AccountStore,
	ledger domain.LedgerStore,
	maker *engine.MarketMaker,
	settler *engine.SettlementEngine,
	quotes domain.QuoteCache,
	bus domain.SignalBus,
	archiver domain.SettlementArchiver,
	logger *slog.Logger,
) *Exchange {
	return &Exchange{
		markets:  markets,
		bets:     bets,
		accounts: accounts,
		ledger:   ledger,
		maker:    maker,
		settler:  settler,
		quotes:   quotes,
		bus:      bus,
		archiver: archiver,
		logger:   logger.With(slog.String("component", "exchange")),
	}
}

// CreateMarket opens a new market with zero shares on both sides. The
// liquidity parameter is validated here, at creation, so the pricing core
// never sees b <= 0.
func (s *Exchange) CreateMarket(ctx context.Context, params CreateMarketParams) (domain.Market, error) {
	if params.Question == "" {
		return domain.Market{}, fmt.Errorf("exchange: question is required")
	}
	if !params.Liquidity.IsPositive() {
		return domain.Market{}, domain.ErrInvalidLiquidity
	}

	community := params.Community
	if community == "" {
		community = "general"
	}

	now := time.Now().UTC()
	m := domain.Market{
		ID:                 uuid.New().String(),
		Question:           params.Question,
		Description:        params.Description,
		ResolutionCriteria: params.ResolutionCriteria,
		ResolutionDate:     params.ResolutionDate,
		CreatedBy:          params.CreatedBy,
		Community:          community,
		Status:             domain.MarketStatusOpen,
		Liquidity:          params.Liquidity,
		QYes:               decimal.Zero,
		QNo:                decimal.Zero,
		YesPrice:           decimal.NewFromFloat(0.5),
		NoPrice:            decimal.NewFromFloat(0.5),
		TotalPool:          decimal.Zero,
		CreatedAt:          now,
	}

	if err := s.markets.Create(ctx, m); err != nil {
		return domain.Market{}, fmt.Errorf("exchange: create market: %w", err)
	}

	s.logger.InfoContext(ctx, "market created",
		slog.String("market_id", m.ID),
		slog.String("question", m.Question),
		slog.String("liquidity", m.Liquidity.String()),
	)
	return m, nil
}

// GetMarket returns a market by ID.
func (s *Exchange) GetMarket(ctx context.Context, id string) (domain.Market, error) {
	m, err := s.markets.Get(ctx, id)
	if err != nil {
		return domain.Market{}, fmt.Errorf("exchange: get market %q: %w", id, err)
	}
	return m, nil
}

// ListMarkets returns markets filtered by status ("" for all).
func (s *Exchange) ListMarkets(ctx context.Context, status domain.MarketStatus, opts domain.ListOpts) ([]domain.Market, error) {
	markets, err := s.markets.List(ctx, status, opts)
	if err != nil {
		return nil, fmt.Errorf("exchange: list markets: %w", err)
	}
	return markets, nil
}

// PreviewTrade simulates a trade against the current share state without
// mutating anything. It operates on a read snapshot and needs no exclusive
// access.
func (s *Exchange) PreviewTrade(ctx context.Context, marketID string, side domain.Side, amount decimal.Decimal) (TradePreview, error) {
	if !amount.IsPositive() {
		return TradePreview{}, domain.ErrInvalidAmount
	}

	m, err := s.markets.Get(ctx, marketID)
	if err != nil {
		return TradePreview{}, fmt.Errorf("exchange: get market %q: %w", marketID, err)
	}
	if !m.Open() {
		return TradePreview{}, domain.ErrMarketClosed
	}

	state := amm.State{
		QYes: m.QYes.InexactFloat64(),
		QNo:  m.QNo.InexactFloat64(),
		B:    m.Liquidity.InexactFloat64(),
	}
	sim, err := amm.SimulateTrade(state, side, amount.InexactFloat64())
	if err != nil {
		return TradePreview{}, err
	}

	shares := decimal.NewFromFloat(sim.Shares)
	return TradePreview{
		MarketID:        marketID,
		Side:            side,
		Amount:          amount,
		Shares:          shares,
		EffectivePrice:  decimal.NewFromFloat(sim.EffectivePrice),
		PotentialPayout: shares,
		NewYesPrice:     decimal.NewFromFloat(sim.NewPriceYes),
		NewNoPrice:      decimal.NewFromFloat(sim.NewPriceNo),
		LowConfidence:   sim.LowConfidence,
	}, nil
}

// PlaceTrade debits the account, executes the trade, and records the debit
// in the ledger. The debit happens first and is atomic in the store, so two
// concurrent trades racing over the same balance cannot both fill: the loser
// fails the debit and no bet or share state exists for it. A debit whose
// trade is then rejected is refunded.
func (s *Exchange) PlaceTrade(
	ctx context.Context,
	marketID, accountID string,
	side domain.Side,
	amount decimal.Decimal,
) (domain.Bet, domain.Quote, error) {
	if !amount.IsPositive() {
		return domain.Bet{}, domain.Quote{}, domain.ErrInvalidAmount
	}

	newBalance, err := s.accounts.Debit(ctx, accountID, amount)
	if err != nil {
		return domain.Bet{}, domain.Quote{}, fmt.Errorf("exchange: debit account %q: %w", accountID, err)
	}

	result, err := s.maker.ExecuteTrade(ctx, marketID, accountID, side, amount)
	if err != nil {
		if _, refundErr := s.accounts.Credit(ctx, accountID, amount); refundErr != nil {
			// The account is now short the stake of a trade that never
			// happened; this needs an operator.
			s.logger.ErrorContext(ctx, "refund failed after rejected trade",
				slog.String("account_id", accountID),
				slog.String("amount", amount.String()),
				slog.String("error", refundErr.Error()),
			)
		}
		return domain.Bet{}, domain.Quote{}, err
	}

	entry := domain.LedgerEntry{
		ID:           uuid.New().String(),
		AccountID:    accountID,
		Type:         domain.LedgerTypeBetPlaced,
		Amount:       amount.Neg(),
		BalanceAfter: newBalance,
		MarketID:     marketID,
		BetID:        result.Bet.ID,
		Description:  fmt.Sprintf("Bet %s on %s", amount.String(), side),
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.ledger.Append(ctx, entry); err != nil {
		s.logger.WarnContext(ctx, "ledger append failed",
			slog.String("bet_id", result.Bet.ID),
			slog.String("error", err.Error()),
		)
	}
	if err := s.accounts.RecordBet(ctx, accountID); err != nil {
		s.logger.WarnContext(ctx, "record bet count failed",
			slog.String("account_id", accountID),
			slog.String("error", err.Error()),
		)
	}

	quote := domain.Quote{
		MarketID:  marketID,
		YesPrice:  result.Market.YesPrice,
		NoPrice:   result.Market.NoPrice,
		UpdatedAt: time.Now().UTC(),
	}
	s.cacheQuote(ctx, quote)
	s.publish(ctx, "quotes", map[string]any{
		"event":    "quote_updated",
		"marketId": marketID,
		"yesPrice": quote.YesPrice,
		"noPrice":  quote.NoPrice,
	})
	s.publish(ctx, "trades", map[string]any{
		"event":    "trade_executed",
		"marketId": marketID,
		"betId":    result.Bet.ID,
		"side":     side,
		"amount":   amount,
		"shares":   result.Bet.Shares,
		"yesPrice": quote.YesPrice,
		"noPrice":  quote.NoPrice,
	})

	if result.LowConfidence {
		s.logger.WarnContext(ctx, "trade filled at low-confidence price",
			slog.String("bet_id", result.Bet.ID),
		)
	}

	return result.Bet, quote, nil
}

// ResolveMarket resolves a market and settles every bet against it,
// returning the number of bets settled. Resolving with the outcome already
// recorded is not an error: the call proceeds straight to settlement, so a
// partially settled market can be retried through the same endpoint. A
// different outcome still returns ErrAlreadyResolved. Settlement archives
// and event publication are best-effort.
func (s *Exchange) ResolveMarket(ctx context.Context, marketID string, outcome domain.Side) (int, error) {
	if err := s.settler.Resolve(ctx, marketID, outcome); err != nil {
		if !errors.Is(err, domain.ErrAlreadyResolved) {
			return 0, err
		}
		m, getErr := s.markets.Get(ctx, marketID)
		if getErr != nil || m.Outcome == nil || *m.Outcome != outcome {
			return 0, err
		}
	}

	settled, err := s.settler.Settle(ctx, marketID)
	if err != nil {
		return settled, err
	}

	market, err := s.markets.Get(ctx, marketID)
	if err == nil {
		s.archive(ctx, market)
		s.cacheQuote(ctx, domain.Quote{
			MarketID:  marketID,
			YesPrice:  market.YesPrice,
			NoPrice:   market.NoPrice,
			UpdatedAt: time.Now().UTC(),
		})
	}

	s.publish(ctx, "settlements", map[string]any{
		"event":    "market_settled",
		"marketId": marketID,
		"outcome":  outcome,
		"settled":  settled,
	})

	return settled, nil
}

// GetQuote returns the current prices for a market, preferring the cache.
func (s *Exchange) GetQuote(ctx context.Context, marketID string) (domain.Quote, error) {
	if s.quotes != nil {
		if q, err := s.quotes.GetQuote(ctx, marketID); err == nil {
			return q, nil
		}
	}

	m, err := s.markets.Get(ctx, marketID)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("exchange: get market %q: %w", marketID, err)
	}
	return domain.Quote{
		MarketID:  marketID,
		YesPrice:  m.YesPrice,
		NoPrice:   m.NoPrice,
		UpdatedAt: time.Now().UTC(),
	}, nil
}

// GetAccount returns an account by ID.
func (s *Exchange) GetAccount(ctx context.Context, id string) (domain.Account, error) {
	a, err := s.accounts.Get(ctx, id)
	if err != nil {
		return domain.Account{}, fmt.Errorf("exchange: get account %q: %w", id, err)
	}
	return a, nil
}

// ListBets returns an account's bets, newest first.
func (s *Exchange) ListBets(ctx context.Context, accountID string, opts domain.ListOpts) ([]domain.Bet, error) {
	bets, err := s.bets.ListByAccount(ctx, accountID, opts)
	if err != nil {
		return nil, fmt.Errorf("exchange: list bets for %q: %w", accountID, err)
	}
	return bets, nil
}

// ListLedger returns an account's ledger entries, newest first.
func (s *Exchange) ListLedger(ctx context.Context, accountID string, opts domain.ListOpts) ([]domain.LedgerEntry, error) {
	entries, err := s.ledger.ListByAccount(ctx, accountID, opts)
	if err != nil {
		return nil, fmt.Errorf("exchange: list ledger for %q: %w", accountID, err)
	}
	return entries, nil
}

// Leaderboard returns the top accounts by balance.
func (s *Exchange) Leaderboard(ctx context.Context, limit int) ([]domain.Account, error) {
	accounts, err := s.accounts.Leaderboard(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("exchange: leaderboard: %w", err)
	}
	return accounts, nil
}

func (s *Exchange) cacheQuote(ctx context.Context, q domain.Quote) {
	if s.quotes == nil {
		return
	}
	if err := s.quotes.SetQuote(ctx, q); err != nil {
		s.logger.WarnContext(ctx, "quote cache update failed",
			slog.String("market_id", q.MarketID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Exchange) publish(ctx context.Context, channel string, event map[string]any) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, channel, payload); err != nil {
		s.logger.WarnContext(ctx, "event publish failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Exchange) archive(ctx context.Context, market domain.Market) {
	if s.archiver == nil {
		return
	}

	bets, err := s.bets.ListByMarket(ctx, market.ID)
	if err != nil {
		s.logger.WarnContext(ctx, "settlement archive skipped",
			slog.String("market_id", market.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	key, err := s.archiver.ArchiveSettlement(ctx, market, bets)
	if err != nil {
		s.logger.WarnContext(ctx, "settlement archive failed",
			slog.String("market_id", market.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	s.logger.InfoContext(ctx, "settlement archived",
		slog.String("market_id", market.ID),
		slog.String("key", key),
	)
}
