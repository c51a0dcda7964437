package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bettitlabs/bettit/internal/domain"
)

// BetStore implements domain.BetStore using PostgreSQL.
type BetStore struct {
	pool *pgxpool.Pool
}

// NewBetStore creates a new BetStore backed by the given connection pool.
func NewBetStore(pool *pgxpool.Pool) *BetStore {
	return &BetStore{pool: pool}
}

const betCols = `id, market_id, account_id, side, amount, shares,
	effective_price, potential_payout, status, payout, created_at, settled_at`

// Create inserts a new bet.
func (s *BetStore) Create(ctx context.Context, b domain.Bet) error {
	const query = `
		INSERT INTO bets (
			id, market_id, account_id, side, amount, shares,
			effective_price, potential_payout, status, payout, created_at, settled_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11, $12
		)`

	_, err := s.pool.Exec(ctx, query,
		b.ID, b.MarketID, b.AccountID, string(b.Side), b.Amount, b.Shares,
		b.EffectivePrice, b.PotentialPayout, string(b.Status), b.Payout, b.CreatedAt, b.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create bet %s: %w", b.ID, err)
	}
	return nil
}

// Get retrieves a bet by its primary key.
func (s *BetStore) Get(ctx context.Context, id string) (domain.Bet, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+betCols+` FROM bets WHERE id = $1`, id)
	b, err := scanBet(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Bet{}, domain.ErrNotFound
		}
		return domain.Bet{}, fmt.Errorf("postgres: get bet %s: %w", id, err)
	}
	return b, nil
}

// Update overwrites the bet's settlement state.
func (s *BetStore) Update(ctx context.Context, b domain.Bet) error {
	const query = `
		UPDATE bets SET
			status     = $2,
			payout     = $3,
			settled_at = $4
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query, b.ID, string(b.Status), b.Payout, b.SettledAt)
	if err != nil {
		return fmt.Errorf("postgres: update bet %s: %w", b.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListByMarket returns all bets placed on a market, oldest first.
func (s *BetStore) ListByMarket(ctx context.Context, marketID string) ([]domain.Bet, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+betCols+` FROM bets WHERE market_id = $1 ORDER BY created_at ASC`, marketID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bets for market %s: %w", marketID, err)
	}
	defer rows.Close()
	return collectBets(rows)
}

// ListByAccount returns an account's bets, newest first.
func (s *BetStore) ListByAccount(ctx context.Context, accountID string, opts domain.ListOpts) ([]domain.Bet, error) {
	query := `SELECT ` + betCols + ` FROM bets WHERE account_id = $1 ORDER BY created_at DESC`
	args := []any{accountID}
	argIdx := 2

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bets for account %s: %w", accountID, err)
	}
	defer rows.Close()
	return collectBets(rows)
}

func collectBets(rows pgx.Rows) ([]domain.Bet, error) {
	var bets []domain.Bet
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan bet: %w", err)
		}
		bets = append(bets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: bet rows: %w", err)
	}
	return bets, nil
}

func scanBet(row pgx.Row) (domain.Bet, error) {
	var b domain.Bet
	var side, status string

	err := row.Scan(
		&b.ID, &b.MarketID, &b.AccountID, &side, &b.Amount, &b.Shares,
		&b.EffectivePrice, &b.PotentialPayout, &status, &b.Payout, &b.CreatedAt, &b.SettledAt,
	)
	if err != nil {
		return domain.Bet{}, err
	}

	b.Side = domain.Side(side)
	b.Status = domain.BetStatus(status)
	return b, nil
}

var _ domain.BetStore = (*BetStore)(nil)
