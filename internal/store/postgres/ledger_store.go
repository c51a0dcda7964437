package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bettitlabs/bettit/internal/domain"
)

// LedgerStore implements domain.LedgerStore using PostgreSQL.
type LedgerStore struct {
	pool *pgxpool.Pool
}

// NewLedgerStore creates a new LedgerStore backed by the given connection pool.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// Append inserts a new ledger entry. Entries are never updated or deleted.
func (s *LedgerStore) Append(ctx context.Context, e domain.LedgerEntry) error {
	const query = `
		INSERT INTO ledger_entries (
			id, account_id, type, amount, balance_after,
			market_id, bet_id, description, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.pool.Exec(ctx, query,
		e.ID, e.AccountID, string(e.Type), e.Amount, e.BalanceAfter,
		nullIfEmpty(e.MarketID), nullIfEmpty(e.BetID), e.Description, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: append ledger entry %s: %w", e.ID, err)
	}
	return nil
}

// ListByAccount returns an account's ledger entries, newest first. Since and
// Until bound the entry timestamps when set.
func (s *LedgerStore) ListByAccount(ctx context.Context, accountID string, opts domain.ListOpts) ([]domain.LedgerEntry, error) {
	query := `
		SELECT id, account_id, type, amount, balance_after,
			COALESCE(market_id, ''), COALESCE(bet_id, ''), description, created_at
		FROM ledger_entries WHERE account_id = $1`
	args := []any{accountID}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at < $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

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
		return nil, fmt.Errorf("postgres: list ledger for account %s: %w", accountID, err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		var typ string
		if err := rows.Scan(&e.ID, &e.AccountID, &typ, &e.Amount, &e.BalanceAfter,
			&e.MarketID, &e.BetID, &e.Description, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan ledger entry: %w", err)
		}
		e.Type = domain.LedgerType(typ)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: ledger rows: %w", err)
	}
	return entries, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var _ domain.LedgerStore = (*LedgerStore)(nil)
