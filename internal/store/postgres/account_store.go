package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/bettitlabs/bettit/internal/domain"
)

// AccountStore implements domain.AccountStore using PostgreSQL.
type AccountStore struct {
	pool *pgxpool.Pool
}

// NewAccountStore creates a new AccountStore backed by the given connection pool.
func NewAccountStore(pool *pgxpool.Pool) *AccountStore {
	return &AccountStore{pool: pool}
}

const accountCols = `id, username, balance, total_bets, total_winnings, created_at`

// Create inserts a new account.
func (s *AccountStore) Create(ctx context.Context, a domain.Account) error {
	const query = `
		INSERT INTO accounts (id, username, balance, total_bets, total_winnings, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.pool.Exec(ctx, query,
		a.ID, a.Username, a.Balance, a.TotalBets, a.TotalWinnings, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: create account %s: %w", a.ID, err)
	}
	return nil
}

// Get retrieves an account by its primary key.
func (s *AccountStore) Get(ctx context.Context, id string) (domain.Account, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+accountCols+` FROM accounts WHERE id = $1`, id)

	var a domain.Account
	err := row.Scan(&a.ID, &a.Username, &a.Balance, &a.TotalBets, &a.TotalWinnings, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{}, domain.ErrNotFound
		}
		return domain.Account{}, fmt.Errorf("postgres: get account %s: %w", id, err)
	}
	return a, nil
}

// Debit atomically subtracts amount from the balance. The guard in the WHERE
// clause makes the check-and-subtract a single statement, so two concurrent
// debits can never drive the balance negative.
func (s *AccountStore) Debit(ctx context.Context, id string, amount decimal.Decimal) (decimal.Decimal, error) {
	const query = `
		UPDATE accounts SET balance = balance - $2
		WHERE id = $1 AND balance >= $2
		RETURNING balance`

	var balance decimal.Decimal
	err := s.pool.QueryRow(ctx, query, id, amount).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			var exists bool
			if err := s.pool.QueryRow(ctx,
				"SELECT EXISTS(SELECT 1 FROM accounts WHERE id = $1)", id,
			).Scan(&exists); err == nil && !exists {
				return decimal.Zero, domain.ErrNotFound
			}
			return decimal.Zero, domain.ErrInsufficientBalance
		}
		return decimal.Zero, fmt.Errorf("postgres: debit account %s: %w", id, err)
	}
	return balance, nil
}

// Credit atomically adds amount to the balance.
func (s *AccountStore) Credit(ctx context.Context, id string, amount decimal.Decimal) (decimal.Decimal, error) {
	const query = `
		UPDATE accounts SET balance = balance + $2
		WHERE id = $1
		RETURNING balance`

	var balance decimal.Decimal
	err := s.pool.QueryRow(ctx, query, id, amount).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, domain.ErrNotFound
		}
		return decimal.Zero, fmt.Errorf("postgres: credit account %s: %w", id, err)
	}
	return balance, nil
}

// RecordBet bumps the account's lifetime bet counter.
func (s *AccountStore) RecordBet(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE accounts SET total_bets = total_bets + 1 WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("postgres: record bet for account %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// RecordWinnings adds amount to the account's lifetime winnings total.
func (s *AccountStore) RecordWinnings(ctx context.Context, id string, amount decimal.Decimal) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE accounts SET total_winnings = total_winnings + $2 WHERE id = $1", id, amount)
	if err != nil {
		return fmt.Errorf("postgres: record winnings for account %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Leaderboard returns the top accounts ranked by balance.
func (s *AccountStore) Leaderboard(ctx context.Context, limit int) ([]domain.Account, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+accountCols+` FROM accounts ORDER BY balance DESC, username ASC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: leaderboard: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		var a domain.Account
		if err := rows.Scan(&a.ID, &a.Username, &a.Balance, &a.TotalBets, &a.TotalWinnings, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: leaderboard rows: %w", err)
	}
	return accounts, nil
}

var _ domain.AccountStore = (*AccountStore)(nil)
