package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bettitlabs/bettit/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const marketCols = `id, question, description, resolution_criteria, resolution_date,
	created_by, community, status, liquidity, q_yes, q_no,
	yes_price, no_price, total_pool, outcome, version, created_at, resolved_at`

// Create inserts a new market.
func (s *MarketStore) Create(ctx context.Context, m domain.Market) error {
	const query = `
		INSERT INTO markets (
			id, question, description, resolution_criteria, resolution_date,
			created_by, community, status, liquidity, q_yes, q_no,
			yes_price, no_price, total_pool, outcome, version, created_at, resolved_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16, $17, $18
		)`

	var outcome *string
	if m.Outcome != nil {
		o := string(*m.Outcome)
		outcome = &o
	}

	_, err := s.pool.Exec(ctx, query,
		m.ID, m.Question, m.Description, m.ResolutionCriteria, m.ResolutionDate,
		m.CreatedBy, m.Community, string(m.Status), m.Liquidity, m.QYes, m.QNo,
		m.YesPrice, m.NoPrice, m.TotalPool, outcome, m.Version, m.CreatedAt, m.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create market %s: %w", m.ID, err)
	}
	return nil
}

// Get retrieves a market by its primary key.
func (s *MarketStore) Get(ctx context.Context, id string) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE id = $1`, id)
	m, err := scanMarket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id, err)
	}
	return m, nil
}

// Save writes the market's mutable state guarded by its version: the update
// only lands when the stored version still equals expectedVersion, bumping
// it by one. Zero rows affected means another writer got there first.
func (s *MarketStore) Save(ctx context.Context, m domain.Market, expectedVersion int64) error {
	const query = `
		UPDATE markets SET
			status      = $2,
			q_yes       = $3,
			q_no        = $4,
			yes_price   = $5,
			no_price    = $6,
			total_pool  = $7,
			outcome     = $8,
			resolved_at = $9,
			version     = version + 1
		WHERE id = $1 AND version = $10`

	var outcome *string
	if m.Outcome != nil {
		o := string(*m.Outcome)
		outcome = &o
	}

	tag, err := s.pool.Exec(ctx, query,
		m.ID, string(m.Status), m.QYes, m.QNo,
		m.YesPrice, m.NoPrice, m.TotalPool, outcome, m.ResolvedAt,
		expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("postgres: save market %s: %w", m.ID, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM markets WHERE id = $1)", m.ID,
		).Scan(&exists); err == nil && !exists {
			return domain.ErrNotFound
		}
		return domain.ErrVersionConflict
	}
	return nil
}

// List returns markets filtered by status ("" for all), newest first.
func (s *MarketStore) List(ctx context.Context, status domain.MarketStatus, opts domain.ListOpts) ([]domain.Market, error) {
	query := `SELECT ` + marketCols + ` FROM markets`
	args := []any{}
	argIdx := 1

	if status != "" {
		query += fmt.Sprintf(" WHERE status = $%d", argIdx)
		args = append(args, string(status))
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
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list markets rows: %w", err)
	}
	return markets, nil
}

// scanMarket scans a single market row into a domain.Market.
func scanMarket(row pgx.Row) (domain.Market, error) {
	var m domain.Market
	var status string
	var outcome *string

	err := row.Scan(
		&m.ID, &m.Question, &m.Description, &m.ResolutionCriteria, &m.ResolutionDate,
		&m.CreatedBy, &m.Community, &status, &m.Liquidity, &m.QYes, &m.QNo,
		&m.YesPrice, &m.NoPrice, &m.TotalPool, &outcome, &m.Version, &m.CreatedAt, &m.ResolvedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}

	m.Status = domain.MarketStatus(status)
	if outcome != nil {
		o := domain.Side(*outcome)
		m.Outcome = &o
	}
	return m, nil
}

var _ domain.MarketStore = (*MarketStore)(nil)
