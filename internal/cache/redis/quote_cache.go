package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/bettitlabs/bettit/internal/domain"
)

// quoteTTL bounds staleness: a quote that is never refreshed ages out and the
// read path falls back to the market record.
const quoteTTL = 5 * time.Minute

// QuoteCache implements domain.QuoteCache using Redis hashes. Each market's
// quote is stored at key "quote:{marketID}" with fields "yes", "no", and "ts"
// (Unix nanosecond timestamp).
type QuoteCache struct {
	rdb *redis.Client
}

// NewQuoteCache creates a QuoteCache backed by the given Client.
func NewQuoteCache(c *Client) *QuoteCache {
	return &QuoteCache{rdb: c.Underlying()}
}

func quoteKey(marketID string) string {
	return "quote:" + marketID
}

// SetQuote stores the latest price pair for a market.
func (qc *QuoteCache) SetQuote(ctx context.Context, q domain.Quote) error {
	key := quoteKey(q.MarketID)
	fields := map[string]interface{}{
		"yes": q.YesPrice.String(),
		"no":  q.NoPrice.String(),
		"ts":  strconv.FormatInt(q.UpdatedAt.UnixNano(), 10),
	}

	pipe := qc.rdb.Pipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, quoteTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set quote %s: %w", q.MarketID, err)
	}
	return nil
}

// GetQuote retrieves the latest price pair for a market. It returns
// domain.ErrNotFound when no quote is cached.
func (qc *QuoteCache) GetQuote(ctx context.Context, marketID string) (domain.Quote, error) {
	vals, err := qc.rdb.HGetAll(ctx, quoteKey(marketID)).Result()
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: get quote %s: %w", marketID, err)
	}
	if len(vals) == 0 {
		return domain.Quote{}, domain.ErrNotFound
	}

	yes, err := decimal.NewFromString(vals["yes"])
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: parse yes price %s: %w", marketID, err)
	}
	no, err := decimal.NewFromString(vals["no"])
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: parse no price %s: %w", marketID, err)
	}
	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: parse ts %s: %w", marketID, err)
	}

	return domain.Quote{
		MarketID:  marketID,
		YesPrice:  yes,
		NoPrice:   no,
		UpdatedAt: time.Unix(0, tsNano),
	}, nil
}

var _ domain.QuoteCache = (*QuoteCache)(nil)
