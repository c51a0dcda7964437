package app

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bettitlabs/bettit/internal/domain"
)

// seedBalance is the starting balance for demo accounts in standalone mode.
var seedBalance = decimal.NewFromInt(1000)

var seedUsernames = []string{"alice", "bob", "carol"}

// seedAccounts creates a fixed set of demo accounts so the standalone mode is
// usable out of the box. Account IDs equal their usernames to keep curl
// sessions simple.
func seedAccounts(ctx context.Context, deps *Dependencies) error {
	now := time.Now().UTC()
	for _, name := range seedUsernames {
		err := deps.AccountStore.Create(ctx, domain.Account{
			ID:        name,
			Username:  name,
			Balance:   seedBalance,
			CreatedAt: now,
		})
		if err != nil {
			return err
		}
	}
	return nil
}
