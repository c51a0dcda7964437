package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bettitlabs/bettit/internal/domain"
)

// SettlementArchiver implements domain.SettlementArchiver by serialising a
// settled market's final state and its bets to JSON and uploading the
// document to S3 at settlements/{marketID}.json.
//
// Deletion of the settled records from the primary store is intentionally
// not performed here.
type SettlementArchiver struct {
	writer *Writer
}

// NewSettlementArchiver creates a new SettlementArchiver.
func NewSettlementArchiver(w *Writer) *SettlementArchiver {
	return &SettlementArchiver{writer: w}
}

// settlementRecord is the archived document layout.
type settlementRecord struct {
	Market     domain.Market `json:"market"`
	Bets       []domain.Bet  `json:"bets"`
	BetCount   int           `json:"betCount"`
	ArchivedAt time.Time     `json:"archivedAt"`
}

// ArchiveSettlement uploads the settlement document and returns the object
// key it was stored under.
func (a *SettlementArchiver) ArchiveSettlement(ctx context.Context, market domain.Market, bets []domain.Bet) (string, error) {
	record := settlementRecord{
		Market:     market,
		Bets:       bets,
		BetCount:   len(bets),
		ArchivedAt: time.Now().UTC(),
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(record); err != nil {
		return "", fmt.Errorf("s3blob: archive settlement marshal: %w", err)
	}

	path := settlementPath(market.ID)
	if err := a.writer.Put(ctx, path, &buf, "application/json"); err != nil {
		return "", fmt.Errorf("s3blob: archive settlement upload: %w", err)
	}
	return path, nil
}

func settlementPath(marketID string) string {
	return "settlements/" + marketID + ".json"
}

var _ domain.SettlementArchiver = (*SettlementArchiver)(nil)
