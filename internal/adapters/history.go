// Package adapters exposes storage capabilities that only some backends have
// in the shape the HTTP layer consumes.
package adapters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"casheye/internal/core"
	"casheye/internal/parser"
	"casheye/internal/storage"
)

var ErrSnapshotNotFound = errors.New("ledger snapshot not found")

// HistorySource is implemented by stores that keep overwritten values.
type HistorySource interface {
	History(ctx context.Context, key string, limit int) ([]storage.HistoryEntry, error)
}

// LedgerWriter replaces the stored ledger.
type LedgerWriter interface {
	Save(ctx context.Context, lines []core.ReceiptLine) error
}

// Snapshot describes one earlier version of the ledger.
type Snapshot struct {
	ID         int64     `json:"id"`
	ReplacedAt time.Time `json:"replacedAt"`
	Lines      int       `json:"lines"`
}

// LedgerHistory lists and restores earlier ledger versions so a bad import
// can be rolled back.
type LedgerHistory struct {
	source HistorySource
	ledger LedgerWriter
	parser *parser.Parser
}

func NewLedgerHistory(source HistorySource, ledger LedgerWriter, p *parser.Parser) *LedgerHistory {
	return &LedgerHistory{source: source, ledger: ledger, parser: p}
}

// Snapshots returns up to limit versions, newest first.
func (h *LedgerHistory) Snapshots(ctx context.Context, limit int) ([]Snapshot, error) {
	entries, err := h.source.History(ctx, storage.KeyLedger, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Snapshot, 0, len(entries))
	for _, e := range entries {
		out = append(out, Snapshot{
			ID:         e.ID,
			ReplacedAt: e.ReplacedAt,
			Lines:      len(h.parser.Parse(e.Value)),
		})
	}
	return out, nil
}

// Restore makes snapshot id the current ledger. The ledger being replaced is
// itself kept in the history. Only the most recent limit versions are
// searched.
func (h *LedgerHistory) Restore(ctx context.Context, id int64, limit int) ([]core.ReceiptLine, error) {
	entries, err := h.source.History(ctx, storage.KeyLedger, limit)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.ID != id {
			continue
		}
		lines := h.parser.Parse(e.Value)
		if err := h.ledger.Save(ctx, lines); err != nil {
			return nil, fmt.Errorf("restore snapshot %d: %w", id, err)
		}
		return lines, nil
	}
	return nil, ErrSnapshotNotFound
}
