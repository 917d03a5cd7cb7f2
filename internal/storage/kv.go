// Package storage holds the opaque string key-value store the ledger,
// recurring rules and category preferences are persisted in.
package storage

import (
	"context"
	"errors"
)

// Well-known keys. Each value is an opaque string owned by one component.
const (
	KeyLedger     = "casheye_expenses/csv_data"
	KeyRules      = "casheye_recurring/recurring_transactions"
	KeyCategories = "category_prefs/category_map"
	KeyIncome     = "category_prefs/income_majors"
)

var ErrClosed = errors.New("store closed")

// KV is the persistence port. A missing key is reported with ok=false and a
// nil error.
type KV interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Put(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}
