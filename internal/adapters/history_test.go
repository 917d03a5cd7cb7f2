package adapters

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"casheye/internal/core"
	"casheye/internal/ledger"
	"casheye/internal/log"
	"casheye/internal/parser"
	"casheye/internal/storage"
)

func TestLedgerHistory(t *testing.T) {
	kv, err := storage.NewSQLiteKV(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer kv.Close()

	ctx := context.Background()
	p := parser.New(nil, parser.WithLogger(log.Discard()))
	store := ledger.NewStore(kv, p, log.Discard())
	h := NewLedgerHistory(kv, store, p)

	first := core.ReceiptLine{Date: core.NewDate(2025, 1, 5), Name: "牛乳", MajorCategory: "食費", PriceIncludeTax: 198}
	second := core.ReceiptLine{Date: core.NewDate(2025, 1, 6), Name: "卵", MajorCategory: "食費", PriceIncludeTax: 216}

	require.NoError(t, store.Save(ctx, []core.ReceiptLine{first}))
	require.NoError(t, store.Save(ctx, []core.ReceiptLine{first, second}))

	snaps, err := h.Snapshots(ctx, 10)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, 1, snaps[0].Lines)

	restored, err := h.Restore(ctx, snaps[0].ID, 10)
	require.NoError(t, err)
	require.Len(t, restored, 1)
	assert.Equal(t, first.Key(), restored[0].Key())

	lines, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, lines, 1)

	snaps, err = h.Snapshots(ctx, 10)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, 2, snaps[0].Lines)

	_, err = h.Restore(ctx, 999, 10)
	assert.ErrorIs(t, err, ErrSnapshotNotFound)
}
