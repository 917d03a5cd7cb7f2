package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseKV(t *testing.T, kv KV) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := kv.Get(ctx, KeyLedger)
	require.NoError(t, err)
	assert.False(t, ok, "missing key should report ok=false")

	require.NoError(t, kv.Put(ctx, KeyLedger, "a"))
	v, ok, err := kv.Get(ctx, KeyLedger)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "a", v)

	require.NoError(t, kv.Put(ctx, KeyLedger, "b"))
	v, _, err = kv.Get(ctx, KeyLedger)
	require.NoError(t, err)
	assert.Equal(t, "b", v)

	require.NoError(t, kv.Put(ctx, KeyRules, "[]"))
	require.NoError(t, kv.Delete(ctx, KeyLedger))
	_, ok, err = kv.Get(ctx, KeyLedger)
	require.NoError(t, err)
	assert.False(t, ok)

	v, ok, err = kv.Get(ctx, KeyRules)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "[]", v)
}

func TestMemoryKV(t *testing.T) {
	exerciseKV(t, NewMemoryKV())
}

func TestMemoryKVHonoursCancelledContext(t *testing.T) {
	kv := NewMemoryKV()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, kv.Put(ctx, "k", "v"))
}

func TestSQLiteKV(t *testing.T) {
	kv, err := NewSQLiteKV(filepath.Join(t.TempDir(), "nested", "casheye.db"))
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })

	exerciseKV(t, kv)
}

func TestSQLiteKVPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "casheye.db")
	ctx := context.Background()

	kv, err := NewSQLiteKV(path)
	require.NoError(t, err)
	require.NoError(t, kv.Put(ctx, KeyCategories, `{"食費":["精肉"]}`))
	require.NoError(t, kv.Close())

	kv, err = NewSQLiteKV(path)
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })

	v, ok, err := kv.Get(ctx, KeyCategories)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"食費":["精肉"]}`, v)
}

func TestSQLiteKVHistory(t *testing.T) {
	kv, err := NewSQLiteKV(filepath.Join(t.TempDir(), "casheye.db"))
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })
	ctx := context.Background()

	require.NoError(t, kv.Put(ctx, KeyLedger, "v1"))
	require.NoError(t, kv.Put(ctx, KeyLedger, "v2"))
	require.NoError(t, kv.Put(ctx, KeyLedger, "v2"))
	require.NoError(t, kv.Put(ctx, KeyLedger, "v3"))

	hist, err := kv.History(ctx, KeyLedger, 10)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, "v2", hist[0].Value)
	assert.Equal(t, "v1", hist[1].Value)
}
