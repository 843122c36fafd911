package persistence

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormIdempotencyStore_GetAbsent(t *testing.T) {
	db := setupInvoicingTestDB(t)
	store := NewGormIdempotencyStore(db)

	body, found, err := store.Get(context.Background(), uuid.New(), "invoice.finalize", "key-1")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, body)
}

func TestGormIdempotencyStore_PutThenGet(t *testing.T) {
	db := setupInvoicingTestDB(t)
	store := NewGormIdempotencyStore(db)
	ctx := context.Background()
	tenantID := uuid.New()

	body := []byte(`{"invoice_id":"abc"}`)
	stored, err := store.Put(ctx, tenantID, "invoice.finalize", "key-1", body)
	require.NoError(t, err)
	assert.Equal(t, body, stored)

	got, found, err := store.Get(ctx, tenantID, "invoice.finalize", "key-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.JSONEq(t, string(body), string(got))
}

func TestGormIdempotencyStore_FirstWriterWins(t *testing.T) {
	db := setupInvoicingTestDB(t)
	store := NewGormIdempotencyStore(db)
	ctx := context.Background()
	tenantID := uuid.New()

	first := []byte(`{"winner":true}`)
	_, err := store.Put(ctx, tenantID, "invoice.send", "key-1", first)
	require.NoError(t, err)

	second := []byte(`{"winner":false}`)
	stored, err := store.Put(ctx, tenantID, "invoice.send", "key-1", second)
	require.NoError(t, err)
	assert.JSONEq(t, string(first), string(stored))
}

func TestGormIdempotencyStore_KeysAreNamespaced(t *testing.T) {
	db := setupInvoicingTestDB(t)
	store := NewGormIdempotencyStore(db)
	ctx := context.Background()
	tenantID := uuid.New()

	_, err := store.Put(ctx, tenantID, "invoice.finalize", "key-1", []byte(`{"action":"finalize"}`))
	require.NoError(t, err)

	t.Run("same key under another action is independent", func(t *testing.T) {
		_, found, err := store.Get(ctx, tenantID, "invoice.send", "key-1")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("same key under another tenant is independent", func(t *testing.T) {
		_, found, err := store.Get(ctx, uuid.New(), "invoice.finalize", "key-1")
		require.NoError(t, err)
		assert.False(t, found)
	})
}
