package shared

import (
	"context"

	"github.com/google/uuid"
)

// IdempotencyStore maps (tenant, action, client key) to the result body the
// first successful execution produced. Side-effecting commands check the store
// before acting and write their result after acting; a repeated submission
// with the same key returns the stored body instead of re-executing.
//
// Put must be race-safe: when two writers race on the same key the first one
// wins and the second reads back the winner's body. Storage backs this with a
// unique constraint, not in-process locking, since command handlers scale
// horizontally.
type IdempotencyStore interface {
	// Get returns the stored result body, or (nil, false, nil) when absent.
	Get(ctx context.Context, tenantID uuid.UUID, actionKey, idempotencyKey string) ([]byte, bool, error)

	// Put stores the result body for the key. Returns the body that ended up
	// stored, which is the caller's body unless a concurrent writer won the
	// race first.
	Put(ctx context.Context, tenantID uuid.UUID, actionKey, idempotencyKey string, body []byte) ([]byte, error)
}
