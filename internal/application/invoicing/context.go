// Package invoicing contains the application services orchestrating the
// invoice lifecycle: draft editing, finalization with number allocation and
// snapshot freezing, delivery, payment recording and the reminder pass.
package invoicing

import (
	"github.com/billcraft/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// CommandContext carries the caller identity every command requires. It is
// resolved by the transport layer (headers, auth middleware) and handed to
// the services; the services never reach into transport types.
type CommandContext struct {
	TenantID    uuid.UUID
	WorkspaceID uuid.UUID
	UserID      uuid.UUID
	// IdempotencyKey is the client-supplied replay key. Empty means the
	// caller opted out of replay protection for this command.
	IdempotencyKey string
}

// Validate checks that the mandatory identity fields are present
func (c CommandContext) Validate() error {
	if c.TenantID == uuid.Nil {
		return shared.ErrMissingTenant
	}
	return nil
}
