package models

import (
	"time"

	"github.com/google/uuid"
)

// IdempotencyRecordModel stores the result body the first execution of a
// keyed command produced. The unique index over (tenant, action, key) is what
// makes Put first-writer-wins under concurrency.
type IdempotencyRecordModel struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID       uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_idempotency_tenant_action_key,priority:1"`
	ActionKey      string    `gorm:"type:varchar(100);not null;uniqueIndex:idx_idempotency_tenant_action_key,priority:2"`
	IdempotencyKey string    `gorm:"type:varchar(255);not null;uniqueIndex:idx_idempotency_tenant_action_key,priority:3"`
	Body           []byte    `gorm:"type:jsonb;not null"`
	CreatedAt      time.Time `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (IdempotencyRecordModel) TableName() string {
	return "idempotency_records"
}
