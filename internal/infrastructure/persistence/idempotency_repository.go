package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/billcraft/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormIdempotencyStore implements shared.IdempotencyStore on the database.
// First-writer-wins comes from the unique index over (tenant, action, key):
// the insert either lands or collides, and on collision the winner's body is
// read back and returned to the loser.
type GormIdempotencyStore struct {
	db *gorm.DB
}

// NewGormIdempotencyStore creates a new GormIdempotencyStore
func NewGormIdempotencyStore(db *gorm.DB) *GormIdempotencyStore {
	return &GormIdempotencyStore{db: db}
}

// Get returns the stored result body, or (nil, false, nil) when absent
func (s *GormIdempotencyStore) Get(ctx context.Context, tenantID uuid.UUID, actionKey, idempotencyKey string) ([]byte, bool, error) {
	var model models.IdempotencyRecordModel
	if err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND action_key = ? AND idempotency_key = ?", tenantID, actionKey, idempotencyKey).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return model.Body, true, nil
}

// Put stores the result body for the key and returns whatever body ended up
// stored, which is the caller's unless a concurrent writer won the race.
func (s *GormIdempotencyStore) Put(ctx context.Context, tenantID uuid.UUID, actionKey, idempotencyKey string, body []byte) ([]byte, error) {
	model := &models.IdempotencyRecordModel{
		ID:             uuid.New(),
		TenantID:       tenantID,
		ActionKey:      actionKey,
		IdempotencyKey: idempotencyKey,
		Body:           body,
		CreatedAt:      time.Now().UTC(),
	}

	err := s.db.WithContext(ctx).Create(model).Error
	if err == nil {
		return body, nil
	}
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, err
	}

	stored, found, getErr := s.Get(ctx, tenantID, actionKey, idempotencyKey)
	if getErr != nil {
		return nil, getErr
	}
	if !found {
		return nil, err
	}
	return stored, nil
}
