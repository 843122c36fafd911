package persistence

import (
	"context"
	"time"

	"github.com/billcraft/backend/internal/domain/shared"
	"github.com/billcraft/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormOutboxRepository implements shared.OutboxRepository using GORM
type GormOutboxRepository struct {
	db *gorm.DB
}

// NewGormOutboxRepository creates a new GormOutboxRepository
func NewGormOutboxRepository(db *gorm.DB) *GormOutboxRepository {
	return &GormOutboxRepository{db: db}
}

// WithTx returns a new repository instance with the given transaction
func (r *GormOutboxRepository) WithTx(tx *gorm.DB) *GormOutboxRepository {
	return &GormOutboxRepository{db: tx}
}

// Enqueue inserts pending entries in one batch
func (r *GormOutboxRepository) Enqueue(ctx context.Context, entries []*shared.OutboxEntry) error {
	if len(entries) == 0 {
		return nil
	}
	entryModels := make([]*models.OutboxEntryModel, len(entries))
	for i, e := range entries {
		entryModels[i] = models.OutboxEntryModelFromDomain(e)
	}
	return r.db.WithContext(ctx).Create(entryModels).Error
}

// FindPending returns the oldest pending entries up to limit
func (r *GormOutboxRepository) FindPending(ctx context.Context, limit int) ([]*shared.OutboxEntry, error) {
	var entryModels []models.OutboxEntryModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", shared.OutboxStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&entryModels).Error; err != nil {
		return nil, err
	}
	entries := make([]*shared.OutboxEntry, len(entryModels))
	for i := range entryModels {
		entries[i] = entryModels[i].ToDomain()
	}
	return entries, nil
}

// MarkSent records a successful delivery
func (r *GormOutboxRepository) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&models.OutboxEntryModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":       shared.OutboxStatusSent,
			"processed_at": at,
			"updated_at":   at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// MarkRetry records a failed attempt that will be retried: the entry stays
// pending with a bumped retry counter
func (r *GormOutboxRepository) MarkRetry(ctx context.Context, id uuid.UUID, reason string, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&models.OutboxEntryModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"retry_count": gorm.Expr("retry_count + 1"),
			"last_error":  reason,
			"updated_at":  at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// MarkFailed records a failed delivery attempt and bumps the retry counter
func (r *GormOutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&models.OutboxEntryModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":      shared.OutboxStatusFailed,
			"retry_count": gorm.Expr("retry_count + 1"),
			"last_error":  reason,
			"updated_at":  at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}
