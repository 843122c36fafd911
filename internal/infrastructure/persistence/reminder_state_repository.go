package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/billcraft/backend/internal/domain/invoicing"
	"github.com/billcraft/backend/internal/domain/shared"
	"github.com/billcraft/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormReminderStateRepository implements invoicing.ReminderStateRepository
// using GORM. Claiming is a conditional UPDATE per candidate rather than
// SELECT FOR UPDATE SKIP LOCKED, so the same code runs against Postgres in
// production and SQLite in tests.
type GormReminderStateRepository struct {
	db *gorm.DB
}

// NewGormReminderStateRepository creates a new GormReminderStateRepository
func NewGormReminderStateRepository(db *gorm.DB) *GormReminderStateRepository {
	return &GormReminderStateRepository{db: db}
}

// WithTx returns a new repository instance with the given transaction
func (r *GormReminderStateRepository) WithTx(tx *gorm.DB) *GormReminderStateRepository {
	return &GormReminderStateRepository{db: tx}
}

// FindByInvoice finds the reminder state tracking an invoice. Returns
// (nil, nil) when no tracking exists.
func (r *GormReminderStateRepository) FindByInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID) (*invoicing.ReminderState, error) {
	var model models.ReminderStateModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND invoice_id = ?", tenantID, invoiceID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Create inserts new reminder tracking. The unique index on the invoice ID
// turns a concurrent double-start into shared.ErrAlreadyExists.
func (r *GormReminderStateRepository) Create(ctx context.Context, rs *invoicing.ReminderState) error {
	model := models.ReminderStateModelFromDomain(rs)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return shared.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// Save persists the reminder state. All columns are written explicitly so a
// cleared schedule (next_reminder_at NULL, stopped false on resume) lands.
func (r *GormReminderStateRepository) Save(ctx context.Context, rs *invoicing.ReminderState) error {
	model := models.ReminderStateModelFromDomain(rs)
	result := r.db.WithContext(ctx).
		Model(&models.ReminderStateModel{}).
		Where("id = ?", rs.ID).
		Select("*").
		Omit("id", "tenant_id", "created_at").
		Updates(model)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ClaimDue claims up to limit due records for lockedBy. A candidate is due
// when its schedule time has passed and it is not stopped; a lock older than
// lockTTL counts as free so a crashed worker's claims become reclaimable.
// Each claim is a conditional UPDATE keyed on the lock columns, so two
// workers racing on the same record cannot both win it.
func (r *GormReminderStateRepository) ClaimDue(ctx context.Context, workspaceID uuid.UUID, now time.Time, lockTTL time.Duration, lockedBy string, limit int) ([]*invoicing.ReminderState, error) {
	cutoff := now.Add(-lockTTL)

	var candidates []models.ReminderStateModel
	if err := r.db.WithContext(ctx).
		Where("workspace_id = ? AND stopped = ?", workspaceID, false).
		Where("next_reminder_at IS NOT NULL AND next_reminder_at <= ?", now).
		Where("locked_at IS NULL OR locked_at < ?", cutoff).
		Order("next_reminder_at ASC").
		Limit(limit).
		Find(&candidates).Error; err != nil {
		return nil, err
	}

	claimed := make([]*invoicing.ReminderState, 0, len(candidates))
	for i := range candidates {
		result := r.db.WithContext(ctx).
			Model(&models.ReminderStateModel{}).
			Where("id = ? AND stopped = ?", candidates[i].ID, false).
			Where("locked_at IS NULL OR locked_at < ?", cutoff).
			Updates(map[string]any{
				"locked_at":  now,
				"locked_by":  lockedBy,
				"updated_at": now,
			})
		if result.Error != nil {
			return nil, result.Error
		}
		if result.RowsAffected == 0 {
			// Another worker won this record between select and update
			continue
		}

		lockedAt := now
		candidates[i].LockedAt = &lockedAt
		candidates[i].LockedBy = lockedBy
		candidates[i].UpdatedAt = now
		claimed = append(claimed, candidates[i].ToDomain())
	}
	return claimed, nil
}

// ActiveReminderWorkspaces lists the workspaces that currently track at
// least one schedulable invoice. The scheduler polls per workspace, so this
// keeps idle workspaces out of the loop.
func (r *GormReminderStateRepository) ActiveReminderWorkspaces(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := r.db.WithContext(ctx).
		Model(&models.ReminderStateModel{}).
		Where("stopped = ? AND next_reminder_at IS NOT NULL", false).
		Distinct("workspace_id").
		Pluck("workspace_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// ReleaseLock clears the lease if it is still held by lockedBy. Releasing a
// lock that expired and was reclaimed by another worker is a no-op.
func (r *GormReminderStateRepository) ReleaseLock(ctx context.Context, id uuid.UUID, lockedBy string) error {
	return r.db.WithContext(ctx).
		Model(&models.ReminderStateModel{}).
		Where("id = ? AND locked_by = ?", id, lockedBy).
		Updates(map[string]any{
			"locked_at": nil,
			"locked_by": "",
		}).Error
}
