package persistence

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/billcraft/backend/internal/domain/invoicing"
	"github.com/billcraft/backend/internal/domain/shared"
	"github.com/billcraft/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormInvoiceRepository implements invoicing.InvoiceRepository using GORM
type GormInvoiceRepository struct {
	db *gorm.DB
}

// NewGormInvoiceRepository creates a new GormInvoiceRepository
func NewGormInvoiceRepository(db *gorm.DB) *GormInvoiceRepository {
	return &GormInvoiceRepository{db: db}
}

// WithTx returns a new repository instance with the given transaction
func (r *GormInvoiceRepository) WithTx(tx *gorm.DB) *GormInvoiceRepository {
	return &GormInvoiceRepository{db: tx}
}

// FindByID finds an invoice within a tenant. Returns (nil, nil) when the
// invoice does not exist; the caller decides whether absence is an error.
func (r *GormInvoiceRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*invoicing.Invoice, error) {
	var model models.InvoiceModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Create inserts a new invoice aggregate
func (r *GormInvoiceRepository) Create(ctx context.Context, inv *invoicing.Invoice) error {
	model := models.InvoiceModelFromDomain(inv)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return shared.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// Save persists the aggregate with an optimistic version check. All columns
// are written explicitly so that fields cleared to their zero value (a fully
// paid invoice's due_cents, a stopped reminder schedule) still land.
func (r *GormInvoiceRepository) Save(ctx context.Context, inv *invoicing.Invoice) error {
	model := models.InvoiceModelFromDomain(inv)
	result := r.db.WithContext(ctx).
		Model(&models.InvoiceModel{}).
		Where("id = ? AND tenant_id = ? AND version = ?", inv.ID, inv.TenantID, inv.Version-1).
		Select("*").
		Omit("id", "tenant_id", "created_at").
		Updates(model)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return shared.ErrAlreadyExists
		}
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}

// List returns invoices matching the filter plus the total count
func (r *GormInvoiceRepository) List(ctx context.Context, tenantID uuid.UUID, filter invoicing.InvoiceFilter) ([]invoicing.Invoice, int64, error) {
	var total int64
	countQuery := r.applyInvoiceFilter(
		r.db.WithContext(ctx).Model(&models.InvoiceModel{}).Where("tenant_id = ?", tenantID),
		filter,
	)
	if err := countQuery.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	orderBy := ValidateSortField(filter.OrderBy, InvoiceSortFields, "created_at")
	orderDir := ValidateSortOrder(filter.OrderDir)

	var invoiceModels []models.InvoiceModel
	query := r.applyInvoiceFilter(
		r.db.WithContext(ctx).Model(&models.InvoiceModel{}).Where("tenant_id = ?", tenantID),
		filter,
	)
	if err := query.
		Order(fmt.Sprintf("%s %s", orderBy, orderDir)).
		Offset(filter.Offset()).
		Limit(filter.Limit()).
		Find(&invoiceModels).Error; err != nil {
		return nil, 0, err
	}

	invoices := make([]invoicing.Invoice, len(invoiceModels))
	for i, model := range invoiceModels {
		invoices[i] = *model.ToDomain()
	}
	return invoices, total, nil
}

// applyInvoiceFilter applies the domain filter predicates without pagination
func (r *GormInvoiceRepository) applyInvoiceFilter(query *gorm.DB, filter invoicing.InvoiceFilter) *gorm.DB {
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.CustomerID != nil {
		query = query.Where("customer_id = ?", *filter.CustomerID)
	}
	if filter.Overdue {
		now := time.Now().UTC()
		startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		query = query.
			Where("status IN ?", []invoicing.InvoiceStatus{invoicing.InvoiceStatusIssued, invoicing.InvoiceStatusSent}).
			Where("due_cents > 0 AND due_date IS NOT NULL AND due_date < ?", startOfDay)
	}
	return query
}

// IsNumberTaken reports whether the number is already assigned within the tenant
func (r *GormInvoiceRepository) IsNumberTaken(ctx context.Context, tenantID uuid.UUID, number string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.InvoiceModel{}).
		Where("tenant_id = ? AND number = ?", tenantID, number).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// MaxNumberSequence returns the highest sequence already allocated for the
// tenant in the given year, 0 when none exists. Ordering by length before
// value keeps the comparison numeric once a sequence outgrows its zero
// padding.
func (r *GormInvoiceRepository) MaxNumberSequence(ctx context.Context, tenantID uuid.UUID, year int) (int64, error) {
	prefix := fmt.Sprintf("INV-%d-", year)

	var numbers []string
	err := r.db.WithContext(ctx).
		Model(&models.InvoiceModel{}).
		Where("tenant_id = ? AND number LIKE ?", tenantID, prefix+"%").
		Order("length(number) DESC, number DESC").
		Limit(1).
		Pluck("number", &numbers).Error
	if err != nil {
		return 0, err
	}
	if len(numbers) == 0 {
		return 0, nil
	}

	number := numbers[0]
	seq, err := strconv.ParseInt(strings.TrimPrefix(number, prefix), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed invoice number %q: %w", number, err)
	}
	return seq, nil
}
