package models

import (
	"time"

	"github.com/billcraft/backend/internal/domain/invoicing"
	"github.com/billcraft/backend/internal/domain/shared"
	"github.com/billcraft/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// InvoiceModel is the persistence model for the Invoice aggregate root.
// The frozen snapshots and the line item / payment sequences live in JSONB
// columns; the tenant-scoped unique index on the number is the authoritative
// duplicate-number guard.
type InvoiceModel struct {
	TenantAggregateModel
	Number          *string                    `gorm:"type:varchar(50);uniqueIndex:idx_invoices_tenant_number,priority:2"`
	CustomerID      *uuid.UUID                 `gorm:"type:uuid;index"`
	Currency        valueobject.Currency       `gorm:"type:varchar(3);not null"`
	Notes           string                     `gorm:"type:text"`
	Terms           string                     `gorm:"type:text"`
	LineItems       invoicing.LineItems        `gorm:"type:jsonb;default:'[]'"`
	DiscountCents   int64                      `gorm:"not null;default:0"`
	InvoiceDate     *time.Time
	DueDate         *time.Time                 `gorm:"index"`
	Status          invoicing.InvoiceStatus    `gorm:"type:varchar(20);not null;default:'DRAFT';index"`
	SubtotalCents   int64                      `gorm:"not null;default:0"`
	TaxCents        int64                      `gorm:"not null;default:0"`
	TotalCents      int64                      `gorm:"not null;default:0"`
	PaidCents       int64                      `gorm:"not null;default:0"`
	DueCents        int64                      `gorm:"not null;default:0;index"`
	Payments        invoicing.Payments         `gorm:"type:jsonb;default:'[]'"`
	BillToSnapshot  *invoicing.BillToSnapshot  `gorm:"type:jsonb"`
	TaxSnapshot     *invoicing.TaxSnapshot     `gorm:"type:jsonb"`
	PaymentSnapshot *invoicing.PaymentSnapshot `gorm:"type:jsonb"`
	IssuerSnapshot  *invoicing.IssuerSnapshot  `gorm:"type:jsonb"`
	IssuedAt        *time.Time
	SentAt          *time.Time
	PaidAt          *time.Time
	CanceledAt      *time.Time
	CancelReason    string `gorm:"type:varchar(500)"`
}

// TableName returns the table name for GORM
func (InvoiceModel) TableName() string {
	return "invoices"
}

// ToDomain converts the persistence model to a domain Invoice aggregate.
func (m *InvoiceModel) ToDomain() *invoicing.Invoice {
	return &invoicing.Invoice{
		TenantAggregateRoot: shared.TenantAggregateRoot{
			BaseAggregateRoot: shared.BaseAggregateRoot{
				BaseEntity: shared.BaseEntity{
					ID:        m.ID,
					CreatedAt: m.CreatedAt,
					UpdatedAt: m.UpdatedAt,
				},
				Version: m.Version,
			},
			TenantID: m.TenantID,
		},
		Number:        m.Number,
		CustomerID:    m.CustomerID,
		Currency:      m.Currency,
		Notes:         m.Notes,
		Terms:         m.Terms,
		LineItems:     m.LineItems,
		DiscountCents: m.DiscountCents,
		InvoiceDate:   m.InvoiceDate,
		DueDate:       m.DueDate,
		Status:        m.Status,
		Totals: invoicing.Totals{
			SubtotalCents: m.SubtotalCents,
			TaxCents:      m.TaxCents,
			DiscountCents: m.DiscountCents,
			TotalCents:    m.TotalCents,
			PaidCents:     m.PaidCents,
			DueCents:      m.DueCents,
		},
		Payments:        m.Payments,
		BillToSnapshot:  m.BillToSnapshot,
		TaxSnapshot:     m.TaxSnapshot,
		PaymentSnapshot: m.PaymentSnapshot,
		IssuerSnapshot:  m.IssuerSnapshot,
		IssuedAt:        m.IssuedAt,
		SentAt:          m.SentAt,
		PaidAt:          m.PaidAt,
		CanceledAt:      m.CanceledAt,
		CancelReason:    m.CancelReason,
	}
}

// FromDomain populates the persistence model from a domain Invoice aggregate.
func (m *InvoiceModel) FromDomain(inv *invoicing.Invoice) {
	m.FromDomainTenantAggregateRoot(inv.TenantAggregateRoot)
	m.Number = inv.Number
	m.CustomerID = inv.CustomerID
	m.Currency = inv.Currency
	m.Notes = inv.Notes
	m.Terms = inv.Terms
	m.LineItems = inv.LineItems
	m.DiscountCents = inv.DiscountCents
	m.InvoiceDate = inv.InvoiceDate
	m.DueDate = inv.DueDate
	m.Status = inv.Status
	m.SubtotalCents = inv.Totals.SubtotalCents
	m.TaxCents = inv.Totals.TaxCents
	m.TotalCents = inv.Totals.TotalCents
	m.PaidCents = inv.Totals.PaidCents
	m.DueCents = inv.Totals.DueCents
	m.Payments = inv.Payments
	m.BillToSnapshot = inv.BillToSnapshot
	m.TaxSnapshot = inv.TaxSnapshot
	m.PaymentSnapshot = inv.PaymentSnapshot
	m.IssuerSnapshot = inv.IssuerSnapshot
	m.IssuedAt = inv.IssuedAt
	m.SentAt = inv.SentAt
	m.PaidAt = inv.PaidAt
	m.CanceledAt = inv.CanceledAt
	m.CancelReason = inv.CancelReason
}

// InvoiceModelFromDomain creates a new persistence model from a domain Invoice
func InvoiceModelFromDomain(inv *invoicing.Invoice) *InvoiceModel {
	m := &InvoiceModel{}
	m.FromDomain(inv)
	return m
}

// ReminderStateModel is the persistence model for reminder escalation state.
// LockedAt/LockedBy form the lease the scheduler's claim protocol works on.
type ReminderStateModel struct {
	BaseModel
	TenantID       uuid.UUID  `gorm:"type:uuid;not null;index"`
	WorkspaceID    uuid.UUID  `gorm:"type:uuid;not null;index"`
	InvoiceID      uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_reminder_states_invoice"`
	RemindersSent  int        `gorm:"not null;default:0"`
	NextReminderAt *time.Time `gorm:"index:idx_reminder_states_due"`
	LastReminderAt *time.Time
	LockedAt       *time.Time
	LockedBy       string `gorm:"type:varchar(100)"`
	Stopped        bool   `gorm:"not null;default:false;index:idx_reminder_states_due"`
}

// TableName returns the table name for GORM
func (ReminderStateModel) TableName() string {
	return "invoice_reminder_states"
}

// ToDomain converts the persistence model to a domain ReminderState entity.
func (m *ReminderStateModel) ToDomain() *invoicing.ReminderState {
	return &invoicing.ReminderState{
		BaseEntity:     m.BaseModel.ToDomain(),
		TenantID:       m.TenantID,
		WorkspaceID:    m.WorkspaceID,
		InvoiceID:      m.InvoiceID,
		RemindersSent:  m.RemindersSent,
		NextReminderAt: m.NextReminderAt,
		LastReminderAt: m.LastReminderAt,
		LockedAt:       m.LockedAt,
		LockedBy:       m.LockedBy,
		Stopped:        m.Stopped,
	}
}

// FromDomain populates the persistence model from a domain ReminderState entity.
func (m *ReminderStateModel) FromDomain(rs *invoicing.ReminderState) {
	m.FromDomainBaseEntity(rs.BaseEntity)
	m.TenantID = rs.TenantID
	m.WorkspaceID = rs.WorkspaceID
	m.InvoiceID = rs.InvoiceID
	m.RemindersSent = rs.RemindersSent
	m.NextReminderAt = rs.NextReminderAt
	m.LastReminderAt = rs.LastReminderAt
	m.LockedAt = rs.LockedAt
	m.LockedBy = rs.LockedBy
	m.Stopped = rs.Stopped
}

// ReminderStateModelFromDomain creates a new persistence model from a domain ReminderState
func ReminderStateModelFromDomain(rs *invoicing.ReminderState) *ReminderStateModel {
	m := &ReminderStateModel{}
	m.FromDomain(rs)
	return m
}
