package invoicing

import (
	"time"

	"github.com/billcraft/backend/internal/domain/shared"
	"github.com/google/uuid"
)

const aggregateTypeInvoice = "Invoice"

// InvoiceCreatedEvent is raised when a new draft invoice is created
type InvoiceCreatedEvent struct {
	shared.BaseDomainEvent
	InvoiceID uuid.UUID  `json:"invoice_id"`
	Currency  string     `json:"currency"`
	CustomerID *uuid.UUID `json:"customer_id,omitempty"`
}

// EventType returns the event type name
func (e *InvoiceCreatedEvent) EventType() string { return "InvoiceCreated" }

// NewInvoiceCreatedEvent creates a new InvoiceCreatedEvent
func NewInvoiceCreatedEvent(inv *Invoice, occurredAt time.Time) *InvoiceCreatedEvent {
	return &InvoiceCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("InvoiceCreated", aggregateTypeInvoice, inv.ID, inv.TenantID, occurredAt),
		InvoiceID:       inv.ID,
		Currency:        string(inv.Currency),
		CustomerID:      inv.CustomerID,
	}
}

// InvoiceFinalizedEvent is raised when a draft becomes an issued document
type InvoiceFinalizedEvent struct {
	shared.BaseDomainEvent
	InvoiceID  uuid.UUID `json:"invoice_id"`
	Number     string    `json:"number"`
	CustomerID uuid.UUID `json:"customer_id"`
	TotalCents int64     `json:"total_cents"`
	TaxCents   int64     `json:"tax_cents"`
	Currency   string    `json:"currency"`
	IssuedAt   time.Time `json:"issued_at"`
}

// EventType returns the event type name
func (e *InvoiceFinalizedEvent) EventType() string { return "InvoiceFinalized" }

// NewInvoiceFinalizedEvent creates a new InvoiceFinalizedEvent
func NewInvoiceFinalizedEvent(inv *Invoice, occurredAt time.Time) *InvoiceFinalizedEvent {
	number := ""
	if inv.Number != nil {
		number = *inv.Number
	}
	customerID := uuid.Nil
	if inv.CustomerID != nil {
		customerID = *inv.CustomerID
	}
	issuedAt := occurredAt
	if inv.IssuedAt != nil {
		issuedAt = *inv.IssuedAt
	}
	return &InvoiceFinalizedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("InvoiceFinalized", aggregateTypeInvoice, inv.ID, inv.TenantID, occurredAt),
		InvoiceID:       inv.ID,
		Number:          number,
		CustomerID:      customerID,
		TotalCents:      inv.Totals.TotalCents,
		TaxCents:        inv.Totals.TaxCents,
		Currency:        string(inv.Currency),
		IssuedAt:        issuedAt,
	}
}

// InvoiceSentEvent is raised when the invoice is delivered to the customer
type InvoiceSentEvent struct {
	shared.BaseDomainEvent
	InvoiceID uuid.UUID `json:"invoice_id"`
	Number    string    `json:"number"`
	SentAt    time.Time `json:"sent_at"`
}

// EventType returns the event type name
func (e *InvoiceSentEvent) EventType() string { return "InvoiceSent" }

// NewInvoiceSentEvent creates a new InvoiceSentEvent
func NewInvoiceSentEvent(inv *Invoice, occurredAt time.Time) *InvoiceSentEvent {
	number := ""
	if inv.Number != nil {
		number = *inv.Number
	}
	return &InvoiceSentEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("InvoiceSent", aggregateTypeInvoice, inv.ID, inv.TenantID, occurredAt),
		InvoiceID:       inv.ID,
		Number:          number,
		SentAt:          occurredAt,
	}
}

// InvoicePaymentRecordedEvent is raised for every recorded payment
type InvoicePaymentRecordedEvent struct {
	shared.BaseDomainEvent
	InvoiceID   uuid.UUID `json:"invoice_id"`
	PaymentID   uuid.UUID `json:"payment_id"`
	AmountCents int64     `json:"amount_cents"`
	PaidCents   int64     `json:"paid_cents"`
	DueCents    int64     `json:"due_cents"`
}

// EventType returns the event type name
func (e *InvoicePaymentRecordedEvent) EventType() string { return "InvoicePaymentRecorded" }

// NewInvoicePaymentRecordedEvent creates a new InvoicePaymentRecordedEvent
func NewInvoicePaymentRecordedEvent(inv *Invoice, payment Payment, occurredAt time.Time) *InvoicePaymentRecordedEvent {
	return &InvoicePaymentRecordedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("InvoicePaymentRecorded", aggregateTypeInvoice, inv.ID, inv.TenantID, occurredAt),
		InvoiceID:       inv.ID,
		PaymentID:       payment.ID,
		AmountCents:     payment.AmountCents,
		PaidCents:       inv.Totals.PaidCents,
		DueCents:        inv.Totals.DueCents,
	}
}

// InvoicePaidEvent is raised when the paid amount covers the total
type InvoicePaidEvent struct {
	shared.BaseDomainEvent
	InvoiceID  uuid.UUID `json:"invoice_id"`
	Number     string    `json:"number"`
	TotalCents int64     `json:"total_cents"`
	PaidAt     time.Time `json:"paid_at"`
}

// EventType returns the event type name
func (e *InvoicePaidEvent) EventType() string { return "InvoicePaid" }

// NewInvoicePaidEvent creates a new InvoicePaidEvent
func NewInvoicePaidEvent(inv *Invoice, occurredAt time.Time) *InvoicePaidEvent {
	number := ""
	if inv.Number != nil {
		number = *inv.Number
	}
	return &InvoicePaidEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("InvoicePaid", aggregateTypeInvoice, inv.ID, inv.TenantID, occurredAt),
		InvoiceID:       inv.ID,
		Number:          number,
		TotalCents:      inv.Totals.TotalCents,
		PaidAt:          occurredAt,
	}
}

// InvoiceCanceledEvent is raised when an invoice is voided
type InvoiceCanceledEvent struct {
	shared.BaseDomainEvent
	InvoiceID uuid.UUID `json:"invoice_id"`
	Reason    string    `json:"reason,omitempty"`
}

// EventType returns the event type name
func (e *InvoiceCanceledEvent) EventType() string { return "InvoiceCanceled" }

// NewInvoiceCanceledEvent creates a new InvoiceCanceledEvent
func NewInvoiceCanceledEvent(inv *Invoice, occurredAt time.Time) *InvoiceCanceledEvent {
	return &InvoiceCanceledEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("InvoiceCanceled", aggregateTypeInvoice, inv.ID, inv.TenantID, occurredAt),
		InvoiceID:       inv.ID,
		Reason:          inv.CancelReason,
	}
}

// InvoiceReminderSentEvent is raised when the reminder scheduler sends a
// payment reminder for an overdue invoice
type InvoiceReminderSentEvent struct {
	shared.BaseDomainEvent
	InvoiceID uuid.UUID `json:"invoice_id"`
	Ordinal   int       `json:"ordinal"`
}

// EventType returns the event type name
func (e *InvoiceReminderSentEvent) EventType() string { return "InvoiceReminderSent" }

// NewInvoiceReminderSentEvent creates a new InvoiceReminderSentEvent
func NewInvoiceReminderSentEvent(tenantID, invoiceID uuid.UUID, ordinal int, occurredAt time.Time) *InvoiceReminderSentEvent {
	return &InvoiceReminderSentEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("InvoiceReminderSent", aggregateTypeInvoice, invoiceID, tenantID, occurredAt),
		InvoiceID:       invoiceID,
		Ordinal:         ordinal,
	}
}
