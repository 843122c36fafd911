package invoicing

import (
	"context"
	"time"

	"github.com/billcraft/backend/internal/domain/shared"
	"github.com/billcraft/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// InvoiceFilter narrows invoice list queries
type InvoiceFilter struct {
	shared.Filter
	Status     *InvoiceStatus
	CustomerID *uuid.UUID
	Overdue    bool // due date passed and money still owed, relative to query time
}

// InvoiceRepository persists the invoice aggregate. All lookups are tenant
// scoped; there is no way to load an invoice without naming its tenant.
type InvoiceRepository interface {
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*Invoice, error)
	Create(ctx context.Context, inv *Invoice) error
	// Save persists the aggregate with an optimistic version check and
	// returns shared.ErrConcurrencyConflict when another writer got there
	// first. A tenant-unique index on the number makes it the authoritative
	// duplicate-number guard; violations surface as shared.ErrAlreadyExists.
	Save(ctx context.Context, inv *Invoice) error
	List(ctx context.Context, tenantID uuid.UUID, filter InvoiceFilter) ([]Invoice, int64, error)
	IsNumberTaken(ctx context.Context, tenantID uuid.UUID, number string) (bool, error)
	// MaxNumberSequence returns the highest sequence already allocated for
	// the tenant in the given year, 0 when none exists.
	MaxNumberSequence(ctx context.Context, tenantID uuid.UUID, year int) (int64, error)
}

// ReminderStateRepository persists reminder escalation state and implements
// the claim/release protocol the scheduler relies on.
type ReminderStateRepository interface {
	FindByInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID) (*ReminderState, error)
	Create(ctx context.Context, rs *ReminderState) error
	Save(ctx context.Context, rs *ReminderState) error
	// ClaimDue atomically marks up to limit due, unlocked records as locked
	// by lockedBy at now and returns them. Records whose lock is younger
	// than lockTTL are skipped; an expired lock counts as unlocked so a
	// crashed worker's claims become reclaimable without intervention.
	ClaimDue(ctx context.Context, workspaceID uuid.UUID, now time.Time, lockTTL time.Duration, lockedBy string, limit int) ([]*ReminderState, error)
	// ReleaseLock clears the lease. Called on every exit path: success,
	// stop, or failure.
	ReleaseLock(ctx context.Context, id uuid.UUID, lockedBy string) error
}

// TaxLineInput is one invoice line handed to the tax engine
type TaxLineInput struct {
	LineItemID uuid.UUID
	NetCents   int64
}

// TaxEngine computes the tax breakdown the aggregate freezes at finalize
// time. The jurisdiction rule content behind it is not this engine's concern.
type TaxEngine interface {
	ComputeSnapshot(ctx context.Context, tenantID uuid.UUID, lines []TaxLineInput, currency valueobject.Currency) (*TaxSnapshot, error)
}

// CustomerQuery resolves the bill-to data frozen into the invoice
type CustomerQuery interface {
	GetBillTo(ctx context.Context, tenantID, customerID uuid.UUID) (*BillToSnapshot, error)
}

// PaymentMethodQuery resolves the payment instructions frozen into the invoice
type PaymentMethodQuery interface {
	GetPaymentInstructions(ctx context.Context, tenantID uuid.UUID) (*PaymentSnapshot, error)
}

// LegalEntityQuery resolves the issuing entity frozen into the invoice
type LegalEntityQuery interface {
	GetIssuer(ctx context.Context, tenantID uuid.UUID) (*IssuerSnapshot, error)
}

// EmailKind selects the notification template
type EmailKind string

const (
	EmailKindInvoice  EmailKind = "INVOICE"
	EmailKindReminder EmailKind = "REMINDER"
)

// SendRequest is an outbound email-send request. The engine enqueues it; a
// separate delivery process renders and sends the actual email.
type SendRequest struct {
	TenantID  uuid.UUID
	InvoiceID uuid.UUID
	Kind      EmailKind
	Recipient string
	Subject   string
	Message   string
}

// Notification enqueues email-send requests and returns a stable delivery ID
type Notification interface {
	Enqueue(ctx context.Context, req SendRequest) (deliveryID uuid.UUID, err error)
}

// ReminderPolicyProvider resolves the reminder policy for a tenant
type ReminderPolicyProvider interface {
	GetPolicy(ctx context.Context, tenantID uuid.UUID) (ReminderPolicy, error)
}

// InvoiceCommands is the command port other modules (sales quotes, orders,
// rentals) use to create invoices without depending on this module's
// internals. The invoice engine owns the interface; callers own the calls.
type InvoiceCommands interface {
	CreateFromSource(ctx context.Context, tenantID, customerID uuid.UUID, currency valueobject.Currency, lines []LineItem, notes string) (*Invoice, error)
}
