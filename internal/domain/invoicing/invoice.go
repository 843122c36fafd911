package invoicing

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/billcraft/backend/internal/domain/shared"
	"github.com/billcraft/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// InvoiceStatus represents the lifecycle status of an invoice
type InvoiceStatus string

const (
	InvoiceStatusDraft    InvoiceStatus = "DRAFT"    // Mutable working document
	InvoiceStatusIssued   InvoiceStatus = "ISSUED"   // Finalized, numbered, snapshots frozen
	InvoiceStatusSent     InvoiceStatus = "SENT"     // Delivered to the customer at least once
	InvoiceStatusPaid     InvoiceStatus = "PAID"     // Fully paid, terminal
	InvoiceStatusCanceled InvoiceStatus = "CANCELED" // Voided before any payment, terminal
)

// IsValid checks if the status is a valid InvoiceStatus
func (s InvoiceStatus) IsValid() bool {
	switch s {
	case InvoiceStatusDraft, InvoiceStatusIssued, InvoiceStatusSent,
		InvoiceStatusPaid, InvoiceStatusCanceled:
		return true
	}
	return false
}

// String returns the string representation of InvoiceStatus
func (s InvoiceStatus) String() string {
	return string(s)
}

// IsTerminal returns true if the invoice accepts no further transitions
func (s InvoiceStatus) IsTerminal() bool {
	return s == InvoiceStatusPaid || s == InvoiceStatusCanceled
}

// CanRecordPayment returns true if payments may be recorded in this status
func (s InvoiceStatus) CanRecordPayment() bool {
	return s == InvoiceStatusIssued || s == InvoiceStatusSent
}

// LineItem is a billable position on the invoice
type LineItem struct {
	ID             uuid.UUID `json:"id"`
	Description    string    `json:"description"`
	Quantity       int64     `json:"quantity"`
	UnitPriceCents int64     `json:"unit_price_cents"`
}

// AmountCents returns the net amount of the line
func (li LineItem) AmountCents() int64 {
	return li.Quantity * li.UnitPriceCents
}

// LineItems implements GORM Scanner/Valuer for JSONB storage
type LineItems []LineItem

// Value implements driver.Valuer
func (l LineItems) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner
func (l *LineItems) Scan(value any) error {
	if value == nil {
		*l = LineItems{}
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("failed to scan LineItems: unsupported type")
	}
	if len(bytes) == 0 {
		*l = LineItems{}
		return nil
	}
	return json.Unmarshal(bytes, l)
}

// Payment is an amount received against the invoice. The payments sequence
// is append-only; corrections are modeled as new payments, never edits.
type Payment struct {
	ID          uuid.UUID `json:"id"`
	AmountCents int64     `json:"amount_cents"`
	PaidAt      time.Time `json:"paid_at"`
	Note        string    `json:"note,omitempty"`
}

// Payments implements GORM Scanner/Valuer for JSONB storage
type Payments []Payment

// Value implements driver.Valuer
func (p Payments) Value() (driver.Value, error) {
	if p == nil {
		return "[]", nil
	}
	return json.Marshal(p)
}

// Scan implements sql.Scanner
func (p *Payments) Scan(value any) error {
	if value == nil {
		*p = Payments{}
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("failed to scan Payments: unsupported type")
	}
	if len(bytes) == 0 {
		*p = Payments{}
		return nil
	}
	return json.Unmarshal(bytes, p)
}

// Totals is the derived money summary of the invoice. It is recomputed
// synchronously on every mutation; capability derivation, tax freezing and
// the PAID transition all depend on it being exact.
type Totals struct {
	SubtotalCents int64 `json:"subtotal_cents"`
	TaxCents      int64 `json:"tax_cents"`
	DiscountCents int64 `json:"discount_cents"`
	TotalCents    int64 `json:"total_cents"`
	PaidCents     int64 `json:"paid_cents"`
	DueCents      int64 `json:"due_cents"`
}

// Invoice is the aggregate root for the invoice lifecycle. A draft is a
// mutable working document; finalizing turns it into an immutable, numbered,
// tax-snapshotted legal document. All mutations pass through methods that
// guard the status transition graph.
type Invoice struct {
	shared.TenantAggregateRoot
	Number          *string
	CustomerID      *uuid.UUID
	Currency        valueobject.Currency
	Notes           string
	Terms           string
	LineItems       LineItems
	DiscountCents   int64
	InvoiceDate     *time.Time
	DueDate         *time.Time
	Status          InvoiceStatus
	Totals          Totals
	Payments        Payments
	BillToSnapshot  *BillToSnapshot
	TaxSnapshot     *TaxSnapshot
	PaymentSnapshot *PaymentSnapshot
	IssuerSnapshot  *IssuerSnapshot
	IssuedAt        *time.Time
	SentAt          *time.Time
	PaidAt          *time.Time
	CanceledAt      *time.Time
	CancelReason    string
}

// NewInvoice creates a new draft invoice
func NewInvoice(tenantID uuid.UUID, currency valueobject.Currency, now time.Time) (*Invoice, error) {
	if tenantID == uuid.Nil {
		return nil, shared.ErrMissingTenant
	}
	if currency == "" {
		currency = valueobject.DefaultCurrency
	}
	if !currency.IsValid() {
		return nil, shared.NewValidationError("INVALID_CURRENCY", fmt.Sprintf("Unsupported currency %q", currency), "currency")
	}

	inv := &Invoice{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID, now),
		Currency:            currency,
		LineItems:           LineItems{},
		Payments:            Payments{},
		Status:              InvoiceStatusDraft,
	}
	inv.recomputeTotals()

	inv.AddDomainEvent(NewInvoiceCreatedEvent(inv, now))

	return inv, nil
}

// DraftUpdate carries the mutable-until-finalized header fields. Nil pointers
// leave the current value untouched.
type DraftUpdate struct {
	CustomerID    *uuid.UUID
	Currency      *valueobject.Currency
	Notes         *string
	Terms         *string
	LineItems     *[]LineItem
	DiscountCents *int64
	InvoiceDate   *time.Time
	DueDate       *time.Time
}

// UpdateDraft applies a draft update. Rejected with a conflict once the
// invoice has left DRAFT; use UpdateNotes for the fields that stay mutable.
func (inv *Invoice) UpdateDraft(update DraftUpdate, now time.Time) error {
	if inv.Status != InvoiceStatusDraft {
		return shared.NewConflictError("INVALID_STATE",
			fmt.Sprintf("Cannot edit invoice in %s status; only notes and terms may change after issue", inv.Status))
	}
	if update.Currency != nil && !update.Currency.IsValid() {
		return shared.NewValidationError("INVALID_CURRENCY", fmt.Sprintf("Unsupported currency %q", *update.Currency), "currency")
	}
	if update.DiscountCents != nil && *update.DiscountCents < 0 {
		return shared.NewValidationError("INVALID_DISCOUNT", "Discount cannot be negative", "discount_cents")
	}
	if update.LineItems != nil {
		for i, li := range *update.LineItems {
			if li.Quantity <= 0 {
				return shared.NewValidationError("INVALID_LINE_ITEM",
					fmt.Sprintf("Line %d: quantity must be positive", i+1), "line_items")
			}
			if li.UnitPriceCents < 0 {
				return shared.NewValidationError("INVALID_LINE_ITEM",
					fmt.Sprintf("Line %d: unit price cannot be negative", i+1), "line_items")
			}
		}
	}

	if update.CustomerID != nil {
		inv.CustomerID = update.CustomerID
	}
	if update.Currency != nil {
		inv.Currency = *update.Currency
	}
	if update.Notes != nil {
		inv.Notes = *update.Notes
	}
	if update.Terms != nil {
		inv.Terms = *update.Terms
	}
	if update.DiscountCents != nil {
		inv.DiscountCents = *update.DiscountCents
	}
	if update.InvoiceDate != nil {
		inv.InvoiceDate = update.InvoiceDate
	}
	if update.DueDate != nil {
		inv.DueDate = update.DueDate
	}
	if update.LineItems != nil {
		items := make(LineItems, len(*update.LineItems))
		copy(items, *update.LineItems)
		for i := range items {
			if items[i].ID == uuid.Nil {
				items[i].ID = uuid.New()
			}
		}
		inv.LineItems = items
	}

	inv.recomputeTotals()
	inv.touch(now)

	return nil
}

// UpdateNotes changes the fields that remain mutable after finalization.
// Canceled invoices are frozen entirely.
func (inv *Invoice) UpdateNotes(notes, terms *string, now time.Time) error {
	if inv.Status == InvoiceStatusCanceled {
		return shared.NewConflictError("INVALID_STATE", "Cannot edit a canceled invoice")
	}
	if notes != nil {
		inv.Notes = *notes
	}
	if terms != nil {
		inv.Terms = *terms
	}
	inv.touch(now)
	return nil
}

// CanFinalize reports whether the draft meets the finalize preconditions,
// with the blocking reason when it does not.
func (inv *Invoice) CanFinalize() (bool, string) {
	if inv.Status != InvoiceStatusDraft {
		return false, fmt.Sprintf("Invoice is already %s", inv.Status)
	}
	if inv.CustomerID == nil || *inv.CustomerID == uuid.Nil {
		return false, "Customer is required"
	}
	if len(inv.LineItems) == 0 {
		return false, "At least one line item is required"
	}
	return true, ""
}

// Finalize transitions DRAFT -> ISSUED: assigns the document number and
// freezes the bill-to, tax, payment and issuer snapshots. After this the
// invoice is an immutable legal document apart from notes/terms, payments
// and the send/cancel transitions.
func (inv *Invoice) Finalize(
	number string,
	billTo BillToSnapshot,
	tax TaxSnapshot,
	payment PaymentSnapshot,
	issuer IssuerSnapshot,
	now time.Time,
) error {
	if inv.Status != InvoiceStatusDraft {
		return shared.NewConflictError("INVALID_STATE",
			fmt.Sprintf("Cannot finalize invoice in %s status", inv.Status))
	}
	if ok, reason := inv.CanFinalize(); !ok {
		return shared.NewConflictError("NOT_FINALIZABLE", reason)
	}
	if number == "" {
		return shared.NewValidationError("INVALID_NUMBER", "Invoice number cannot be empty", "number")
	}

	inv.Number = &number
	inv.BillToSnapshot = &billTo
	inv.TaxSnapshot = &tax
	inv.PaymentSnapshot = &payment
	inv.IssuerSnapshot = &issuer
	inv.Status = InvoiceStatusIssued
	issuedAt := now
	inv.IssuedAt = &issuedAt
	if inv.InvoiceDate == nil {
		invoiceDate := now
		inv.InvoiceDate = &invoiceDate
	}

	inv.recomputeTotals()
	inv.touch(now)

	inv.AddDomainEvent(NewInvoiceFinalizedEvent(inv, now))

	return nil
}

// MarkSent records a delivery to the customer. Allowed from ISSUED and
// repeatably from SENT; any other source status is a conflict.
func (inv *Invoice) MarkSent(now time.Time) error {
	if inv.Status != InvoiceStatusIssued && inv.Status != InvoiceStatusSent {
		return shared.NewConflictError("INVALID_STATE",
			fmt.Sprintf("Cannot send invoice in %s status", inv.Status))
	}

	inv.Status = InvoiceStatusSent
	sentAt := now
	inv.SentAt = &sentAt
	inv.touch(now)

	inv.AddDomainEvent(NewInvoiceSentEvent(inv, now))

	return nil
}

// RecordPayment appends a payment and flips the invoice to PAID once the
// paid amount covers the total. Recording is rejected on DRAFT, CANCELED and
// already-PAID invoices.
func (inv *Invoice) RecordPayment(amountCents int64, paidAt time.Time, note string, now time.Time) error {
	if !inv.Status.CanRecordPayment() {
		return shared.NewConflictError("INVALID_STATE",
			fmt.Sprintf("Cannot record payment on invoice in %s status", inv.Status))
	}
	if amountCents <= 0 {
		return shared.NewValidationError("INVALID_AMOUNT", "Payment amount must be positive", "amount_cents")
	}

	payment := Payment{
		ID:          uuid.New(),
		AmountCents: amountCents,
		PaidAt:      paidAt,
		Note:        note,
	}
	inv.Payments = append(inv.Payments, payment)
	inv.recomputeTotals()

	inv.AddDomainEvent(NewInvoicePaymentRecordedEvent(inv, payment, now))

	if inv.Totals.PaidCents >= inv.Totals.TotalCents {
		inv.Status = InvoiceStatusPaid
		paidAtCopy := now
		inv.PaidAt = &paidAtCopy
		inv.AddDomainEvent(NewInvoicePaidEvent(inv, now))
	}

	inv.touch(now)

	return nil
}

// Cancel voids the invoice. Rejected once any payment exists (cancel before
// money moves) and rejected from terminal states. Canceling a DRAFT is
// unconditional since no payment can exist yet.
func (inv *Invoice) Cancel(reason string, now time.Time) error {
	if inv.Status.IsTerminal() {
		return shared.NewConflictError("INVALID_STATE",
			fmt.Sprintf("Cannot cancel invoice in %s status", inv.Status))
	}
	if len(inv.Payments) > 0 {
		return shared.NewConflictError("HAS_PAYMENTS", "Cannot cancel invoice with recorded payments")
	}

	inv.Status = InvoiceStatusCanceled
	canceledAt := now
	inv.CanceledAt = &canceledAt
	inv.CancelReason = reason
	inv.touch(now)

	inv.AddDomainEvent(NewInvoiceCanceledEvent(inv, now))

	return nil
}

// Duplicate returns a fresh draft copied from this invoice: line items,
// customer, currency, notes and terms carry over; number, snapshots,
// payments and lifecycle timestamps do not.
func (inv *Invoice) Duplicate(now time.Time) (*Invoice, error) {
	copyInv, err := NewInvoice(inv.TenantID, inv.Currency, now)
	if err != nil {
		return nil, err
	}
	copyInv.CustomerID = inv.CustomerID
	copyInv.Notes = inv.Notes
	copyInv.Terms = inv.Terms
	copyInv.DiscountCents = inv.DiscountCents
	items := make(LineItems, len(inv.LineItems))
	for i, li := range inv.LineItems {
		items[i] = LineItem{
			ID:             uuid.New(),
			Description:    li.Description,
			Quantity:       li.Quantity,
			UnitPriceCents: li.UnitPriceCents,
		}
	}
	copyInv.LineItems = items
	copyInv.recomputeTotals()
	return copyInv, nil
}

// recomputeTotals rebuilds the derived totals from line items, the frozen
// tax snapshot and the payment sequence. Must be called after every mutation
// that touches any of those.
func (inv *Invoice) recomputeTotals() {
	var subtotal int64
	for _, li := range inv.LineItems {
		subtotal += li.AmountCents()
	}

	var tax int64
	if inv.TaxSnapshot != nil {
		tax = inv.TaxSnapshot.TaxTotalAmountCents
	}

	var paid int64
	for _, p := range inv.Payments {
		paid += p.AmountCents
	}

	total := subtotal + tax - inv.DiscountCents
	due := total - paid
	if due < 0 {
		due = 0
	}

	inv.Totals = Totals{
		SubtotalCents: subtotal,
		TaxCents:      tax,
		DiscountCents: inv.DiscountCents,
		TotalCents:    total,
		PaidCents:     paid,
		DueCents:      due,
	}
}

// touch bumps the modification timestamp and the optimistic-lock version
func (inv *Invoice) touch(now time.Time) {
	inv.UpdatedAt = now
	inv.IncrementVersion()
}

// Helper methods

// IsDraft returns true while the invoice is still a mutable draft
func (inv *Invoice) IsDraft() bool {
	return inv.Status == InvoiceStatusDraft
}

// IsPartiallyPaid returns true when some but not all of the total is paid
func (inv *Invoice) IsPartiallyPaid() bool {
	return inv.Totals.PaidCents > 0 && inv.Totals.PaidCents < inv.Totals.TotalCents
}

// IsOverdue returns true when the due date lies strictly before now's
// calendar date and money is still owed. Pure in now for testability.
func (inv *Invoice) IsOverdue(now time.Time) bool {
	if inv.Status != InvoiceStatusIssued && inv.Status != InvoiceStatusSent {
		return false
	}
	if inv.DueDate == nil || inv.Totals.DueCents <= 0 {
		return false
	}
	due := inv.DueDate
	dueDay := time.Date(due.Year(), due.Month(), due.Day(), 0, 0, 0, 0, time.UTC)
	nowDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return dueDay.Before(nowDay)
}

// TotalMoney returns the grand total as Money
func (inv *Invoice) TotalMoney() valueobject.Money {
	return valueobject.MustMoney(inv.Totals.TotalCents, inv.Currency)
}

// DueMoney returns the outstanding amount as Money
func (inv *Invoice) DueMoney() valueobject.Money {
	return valueobject.MustMoney(inv.Totals.DueCents, inv.Currency)
}
