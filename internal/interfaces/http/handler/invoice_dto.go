package handler

import (
	"time"

	appinvoicing "github.com/billcraft/backend/internal/application/invoicing"
	"github.com/billcraft/backend/internal/domain/invoicing"
	"github.com/billcraft/backend/internal/domain/shared/valueobject"
	"github.com/billcraft/backend/internal/interfaces/http/dto"
	"github.com/google/uuid"
)

// LineItemRequest represents one invoice line in a request body
type LineItemRequest struct {
	ID             *uuid.UUID `json:"id"`
	Description    string     `json:"description" binding:"required,max=500"`
	Quantity       int64      `json:"quantity" binding:"required,gt=0"`
	UnitPriceCents int64      `json:"unit_price_cents" binding:"min=0"`
}

// toDomain converts the request line to a domain line item, minting an ID
// when the client did not supply one
func (r LineItemRequest) toDomain() invoicing.LineItem {
	id := uuid.New()
	if r.ID != nil && *r.ID != uuid.Nil {
		id = *r.ID
	}
	return invoicing.LineItem{
		ID:             id,
		Description:    r.Description,
		Quantity:       r.Quantity,
		UnitPriceCents: r.UnitPriceCents,
	}
}

func lineItemsToDomain(reqs []LineItemRequest) []invoicing.LineItem {
	items := make([]invoicing.LineItem, len(reqs))
	for i, r := range reqs {
		items[i] = r.toDomain()
	}
	return items
}

// CreateInvoiceRequest represents a request to create a draft invoice
type CreateInvoiceRequest struct {
	CustomerID    *uuid.UUID        `json:"customer_id"`
	Currency      string            `json:"currency" binding:"omitempty,currency"`
	Notes         string            `json:"notes" binding:"max=2000"`
	Terms         string            `json:"terms" binding:"max=2000"`
	LineItems     []LineItemRequest `json:"line_items" binding:"dive"`
	DiscountCents int64             `json:"discount_cents" binding:"min=0"`
	InvoiceDate   *time.Time        `json:"invoice_date"`
	DueDate       *time.Time        `json:"due_date"`
}

func (r CreateInvoiceRequest) toApplication() appinvoicing.CreateInvoiceRequest {
	return appinvoicing.CreateInvoiceRequest{
		CustomerID:    r.CustomerID,
		Currency:      valueobject.Currency(r.Currency),
		Notes:         r.Notes,
		Terms:         r.Terms,
		LineItems:     lineItemsToDomain(r.LineItems),
		DiscountCents: r.DiscountCents,
		InvoiceDate:   r.InvoiceDate,
		DueDate:       r.DueDate,
	}
}

// UpdateInvoiceRequest represents a draft update. Absent fields stay
// untouched; line items replace the whole list when present.
type UpdateInvoiceRequest struct {
	CustomerID    *uuid.UUID         `json:"customer_id"`
	Currency      *string            `json:"currency" binding:"omitempty,currency"`
	Notes         *string            `json:"notes" binding:"omitempty,max=2000"`
	Terms         *string            `json:"terms" binding:"omitempty,max=2000"`
	LineItems     *[]LineItemRequest `json:"line_items" binding:"omitempty,dive"`
	DiscountCents *int64             `json:"discount_cents" binding:"omitempty,min=0"`
	InvoiceDate   *time.Time         `json:"invoice_date"`
	DueDate       *time.Time         `json:"due_date"`
}

func (r UpdateInvoiceRequest) toDomain() invoicing.DraftUpdate {
	update := invoicing.DraftUpdate{
		CustomerID:    r.CustomerID,
		Notes:         r.Notes,
		Terms:         r.Terms,
		DiscountCents: r.DiscountCents,
		InvoiceDate:   r.InvoiceDate,
		DueDate:       r.DueDate,
	}
	if r.Currency != nil {
		currency := valueobject.Currency(*r.Currency)
		update.Currency = &currency
	}
	if r.LineItems != nil {
		items := lineItemsToDomain(*r.LineItems)
		update.LineItems = &items
	}
	return update
}

// UpdateNotesRequest updates the fields that stay mutable after finalize
type UpdateNotesRequest struct {
	Notes *string `json:"notes" binding:"omitempty,max=2000"`
	Terms *string `json:"terms" binding:"omitempty,max=2000"`
}

// RecordPaymentRequest represents a request to record one payment
type RecordPaymentRequest struct {
	AmountCents int64      `json:"amount_cents" binding:"required,gt=0"`
	PaidAt      *time.Time `json:"paid_at"`
	Note        string     `json:"note" binding:"max=500"`
}

// CancelInvoiceRequest represents a request to cancel an invoice
type CancelInvoiceRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

// ListInvoicesRequest represents invoice list query parameters
type ListInvoicesRequest struct {
	dto.ListRequest
	Status     string `form:"status" binding:"omitempty,oneof=DRAFT ISSUED SENT PAID CANCELED"`
	CustomerID string `form:"customer_id" binding:"omitempty,uuid"`
	Overdue    bool   `form:"overdue"`
}

func (r ListInvoicesRequest) toFilter() invoicing.InvoiceFilter {
	filter := invoicing.InvoiceFilter{Overdue: r.Overdue}
	filter.Page = r.Page
	filter.PageSize = r.PageSize
	filter.OrderBy = r.OrderBy
	filter.OrderDir = r.OrderDir
	if r.Status != "" {
		status := invoicing.InvoiceStatus(r.Status)
		filter.Status = &status
	}
	if r.CustomerID != "" {
		if id, err := uuid.Parse(r.CustomerID); err == nil {
			filter.CustomerID = &id
		}
	}
	return filter
}

// InvoiceResponse represents an invoice in API responses
type InvoiceResponse struct {
	ID              uuid.UUID                  `json:"id"`
	TenantID        uuid.UUID                  `json:"tenant_id"`
	Number          *string                    `json:"number,omitempty"`
	CustomerID      *uuid.UUID                 `json:"customer_id,omitempty"`
	Currency        string                     `json:"currency"`
	Notes           string                     `json:"notes,omitempty"`
	Terms           string                     `json:"terms,omitempty"`
	LineItems       []invoicing.LineItem       `json:"line_items"`
	DiscountCents   int64                      `json:"discount_cents"`
	InvoiceDate     *time.Time                 `json:"invoice_date,omitempty"`
	DueDate         *time.Time                 `json:"due_date,omitempty"`
	Status          string                     `json:"status"`
	Totals          invoicing.Totals           `json:"totals"`
	Payments        []invoicing.Payment        `json:"payments"`
	BillTo          *invoicing.BillToSnapshot  `json:"bill_to,omitempty"`
	Tax             *invoicing.TaxSnapshot     `json:"tax,omitempty"`
	PaymentDetails  *invoicing.PaymentSnapshot `json:"payment_details,omitempty"`
	Issuer          *invoicing.IssuerSnapshot  `json:"issuer,omitempty"`
	IssuedAt        *time.Time                 `json:"issued_at,omitempty"`
	SentAt          *time.Time                 `json:"sent_at,omitempty"`
	PaidAt          *time.Time                 `json:"paid_at,omitempty"`
	CanceledAt      *time.Time                 `json:"canceled_at,omitempty"`
	CancelReason    string                     `json:"cancel_reason,omitempty"`
	Version         int                        `json:"version"`
	CreatedAt       time.Time                  `json:"created_at"`
	UpdatedAt       time.Time                  `json:"updated_at"`
}

// NewInvoiceResponse maps the aggregate to its API representation
func NewInvoiceResponse(inv *invoicing.Invoice) InvoiceResponse {
	return InvoiceResponse{
		ID:             inv.ID,
		TenantID:       inv.TenantID,
		Number:         inv.Number,
		CustomerID:     inv.CustomerID,
		Currency:       string(inv.Currency),
		Notes:          inv.Notes,
		Terms:          inv.Terms,
		LineItems:      inv.LineItems,
		DiscountCents:  inv.DiscountCents,
		InvoiceDate:    inv.InvoiceDate,
		DueDate:        inv.DueDate,
		Status:         inv.Status.String(),
		Totals:         inv.Totals,
		Payments:       inv.Payments,
		BillTo:         inv.BillToSnapshot,
		Tax:            inv.TaxSnapshot,
		PaymentDetails: inv.PaymentSnapshot,
		Issuer:         inv.IssuerSnapshot,
		IssuedAt:       inv.IssuedAt,
		SentAt:         inv.SentAt,
		PaidAt:         inv.PaidAt,
		CanceledAt:     inv.CanceledAt,
		CancelReason:   inv.CancelReason,
		Version:        inv.Version,
		CreatedAt:      inv.CreatedAt,
		UpdatedAt:      inv.UpdatedAt,
	}
}

// NewInvoiceResponseList maps a page of invoices
func NewInvoiceResponseList(invoices []invoicing.Invoice) []InvoiceResponse {
	out := make([]InvoiceResponse, len(invoices))
	for i := range invoices {
		out[i] = NewInvoiceResponse(&invoices[i])
	}
	return out
}

// InvoiceDetailResponse bundles the invoice with its derived capabilities
type InvoiceDetailResponse struct {
	Invoice      InvoiceResponse        `json:"invoice"`
	Capabilities invoicing.Capabilities `json:"capabilities"`
}
