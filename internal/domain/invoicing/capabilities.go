package invoicing

import (
	"fmt"
	"time"
)

// Badge is a display hint derived from invoice state
type Badge string

const (
	BadgeOverdue       Badge = "OVERDUE"
	BadgePartiallyPaid Badge = "PARTIALLY_PAID"
)

// Action names the commands a caller can issue against an invoice
type Action string

const (
	ActionEdit          Action = "EDIT"
	ActionFinalize      Action = "FINALIZE"
	ActionSend          Action = "SEND"
	ActionRecordPayment Action = "RECORD_PAYMENT"
	ActionCancel        Action = "CANCEL"
	ActionDuplicate     Action = "DUPLICATE"
)

// Transition describes one status transition and whether it is currently
// allowed. Disabled transitions are listed with a reason rather than hidden
// so a caller can explain why an action is blocked.
type Transition struct {
	To      InvoiceStatus `json:"to"`
	Action  Action        `json:"action"`
	Enabled bool          `json:"enabled"`
	Reason  string        `json:"reason,omitempty"`
}

// Editability reports which parts of the invoice may currently be edited
type Editability struct {
	CanEditHeader bool   `json:"can_edit_header"`
	CanEditDates  bool   `json:"can_edit_dates"`
	CanEditLines  bool   `json:"can_edit_lines"`
	CanEditNotes  bool   `json:"can_edit_notes"`
	Reason        string `json:"reason,omitempty"`
}

// AuditInfo carries the lifecycle timestamps for display
type AuditInfo struct {
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	IssuedAt   *time.Time `json:"issued_at,omitempty"`
	SentAt     *time.Time `json:"sent_at,omitempty"`
	PaidAt     *time.Time `json:"paid_at,omitempty"`
	CanceledAt *time.Time `json:"canceled_at,omitempty"`
}

// Capabilities is the full "what can the user do right now" answer for one
// invoice at one point in time
type Capabilities struct {
	StatusBadge   InvoiceStatus `json:"status_badge"`
	DerivedBadges []Badge       `json:"derived_badges"`
	Transitions   []Transition  `json:"transitions"`
	Actions       []Action      `json:"actions"`
	Editability   Editability   `json:"editability"`
	AuditInfo     AuditInfo     `json:"audit_info"`
}

// BuildCapabilities derives the capability set purely from the invoice and
// the supplied instant. It performs no I/O and must never read a global
// clock; callers inject now so the result is reproducible.
func BuildCapabilities(inv *Invoice, now time.Time) Capabilities {
	caps := Capabilities{
		StatusBadge:   inv.Status,
		DerivedBadges: deriveBadges(inv, now),
		Transitions:   deriveTransitions(inv),
		Editability:   deriveEditability(inv),
		AuditInfo: AuditInfo{
			CreatedAt:  inv.CreatedAt,
			UpdatedAt:  inv.UpdatedAt,
			IssuedAt:   inv.IssuedAt,
			SentAt:     inv.SentAt,
			PaidAt:     inv.PaidAt,
			CanceledAt: inv.CanceledAt,
		},
	}

	for _, tr := range caps.Transitions {
		if tr.Enabled {
			caps.Actions = append(caps.Actions, tr.Action)
		}
	}
	if caps.Editability.CanEditHeader {
		caps.Actions = append([]Action{ActionEdit}, caps.Actions...)
	}
	caps.Actions = append(caps.Actions, ActionDuplicate)

	return caps
}

func deriveBadges(inv *Invoice, now time.Time) []Badge {
	badges := make([]Badge, 0, 2)
	if inv.IsOverdue(now) {
		badges = append(badges, BadgeOverdue)
	}
	if inv.IsPartiallyPaid() {
		badges = append(badges, BadgePartiallyPaid)
	}
	return badges
}

func deriveTransitions(inv *Invoice) []Transition {
	finalize := Transition{To: InvoiceStatusIssued, Action: ActionFinalize}
	if ok, reason := inv.CanFinalize(); ok {
		finalize.Enabled = true
	} else {
		finalize.Reason = reason
	}

	send := Transition{To: InvoiceStatusSent, Action: ActionSend}
	switch inv.Status {
	case InvoiceStatusIssued, InvoiceStatusSent:
		send.Enabled = true
	case InvoiceStatusDraft:
		send.Reason = "Finalize the invoice before sending"
	default:
		send.Reason = fmt.Sprintf("Cannot send a %s invoice", statusLabel(inv.Status))
	}

	pay := Transition{To: InvoiceStatusPaid, Action: ActionRecordPayment}
	switch {
	case inv.Status.CanRecordPayment():
		pay.Enabled = true
	case inv.Status == InvoiceStatusDraft:
		pay.Reason = "Finalize the invoice before recording payments"
	case inv.Status == InvoiceStatusPaid:
		pay.Reason = "Invoice is already fully paid"
	default:
		pay.Reason = "Cannot record a payment on a canceled invoice"
	}

	cancel := Transition{To: InvoiceStatusCanceled, Action: ActionCancel}
	switch {
	case inv.Status.IsTerminal():
		cancel.Reason = fmt.Sprintf("Cannot cancel a %s invoice", statusLabel(inv.Status))
	case len(inv.Payments) > 0:
		cancel.Reason = "Cannot cancel invoice with recorded payments"
	default:
		cancel.Enabled = true
	}

	return []Transition{finalize, send, pay, cancel}
}

func deriveEditability(inv *Invoice) Editability {
	if inv.Status == InvoiceStatusDraft {
		return Editability{
			CanEditHeader: true,
			CanEditDates:  true,
			CanEditLines:  true,
			CanEditNotes:  true,
		}
	}

	ed := Editability{CanEditNotes: inv.Status != InvoiceStatusCanceled}
	switch inv.Status {
	case InvoiceStatusIssued, InvoiceStatusSent:
		ed.Reason = "Issued invoices are immutable; only notes and terms may change"
	case InvoiceStatusPaid:
		ed.Reason = "Paid invoices are immutable; only notes and terms may change"
	case InvoiceStatusCanceled:
		ed.Reason = "Canceled invoices cannot be edited"
	}
	return ed
}

func statusLabel(s InvoiceStatus) string {
	switch s {
	case InvoiceStatusPaid:
		return "paid"
	case InvoiceStatusCanceled:
		return "canceled"
	case InvoiceStatusDraft:
		return "draft"
	case InvoiceStatusIssued:
		return "issued"
	case InvoiceStatusSent:
		return "sent"
	}
	return string(s)
}
