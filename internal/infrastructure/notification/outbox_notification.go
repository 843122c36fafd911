// Package notification hands outbound email-send requests to the outbox.
// The engine never talks SMTP; a separate delivery process drains the outbox,
// renders the template and sends the actual email.
package notification

import (
	"context"
	"fmt"

	"github.com/billcraft/backend/internal/domain/invoicing"
	"github.com/billcraft/backend/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EmailRequestedEvent is the outbox payload for one requested email. The
// delivery ID doubles as the event ID so callers can correlate a send request
// with the eventual delivery record.
type EmailRequestedEvent struct {
	shared.BaseDomainEvent
	Kind      invoicing.EmailKind `json:"kind"`
	Recipient string              `json:"recipient"`
	Subject   string              `json:"subject"`
	Message   string              `json:"message"`
	InvoiceID uuid.UUID           `json:"invoice_id"`
}

// OutboxNotification implements invoicing.Notification by enqueueing email
// requests as outbox entries
type OutboxNotification struct {
	outbox shared.OutboxRepository
	clock  shared.Clock
	logger *zap.Logger
}

// NewOutboxNotification creates a new OutboxNotification
func NewOutboxNotification(outbox shared.OutboxRepository, clock shared.Clock, logger *zap.Logger) *OutboxNotification {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OutboxNotification{outbox: outbox, clock: clock, logger: logger}
}

// Enqueue records the email request for delivery and returns its delivery ID
func (n *OutboxNotification) Enqueue(ctx context.Context, req invoicing.SendRequest) (uuid.UUID, error) {
	if req.Recipient == "" {
		return uuid.Nil, shared.NewValidationError("MISSING_RECIPIENT", "Email recipient is required", "recipient")
	}
	if req.Kind != invoicing.EmailKindInvoice && req.Kind != invoicing.EmailKindReminder {
		return uuid.Nil, shared.NewValidationError("INVALID_EMAIL_KIND", fmt.Sprintf("Unknown email kind %q", req.Kind), "kind")
	}

	now := n.clock.Now()
	event := &EmailRequestedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("EmailRequested", "Invoice", req.InvoiceID, req.TenantID, now),
		Kind:            req.Kind,
		Recipient:       req.Recipient,
		Subject:         req.Subject,
		Message:         req.Message,
		InvoiceID:       req.InvoiceID,
	}

	entry, err := shared.NewOutboxEntry(event, now)
	if err != nil {
		return uuid.Nil, err
	}
	if err := n.outbox.Enqueue(ctx, []*shared.OutboxEntry{entry}); err != nil {
		return uuid.Nil, err
	}

	n.logger.Debug("email request enqueued",
		zap.String("tenant_id", req.TenantID.String()),
		zap.String("invoice_id", req.InvoiceID.String()),
		zap.String("kind", string(req.Kind)),
		zap.String("delivery_id", event.EventID().String()),
	)

	return event.EventID(), nil
}

// Ensure OutboxNotification implements Notification
var _ invoicing.Notification = (*OutboxNotification)(nil)
