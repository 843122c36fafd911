package invoicing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/billcraft/backend/internal/domain/invoicing"
	"github.com/billcraft/backend/internal/domain/shared"
	"github.com/billcraft/backend/internal/domain/shared/valueobject"
	"github.com/billcraft/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Action keys namespace idempotency records per command so the same client
// key used for different commands never collides.
const (
	actionFinalize      = "invoice.finalize"
	actionSend          = "invoice.send"
	actionRecordPayment = "invoice.record_payment"
)

// InvoiceService orchestrates the invoice lifecycle. It owns no business
// rules itself; the aggregate guards its transitions and this service wires
// repositories, snapshot sources, numbering and idempotency around them.
type InvoiceService struct {
	invoiceRepo    invoicing.InvoiceRepository
	reminderRepo   invoicing.ReminderStateRepository
	outboxRepo     shared.OutboxRepository
	idempotency    shared.IdempotencyStore
	taxEngine      invoicing.TaxEngine
	customers      invoicing.CustomerQuery
	paymentMethods invoicing.PaymentMethodQuery
	legalEntities  invoicing.LegalEntityQuery
	notifier       invoicing.Notification
	policies       invoicing.ReminderPolicyProvider
	allocator      *NumberAllocator
	clock          shared.Clock
	logger         *zap.Logger
}

// NewInvoiceService creates a new InvoiceService
func NewInvoiceService(
	invoiceRepo invoicing.InvoiceRepository,
	reminderRepo invoicing.ReminderStateRepository,
	outboxRepo shared.OutboxRepository,
	idempotency shared.IdempotencyStore,
	taxEngine invoicing.TaxEngine,
	customers invoicing.CustomerQuery,
	paymentMethods invoicing.PaymentMethodQuery,
	legalEntities invoicing.LegalEntityQuery,
	notifier invoicing.Notification,
	policies invoicing.ReminderPolicyProvider,
	clock shared.Clock,
	logger *zap.Logger,
) *InvoiceService {
	return &InvoiceService{
		invoiceRepo:    invoiceRepo,
		reminderRepo:   reminderRepo,
		outboxRepo:     outboxRepo,
		idempotency:    idempotency,
		taxEngine:      taxEngine,
		customers:      customers,
		paymentMethods: paymentMethods,
		legalEntities:  legalEntities,
		notifier:       notifier,
		policies:       policies,
		allocator:      NewNumberAllocator(invoiceRepo),
		clock:          clock,
		logger:         logger,
	}
}

// CreateInvoiceRequest carries the initial draft fields
type CreateInvoiceRequest struct {
	CustomerID    *uuid.UUID
	Currency      valueobject.Currency
	Notes         string
	Terms         string
	LineItems     []invoicing.LineItem
	DiscountCents int64
	InvoiceDate   *time.Time
	DueDate       *time.Time
}

// FinalizeResult is the stable result body of a finalize command. It is what
// an idempotent replay returns, so it carries everything a client needs to
// continue without re-reading the invoice.
type FinalizeResult struct {
	InvoiceID  uuid.UUID `json:"invoice_id"`
	Number     string    `json:"number"`
	Status     string    `json:"status"`
	TotalCents int64     `json:"total_cents"`
	TaxCents   int64     `json:"tax_cents"`
	IssuedAt   time.Time `json:"issued_at"`
}

// SendResult is the stable result body of a send command. DeliveryID stays
// identical across replays of the same idempotency key.
type SendResult struct {
	InvoiceID  uuid.UUID `json:"invoice_id"`
	DeliveryID uuid.UUID `json:"delivery_id"`
	Recipient  string    `json:"recipient"`
	SentAt     time.Time `json:"sent_at"`
}

// RecordPaymentRequest carries one payment to record
type RecordPaymentRequest struct {
	AmountCents int64
	PaidAt      *time.Time
	Note        string
}

// RecordPaymentResult is the stable result body of a record-payment command
type RecordPaymentResult struct {
	InvoiceID uuid.UUID `json:"invoice_id"`
	PaymentID uuid.UUID `json:"payment_id"`
	Status    string    `json:"status"`
	PaidCents int64     `json:"paid_cents"`
	DueCents  int64     `json:"due_cents"`
}

// InvoiceDetail bundles the invoice with its derived capabilities for reads
type InvoiceDetail struct {
	Invoice      *invoicing.Invoice
	Capabilities invoicing.Capabilities
}

// CreateDraft creates a new draft invoice
func (s *InvoiceService) CreateDraft(ctx context.Context, cmd CommandContext, req CreateInvoiceRequest) (*invoicing.Invoice, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "invoice", "create_draft")
	defer span.End()

	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	inv, err := invoicing.NewInvoice(cmd.TenantID, req.Currency, now)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	update := invoicing.DraftUpdate{
		CustomerID:  req.CustomerID,
		InvoiceDate: req.InvoiceDate,
		DueDate:     req.DueDate,
	}
	if req.Notes != "" {
		update.Notes = &req.Notes
	}
	if req.Terms != "" {
		update.Terms = &req.Terms
	}
	if req.DiscountCents != 0 {
		update.DiscountCents = &req.DiscountCents
	}
	if len(req.LineItems) > 0 {
		update.LineItems = &req.LineItems
	}
	if err := inv.UpdateDraft(update, now); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if err := s.invoiceRepo.Create(ctx, inv); err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to create invoice: %w", err)
	}
	telemetry.SetAttribute(span, "invoice_id", inv.ID)

	s.publishEvents(ctx, inv)
	return inv, nil
}

// UpdateDraft applies a partial update to a draft invoice
func (s *InvoiceService) UpdateDraft(ctx context.Context, cmd CommandContext, invoiceID uuid.UUID, update invoicing.DraftUpdate) (*invoicing.Invoice, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "invoice", "update_draft")
	defer span.End()

	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	inv, err := s.loadInvoice(ctx, cmd.TenantID, invoiceID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if err := inv.UpdateDraft(update, s.clock.Now()); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if err := s.invoiceRepo.Save(ctx, inv); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.publishEvents(ctx, inv)
	return inv, nil
}

// UpdateNotes changes the fields that stay mutable after finalization
func (s *InvoiceService) UpdateNotes(ctx context.Context, cmd CommandContext, invoiceID uuid.UUID, notes, terms *string) (*invoicing.Invoice, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	inv, err := s.loadInvoice(ctx, cmd.TenantID, invoiceID)
	if err != nil {
		return nil, err
	}
	if err := inv.UpdateNotes(notes, terms, s.clock.Now()); err != nil {
		return nil, err
	}
	if err := s.invoiceRepo.Save(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// Finalize turns a draft into an issued document: resolves the bill-to, tax,
// payment and issuer snapshots, allocates the document number and commits the
// DRAFT -> ISSUED transition. A replayed idempotency key returns the stored
// result without issuing a second time.
func (s *InvoiceService) Finalize(ctx context.Context, cmd CommandContext, invoiceID uuid.UUID) (*FinalizeResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "invoice", "finalize")
	defer span.End()
	telemetry.SetAttribute(span, "invoice_id", invoiceID)

	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	var replayed FinalizeResult
	if ok, err := s.replay(ctx, cmd, actionFinalize, &replayed); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	} else if ok {
		telemetry.SetAttribute(span, "idempotent_replay", true)
		return &replayed, nil
	}

	inv, err := s.loadInvoice(ctx, cmd.TenantID, invoiceID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if ok, reason := inv.CanFinalize(); !ok {
		err := shared.NewConflictError("NOT_FINALIZABLE", reason)
		telemetry.RecordError(span, err)
		return nil, err
	}

	billTo, err := s.customers.GetBillTo(ctx, cmd.TenantID, *inv.CustomerID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to resolve customer: %w", err)
	}

	taxLines := make([]invoicing.TaxLineInput, len(inv.LineItems))
	for i, li := range inv.LineItems {
		taxLines[i] = invoicing.TaxLineInput{LineItemID: li.ID, NetCents: li.AmountCents()}
	}
	tax, err := s.taxEngine.ComputeSnapshot(ctx, cmd.TenantID, taxLines, inv.Currency)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to compute tax: %w", err)
	}

	payment, err := s.paymentMethods.GetPaymentInstructions(ctx, cmd.TenantID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to resolve payment instructions: %w", err)
	}
	issuer, err := s.legalEntities.GetIssuer(ctx, cmd.TenantID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to resolve issuer: %w", err)
	}

	// Allocate, finalize and save. A lost race on the number unique index
	// reloads the aggregate and tries the next candidate, bounded so two
	// pathological tenants cannot spin here forever.
	now := s.clock.Now()
	for attempt := 0; ; attempt++ {
		number, err := s.allocator.Next(ctx, cmd.TenantID, now.Year())
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}

		if err := inv.Finalize(number, *billTo, *tax, *payment, *issuer, now); err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}

		err = s.invoiceRepo.Save(ctx, inv)
		if err == nil {
			break
		}
		if !errors.Is(err, shared.ErrAlreadyExists) || attempt+1 >= maxNumberAttempts {
			telemetry.RecordError(span, err)
			return nil, err
		}

		s.logger.Warn("Invoice number collision, retrying",
			zap.String("tenant_id", cmd.TenantID.String()),
			zap.String("number", number),
			zap.Int("attempt", attempt+1),
		)
		inv, err = s.loadInvoice(ctx, cmd.TenantID, invoiceID)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
	}

	s.publishEvents(ctx, inv)

	result := &FinalizeResult{
		InvoiceID:  inv.ID,
		Number:     *inv.Number,
		Status:     inv.Status.String(),
		TotalCents: inv.Totals.TotalCents,
		TaxCents:   inv.Totals.TaxCents,
		IssuedAt:   *inv.IssuedAt,
	}
	if err := s.record(ctx, cmd, actionFinalize, result); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetAttribute(span, "number", result.Number)
	return result, nil
}

// Send delivers the invoice to the customer by enqueueing an email send and
// marking the invoice SENT. The first send also starts reminder tracking.
// Sending again later is allowed (re-sends); replaying the same idempotency
// key is not a re-send and returns the original delivery.
func (s *InvoiceService) Send(ctx context.Context, cmd CommandContext, invoiceID uuid.UUID) (*SendResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "invoice", "send")
	defer span.End()
	telemetry.SetAttribute(span, "invoice_id", invoiceID)

	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	var replayed SendResult
	if ok, err := s.replay(ctx, cmd, actionSend, &replayed); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	} else if ok {
		telemetry.SetAttribute(span, "idempotent_replay", true)
		return &replayed, nil
	}

	inv, err := s.loadInvoice(ctx, cmd.TenantID, invoiceID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	now := s.clock.Now()
	firstSend := inv.SentAt == nil
	if err := inv.MarkSent(now); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	recipient := ""
	if inv.BillToSnapshot != nil {
		recipient = inv.BillToSnapshot.Email
	}
	if recipient == "" {
		err := shared.NewValidationError("MISSING_RECIPIENT", "Customer has no email address on record", "recipient")
		telemetry.RecordError(span, err)
		return nil, err
	}

	deliveryID, err := s.notifier.Enqueue(ctx, invoicing.SendRequest{
		TenantID:  cmd.TenantID,
		InvoiceID: inv.ID,
		Kind:      invoicing.EmailKindInvoice,
		Recipient: recipient,
		Subject:   fmt.Sprintf("Invoice %s", *inv.Number),
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to enqueue invoice email: %w", err)
	}

	if err := s.invoiceRepo.Save(ctx, inv); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if firstSend {
		s.startReminderTracking(ctx, cmd, inv, now)
	}

	s.publishEvents(ctx, inv)

	result := &SendResult{
		InvoiceID:  inv.ID,
		DeliveryID: deliveryID,
		Recipient:  recipient,
		SentAt:     now,
	}
	if err := s.record(ctx, cmd, actionSend, result); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return result, nil
}

// RecordPayment records money received against the invoice and flips it to
// PAID once the total is covered. Paying off the invoice also stops the
// reminder escalation.
func (s *InvoiceService) RecordPayment(ctx context.Context, cmd CommandContext, invoiceID uuid.UUID, req RecordPaymentRequest) (*RecordPaymentResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "invoice", "record_payment")
	defer span.End()
	telemetry.SetAttribute(span, "invoice_id", invoiceID)
	telemetry.SetAttribute(span, "amount_cents", req.AmountCents)

	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	var replayed RecordPaymentResult
	if ok, err := s.replay(ctx, cmd, actionRecordPayment, &replayed); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	} else if ok {
		telemetry.SetAttribute(span, "idempotent_replay", true)
		return &replayed, nil
	}

	inv, err := s.loadInvoice(ctx, cmd.TenantID, invoiceID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	now := s.clock.Now()
	paidAt := now
	if req.PaidAt != nil {
		paidAt = *req.PaidAt
	}
	if err := inv.RecordPayment(req.AmountCents, paidAt, req.Note, now); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if err := s.invoiceRepo.Save(ctx, inv); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if inv.Status == invoicing.InvoiceStatusPaid {
		s.stopReminderTracking(ctx, cmd.TenantID, inv.ID, now)
	}

	s.publishEvents(ctx, inv)

	result := &RecordPaymentResult{
		InvoiceID: inv.ID,
		PaymentID: inv.Payments[len(inv.Payments)-1].ID,
		Status:    inv.Status.String(),
		PaidCents: inv.Totals.PaidCents,
		DueCents:  inv.Totals.DueCents,
	}
	if err := s.record(ctx, cmd, actionRecordPayment, result); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return result, nil
}

// Cancel voids the invoice and stops any reminder escalation
func (s *InvoiceService) Cancel(ctx context.Context, cmd CommandContext, invoiceID uuid.UUID, reason string) (*invoicing.Invoice, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "invoice", "cancel")
	defer span.End()
	telemetry.SetAttribute(span, "invoice_id", invoiceID)

	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	inv, err := s.loadInvoice(ctx, cmd.TenantID, invoiceID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	now := s.clock.Now()
	if err := inv.Cancel(reason, now); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if err := s.invoiceRepo.Save(ctx, inv); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.stopReminderTracking(ctx, cmd.TenantID, inv.ID, now)
	s.publishEvents(ctx, inv)
	return inv, nil
}

// Duplicate creates a fresh draft copied from an existing invoice
func (s *InvoiceService) Duplicate(ctx context.Context, cmd CommandContext, invoiceID uuid.UUID) (*invoicing.Invoice, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "invoice", "duplicate")
	defer span.End()

	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	source, err := s.loadInvoice(ctx, cmd.TenantID, invoiceID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	duplicate, err := source.Duplicate(s.clock.Now())
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if err := s.invoiceRepo.Create(ctx, duplicate); err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to create duplicate: %w", err)
	}

	s.publishEvents(ctx, duplicate)
	return duplicate, nil
}

// GetByID loads one invoice with its derived capabilities
func (s *InvoiceService) GetByID(ctx context.Context, tenantID, invoiceID uuid.UUID) (*InvoiceDetail, error) {
	inv, err := s.loadInvoice(ctx, tenantID, invoiceID)
	if err != nil {
		return nil, err
	}
	return &InvoiceDetail{
		Invoice:      inv,
		Capabilities: invoicing.BuildCapabilities(inv, s.clock.Now()),
	}, nil
}

// List returns a page of invoices matching the filter
func (s *InvoiceService) List(ctx context.Context, tenantID uuid.UUID, filter invoicing.InvoiceFilter) (shared.Paginated[invoicing.Invoice], error) {
	if tenantID == uuid.Nil {
		return shared.Paginated[invoicing.Invoice]{}, shared.ErrMissingTenant
	}
	items, total, err := s.invoiceRepo.List(ctx, tenantID, filter)
	if err != nil {
		return shared.Paginated[invoicing.Invoice]{}, fmt.Errorf("failed to list invoices: %w", err)
	}
	return shared.NewPaginated(items, total, filter.Page, filter.Limit()), nil
}

// CreateFromSource implements invoicing.InvoiceCommands for other modules
// that need to raise an invoice from their own documents.
func (s *InvoiceService) CreateFromSource(ctx context.Context, tenantID, customerID uuid.UUID, currency valueobject.Currency, lines []invoicing.LineItem, notes string) (*invoicing.Invoice, error) {
	cmd := CommandContext{TenantID: tenantID}
	return s.CreateDraft(ctx, cmd, CreateInvoiceRequest{
		CustomerID: &customerID,
		Currency:   currency,
		Notes:      notes,
		LineItems:  lines,
	})
}

// loadInvoice fetches the aggregate, mapping a nil result to NotFound
func (s *InvoiceService) loadInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID) (*invoicing.Invoice, error) {
	inv, err := s.invoiceRepo.FindByID(ctx, tenantID, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load invoice: %w", err)
	}
	if inv == nil {
		return nil, shared.NewDomainError(shared.KindNotFound, "INVOICE_NOT_FOUND", "Invoice not found")
	}
	return inv, nil
}

// replay checks the idempotency store for a prior result of this command.
// Returns true and decodes the stored body into out when present.
func (s *InvoiceService) replay(ctx context.Context, cmd CommandContext, actionKey string, out any) (bool, error) {
	if cmd.IdempotencyKey == "" {
		return false, nil
	}
	body, ok, err := s.idempotency.Get(ctx, cmd.TenantID, actionKey, cmd.IdempotencyKey)
	if err != nil {
		return false, fmt.Errorf("failed to check idempotency: %w", err)
	}
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return false, fmt.Errorf("failed to decode stored result: %w", err)
	}
	return true, nil
}

// record stores the command result under the idempotency key. When a
// concurrent writer won the race first, the winner's body replaces result so
// both callers observe the same outcome.
func (s *InvoiceService) record(ctx context.Context, cmd CommandContext, actionKey string, result any) error {
	if cmd.IdempotencyKey == "" {
		return nil
	}
	body, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	stored, err := s.idempotency.Put(ctx, cmd.TenantID, actionKey, cmd.IdempotencyKey, body)
	if err != nil {
		return fmt.Errorf("failed to store idempotency record: %w", err)
	}
	return json.Unmarshal(stored, result)
}

// startReminderTracking creates the reminder state on the first send. An
// existing record (a concurrent first send) is left alone.
func (s *InvoiceService) startReminderTracking(ctx context.Context, cmd CommandContext, inv *invoicing.Invoice, now time.Time) {
	policy, err := s.policies.GetPolicy(ctx, cmd.TenantID)
	if err != nil {
		s.logger.Error("Failed to resolve reminder policy",
			zap.String("tenant_id", cmd.TenantID.String()), zap.Error(err))
		policy = invoicing.DefaultReminderPolicy()
	}

	rs := invoicing.NewReminderState(cmd.TenantID, cmd.WorkspaceID, inv.ID, policy, now)
	if err := s.reminderRepo.Create(ctx, rs); err != nil && !errors.Is(err, shared.ErrAlreadyExists) {
		s.logger.Error("Failed to start reminder tracking",
			zap.String("invoice_id", inv.ID.String()), zap.Error(err))
	}
}

// stopReminderTracking ends the escalation for an invoice that no longer
// needs reminding. Best effort; a miss here is corrected by the scheduler
// pass, which re-checks the invoice before sending.
func (s *InvoiceService) stopReminderTracking(ctx context.Context, tenantID, invoiceID uuid.UUID, now time.Time) {
	rs, err := s.reminderRepo.FindByInvoice(ctx, tenantID, invoiceID)
	if err != nil {
		s.logger.Error("Failed to load reminder state",
			zap.String("invoice_id", invoiceID.String()), zap.Error(err))
		return
	}
	if rs == nil || rs.Stopped {
		return
	}
	rs.MarkStopped(now)
	if err := s.reminderRepo.Save(ctx, rs); err != nil {
		s.logger.Error("Failed to stop reminder tracking",
			zap.String("invoice_id", invoiceID.String()), zap.Error(err))
	}
}

// publishEvents drains the aggregate's domain events into the outbox
func (s *InvoiceService) publishEvents(ctx context.Context, agg shared.AggregateRoot) {
	events := agg.GetDomainEvents()
	if len(events) == 0 {
		return
	}
	entries := make([]*shared.OutboxEntry, 0, len(events))
	now := s.clock.Now()
	for _, evt := range events {
		entry, err := shared.NewOutboxEntry(evt, now)
		if err != nil {
			s.logger.Error("Failed to serialize domain event",
				zap.String("event_type", evt.EventType()), zap.Error(err))
			continue
		}
		entries = append(entries, entry)
	}
	if len(entries) > 0 {
		if err := s.outboxRepo.Enqueue(ctx, entries); err != nil {
			s.logger.Error("Failed to enqueue outbox entries", zap.Error(err))
		}
	}
	agg.ClearDomainEvents()
}
