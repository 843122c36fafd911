package invoicing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/billcraft/backend/internal/domain/invoicing"
	"github.com/billcraft/backend/internal/domain/shared"
	"github.com/billcraft/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const actionReminderSend = "reminder.send"

// ReminderConfig tunes the reminder pass
type ReminderConfig struct {
	// LockTTL is the claim lease duration. A worker that holds a claim
	// longer than this is presumed dead and its records become reclaimable.
	LockTTL time.Duration
	// BatchLimit caps how many records one pass claims
	BatchLimit int
}

// DefaultReminderConfig returns the production defaults
func DefaultReminderConfig() ReminderConfig {
	return ReminderConfig{
		LockTTL:    5 * time.Minute,
		BatchLimit: 50,
	}
}

// ReminderService runs the periodic reminder pass: claim due records under a
// lease, re-check each invoice, send the reminder email and advance the
// escalation. Multiple workers can run passes concurrently; the claim
// protocol guarantees each record is processed by at most one of them.
type ReminderService struct {
	invoiceRepo  invoicing.InvoiceRepository
	reminderRepo invoicing.ReminderStateRepository
	outboxRepo   shared.OutboxRepository
	idempotency  shared.IdempotencyStore
	notifier     invoicing.Notification
	policies     invoicing.ReminderPolicyProvider
	clock        shared.Clock
	logger       *zap.Logger
	config       ReminderConfig
	workerID     string
}

// NewReminderService creates a new ReminderService. workerID identifies this
// worker in claim leases; it must be unique per process.
func NewReminderService(
	invoiceRepo invoicing.InvoiceRepository,
	reminderRepo invoicing.ReminderStateRepository,
	outboxRepo shared.OutboxRepository,
	idempotency shared.IdempotencyStore,
	notifier invoicing.Notification,
	policies invoicing.ReminderPolicyProvider,
	clock shared.Clock,
	logger *zap.Logger,
	config ReminderConfig,
	workerID string,
) *ReminderService {
	if config.LockTTL <= 0 {
		config.LockTTL = DefaultReminderConfig().LockTTL
	}
	if config.BatchLimit <= 0 {
		config.BatchLimit = DefaultReminderConfig().BatchLimit
	}
	if workerID == "" {
		workerID = uuid.NewString()
	}
	return &ReminderService{
		invoiceRepo:  invoiceRepo,
		reminderRepo: reminderRepo,
		outboxRepo:   outboxRepo,
		idempotency:  idempotency,
		notifier:     notifier,
		policies:     policies,
		clock:        clock,
		logger:       logger,
		config:       config,
		workerID:     workerID,
	}
}

// PassResult summarizes one reminder pass
type PassResult struct {
	Claimed int
	Sent    int
	Stopped int
	Skipped int
	Failed  int
}

// RunPass claims due reminder records for the workspace and processes each
// one. A failure on one record never blocks the rest of the batch, and every
// claimed record has its lock released before the pass returns.
func (s *ReminderService) RunPass(ctx context.Context, workspaceID uuid.UUID) (PassResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "reminder", "run_pass")
	defer span.End()

	now := s.clock.Now()
	claimed, err := s.reminderRepo.ClaimDue(ctx, workspaceID, now, s.config.LockTTL, s.workerID, s.config.BatchLimit)
	if err != nil {
		telemetry.RecordError(span, err)
		return PassResult{}, fmt.Errorf("failed to claim due reminders: %w", err)
	}

	result := PassResult{Claimed: len(claimed)}
	for _, rs := range claimed {
		outcome, err := s.processClaim(ctx, rs, now)
		if err != nil {
			result.Failed++
			s.logger.Error("Reminder processing failed",
				zap.String("invoice_id", rs.InvoiceID.String()),
				zap.String("tenant_id", rs.TenantID.String()),
				zap.Error(err),
			)
		} else {
			switch outcome {
			case claimSent:
				result.Sent++
			case claimStopped:
				result.Stopped++
			case claimSkipped:
				result.Skipped++
			}
		}

		if err := s.reminderRepo.ReleaseLock(ctx, rs.ID, s.workerID); err != nil {
			s.logger.Error("Failed to release reminder lock",
				zap.String("invoice_id", rs.InvoiceID.String()), zap.Error(err))
		}
	}

	telemetry.SetAttribute(span, "claimed", result.Claimed)
	telemetry.SetAttribute(span, "sent", result.Sent)
	if result.Claimed > 0 {
		s.logger.Info("Reminder pass completed",
			zap.String("workspace_id", workspaceID.String()),
			zap.Int("claimed", result.Claimed),
			zap.Int("sent", result.Sent),
			zap.Int("stopped", result.Stopped),
			zap.Int("skipped", result.Skipped),
			zap.Int("failed", result.Failed),
		)
	}
	return result, nil
}

type claimOutcome int

const (
	claimSent claimOutcome = iota
	claimStopped
	claimSkipped
)

// processClaim handles one claimed reminder record. The invoice is re-read
// under the claim so a payment or cancellation that raced the claim stops
// the escalation instead of producing a stale reminder.
func (s *ReminderService) processClaim(ctx context.Context, rs *invoicing.ReminderState, now time.Time) (claimOutcome, error) {
	inv, err := s.invoiceRepo.FindByID(ctx, rs.TenantID, rs.InvoiceID)
	if err != nil {
		return claimSkipped, fmt.Errorf("failed to load invoice: %w", err)
	}
	if inv == nil || !inv.Status.CanRecordPayment() || inv.Totals.DueCents <= 0 {
		rs.MarkStopped(now)
		if err := s.reminderRepo.Save(ctx, rs); err != nil {
			return claimSkipped, fmt.Errorf("failed to stop reminder state: %w", err)
		}
		return claimStopped, nil
	}

	policy, err := s.policies.GetPolicy(ctx, rs.TenantID)
	if err != nil {
		s.logger.Warn("Failed to resolve reminder policy, using default",
			zap.String("tenant_id", rs.TenantID.String()), zap.Error(err))
		policy = invoicing.DefaultReminderPolicy()
	}

	// A record claimed at the policy bound must stop, not send. Resuming a
	// stopped escalation or lowering MaxReminders can re-arm a record whose
	// count already reached the bound.
	if rs.RemindersSent >= policy.MaxReminders {
		rs.MarkStopped(now)
		if err := s.reminderRepo.Save(ctx, rs); err != nil {
			return claimSkipped, fmt.Errorf("failed to stop reminder state: %w", err)
		}
		return claimStopped, nil
	}

	// The ordinal keys the idempotency record: a retry after a crash between
	// send and state save finds the record and advances without re-sending.
	ordinal := rs.RemindersSent + 1
	idemKey := fmt.Sprintf("reminder:%s:%d", rs.InvoiceID, ordinal)
	_, alreadySent, err := s.idempotency.Get(ctx, rs.TenantID, actionReminderSend, idemKey)
	if err != nil {
		return claimSkipped, fmt.Errorf("failed to check reminder idempotency: %w", err)
	}

	if !alreadySent {
		recipient := ""
		if inv.BillToSnapshot != nil {
			recipient = inv.BillToSnapshot.Email
		}
		if recipient == "" {
			rs.MarkStopped(now)
			if err := s.reminderRepo.Save(ctx, rs); err != nil {
				return claimSkipped, fmt.Errorf("failed to stop reminder state: %w", err)
			}
			s.logger.Warn("Stopping reminders for invoice without recipient",
				zap.String("invoice_id", inv.ID.String()))
			return claimStopped, nil
		}

		number := ""
		if inv.Number != nil {
			number = *inv.Number
		}
		deliveryID, err := s.notifier.Enqueue(ctx, invoicing.SendRequest{
			TenantID:  rs.TenantID,
			InvoiceID: inv.ID,
			Kind:      invoicing.EmailKindReminder,
			Recipient: recipient,
			Subject:   fmt.Sprintf("Payment reminder for invoice %s", number),
		})
		if err != nil {
			return claimSkipped, fmt.Errorf("failed to enqueue reminder email: %w", err)
		}

		body := []byte(fmt.Sprintf(`{"delivery_id":%q,"ordinal":%d}`, deliveryID, ordinal))
		if _, err := s.idempotency.Put(ctx, rs.TenantID, actionReminderSend, idemKey, body); err != nil {
			return claimSkipped, fmt.Errorf("failed to store reminder idempotency record: %w", err)
		}
	}

	rs.MarkReminderSent(policy, now)
	if err := s.reminderRepo.Save(ctx, rs); err != nil {
		return claimSkipped, fmt.Errorf("failed to save reminder state: %w", err)
	}

	entry, err := shared.NewOutboxEntry(invoicing.NewInvoiceReminderSentEvent(rs.TenantID, rs.InvoiceID, ordinal, now), now)
	if err == nil {
		if err := s.outboxRepo.Enqueue(ctx, []*shared.OutboxEntry{entry}); err != nil {
			s.logger.Error("Failed to enqueue reminder event", zap.Error(err))
		}
	}

	if alreadySent {
		return claimSkipped, nil
	}
	return claimSent, nil
}

// StopReminders stops the escalation for one invoice on explicit request
func (s *ReminderService) StopReminders(ctx context.Context, tenantID, invoiceID uuid.UUID) error {
	rs, err := s.reminderRepo.FindByInvoice(ctx, tenantID, invoiceID)
	if err != nil {
		return fmt.Errorf("failed to load reminder state: %w", err)
	}
	if rs == nil {
		return shared.NewDomainError(shared.KindNotFound, "REMINDER_STATE_NOT_FOUND", "No reminder tracking exists for this invoice")
	}
	if rs.Stopped {
		return nil
	}
	rs.MarkStopped(s.clock.Now())
	return s.reminderRepo.Save(ctx, rs)
}

// ResumeReminders restarts a stopped escalation with a fresh schedule
func (s *ReminderService) ResumeReminders(ctx context.Context, tenantID, invoiceID uuid.UUID) error {
	rs, err := s.reminderRepo.FindByInvoice(ctx, tenantID, invoiceID)
	if err != nil {
		return fmt.Errorf("failed to load reminder state: %w", err)
	}
	if rs == nil {
		return shared.NewDomainError(shared.KindNotFound, "REMINDER_STATE_NOT_FOUND", "No reminder tracking exists for this invoice")
	}

	inv, err := s.invoiceRepo.FindByID(ctx, tenantID, invoiceID)
	if err != nil {
		return fmt.Errorf("failed to load invoice: %w", err)
	}
	if inv == nil {
		return errors.New("reminder state references a missing invoice")
	}
	if !inv.Status.CanRecordPayment() || inv.Totals.DueCents <= 0 {
		return shared.NewConflictError("NOT_RESUMABLE", "Invoice no longer needs reminders")
	}

	policy, err := s.policies.GetPolicy(ctx, tenantID)
	if err != nil {
		policy = invoicing.DefaultReminderPolicy()
	}
	rs.Resume(policy, s.clock.Now())
	return s.reminderRepo.Save(ctx, rs)
}
