package invoicing

import (
	"time"

	"github.com/billcraft/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// ReminderPolicy is the per-tenant configuration for payment reminders
type ReminderPolicy struct {
	StartAfterDays     int  // days after send before the first reminder
	IntervalDays       int  // days between consecutive reminders
	MaxReminders       int  // escalation bound; the scheduler stops after this many
	SendOnlyOnWeekdays bool // shift reminders off Saturday/Sunday
}

// DefaultReminderPolicy is used when a tenant has no explicit policy
func DefaultReminderPolicy() ReminderPolicy {
	return ReminderPolicy{
		StartAfterDays:     7,
		IntervalDays:       7,
		MaxReminders:       3,
		SendOnlyOnWeekdays: true,
	}
}

// ReminderState tracks the reminder escalation for one sent invoice. The
// LockedAt/LockedBy pair is a lease: a worker claims a due record by setting
// both, and a lock older than the configured TTL counts as expired so a
// crashed worker never starves an invoice forever.
type ReminderState struct {
	shared.BaseEntity
	TenantID       uuid.UUID
	WorkspaceID    uuid.UUID
	InvoiceID      uuid.UUID
	RemindersSent  int
	NextReminderAt *time.Time
	LastReminderAt *time.Time
	LockedAt       *time.Time
	LockedBy       string
	Stopped        bool
}

// NewReminderState initializes reminder tracking when an invoice is sent.
// The first reminder is scheduled StartAfterDays after the send.
func NewReminderState(tenantID, workspaceID, invoiceID uuid.UUID, policy ReminderPolicy, sentAt time.Time) *ReminderState {
	next := nextReminderTime(sentAt, policy.StartAfterDays, policy.SendOnlyOnWeekdays)
	return &ReminderState{
		BaseEntity:     shared.NewBaseEntity(sentAt),
		TenantID:       tenantID,
		WorkspaceID:    workspaceID,
		InvoiceID:      invoiceID,
		NextReminderAt: &next,
	}
}

// IsDue returns true when a reminder should be sent at or after now
func (rs *ReminderState) IsDue(now time.Time) bool {
	if rs.Stopped || rs.NextReminderAt == nil {
		return false
	}
	return !rs.NextReminderAt.After(now)
}

// IsLockExpired returns true when the current lock is older than ttl
func (rs *ReminderState) IsLockExpired(now time.Time, ttl time.Duration) bool {
	if rs.LockedAt == nil {
		return true
	}
	return now.Sub(*rs.LockedAt) > ttl
}

// MarkReminderSent records a successful reminder: increments the bounded
// counter and schedules the next occurrence, or stops once the policy's
// maximum is reached.
func (rs *ReminderState) MarkReminderSent(policy ReminderPolicy, now time.Time) {
	rs.RemindersSent++
	sentAt := now
	rs.LastReminderAt = &sentAt

	if rs.RemindersSent >= policy.MaxReminders {
		rs.MarkStopped(now)
		return
	}

	next := nextReminderTime(now, policy.IntervalDays, policy.SendOnlyOnWeekdays)
	rs.NextReminderAt = &next
	rs.UpdatedAt = now
}

// MarkStopped ends the escalation deterministically; no further reminders
// will be claimed for this invoice.
func (rs *ReminderState) MarkStopped(now time.Time) {
	rs.Stopped = true
	rs.NextReminderAt = nil
	rs.UpdatedAt = now
}

// Resume restarts a stopped escalation with a fresh schedule
func (rs *ReminderState) Resume(policy ReminderPolicy, now time.Time) {
	rs.Stopped = false
	next := nextReminderTime(now, policy.IntervalDays, policy.SendOnlyOnWeekdays)
	rs.NextReminderAt = &next
	rs.UpdatedAt = now
}

// nextReminderTime adds the interval and, when configured, shifts a weekend
// landing forward to the following Monday.
func nextReminderTime(from time.Time, days int, weekdaysOnly bool) time.Time {
	next := from.AddDate(0, 0, days)
	if weekdaysOnly {
		switch next.Weekday() {
		case time.Saturday:
			next = next.AddDate(0, 0, 2)
		case time.Sunday:
			next = next.AddDate(0, 0, 1)
		}
	}
	return next
}
