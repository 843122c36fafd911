package invoicing

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/billcraft/backend/internal/domain/invoicing"
	"github.com/billcraft/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type reminderFixture struct {
	invoiceRepo  *MockInvoiceRepository
	reminderRepo *MockReminderStateRepository
	outboxRepo   *MockOutboxRepository
	idempotency  *memoryIdempotency
	notifier     *MockNotification
	policies     *MockPolicyProvider
	clock        *fixedClock
	service      *ReminderService
}

func newReminderFixture() *reminderFixture {
	f := &reminderFixture{
		invoiceRepo:  new(MockInvoiceRepository),
		reminderRepo: new(MockReminderStateRepository),
		outboxRepo:   new(MockOutboxRepository),
		idempotency:  newMemoryIdempotency(),
		notifier:     new(MockNotification),
		policies:     new(MockPolicyProvider),
		clock:        &fixedClock{now: svcNow},
	}
	f.service = NewReminderService(
		f.invoiceRepo, f.reminderRepo, f.outboxRepo, f.idempotency,
		f.notifier, f.policies, f.clock, zap.NewNop(),
		ReminderConfig{LockTTL: 5 * time.Minute, BatchLimit: 10},
		"worker-test",
	)
	return f
}

func newSentInvoice(t *testing.T, tenantID uuid.UUID) *invoicing.Invoice {
	t.Helper()
	inv := newIssued(t, tenantID)
	require.NoError(t, inv.MarkSent(svcNow.AddDate(0, 0, -8)))
	inv.ClearDomainEvents()
	return inv
}

func dueReminderState(tenantID, workspaceID uuid.UUID, inv *invoicing.Invoice) *invoicing.ReminderState {
	rs := invoicing.NewReminderState(tenantID, workspaceID, inv.ID, invoicing.DefaultReminderPolicy(), svcNow.AddDate(0, 0, -8))
	lockedAt := svcNow
	rs.LockedAt = &lockedAt
	rs.LockedBy = "worker-test"
	return rs
}

func TestReminderService_RunPass_SendsDueReminder(t *testing.T) {
	f := newReminderFixture()
	tenantID := uuid.New()
	workspaceID := uuid.New()
	inv := newSentInvoice(t, tenantID)
	rs := dueReminderState(tenantID, workspaceID, inv)

	f.reminderRepo.On("ClaimDue", mock.Anything, workspaceID, svcNow, 5*time.Minute, "worker-test", 10).
		Return([]*invoicing.ReminderState{rs}, nil)
	f.invoiceRepo.On("FindByID", mock.Anything, tenantID, inv.ID).Return(inv, nil)
	f.policies.On("GetPolicy", mock.Anything, tenantID).Return(invoicing.DefaultReminderPolicy(), nil)
	f.notifier.On("Enqueue", mock.Anything, mock.MatchedBy(func(req invoicing.SendRequest) bool {
		return req.Kind == invoicing.EmailKindReminder && req.InvoiceID == inv.ID
	})).Return(uuid.New(), nil)
	f.reminderRepo.On("Save", mock.Anything, rs).Return(nil)
	f.outboxRepo.On("Enqueue", mock.Anything, mock.Anything).Return(nil)
	f.reminderRepo.On("ReleaseLock", mock.Anything, rs.ID, "worker-test").Return(nil)

	result, err := f.service.RunPass(context.Background(), workspaceID)
	require.NoError(t, err)

	assert.Equal(t, PassResult{Claimed: 1, Sent: 1}, result)
	assert.Equal(t, 1, rs.RemindersSent)
	require.NotNil(t, rs.NextReminderAt)
	assert.Equal(t, svcNow.AddDate(0, 0, 7), *rs.NextReminderAt)
	f.reminderRepo.AssertCalled(t, "ReleaseLock", mock.Anything, rs.ID, "worker-test")
}

func TestReminderService_RunPass_StopsForPaidInvoice(t *testing.T) {
	f := newReminderFixture()
	tenantID := uuid.New()
	workspaceID := uuid.New()
	inv := newSentInvoice(t, tenantID)
	require.NoError(t, inv.RecordPayment(11900, svcNow, "", svcNow))
	inv.ClearDomainEvents()
	rs := dueReminderState(tenantID, workspaceID, inv)

	f.reminderRepo.On("ClaimDue", mock.Anything, workspaceID, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]*invoicing.ReminderState{rs}, nil)
	f.invoiceRepo.On("FindByID", mock.Anything, tenantID, inv.ID).Return(inv, nil)
	f.reminderRepo.On("Save", mock.Anything, rs).Return(nil)
	f.reminderRepo.On("ReleaseLock", mock.Anything, rs.ID, "worker-test").Return(nil)

	result, err := f.service.RunPass(context.Background(), workspaceID)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Stopped)
	assert.True(t, rs.Stopped)
	f.notifier.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
}

func TestReminderService_RunPass_StopsForMissingInvoice(t *testing.T) {
	f := newReminderFixture()
	tenantID := uuid.New()
	workspaceID := uuid.New()
	rs := invoicing.NewReminderState(tenantID, workspaceID, uuid.New(), invoicing.DefaultReminderPolicy(), svcNow.AddDate(0, 0, -8))

	f.reminderRepo.On("ClaimDue", mock.Anything, workspaceID, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]*invoicing.ReminderState{rs}, nil)
	f.invoiceRepo.On("FindByID", mock.Anything, tenantID, rs.InvoiceID).Return(nil, nil)
	f.reminderRepo.On("Save", mock.Anything, rs).Return(nil)
	f.reminderRepo.On("ReleaseLock", mock.Anything, rs.ID, mock.Anything).Return(nil)

	result, err := f.service.RunPass(context.Background(), workspaceID)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Stopped)
	assert.True(t, rs.Stopped)
}

func TestReminderService_RunPass_DeduplicatesByOrdinal(t *testing.T) {
	f := newReminderFixture()
	tenantID := uuid.New()
	workspaceID := uuid.New()
	inv := newSentInvoice(t, tenantID)
	rs := dueReminderState(tenantID, workspaceID, inv)

	// A previous pass crashed after sending reminder #1 but before saving the
	// state. The idempotency record is what prevents a duplicate email.
	idemKey := fmt.Sprintf("reminder:%s:%d", inv.ID, 1)
	_, err := f.idempotency.Put(context.Background(), tenantID, actionReminderSend, idemKey, []byte(`{}`))
	require.NoError(t, err)

	f.reminderRepo.On("ClaimDue", mock.Anything, workspaceID, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]*invoicing.ReminderState{rs}, nil)
	f.invoiceRepo.On("FindByID", mock.Anything, tenantID, inv.ID).Return(inv, nil)
	f.policies.On("GetPolicy", mock.Anything, tenantID).Return(invoicing.DefaultReminderPolicy(), nil)
	f.reminderRepo.On("Save", mock.Anything, rs).Return(nil)
	f.outboxRepo.On("Enqueue", mock.Anything, mock.Anything).Return(nil)
	f.reminderRepo.On("ReleaseLock", mock.Anything, rs.ID, mock.Anything).Return(nil)

	result, err := f.service.RunPass(context.Background(), workspaceID)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 1, rs.RemindersSent, "the state still advances past the already-sent ordinal")
	f.notifier.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
}

func TestReminderService_RunPass_FailureDoesNotBlockBatch(t *testing.T) {
	f := newReminderFixture()
	tenantID := uuid.New()
	workspaceID := uuid.New()
	broken := dueReminderState(tenantID, workspaceID, newSentInvoice(t, tenantID))
	healthy := newSentInvoice(t, tenantID)
	healthyState := dueReminderState(tenantID, workspaceID, healthy)

	f.reminderRepo.On("ClaimDue", mock.Anything, workspaceID, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]*invoicing.ReminderState{broken, healthyState}, nil)
	f.invoiceRepo.On("FindByID", mock.Anything, tenantID, broken.InvoiceID).Return(nil, errors.New("connection reset"))
	f.invoiceRepo.On("FindByID", mock.Anything, tenantID, healthy.ID).Return(healthy, nil)
	f.policies.On("GetPolicy", mock.Anything, tenantID).Return(invoicing.DefaultReminderPolicy(), nil)
	f.notifier.On("Enqueue", mock.Anything, mock.Anything).Return(uuid.New(), nil)
	f.reminderRepo.On("Save", mock.Anything, healthyState).Return(nil)
	f.outboxRepo.On("Enqueue", mock.Anything, mock.Anything).Return(nil)
	f.reminderRepo.On("ReleaseLock", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	result, err := f.service.RunPass(context.Background(), workspaceID)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Sent)
	f.reminderRepo.AssertNumberOfCalls(t, "ReleaseLock", 2)
}

func TestReminderService_RunPass_StopsAtMaxReminders(t *testing.T) {
	f := newReminderFixture()
	tenantID := uuid.New()
	workspaceID := uuid.New()
	inv := newSentInvoice(t, tenantID)
	rs := dueReminderState(tenantID, workspaceID, inv)
	rs.RemindersSent = invoicing.DefaultReminderPolicy().MaxReminders - 1

	f.reminderRepo.On("ClaimDue", mock.Anything, workspaceID, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]*invoicing.ReminderState{rs}, nil)
	f.invoiceRepo.On("FindByID", mock.Anything, tenantID, inv.ID).Return(inv, nil)
	f.policies.On("GetPolicy", mock.Anything, tenantID).Return(invoicing.DefaultReminderPolicy(), nil)
	f.notifier.On("Enqueue", mock.Anything, mock.Anything).Return(uuid.New(), nil)
	f.reminderRepo.On("Save", mock.Anything, rs).Return(nil)
	f.outboxRepo.On("Enqueue", mock.Anything, mock.Anything).Return(nil)
	f.reminderRepo.On("ReleaseLock", mock.Anything, rs.ID, mock.Anything).Return(nil)

	result, err := f.service.RunPass(context.Background(), workspaceID)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Sent)
	assert.True(t, rs.Stopped, "the final reminder ends the escalation")
	assert.Nil(t, rs.NextReminderAt)
}

func TestReminderService_RunPass_ClaimAtMaxRemindersStopsWithoutSending(t *testing.T) {
	f := newReminderFixture()
	tenantID := uuid.New()
	workspaceID := uuid.New()
	inv := newSentInvoice(t, tenantID)
	rs := dueReminderState(tenantID, workspaceID, inv)
	// A resumed escalation keeps its count, so a claim can arrive with the
	// bound already reached.
	rs.RemindersSent = invoicing.DefaultReminderPolicy().MaxReminders

	f.reminderRepo.On("ClaimDue", mock.Anything, workspaceID, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]*invoicing.ReminderState{rs}, nil)
	f.invoiceRepo.On("FindByID", mock.Anything, tenantID, inv.ID).Return(inv, nil)
	f.policies.On("GetPolicy", mock.Anything, tenantID).Return(invoicing.DefaultReminderPolicy(), nil)
	f.reminderRepo.On("Save", mock.Anything, rs).Return(nil)
	f.reminderRepo.On("ReleaseLock", mock.Anything, rs.ID, mock.Anything).Return(nil)

	result, err := f.service.RunPass(context.Background(), workspaceID)
	require.NoError(t, err)

	assert.Equal(t, 0, result.Sent)
	assert.Equal(t, 1, result.Stopped)
	assert.True(t, rs.Stopped)
	f.notifier.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
	f.reminderRepo.AssertCalled(t, "ReleaseLock", mock.Anything, rs.ID, mock.Anything)
}

func TestReminderService_RunPass_ClaimError(t *testing.T) {
	f := newReminderFixture()
	workspaceID := uuid.New()

	f.reminderRepo.On("ClaimDue", mock.Anything, workspaceID, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("deadlock detected"))

	_, err := f.service.RunPass(context.Background(), workspaceID)
	require.Error(t, err)
}

func TestReminderService_StopAndResume(t *testing.T) {
	f := newReminderFixture()
	tenantID := uuid.New()
	inv := newSentInvoice(t, tenantID)
	rs := invoicing.NewReminderState(tenantID, uuid.New(), inv.ID, invoicing.DefaultReminderPolicy(), svcNow)

	f.reminderRepo.On("FindByInvoice", mock.Anything, tenantID, inv.ID).Return(rs, nil)
	f.reminderRepo.On("Save", mock.Anything, rs).Return(nil)
	f.invoiceRepo.On("FindByID", mock.Anything, tenantID, inv.ID).Return(inv, nil)
	f.policies.On("GetPolicy", mock.Anything, tenantID).Return(invoicing.DefaultReminderPolicy(), nil)

	require.NoError(t, f.service.StopReminders(context.Background(), tenantID, inv.ID))
	assert.True(t, rs.Stopped)

	require.NoError(t, f.service.ResumeReminders(context.Background(), tenantID, inv.ID))
	assert.False(t, rs.Stopped)
	require.NotNil(t, rs.NextReminderAt)
}

func TestReminderService_Resume_PaidInvoiceRejected(t *testing.T) {
	f := newReminderFixture()
	tenantID := uuid.New()
	inv := newSentInvoice(t, tenantID)
	require.NoError(t, inv.RecordPayment(11900, svcNow, "", svcNow))
	rs := invoicing.NewReminderState(tenantID, uuid.New(), inv.ID, invoicing.DefaultReminderPolicy(), svcNow)
	rs.MarkStopped(svcNow)

	f.reminderRepo.On("FindByInvoice", mock.Anything, tenantID, inv.ID).Return(rs, nil)
	f.invoiceRepo.On("FindByID", mock.Anything, tenantID, inv.ID).Return(inv, nil)

	err := f.service.ResumeReminders(context.Background(), tenantID, inv.ID)
	require.Error(t, err)
	assert.Equal(t, shared.KindConflict, shared.KindOf(err))
}
