package invoicing

import (
	"context"
	"sync"
	"time"

	"github.com/billcraft/backend/internal/domain/invoicing"
	"github.com/billcraft/backend/internal/domain/shared"
	"github.com/billcraft/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// =============================================================================
// Mock Invoice Repository
// =============================================================================

type MockInvoiceRepository struct {
	mock.Mock
}

func (m *MockInvoiceRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*invoicing.Invoice, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*invoicing.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) Create(ctx context.Context, inv *invoicing.Invoice) error {
	args := m.Called(ctx, inv)
	return args.Error(0)
}

func (m *MockInvoiceRepository) Save(ctx context.Context, inv *invoicing.Invoice) error {
	args := m.Called(ctx, inv)
	return args.Error(0)
}

func (m *MockInvoiceRepository) List(ctx context.Context, tenantID uuid.UUID, filter invoicing.InvoiceFilter) ([]invoicing.Invoice, int64, error) {
	args := m.Called(ctx, tenantID, filter)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]invoicing.Invoice), args.Get(1).(int64), args.Error(2)
}

func (m *MockInvoiceRepository) IsNumberTaken(ctx context.Context, tenantID uuid.UUID, number string) (bool, error) {
	args := m.Called(ctx, tenantID, number)
	return args.Bool(0), args.Error(1)
}

func (m *MockInvoiceRepository) MaxNumberSequence(ctx context.Context, tenantID uuid.UUID, year int) (int64, error) {
	args := m.Called(ctx, tenantID, year)
	return args.Get(0).(int64), args.Error(1)
}

// =============================================================================
// Mock Reminder State Repository
// =============================================================================

type MockReminderStateRepository struct {
	mock.Mock
}

func (m *MockReminderStateRepository) FindByInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID) (*invoicing.ReminderState, error) {
	args := m.Called(ctx, tenantID, invoiceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*invoicing.ReminderState), args.Error(1)
}

func (m *MockReminderStateRepository) Create(ctx context.Context, rs *invoicing.ReminderState) error {
	args := m.Called(ctx, rs)
	return args.Error(0)
}

func (m *MockReminderStateRepository) Save(ctx context.Context, rs *invoicing.ReminderState) error {
	args := m.Called(ctx, rs)
	return args.Error(0)
}

func (m *MockReminderStateRepository) ClaimDue(ctx context.Context, workspaceID uuid.UUID, now time.Time, lockTTL time.Duration, lockedBy string, limit int) ([]*invoicing.ReminderState, error) {
	args := m.Called(ctx, workspaceID, now, lockTTL, lockedBy, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*invoicing.ReminderState), args.Error(1)
}

func (m *MockReminderStateRepository) ReleaseLock(ctx context.Context, id uuid.UUID, lockedBy string) error {
	args := m.Called(ctx, id, lockedBy)
	return args.Error(0)
}

// =============================================================================
// Mock Outbox Repository
// =============================================================================

type MockOutboxRepository struct {
	mock.Mock
}

func (m *MockOutboxRepository) Enqueue(ctx context.Context, entries []*shared.OutboxEntry) error {
	args := m.Called(ctx, entries)
	return args.Error(0)
}

func (m *MockOutboxRepository) FindPending(ctx context.Context, limit int) ([]*shared.OutboxEntry, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*shared.OutboxEntry), args.Error(1)
}

func (m *MockOutboxRepository) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

func (m *MockOutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string, at time.Time) error {
	args := m.Called(ctx, id, reason, at)
	return args.Error(0)
}

// =============================================================================
// Mock Snapshot Sources
// =============================================================================

type MockTaxEngine struct {
	mock.Mock
}

func (m *MockTaxEngine) ComputeSnapshot(ctx context.Context, tenantID uuid.UUID, lines []invoicing.TaxLineInput, currency valueobject.Currency) (*invoicing.TaxSnapshot, error) {
	args := m.Called(ctx, tenantID, lines, currency)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*invoicing.TaxSnapshot), args.Error(1)
}

type MockCustomerQuery struct {
	mock.Mock
}

func (m *MockCustomerQuery) GetBillTo(ctx context.Context, tenantID, customerID uuid.UUID) (*invoicing.BillToSnapshot, error) {
	args := m.Called(ctx, tenantID, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*invoicing.BillToSnapshot), args.Error(1)
}

type MockPaymentMethodQuery struct {
	mock.Mock
}

func (m *MockPaymentMethodQuery) GetPaymentInstructions(ctx context.Context, tenantID uuid.UUID) (*invoicing.PaymentSnapshot, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*invoicing.PaymentSnapshot), args.Error(1)
}

type MockLegalEntityQuery struct {
	mock.Mock
}

func (m *MockLegalEntityQuery) GetIssuer(ctx context.Context, tenantID uuid.UUID) (*invoicing.IssuerSnapshot, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*invoicing.IssuerSnapshot), args.Error(1)
}

// =============================================================================
// Mock Notification and Policy Provider
// =============================================================================

type MockNotification struct {
	mock.Mock
}

func (m *MockNotification) Enqueue(ctx context.Context, req invoicing.SendRequest) (uuid.UUID, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

type MockPolicyProvider struct {
	mock.Mock
}

func (m *MockPolicyProvider) GetPolicy(ctx context.Context, tenantID uuid.UUID) (invoicing.ReminderPolicy, error) {
	args := m.Called(ctx, tenantID)
	return args.Get(0).(invoicing.ReminderPolicy), args.Error(1)
}

// =============================================================================
// In-memory idempotency store and fixed clock
// =============================================================================

// memoryIdempotency is a deterministic first-writer-wins store for tests
type memoryIdempotency struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func newMemoryIdempotency() *memoryIdempotency {
	return &memoryIdempotency{entries: make(map[string][]byte)}
}

func idemMapKey(tenantID uuid.UUID, actionKey, idempotencyKey string) string {
	return tenantID.String() + "|" + actionKey + "|" + idempotencyKey
}

func (s *memoryIdempotency) Get(_ context.Context, tenantID uuid.UUID, actionKey, idempotencyKey string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	body, ok := s.entries[idemMapKey(tenantID, actionKey, idempotencyKey)]
	return body, ok, nil
}

func (s *memoryIdempotency) Put(_ context.Context, tenantID uuid.UUID, actionKey, idempotencyKey string, body []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := idemMapKey(tenantID, actionKey, idempotencyKey)
	if existing, ok := s.entries[key]; ok {
		return existing, nil
	}
	s.entries[key] = body
	return body, nil
}

// fixedClock returns a settable, deterministic time
type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time { return c.now }

func (c *fixedClock) Advance(d time.Duration) { c.now = c.now.Add(d) }
