package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	appinvoicing "github.com/billcraft/backend/internal/application/invoicing"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubWorkspaceProvider struct {
	mu  sync.Mutex
	ids []uuid.UUID
	err error
}

func (p *stubWorkspaceProvider) ActiveReminderWorkspaces(ctx context.Context) ([]uuid.UUID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ids, p.err
}

type stubRunner struct {
	mu     sync.Mutex
	calls  []uuid.UUID
	result appinvoicing.PassResult
	err    error
}

func (r *stubRunner) RunPass(ctx context.Context, workspaceID uuid.UUID) (appinvoicing.PassResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, workspaceID)
	return r.result, r.err
}

func (r *stubRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func TestReminderScheduler_RunsPassesForActiveWorkspaces(t *testing.T) {
	workspaceID := uuid.New()
	provider := &stubWorkspaceProvider{ids: []uuid.UUID{workspaceID}}
	runner := &stubRunner{result: appinvoicing.PassResult{Claimed: 1, Sent: 1}}

	s := NewReminderScheduler(ReminderSchedulerConfig{PollInterval: 10 * time.Millisecond}, runner, provider, zap.NewNop())
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(context.Background())

	assert.Eventually(t, func() bool {
		return runner.callCount() >= 2
	}, time.Second, 5*time.Millisecond)
}

func TestReminderScheduler_FailingWorkspaceDoesNotStopOthers(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	provider := &stubWorkspaceProvider{ids: []uuid.UUID{a, b}}
	runner := &stubRunner{err: assert.AnError}

	s := NewReminderScheduler(ReminderSchedulerConfig{PollInterval: 10 * time.Millisecond}, runner, provider, zap.NewNop())
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(context.Background())

	// Both workspaces keep getting passes despite every pass erroring
	assert.Eventually(t, func() bool {
		runner.mu.Lock()
		defer runner.mu.Unlock()
		var seenA, seenB bool
		for _, id := range runner.calls {
			seenA = seenA || id == a
			seenB = seenB || id == b
		}
		return seenA && seenB
	}, time.Second, 5*time.Millisecond)
}

func TestReminderScheduler_StartIsIdempotent(t *testing.T) {
	provider := &stubWorkspaceProvider{}
	runner := &stubRunner{}

	s := NewReminderScheduler(ReminderSchedulerConfig{PollInterval: 10 * time.Millisecond}, runner, provider, zap.NewNop())
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop(context.Background()))
}

func TestReminderScheduler_StopWithoutStart(t *testing.T) {
	s := NewReminderScheduler(DefaultReminderSchedulerConfig(), &stubRunner{}, &stubWorkspaceProvider{}, zap.NewNop())
	assert.NoError(t, s.Stop(context.Background()))
}

func TestReminderScheduler_StopHaltsPasses(t *testing.T) {
	provider := &stubWorkspaceProvider{ids: []uuid.UUID{uuid.New()}}
	runner := &stubRunner{}

	s := NewReminderScheduler(ReminderSchedulerConfig{PollInterval: 10 * time.Millisecond}, runner, provider, zap.NewNop())
	require.NoError(t, s.Start(context.Background()))

	assert.Eventually(t, func() bool { return runner.callCount() >= 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Stop(context.Background()))

	count := runner.callCount()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, count, runner.callCount())
}
