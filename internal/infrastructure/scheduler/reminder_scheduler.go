package scheduler

import (
	"context"
	"sync"
	"time"

	appinvoicing "github.com/billcraft/backend/internal/application/invoicing"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// WorkspaceProvider lists the workspaces with active reminder tracking.
// Workspaces with nothing due cost one query each per poll, so the provider
// should only return workspaces that currently track at least one invoice.
type WorkspaceProvider interface {
	ActiveReminderWorkspaces(ctx context.Context) ([]uuid.UUID, error)
}

// ReminderRunner executes one reminder pass for a workspace
type ReminderRunner interface {
	RunPass(ctx context.Context, workspaceID uuid.UUID) (appinvoicing.PassResult, error)
}

// ReminderSchedulerConfig holds configuration for the reminder scheduler
type ReminderSchedulerConfig struct {
	// PollInterval is how often due reminders are claimed. Must be shorter
	// than the claim lock TTL or healthy workers would see their own locks
	// expire mid-pass.
	PollInterval time.Duration
}

// DefaultReminderSchedulerConfig returns default scheduler configuration
func DefaultReminderSchedulerConfig() ReminderSchedulerConfig {
	return ReminderSchedulerConfig{
		PollInterval: time.Minute,
	}
}

// ReminderScheduler periodically runs reminder passes across all active
// workspaces. Safe to run on multiple instances at once: the claim protocol
// in the repository guarantees each due record is processed by one worker.
type ReminderScheduler struct {
	config     ReminderSchedulerConfig
	runner     ReminderRunner
	workspaces WorkspaceProvider
	logger     *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewReminderScheduler creates a new reminder scheduler
func NewReminderScheduler(
	config ReminderSchedulerConfig,
	runner ReminderRunner,
	workspaces WorkspaceProvider,
	logger *zap.Logger,
) *ReminderScheduler {
	if config.PollInterval <= 0 {
		config.PollInterval = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReminderScheduler{
		config:     config,
		runner:     runner,
		workspaces: workspaces,
		logger:     logger,
	}
}

// Start starts the scheduler loop. Idempotent.
func (s *ReminderScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.runLoop(ctx)

	s.logger.Info("reminder scheduler started",
		zap.Duration("poll_interval", s.config.PollInterval),
	)

	return nil
}

// Stop stops the scheduler and waits for the current pass to finish. Idempotent.
func (s *ReminderScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("reminder scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runLoop polls until the context is canceled
func (s *ReminderScheduler) runLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

// runOnce executes one pass over every active workspace. A failing workspace
// is logged and skipped; the rest of the pass continues.
func (s *ReminderScheduler) runOnce(ctx context.Context) {
	workspaceIDs, err := s.workspaces.ActiveReminderWorkspaces(ctx)
	if err != nil {
		s.logger.Error("failed to list reminder workspaces", zap.Error(err))
		return
	}

	for _, workspaceID := range workspaceIDs {
		if ctx.Err() != nil {
			return
		}

		result, err := s.runner.RunPass(ctx, workspaceID)
		if err != nil {
			s.logger.Error("reminder pass failed",
				zap.String("workspace_id", workspaceID.String()),
				zap.Error(err),
			)
			continue
		}

		if result.Claimed > 0 {
			s.logger.Info("reminder pass finished",
				zap.String("workspace_id", workspaceID.String()),
				zap.Int("claimed", result.Claimed),
				zap.Int("sent", result.Sent),
				zap.Int("stopped", result.Stopped),
				zap.Int("skipped", result.Skipped),
				zap.Int("failed", result.Failed),
			)
		}
	}
}
