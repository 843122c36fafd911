// Package outbox drains pending outbox entries and hands them to a
// publisher. Entries are written transactionally by the command side; the
// relay is the only component that flips their status.
package outbox

import (
	"context"
	"sync"
	"time"

	"github.com/billcraft/backend/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Publisher delivers one outbox entry to the outside world (a broker, a
// webhook dispatcher, an email gateway)
type Publisher interface {
	Publish(ctx context.Context, entry *shared.OutboxEntry) error
}

// Store is the outbox persistence surface the relay needs. It extends the
// domain's OutboxRepository with MarkRetry, which keeps a failed entry
// pending for another attempt.
type Store interface {
	shared.OutboxRepository
	MarkRetry(ctx context.Context, id uuid.UUID, reason string, at time.Time) error
}

// RelayConfig holds configuration for the outbox relay
type RelayConfig struct {
	BatchSize    int
	PollInterval time.Duration
	// MaxRetries bounds delivery attempts per entry; once exceeded the
	// entry is marked FAILED and needs manual intervention
	MaxRetries int
}

// DefaultRelayConfig returns default relay configuration
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		BatchSize:    100,
		PollInterval: 5 * time.Second,
		MaxRetries:   5,
	}
}

// Relay processes pending outbox entries in the background
type Relay struct {
	store     Store
	publisher Publisher
	config    RelayConfig
	clock     shared.Clock
	logger    *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRelay creates a new outbox relay
func NewRelay(store Store, publisher Publisher, config RelayConfig, clock shared.Clock, logger *zap.Logger) *Relay {
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 5 * time.Second
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{
		store:     store,
		publisher: publisher,
		config:    config,
		clock:     clock,
		logger:    logger,
	}
}

// Start starts the background processing
func (r *Relay) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.wg.Add(1)
	go r.processLoop(ctx)

	r.logger.Info("outbox relay started",
		zap.Int("batch_size", r.config.BatchSize),
		zap.Duration("poll_interval", r.config.PollInterval),
	)

	return nil
}

// Stop gracefully stops the relay
func (r *Relay) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("outbox relay stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// processLoop is the main processing loop
func (r *Relay) processLoop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.ProcessBatch(ctx)
		}
	}
}

// ProcessBatch drains one batch of pending entries. Exported so tests and
// one-shot tools can drive the relay without the ticker.
func (r *Relay) ProcessBatch(ctx context.Context) {
	entries, err := r.store.FindPending(ctx, r.config.BatchSize)
	if err != nil {
		r.logger.Error("failed to load pending outbox entries", zap.Error(err))
		return
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return
		}
		r.processEntry(ctx, entry)
	}
}

// processEntry publishes one entry and records the outcome
func (r *Relay) processEntry(ctx context.Context, entry *shared.OutboxEntry) {
	now := r.clock.Now()

	if err := r.publisher.Publish(ctx, entry); err != nil {
		if entry.RetryCount+1 >= r.config.MaxRetries {
			r.logger.Error("outbox entry exhausted its retries",
				zap.String("entry_id", entry.ID.String()),
				zap.String("event_type", entry.EventType),
				zap.Int("retry_count", entry.RetryCount+1),
				zap.Error(err),
			)
			if markErr := r.store.MarkFailed(ctx, entry.ID, err.Error(), now); markErr != nil {
				r.logger.Error("failed to mark outbox entry failed", zap.Error(markErr))
			}
			return
		}

		r.logger.Warn("outbox publish failed, will retry",
			zap.String("entry_id", entry.ID.String()),
			zap.String("event_type", entry.EventType),
			zap.Int("retry_count", entry.RetryCount+1),
			zap.Error(err),
		)
		if markErr := r.store.MarkRetry(ctx, entry.ID, err.Error(), now); markErr != nil {
			r.logger.Error("failed to mark outbox entry for retry", zap.Error(markErr))
		}
		return
	}

	if err := r.store.MarkSent(ctx, entry.ID, now); err != nil {
		r.logger.Error("failed to mark outbox entry sent", zap.Error(err))
	}
}

// LoggingPublisher is a Publisher that logs entries instead of delivering
// them. Used in deployments without a broker and as the development default.
type LoggingPublisher struct {
	logger *zap.Logger
}

// NewLoggingPublisher creates a new LoggingPublisher
func NewLoggingPublisher(logger *zap.Logger) *LoggingPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingPublisher{logger: logger}
}

// Publish logs the entry
func (p *LoggingPublisher) Publish(ctx context.Context, entry *shared.OutboxEntry) error {
	p.logger.Info("outbox event",
		zap.String("entry_id", entry.ID.String()),
		zap.String("tenant_id", entry.TenantID.String()),
		zap.String("event_type", entry.EventType),
		zap.String("aggregate_type", entry.AggregateType),
		zap.String("aggregate_id", entry.AggregateID.String()),
	)
	return nil
}
