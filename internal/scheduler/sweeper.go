package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/leadflowhq/whatsapp-ai-platform/internal/conversation"
	"github.com/leadflowhq/whatsapp-ai-platform/internal/observability/metrics"
	"github.com/leadflowhq/whatsapp-ai-platform/pkg/logging"
)

const (
	defaultSweepInterval = 30 * time.Second
	defaultSweepBatch    = 25
)

type actionSource interface {
	DuePending(ctx context.Context, now time.Time, limit int) ([]conversation.ScheduledAction, error)
	MarkExecuted(ctx context.Context, id uuid.UUID) error
	MarkCancelled(ctx context.Context, id uuid.UUID) error
}

type followupRunner interface {
	RunFollowupTurn(ctx context.Context, action conversation.ScheduledAction) (*conversation.TurnReport, error)
}

// Sweeper polls for due scheduled actions and re-enters the pipeline for
// each one. A failing action is cancelled, never retried forever, and a
// single failure does not abort the rest of the batch.
type Sweeper struct {
	actions  actionSource
	runner   followupRunner
	metrics  *metrics.SchedulerMetrics
	logger   *logging.Logger
	interval time.Duration
	batch    int

	wg sync.WaitGroup
}

// SweeperOption adjusts the sweeper.
type SweeperOption func(*Sweeper)

// WithSweepInterval sets the polling interval.
func WithSweepInterval(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithSweepBatchSize caps actions fetched per sweep.
func WithSweepBatchSize(n int) SweeperOption {
	return func(s *Sweeper) {
		if n > 0 {
			s.batch = n
		}
	}
}

// NewSweeper wires the sweeper.
func NewSweeper(actions actionSource, runner followupRunner, m *metrics.SchedulerMetrics, logger *logging.Logger, opts ...SweeperOption) *Sweeper {
	if actions == nil {
		panic("scheduler: action store required")
	}
	if runner == nil {
		panic("scheduler: followup runner required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Sweeper{
		actions:  actions,
		runner:   runner,
		metrics:  m,
		logger:   logger,
		interval: defaultSweepInterval,
		batch:    defaultSweepBatch,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the sweep loop.
func (s *Sweeper) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		s.logger.Info("follow-up sweeper started", "interval", s.interval.String(), "batch", s.batch)
		for {
			select {
			case <-ctx.Done():
				s.logger.Info("follow-up sweeper stopping")
				return
			case <-ticker.C:
				s.Sweep(ctx)
			}
		}
	}()
}

// Wait blocks until the loop has exited.
func (s *Sweeper) Wait() {
	s.wg.Wait()
}

// Sweep processes one batch of due actions.
func (s *Sweeper) Sweep(ctx context.Context) {
	s.metrics.ObserveSweep()

	due, err := s.actions.DuePending(ctx, time.Now().UTC(), s.batch)
	if err != nil {
		s.logger.Error("due action query failed", "error", err)
		return
	}

	for _, action := range due {
		if ctx.Err() != nil {
			return
		}
		s.processAction(ctx, action)
	}
}

func (s *Sweeper) processAction(ctx context.Context, action conversation.ScheduledAction) {
	report, err := s.runner.RunFollowupTurn(ctx, action)
	switch {
	case err == nil:
		if err := s.actions.MarkExecuted(ctx, action.ID); err != nil {
			s.logger.Error("mark executed failed", "error", err, "action_id", action.ID)
		}
		s.metrics.ObserveAction("executed")
		s.logger.Info("follow-up executed",
			"action_id", action.ID, "conversation_id", action.ConversationID,
			"stage", report.Stage, "replied", report.ReplyText != "")

	case errors.Is(err, conversation.ErrHumanModeActive):
		// A human took over since the nudge was scheduled.
		if err := s.actions.MarkCancelled(ctx, action.ID); err != nil {
			s.logger.Error("mark cancelled failed", "error", err, "action_id", action.ID)
		}
		s.metrics.ObserveAction("cancelled")
		s.logger.Info("follow-up cancelled, conversation in human mode",
			"action_id", action.ID, "conversation_id", action.ConversationID)

	case errors.Is(err, conversation.ErrConversationBusy):
		// An inbound turn holds the lock. Leave the action pending so the
		// next sweep picks it up.
		s.metrics.ObserveAction("deferred")
		s.logger.Info("follow-up deferred, conversation busy",
			"action_id", action.ID, "conversation_id", action.ConversationID)

	default:
		if err := s.actions.MarkCancelled(ctx, action.ID); err != nil {
			s.logger.Error("mark cancelled failed", "error", err, "action_id", action.ID)
		}
		s.metrics.ObserveAction("failed")
		s.logger.Error("follow-up failed, action cancelled",
			"error", err, "action_id", action.ID, "conversation_id", action.ConversationID)
	}
}
