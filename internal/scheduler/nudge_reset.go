package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/leadflowhq/whatsapp-ai-platform/pkg/logging"
)

const defaultResetInterval = 24 * time.Hour

type nudgeCounterStore interface {
	ResetDailyNudgeCounters(ctx context.Context) (int64, error)
}

// NudgeResetTask zeroes the rolling 24h follow-up counters so the daily
// nudge cap starts fresh. It can run once (cron style) or on a loop.
type NudgeResetTask struct {
	store    nudgeCounterStore
	logger   *logging.Logger
	interval time.Duration

	wg sync.WaitGroup
}

// NewNudgeResetTask wires the task.
func NewNudgeResetTask(store nudgeCounterStore, logger *logging.Logger, interval time.Duration) *NudgeResetTask {
	if store == nil {
		panic("scheduler: conversation store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if interval <= 0 {
		interval = defaultResetInterval
	}
	return &NudgeResetTask{store: store, logger: logger, interval: interval}
}

// RunOnce performs a single reset.
func (t *NudgeResetTask) RunOnce(ctx context.Context) error {
	n, err := t.store.ResetDailyNudgeCounters(ctx)
	if err != nil {
		t.logger.Error("nudge counter reset failed", "error", err)
		return err
	}
	t.logger.Info("nudge counters reset", "conversations", n)
	return nil
}

// Start launches the periodic loop.
func (t *NudgeResetTask) Start(ctx context.Context) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = t.RunOnce(ctx)
			}
		}
	}()
}

// Wait blocks until the loop has exited.
func (t *NudgeResetTask) Wait() {
	t.wg.Wait()
}
