package conversation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/leadflowhq/whatsapp-ai-platform/pkg/logging"
)

const (
	defaultWorkerCount   = 2
	defaultWaitSeconds   = 2
	defaultBatchSize     = 5
	maxWaitSeconds       = 20
	maxReceiveBatchSize  = 10
	deleteTimeoutSeconds = 5
)

type jobTracker interface {
	PutPending(ctx context.Context, job *JobRecord) error
	MarkCompleted(ctx context.Context, jobID, conversationID, stage, replyText string) error
	MarkFailed(ctx context.Context, jobID string, errMsg string) error
}

// Worker consumes inbound messages from the queue and drives the engine.
// Delivery is at-least-once; the engine's message dedupe makes redelivery
// safe, and a busy conversation lock leaves the message on the queue for a
// later attempt.
type Worker struct {
	engine *Engine
	queue  queueClient
	jobs   jobTracker
	logger *logging.Logger

	cfg workerConfig
	wg  sync.WaitGroup
}

type workerConfig struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
	jobs             jobTracker
}

// WorkerOption customizes worker behavior.
type WorkerOption func(*workerConfig)

// WithWorkerCount sets the number of concurrent consumer goroutines.
func WithWorkerCount(count int) WorkerOption {
	return func(cfg *workerConfig) {
		if count > 0 {
			cfg.workers = count
		}
	}
}

// WithReceiveWaitSeconds sets the SQS long-poll wait duration.
func WithReceiveWaitSeconds(seconds int) WorkerOption {
	return func(cfg *workerConfig) {
		if seconds < 0 {
			return
		}
		if seconds > maxWaitSeconds {
			seconds = maxWaitSeconds
		}
		cfg.receiveWaitSecs = seconds
	}
}

// WithReceiveBatchSize sets how many messages to fetch per poll.
func WithReceiveBatchSize(size int) WorkerOption {
	return func(cfg *workerConfig) {
		if size <= 0 {
			return
		}
		if size > maxReceiveBatchSize {
			size = maxReceiveBatchSize
		}
		cfg.receiveBatchSize = size
	}
}

// WithJobTracker enables per-turn status persistence for operational lookups.
func WithJobTracker(jobs jobTracker) WorkerOption {
	return func(cfg *workerConfig) {
		cfg.jobs = jobs
	}
}

// NewWorker constructs a queue consumer around the provided engine.
func NewWorker(engine *Engine, queue queueClient, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if engine == nil {
		panic("conversation: engine cannot be nil")
	}
	if queue == nil {
		panic("conversation: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}

	cfg := workerConfig{
		workers:          defaultWorkerCount,
		receiveWaitSecs:  defaultWaitSeconds,
		receiveBatchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Worker{
		engine: engine,
		queue:  queue,
		jobs:   cfg.jobs,
		logger: logger,
		cfg:    cfg,
	}
}

// Start launches worker goroutines until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.cfg.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i+1)
	}
}

// Wait blocks until all worker goroutines exit.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()
	w.logger.Debug("conversation worker started", "worker_id", workerID)

	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("conversation worker stopping", "worker_id", workerID)
			return
		default:
		}

		messages, err := w.queue.Receive(ctx, w.cfg.receiveBatchSize, w.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			w.logger.Error("failed to receive inbound messages", "error", err, "worker_id", workerID)
			time.Sleep(backoff)
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			w.handleMessage(ctx, msg)
		}
	}
}

func (w *Worker) handleMessage(ctx context.Context, msg queueMessage) {
	inbound, err := decodeInbound(msg.Body)
	if err != nil {
		// A malformed payload will never parse on retry either.
		w.logger.Error("dropping undecodable inbound message", "error", err, "msg_id", msg.ID)
		w.deleteMessage(msg.ReceiptHandle)
		return
	}

	w.trackPending(ctx, inbound)

	report, err := w.engine.ProcessInbound(ctx, inbound)
	switch {
	case errors.Is(err, ErrConversationBusy):
		// Leave the message for redelivery after the visibility timeout.
		w.logger.Info("conversation busy, requeueing turn",
			"provider_message_id", inbound.ProviderMessageID)
		return
	case err != nil:
		if IsTransient(err) {
			// An infrastructure blip (db, redis, network) heals on its
			// own; leave the message for the visibility timeout to
			// redeliver instead of dropping the lead's turn.
			w.logger.Warn("inbound turn failed transiently, leaving for redelivery",
				"error", err, "provider_message_id", inbound.ProviderMessageID)
			return
		}
		w.logger.Error("inbound turn failed",
			"error", err, "provider_message_id", inbound.ProviderMessageID)
		w.trackFailed(ctx, inbound.ProviderMessageID, err)
		w.deleteMessage(msg.ReceiptHandle)
		return
	}

	w.trackCompleted(ctx, inbound.ProviderMessageID, report)
	w.deleteMessage(msg.ReceiptHandle)
}

func (w *Worker) trackPending(ctx context.Context, inbound InboundMessage) {
	if w.jobs == nil {
		return
	}
	err := w.jobs.PutPending(ctx, &JobRecord{JobID: inbound.ProviderMessageID})
	if err != nil {
		w.logger.Warn("job tracking failed", "error", err, "provider_message_id", inbound.ProviderMessageID)
	}
}

func (w *Worker) trackCompleted(ctx context.Context, jobID string, report *TurnReport) {
	if w.jobs == nil || report == nil {
		return
	}
	err := w.jobs.MarkCompleted(ctx, jobID, report.ConversationID.String(), string(report.Stage), report.ReplyText)
	if err != nil {
		w.logger.Warn("job completion tracking failed", "error", err, "job_id", jobID)
	}
}

func (w *Worker) trackFailed(ctx context.Context, jobID string, cause error) {
	if w.jobs == nil {
		return
	}
	if err := w.jobs.MarkFailed(ctx, jobID, cause.Error()); err != nil {
		w.logger.Warn("job failure tracking failed", "error", err, "job_id", jobID)
	}
}

func (w *Worker) deleteMessage(receiptHandle string) {
	// Deletion uses its own context so a cancelled run still acknowledges
	// messages it finished processing.
	ctx, cancel := context.WithTimeout(context.Background(), deleteTimeoutSeconds*time.Second)
	defer cancel()
	if err := w.queue.Delete(ctx, receiptHandle); err != nil {
		w.logger.Error("failed to delete queue message", "error", err)
	}
}
