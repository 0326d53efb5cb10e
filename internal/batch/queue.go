package batch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrQueueClosed is returned by Enqueue once Shutdown has started.
var ErrQueueClosed = errors.New("batch queue is shut down")

// Batch is the unit the server-side queue carries.
type Batch struct {
	ID          uuid.UUID
	Jobs        []*FileJob
	SubmittedAt time.Time
}

// DoneFunc receives the summary when a queued batch finishes.
type DoneFunc func(batchID uuid.UUID, jobs []*FileJob, sum Summary)

// Queue runs submitted batches on background workers so upload handlers can
// return immediately. Batches run whole; the orchestrator bounds per-file
// concurrency inside each batch.
type Queue struct {
	orch    *Orchestrator
	logger  *slog.Logger
	onDone  DoneFunc
	timeout time.Duration

	ch   chan Batch
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
	closed bool
}

type QueueOption func(*Queue)

func WithQueueSize(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.ch = make(chan Batch, n)
		}
	}
}

func WithBatchTimeout(d time.Duration) QueueOption {
	return func(q *Queue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func NewQueue(orch *Orchestrator, onDone DoneFunc, logger *slog.Logger, opts ...QueueOption) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		orch:    orch,
		logger:  logger,
		onDone:  onDone,
		timeout: 15 * time.Minute,
		ch:      make(chan Batch, 64),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *Queue) start() {
	q.once.Do(func() {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			q.logger.Info("batch queue worker started")
			for b := range q.ch {
				ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
				sum := q.orch.Run(ctx, b.Jobs)
				cancel()
				if q.onDone != nil {
					q.onDone(b.ID, b.Jobs, sum)
				}
			}
			q.logger.Info("batch queue worker stopped")
		}()
	})
}

// Enqueue submits a batch. It blocks when the queue is full and fails with
// ErrQueueClosed once shutdown has started, so callers can refuse the work
// instead of acknowledging a batch that will never run.
func (q *Queue) Enqueue(_ context.Context, b Batch) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn("cannot enqueue: queue is shutting down", "batch_id", b.ID)
		return ErrQueueClosed
	}
	select {
	case q.ch <- b:
		q.logger.Info("queued batch", "batch_id", b.ID, "files", len(b.Jobs))
	default:
		q.logger.Warn("queue full, applying backpressure", "batch_id", b.ID)
		q.ch <- b
	}
	return nil
}

// Shutdown stops intake and waits for in-flight batches, bounded by ctx.
func (q *Queue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context")
	case <-done:
		q.logger.Info("queue drained, shutdown complete")
	}
}
