package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/robo-agendamentos/internal/observability/metrics"
	"github.com/wolfman30/robo-agendamentos/pkg/logging"
)

// ErrQueueFull is returned when the buffer cannot take another batch.
var ErrQueueFull = errors.New("dispatch: queue full")

// Runner executes one batch. *Dispatcher satisfies it.
type Runner interface {
	Dispatch(ctx context.Context, batch Batch) Summary
}

// Queue accepts batches from HTTP callers and runs them in the background.
// With a single worker, batches run one after another and pacing holds across
// them.
type Queue struct {
	runner  Runner
	ch      chan Batch
	workers int
	metrics *metrics.NotifierMetrics
	logger  *logging.Logger
	now     func() time.Time

	pending atomic.Int64
	wg      sync.WaitGroup
}

func NewQueue(runner Runner, workers, size int, m *metrics.NotifierMetrics, logger *logging.Logger) *Queue {
	if runner == nil {
		panic("dispatch: runner cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if workers <= 0 {
		workers = 1
	}
	if size <= 0 {
		size = 32
	}
	return &Queue{
		runner:  runner,
		ch:      make(chan Batch, size),
		workers: workers,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// Enqueue assigns an ID and acceptance time and buffers the batch without
// blocking.
func (q *Queue) Enqueue(batch Batch) (Batch, error) {
	if batch.ID == "" {
		batch.ID = uuid.NewString()
	}
	batch.AcceptedAt = q.now().UTC()

	// Counted before the send so a worker finishing the batch never sees it
	// uncounted.
	q.pending.Add(1)
	select {
	case q.ch <- batch:
		q.metrics.ObserveBatch(string(batch.Template), "accepted")
		return batch, nil
	default:
		q.pending.Add(-1)
		q.metrics.ObserveBatch(string(batch.Template), "rejected")
		return batch, ErrQueueFull
	}
}

// Pending reports batches buffered or in flight.
func (q *Queue) Pending() int {
	return int(q.pending.Load())
}

// Run starts the workers. They exit when ctx is cancelled; Wait blocks until
// they have.
func (q *Queue) Run(ctx context.Context) {
	q.logger.Info("dispatch queue started", "workers", q.workers, "capacity", cap(q.ch))
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.loop(ctx, i)
	}
}

func (q *Queue) Wait() {
	q.wg.Wait()
}

func (q *Queue) loop(ctx context.Context, id int) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			q.logger.Info("dispatch worker stopping", "worker", id, "dropped", len(q.ch))
			return
		case batch := <-q.ch:
			q.run(ctx, batch)
		}
	}
}

func (q *Queue) run(ctx context.Context, batch Batch) {
	defer q.pending.Add(-1)
	defer func() {
		if r := recover(); r != nil {
			q.metrics.ObserveBatch(string(batch.Template), "panicked")
			q.logger.Error("dispatch worker recovered", "batch_id", batch.ID, "panic", fmt.Sprint(r))
		}
	}()

	summary := q.runner.Dispatch(ctx, batch)
	status := "completed"
	if summary.Failed > 0 || summary.Skipped > 0 {
		status = "partial"
	}
	q.metrics.ObserveBatch(string(batch.Template), status)
	q.logger.Info("dispatch batch completed",
		"batch_id", batch.ID,
		"queued_for", q.now().Sub(batch.AcceptedAt).String(),
		"reasons", summary.Reasons,
	)
}
