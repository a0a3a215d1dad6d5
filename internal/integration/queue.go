package integration

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ledgerworks/integration-runtime/internal/metrics"
	"github.com/ledgerworks/integration-runtime/pkg/logger"
)

// DefaultQueueSize bounds the deferral queue when no size is configured.
const DefaultQueueSize = 512

// ErrQueueFull is returned by Put when the deferral queue is at
// capacity. Producers differ in how they react: internal-queue
// producers propagate it, timers skip the tick.
var ErrQueueFull = errors.New("deferral queue full")

// Action is a deferred unit of work executed by the queue worker.
type Action func(ctx context.Context)

type queueEntry struct {
	run    Action
	status *InvocationStatus
}

// DeferralQueue is the single serialization point for ledger flow
// events, internal-queue messages, and timer ticks. One worker drains
// it in strict FIFO order; no two actions ever execute concurrently.
type DeferralQueue struct {
	log     *logger.Logger
	entries chan queueEntry
	size    int

	mu      sync.Mutex
	total   int
	skipped int
}

// NewDeferralQueue creates a bounded queue. A size of zero or less
// takes DefaultQueueSize.
func NewDeferralQueue(size int, log *logger.Logger) *DeferralQueue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if log == nil {
		log = logger.NewDefault("deferral-queue")
	}
	return &DeferralQueue{
		log:     log,
		entries: make(chan queueEntry, size),
		size:    size,
	}
}

// Put attempts a non-blocking enqueue. On overflow it increments the
// skipped counter, logs the condition, and returns ErrQueueFull.
func (q *DeferralQueue) Put(run Action, status *InvocationStatus) error {
	select {
	case q.entries <- queueEntry{run: run, status: status}:
		q.mu.Lock()
		q.total++
		q.mu.Unlock()
		metrics.RecordQueueSubmitted()
		metrics.SetQueueDepth(len(q.entries))
		return nil
	default:
		q.mu.Lock()
		q.skipped++
		q.mu.Unlock()
		metrics.RecordQueueSkipped()
		q.log.WithField("handler", status.Label()).Error("work queue overrun, skipping event")
		return ErrQueueFull
	}
}

// Start runs the worker loop until the context is cancelled. An error
// escaping one action is contained to that action; the loop itself
// only terminates with the process.
func (q *DeferralQueue) Start(ctx context.Context) {
	q.log.Info("queue worker starting")

	for {
		select {
		case <-ctx.Done():
			q.log.Info("queue worker stopping")
			return
		case entry := <-q.entries:
			metrics.SetQueueDepth(len(q.entries))
			q.log.WithField("handler", entry.status.Label()).Debug("processing queue entry")
			q.execute(ctx, entry)
		}
	}
}

func (q *DeferralQueue) execute(ctx context.Context, entry queueEntry) {
	defer func() {
		if r := recover(); r != nil {
			q.log.WithField("handler", entry.status.Label()).
				WithField("panic", fmt.Sprintf("%v", r)).
				Error("uncaught panic in queue worker loop")
		}
	}()
	entry.run(ctx)
}

// QueueStatus reports queue configuration and cumulative counters.
type QueueStatus struct {
	QueueSize     int `json:"queue_size"`
	TotalEvents   int `json:"total_events"`
	PendingEvents int `json:"pending_events"`
	SkippedEvents int `json:"skipped_events"`
}

// Status returns current size and the cumulative submitted and skipped
// counts.
func (q *DeferralQueue) Status() QueueStatus {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QueueStatus{
		QueueSize:     q.size,
		TotalEvents:   q.total,
		PendingEvents: len(q.entries),
		SkippedEvents: q.skipped,
	}
}
