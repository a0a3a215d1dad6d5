package integration

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ledgerworks/integration-runtime/internal/ledger"
	"github.com/ledgerworks/integration-runtime/pkg/logger"
)

// TimerHandler runs on each tick of a periodic interval registration.
type TimerHandler func(ctx context.Context) (any, error)

type timerRegistration struct {
	interval time.Duration
	status   *InvocationStatus
	fn       TimerHandler
}

// TimeContext runs one independent repeating timer per registration.
// Ticks are deferred through the shared queue; when the queue is full
// the tick is skipped rather than blocking, since a timer has no caller
// to propagate pressure to.
type TimeContext struct {
	queue   *DeferralQueue
	invoker *invoker
	log     *logger.Logger

	mu     sync.Mutex
	timers []*timerRegistration
}

// NewTimeContext creates an empty time event context.
func NewTimeContext(queue *DeferralQueue, client ledger.Client, log *logger.Logger) *TimeContext {
	if log == nil {
		log = logger.NewDefault("time-context")
	}
	return &TimeContext{
		queue:   queue,
		invoker: &invoker{client: client, log: log},
		log:     log,
	}
}

// PeriodicInterval registers a handler invoked at the given interval.
// Multiple registrations run as independent wait loops, but their
// resulting actions still serialize through the deferral queue.
func (c *TimeContext) PeriodicInterval(interval time.Duration, label string, fn TimerHandler) *InvocationStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := newInvocationStatus(len(c.timers), label)
	c.timers = append(c.timers, &timerRegistration{interval: interval, status: status, fn: fn})
	return status
}

// Start launches one wait loop per registration and returns. Loops run
// until the context is cancelled.
func (c *TimeContext) Start(ctx context.Context) {
	c.mu.Lock()
	timers := make([]*timerRegistration, len(c.timers))
	copy(timers, c.timers)
	c.mu.Unlock()

	for _, reg := range timers {
		go c.waitLoop(ctx, reg)
	}
}

func (c *TimeContext) waitLoop(ctx context.Context, reg *timerRegistration) {
	c.log.WithField("interval", reg.interval.String()).
		WithField("timer", reg.status.Label()).
		Debug("entering timer wait loop")

	ticker := time.NewTicker(reg.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := c.queue.Put(func(ctx context.Context) {
				_, _ = c.invoker.invoke(ctx, reg.status, func(ctx context.Context) (any, error) {
					return reg.fn(ctx)
				})
			}, reg.status)
			if errors.Is(err, ErrQueueFull) {
				// Tick skipped; the next interval fires as usual.
				c.log.WithField("timer", reg.status.Label()).Warn("deferral queue full, skipping tick")
			}
		}
	}
}

// Status returns a snapshot per timer, in registration order.
func (c *TimeContext) Status() []InvocationSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]InvocationSnapshot, 0, len(c.timers))
	for _, reg := range c.timers {
		out = append(out, reg.status.Snapshot())
	}
	return out
}
