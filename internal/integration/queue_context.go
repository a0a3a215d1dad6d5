package integration

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ledgerworks/integration-runtime/internal/ledger"
	"github.com/ledgerworks/integration-runtime/pkg/logger"
)

// DefaultQueueName is the queue used when a producer does not name one.
const DefaultQueueName = "default"

var (
	// ErrUnknownQueue is returned when posting to a queue name with no
	// registered handler.
	ErrUnknownQueue = errors.New("unknown queue")

	// ErrDuplicateQueue is returned when registering a second handler
	// under an already-used queue name.
	ErrDuplicateQueue = errors.New("duplicate queue name")
)

// QueueHandler processes one message from a named internal queue.
type QueueHandler func(ctx context.Context, message any) (any, error)

type queueRegistration struct {
	status  *InvocationStatus
	enqueue func(ctx context.Context, message any) error
}

// QueueContext maps named internal queues to registered handlers and
// exposes a sink any handler can use to post messages to another queue.
type QueueContext struct {
	queue   *DeferralQueue
	invoker *invoker
	log     *logger.Logger

	mu     sync.Mutex
	queues map[string]*queueRegistration
}

// NewQueueContext creates an empty queue event context.
func NewQueueContext(queue *DeferralQueue, client ledger.Client, log *logger.Logger) *QueueContext {
	if log == nil {
		log = logger.NewDefault("queue-context")
	}
	return &QueueContext{
		queue:   queue,
		invoker: &invoker{client: client, log: log},
		log:     log,
		queues:  make(map[string]*queueRegistration),
	}
}

// Message registers the handler for a queue name, implicitly creating
// the queue. Exactly one handler is allowed per name; a duplicate is a
// registration error.
func (c *QueueContext) Message(queueName string, fn QueueHandler) (*InvocationStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.queues[queueName]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateQueue, queueName)
	}

	c.log.WithField("queue", queueName).Info("registering handler for queue messages")

	status := newInvocationStatus(len(c.queues), queueName)
	reg := &queueRegistration{
		status: status,
		enqueue: func(_ context.Context, message any) error {
			return c.queue.Put(func(ctx context.Context) {
				_, _ = c.invoker.invoke(ctx, status, func(ctx context.Context) (any, error) {
					return fn(ctx, message)
				})
			}, status)
		},
	}
	c.queues[queueName] = reg
	return status, nil
}

// Sink returns the message sink handed to integration code.
func (c *QueueContext) Sink() *QueueSink {
	return &QueueSink{ctx: c}
}

// QueueSink posts messages to named internal queues. Posting to an
// unknown name fails, and deferral queue overflow is propagated to the
// caller rather than silently dropped.
type QueueSink struct {
	ctx *QueueContext
}

// Put posts a message to the named queue.
func (s *QueueSink) Put(ctx context.Context, message any, queueName string) error {
	c := s.ctx

	c.mu.Lock()
	reg, ok := c.queues[queueName]
	names := make([]string, 0, len(c.queues))
	for name := range c.queues {
		names = append(names, name)
	}
	c.mu.Unlock()

	c.log.WithField("queue", queueName).Debug("queue put")

	if !ok {
		return fmt.Errorf("%w: %s (valid: %v)", ErrUnknownQueue, queueName, names)
	}

	return reg.enqueue(ctx, message)
}

// Status returns a snapshot per registered queue, ordered by
// registration index.
func (c *QueueContext) Status() []InvocationSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]InvocationSnapshot, len(c.queues))
	for _, reg := range c.queues {
		out[reg.status.Index()] = reg.status.Snapshot()
	}
	return out
}
