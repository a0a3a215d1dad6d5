package integration

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/ledgerworks/integration-runtime/internal/auth"
	"github.com/ledgerworks/integration-runtime/internal/ledger"
	"github.com/ledgerworks/integration-runtime/pkg/logger"
)

// Context owns one loaded integration instance: the deferral queue, the
// four event contexts, and the load/start lifecycle around them.
type Context struct {
	log    *logger.Logger
	client ledger.Client
	party  string
	model  *ledger.ModelInfo

	Queue   *DeferralQueue
	Ledger  *LedgerContext
	Queues  *QueueContext
	Time    *TimeContext
	Webhook *WebhookContext

	mu           sync.Mutex
	startTime    time.Time
	running      bool
	errorMessage string
	errorTime    time.Time
}

// ContextConfig carries the construction parameters for a Context.
type ContextConfig struct {
	QueueSize     int
	IntegrationID string
	RunAsParty    string
	Model         *ledger.ModelInfo
	Router        *mux.Router
	RouteLevels   *auth.RouteLevels
}

// NewContext wires the deferral queue and the four event contexts.
func NewContext(cfg ContextConfig, client ledger.Client, log *logger.Logger) *Context {
	if log == nil {
		log = logger.NewDefault("integration")
	}

	queue := NewDeferralQueue(cfg.QueueSize, log.Component("deferral-queue"))

	return &Context{
		log:       log,
		client:    client,
		party:     cfg.RunAsParty,
		model:     cfg.Model,
		startTime: time.Now().UTC(),
		Queue:     queue,
		Ledger:    NewLedgerContext(queue, client, cfg.Model, log.Component("ledger-context")),
		Queues:    NewQueueContext(queue, client, log.Component("queue-context")),
		Time:      NewTimeContext(queue, client, log.Component("time-context")),
		Webhook:   NewWebhookContext(client, cfg.IntegrationID, cfg.Router, cfg.RouteLevels, log.Component("webhook-context")),
	}
}

// Load resolves the entry point and lets it register handlers. A load
// failure is recorded and returned; the process treats it as fatal.
func (c *Context) Load(entryName string, metadata map[string]string) error {
	entry, err := ResolveEntryPoint(entryName)
	if err != nil {
		c.noteError(err)
		return err
	}

	env := &Environment{
		Party:    c.party,
		Model:    c.model,
		Metadata: metadata,
		Queue:    c.Queues.Sink(),
	}
	events := &Events{
		Ledger:  c.Ledger,
		Queue:   c.Queues,
		Time:    c.Time,
		Webhook: c.Webhook,
	}

	c.log.WithField("entrypoint", entryName).Info("loading integration")

	if err := entry(env, events); err != nil {
		err = fmt.Errorf("integration load failed: %w", err)
		c.noteError(err)
		return err
	}
	return nil
}

// Start waits for the ledger client, runs the sweep phase, and marks
// the integration running. Startup failures are recorded in the status
// rather than crashing the status surface.
func (c *Context) Start(ctx context.Context) error {
	c.log.Info("starting integration")

	if err := c.client.Ready(ctx); err != nil {
		err = fmt.Errorf("ledger client ready: %w", err)
		c.noteError(err)
		return err
	}

	c.log.Info("ledger client ready, processing sweeps")

	if err := c.Ledger.ProcessSweeps(ctx); err != nil {
		c.noteError(err)
		return err
	}

	c.mu.Lock()
	c.running = true
	c.mu.Unlock()

	c.log.Info("sweeps processed, integration started")
	return nil
}

// Run starts the queue worker and the timer loops. It returns when the
// context is cancelled.
func (c *Context) Run(ctx context.Context) {
	c.Time.Start(ctx)
	c.Queue.Start(ctx)
}

func (c *Context) noteError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errorMessage = err.Error()
	c.errorTime = time.Now().UTC()
	c.log.WithError(err).Error("integration failure")
}

// Status is the composite health record served by the control routes.
type Status struct {
	Running      bool                   `json:"running"`
	StartTime    time.Time              `json:"start_time"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	ErrorTime    *time.Time             `json:"error_time,omitempty"`
	EventQueue   QueueStatus            `json:"event_queue"`
	LedgerEvents LedgerStatus           `json:"ledger_events"`
	Webhooks     []WebhookRouteSnapshot `json:"webhooks"`
	Timers       []InvocationSnapshot   `json:"timers"`
	Queues       []InvocationSnapshot   `json:"queues"`
}

// Status returns a snapshot of the whole integration.
func (c *Context) Status() Status {
	c.mu.Lock()
	running := c.running
	startTime := c.startTime
	errorMessage := c.errorMessage
	errorTime := c.errorTime
	c.mu.Unlock()

	status := Status{
		Running:      running,
		StartTime:    startTime,
		ErrorMessage: errorMessage,
		EventQueue:   c.Queue.Status(),
		LedgerEvents: c.Ledger.Status(),
		Webhooks:     c.Webhook.Status(),
		Timers:       c.Time.Status(),
		Queues:       c.Queues.Status(),
	}
	if !errorTime.IsZero() {
		t := errorTime
		status.ErrorTime = &t
	}
	return status
}
