package integration

import (
	"context"
	"fmt"
	"sync"

	"github.com/ledgerworks/integration-runtime/internal/ledger"
	"github.com/ledgerworks/integration-runtime/pkg/logger"
)

// Phase is the startup state of the ledger event context. Phases
// advance in order and are never revisited.
type Phase string

const (
	PhaseRegistering Phase = "REGISTERING"
	PhaseSweeping    Phase = "SWEEPING"
	PhaseReady       Phase = "READY"
)

// Handler signatures for ledger event registrations. Handlers return
// their result in any of the shapes accepted by response normalization.
type (
	EventHandler            func(ctx context.Context) (any, error)
	CreateEventHandler      func(ctx context.Context, ev ledger.ContractCreateEvent) (any, error)
	ArchiveEventHandler     func(ctx context.Context, ev ledger.ContractArchiveEvent) (any, error)
	TransactionStartHandler func(ctx context.Context, ev ledger.TransactionStartEvent) (any, error)
	TransactionEndHandler   func(ctx context.Context, ev ledger.TransactionEndEvent) (any, error)
)

// LedgerHandlerSnapshot extends the invocation snapshot with the
// registration's sweep/flow flags.
type LedgerHandlerSnapshot struct {
	InvocationSnapshot
	SweepEnabled bool `json:"sweep_enabled"`
	FlowEnabled  bool `json:"flow_enabled"`
}

type ledgerRegistration struct {
	status       *InvocationStatus
	sweepEnabled bool
	flowEnabled  bool
}

type sweepEntry struct {
	template string
	match    ledger.Match
	deliver  func(ctx context.Context, ev ledger.ContractCreateEvent)
}

// CreateOption adjusts a ContractCreated registration.
type CreateOption func(*createOptions)

type createOptions struct {
	match             ledger.Match
	sweep             bool
	flow              bool
	packageDefaulting bool
}

// WithMatch filters deliveries to contracts whose payload satisfies the
// match.
func WithMatch(m ledger.Match) CreateOption {
	return func(o *createOptions) { o.match = m }
}

// WithoutSweep disables the startup sweep for this registration.
func WithoutSweep() CreateOption {
	return func(o *createOptions) { o.sweep = false }
}

// WithoutFlow disables live-stream delivery for this registration.
// A registration with both sweep and flow disabled is legal but never
// fires.
func WithoutFlow() CreateOption {
	return func(o *createOptions) { o.flow = false }
}

// WithoutPackageDefaulting passes the template identifier through
// without resolving it against the default model package.
func WithoutPackageDefaulting() CreateOption {
	return func(o *createOptions) { o.packageDefaulting = false }
}

// LedgerContext registers per-template ledger event handlers, runs the
// startup sweep, and feeds live flow events through the deferral queue.
type LedgerContext struct {
	queue   *DeferralQueue
	client  ledger.Client
	invoker *invoker
	model   *ledger.ModelInfo
	log     *logger.Logger

	mu            sync.Mutex
	phase         Phase
	sweepEvents   int
	registrations []*ledgerRegistration
	sweeps        []sweepEntry
	initHandlers  []func(ctx context.Context)
	readyHandlers []func(ctx context.Context)
}

// NewLedgerContext creates a ledger event context in the REGISTERING
// phase.
func NewLedgerContext(queue *DeferralQueue, client ledger.Client, model *ledger.ModelInfo, log *logger.Logger) *LedgerContext {
	if log == nil {
		log = logger.NewDefault("ledger-context")
	}
	return &LedgerContext{
		queue:   queue,
		client:  client,
		invoker: &invoker{client: client, log: log},
		model:   model,
		log:     log,
		phase:   PhaseRegistering,
	}
}

func (c *LedgerContext) noticeRegistration(description string, sweep, flow bool) *ledgerRegistration {
	c.mu.Lock()
	defer c.mu.Unlock()

	reg := &ledgerRegistration{
		status:       newInvocationStatus(len(c.registrations), description),
		sweepEnabled: sweep,
		flowEnabled:  flow,
	}
	c.registrations = append(c.registrations, reg)
	return reg
}

// defer wraps an invocation so that calling it enqueues the work on the
// deferral queue instead of executing inline. Queue overflow for ledger
// flow surfaces only through the shared counters.
func (c *LedgerContext) deferInvocation(status *InvocationStatus, fn func(context.Context) (any, error)) func() {
	return func() {
		_ = c.queue.Put(func(ctx context.Context) {
			_, _ = c.invoker.invoke(ctx, status, fn)
		}, status)
	}
}

// LedgerInit registers a handler run once when the ledger event stream
// is connecting, before any sweep or flow delivery.
func (c *LedgerContext) LedgerInit(fn EventHandler) *InvocationStatus {
	reg := c.noticeRegistration("Ledger Init", false, true)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.initHandlers = append(c.initHandlers, func(ctx context.Context) {
		_, _ = c.invoker.invoke(ctx, reg.status, func(ctx context.Context) (any, error) {
			return fn(ctx)
		})
	})
	return reg.status
}

// LedgerReady registers a handler run once after the sweep completes
// and before any flow delivery.
func (c *LedgerContext) LedgerReady(fn EventHandler) *InvocationStatus {
	reg := c.noticeRegistration("Ledger Ready", false, true)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.readyHandlers = append(c.readyHandlers, func(ctx context.Context) {
		_, _ = c.invoker.invoke(ctx, reg.status, func(ctx context.Context) (any, error) {
			return fn(ctx)
		})
	})
	return reg.status
}

// TransactionStart registers a handler for transaction boundary start
// events.
func (c *LedgerContext) TransactionStart(fn TransactionStartHandler) *InvocationStatus {
	reg := c.noticeRegistration("Transaction Start", false, true)

	c.client.OnTransactionStart(func(ev ledger.TransactionStartEvent) {
		c.deferInvocation(reg.status, func(ctx context.Context) (any, error) {
			return fn(ctx, ev)
		})()
	})
	return reg.status
}

// TransactionEnd registers a handler for transaction boundary end
// events.
func (c *LedgerContext) TransactionEnd(fn TransactionEndHandler) *InvocationStatus {
	reg := c.noticeRegistration("Transaction End", false, true)

	c.client.OnTransactionEnd(func(ev ledger.TransactionEndEvent) {
		c.deferInvocation(reg.status, func(ctx context.Context) (any, error) {
			return fn(ctx, ev)
		})()
	})
	return reg.status
}

// ContractCreated registers a handler for contract create events of a
// template. By default the handler receives both the startup sweep
// (Initial=true) and the live flow (Initial=false); options narrow
// that.
func (c *LedgerContext) ContractCreated(template string, fn CreateEventHandler, opts ...CreateOption) (*InvocationStatus, error) {
	options := createOptions{sweep: true, flow: true, packageDefaulting: true}
	for _, opt := range opts {
		opt(&options)
	}

	qualified := template
	if options.packageDefaulting {
		var err error
		qualified, err = ledger.QualifyTemplate(c.model, template)
		if err != nil {
			return nil, err
		}
	}

	c.log.WithField("template", qualified).
		WithField("sweep", options.sweep).
		WithField("flow", options.flow).
		Info("registering contract_created handler")

	reg := c.noticeRegistration(fmt.Sprintf("Contract Create - %s", qualified), options.sweep, options.flow)

	deliver := func(ctx context.Context, ev ledger.ContractCreateEvent) {
		_, _ = c.invoker.invoke(ctx, reg.status, func(ctx context.Context) (any, error) {
			return fn(ctx, ev)
		})
	}

	if options.sweep {
		c.mu.Lock()
		c.sweeps = append(c.sweeps, sweepEntry{template: qualified, match: options.match, deliver: deliver})
		c.mu.Unlock()
	}

	if options.flow {
		c.client.OnContractCreated(qualified, options.match, func(ev ledger.ContractCreateEvent) {
			c.deferInvocation(reg.status, func(ctx context.Context) (any, error) {
				return fn(ctx, ev)
			})()
		})
	}

	return reg.status, nil
}

// ContractArchived registers a handler for contract archive events of a
// template.
func (c *LedgerContext) ContractArchived(template string, fn ArchiveEventHandler, opts ...CreateOption) (*InvocationStatus, error) {
	options := createOptions{packageDefaulting: true}
	for _, opt := range opts {
		opt(&options)
	}

	qualified := template
	if options.packageDefaulting {
		var err error
		qualified, err = ledger.QualifyTemplate(c.model, template)
		if err != nil {
			return nil, err
		}
	}

	c.log.WithField("template", qualified).Info("registering contract_archived handler")

	reg := c.noticeRegistration(fmt.Sprintf("Contract Archive - %s", qualified), false, true)

	c.client.OnContractArchived(qualified, options.match, func(ev ledger.ContractArchiveEvent) {
		c.deferInvocation(reg.status, func(ctx context.Context) (any, error) {
			return fn(ctx, ev)
		})()
	})

	return reg.status, nil
}

// ProcessSweeps moves the context through SWEEPING into READY: init
// handlers run in registration order, then each sweep-enabled create
// registration receives every currently active matching contract with
// Initial=true, synchronously and outside the deferral queue, then
// ready handlers run. A contract created between the active-contract
// query and live subscription start may be missed or double-delivered;
// closing that window is the ledger client's responsibility.
func (c *LedgerContext) ProcessSweeps(ctx context.Context) error {
	c.mu.Lock()
	c.phase = PhaseSweeping
	inits := make([]func(context.Context), len(c.initHandlers))
	copy(inits, c.initHandlers)
	sweeps := make([]sweepEntry, len(c.sweeps))
	copy(sweeps, c.sweeps)
	c.mu.Unlock()

	c.log.Debug("invoking sweep initialization handlers")
	for _, init := range inits {
		init(ctx)
	}

	for _, sweep := range sweeps {
		c.log.WithField("template", sweep.template).Debug("processing sweep")

		contracts, err := c.client.FindActive(ctx, sweep.template, sweep.match)
		if err != nil {
			return fmt.Errorf("active contract query for %s: %w", sweep.template, err)
		}

		for _, ac := range contracts {
			c.mu.Lock()
			c.sweepEvents++
			c.mu.Unlock()

			sweep.deliver(ctx, ledger.ContractCreateEvent{
				Initial:    true,
				Template:   sweep.template,
				ContractID: ac.ContractID,
				Data:       ac.Data,
			})
		}
	}

	c.mu.Lock()
	c.phase = PhaseReady
	readies := make([]func(context.Context), len(c.readyHandlers))
	copy(readies, c.readyHandlers)
	c.mu.Unlock()

	c.log.Debug("sweeps processed, invoking ready handlers")
	for _, ready := range readies {
		ready(ctx)
	}

	c.log.Info("done with ready handlers and sweeps")
	return nil
}

// LedgerStatus reports the context's phase, sweep volume, and handler
// statistics.
type LedgerStatus struct {
	Phase         Phase                   `json:"phase"`
	PendingCalls  int                     `json:"pending_calls"`
	SweepEvents   int                     `json:"sweep_events"`
	EventHandlers []LedgerHandlerSnapshot `json:"event_handlers"`
}

// Status returns a snapshot of the ledger context.
func (c *LedgerContext) Status() LedgerStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	handlers := make([]LedgerHandlerSnapshot, 0, len(c.registrations))
	for _, reg := range c.registrations {
		handlers = append(handlers, LedgerHandlerSnapshot{
			InvocationSnapshot: reg.status.Snapshot(),
			SweepEnabled:       reg.sweepEnabled,
			FlowEnabled:        reg.flowEnabled,
		})
	}

	return LedgerStatus{
		Phase:         c.phase,
		PendingCalls:  c.queue.Status().PendingEvents,
		SweepEvents:   c.sweepEvents,
		EventHandlers: handlers,
	}
}
