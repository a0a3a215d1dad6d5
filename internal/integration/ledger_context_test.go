package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ledgerworks/integration-runtime/internal/ledger"
	"github.com/ledgerworks/integration-runtime/pkg/testutil"
)

const testTemplate = "cafe1234:Trading:Order"

func newTestLedgerContext(client ledger.Client, queueSize int) (*LedgerContext, *DeferralQueue) {
	queue := NewDeferralQueue(queueSize, nil)
	return NewLedgerContext(queue, client, nil, nil), queue
}

func TestSweepDeliversActiveContracts(t *testing.T) {
	client := testutil.NewMockLedgerClient()
	client.AddActive(testTemplate, ledger.ContractData{"owner": "alice", "size": 1})
	client.AddActive(testTemplate, ledger.ContractData{"owner": "alice", "size": 2})
	client.AddActive(testTemplate, ledger.ContractData{"owner": "bob", "size": 3})

	lc, _ := newTestLedgerContext(client, 16)

	var mu sync.Mutex
	var seen []ledger.ContractCreateEvent
	status, err := lc.ContractCreated(testTemplate,
		func(_ context.Context, ev ledger.ContractCreateEvent) (any, error) {
			mu.Lock()
			seen = append(seen, ev)
			mu.Unlock()
			return nil, nil
		},
		WithMatch(ledger.Match{"owner": "alice"}))
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := lc.ProcessSweeps(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 {
		t.Fatalf("sweep delivered %d events, want 2", len(seen))
	}
	for _, ev := range seen {
		if !ev.Initial {
			t.Error("sweep event delivered with Initial=false")
		}
		if ev.Data["owner"] != "alice" {
			t.Errorf("match not applied, got owner %v", ev.Data["owner"])
		}
	}

	if status.Snapshot().UseCount != 2 {
		t.Errorf("use count = %d, want 2", status.Snapshot().UseCount)
	}

	ls := lc.Status()
	if ls.Phase != PhaseReady {
		t.Errorf("phase = %s, want READY", ls.Phase)
	}
	if ls.SweepEvents != 2 {
		t.Errorf("sweep events = %d, want 2", ls.SweepEvents)
	}
}

func TestSweepRunsInitThenSweepThenReady(t *testing.T) {
	client := testutil.NewMockLedgerClient()
	client.AddActive(testTemplate, ledger.ContractData{"n": 1})

	lc, _ := newTestLedgerContext(client, 16)

	var mu sync.Mutex
	var order []string
	note := func(step string) {
		mu.Lock()
		order = append(order, step)
		mu.Unlock()
	}

	lc.LedgerInit(func(context.Context) (any, error) { note("init"); return nil, nil })
	lc.LedgerReady(func(context.Context) (any, error) { note("ready"); return nil, nil })
	if _, err := lc.ContractCreated(testTemplate,
		func(context.Context, ledger.ContractCreateEvent) (any, error) { note("sweep"); return nil, nil },
	); err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := lc.ProcessSweeps(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"init", "sweep", "ready"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestWithoutSweepSkipsActiveContracts(t *testing.T) {
	client := testutil.NewMockLedgerClient()
	client.AddActive(testTemplate, ledger.ContractData{"n": 1})

	lc, _ := newTestLedgerContext(client, 16)

	status, err := lc.ContractCreated(testTemplate,
		func(context.Context, ledger.ContractCreateEvent) (any, error) { return nil, nil },
		WithoutSweep())
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := lc.ProcessSweeps(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if status.Snapshot().UseCount != 0 {
		t.Errorf("use count = %d, want 0 without sweep", status.Snapshot().UseCount)
	}
}

func TestFlowEventsDeferThroughQueue(t *testing.T) {
	client := testutil.NewMockLedgerClient()
	lc, queue := newTestLedgerContext(client, 16)

	var mu sync.Mutex
	var seen []ledger.ContractCreateEvent
	if _, err := lc.ContractCreated(testTemplate,
		func(_ context.Context, ev ledger.ContractCreateEvent) (any, error) {
			mu.Lock()
			seen = append(seen, ev)
			mu.Unlock()
			return nil, nil
		},
	); err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := lc.ProcessSweeps(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	client.EmitCreate(testTemplate, "cid-1", ledger.ContractData{"n": 1})

	// Nothing runs until the worker drains the queue.
	mu.Lock()
	if len(seen) != 0 {
		mu.Unlock()
		t.Fatal("flow event delivered before the worker ran")
	}
	mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go queue.Start(ctx)

	if err := testutil.WaitFor(time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 1
	}); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	if seen[0].Initial {
		t.Error("flow event delivered with Initial=true")
	}
	if seen[0].ContractID != "cid-1" {
		t.Errorf("contract id = %s, want cid-1", seen[0].ContractID)
	}
}

func TestArchiveAfterCreateOrdering(t *testing.T) {
	client := testutil.NewMockLedgerClient()
	lc, queue := newTestLedgerContext(client, 16)

	var mu sync.Mutex
	var order []string

	if _, err := lc.ContractCreated(testTemplate,
		func(_ context.Context, ev ledger.ContractCreateEvent) (any, error) {
			mu.Lock()
			order = append(order, "create:"+string(ev.ContractID))
			mu.Unlock()
			return nil, nil
		}); err != nil {
		t.Fatalf("register create: %v", err)
	}
	if _, err := lc.ContractArchived(testTemplate,
		func(_ context.Context, ev ledger.ContractArchiveEvent) (any, error) {
			mu.Lock()
			order = append(order, "archive:"+string(ev.ContractID))
			mu.Unlock()
			return nil, nil
		}); err != nil {
		t.Fatalf("register archive: %v", err)
	}

	if err := lc.ProcessSweeps(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	client.EmitTransaction("cmd-1", "wf-1", []ledger.ContractEvent{
		ledger.ContractCreateEvent{Template: testTemplate, ContractID: "cid-9", Data: ledger.ContractData{}},
		ledger.ContractArchiveEvent{Template: testTemplate, ContractID: "cid-9"},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go queue.Start(ctx)

	if err := testutil.WaitFor(time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 2
	}); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	if order[0] != "create:cid-9" || order[1] != "archive:cid-9" {
		t.Fatalf("order = %v, want create before archive", order)
	}
}

func TestTransactionBoundaries(t *testing.T) {
	client := testutil.NewMockLedgerClient()
	lc, queue := newTestLedgerContext(client, 16)

	var mu sync.Mutex
	var order []string
	lc.TransactionStart(func(_ context.Context, ev ledger.TransactionStartEvent) (any, error) {
		mu.Lock()
		order = append(order, "start:"+ev.CommandID)
		mu.Unlock()
		return nil, nil
	})
	lc.TransactionEnd(func(_ context.Context, ev ledger.TransactionEndEvent) (any, error) {
		mu.Lock()
		order = append(order, "end:"+ev.CommandID)
		mu.Unlock()
		return nil, nil
	})

	if err := lc.ProcessSweeps(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	client.EmitTransaction("cmd-7", "wf-7", nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go queue.Start(ctx)

	if err := testutil.WaitFor(time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 2
	}); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	if order[0] != "start:cmd-7" || order[1] != "end:cmd-7" {
		t.Fatalf("order = %v, want start before end", order)
	}
}

func TestContractCreatedQualifiesTemplates(t *testing.T) {
	client := testutil.NewMockLedgerClient()
	queue := NewDeferralQueue(16, nil)
	model := &ledger.ModelInfo{MainPackageID: "cafe1234"}
	lc := NewLedgerContext(queue, client, model, nil)

	handler := func(context.Context, ledger.ContractCreateEvent) (any, error) { return nil, nil }

	status, err := lc.ContractCreated("Trading:Order", handler)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if label := status.Label(); label != "Contract Create - cafe1234:Trading:Order" {
		t.Errorf("label = %q, template not qualified", label)
	}

	// No model means unqualified names cannot be resolved.
	lcNoModel, _ := newTestLedgerContext(client, 16)
	if _, err := lcNoModel.ContractCreated("Trading:Order", handler); err == nil {
		t.Error("expected error qualifying without a model")
	}
	if _, err := lcNoModel.ContractCreated("Trading:Order", handler, WithoutPackageDefaulting()); err != nil {
		t.Errorf("WithoutPackageDefaulting: %v", err)
	}
}
