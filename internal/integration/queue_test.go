package integration

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ledgerworks/integration-runtime/pkg/testutil"
)

func testStatus(label string) *InvocationStatus {
	return newInvocationStatus(0, label)
}

func TestQueueDefaultSize(t *testing.T) {
	q := NewDeferralQueue(0, nil)
	if got := q.Status().QueueSize; got != DefaultQueueSize {
		t.Fatalf("queue size = %d, want %d", got, DefaultQueueSize)
	}
}

func TestQueueFIFO(t *testing.T) {
	q := NewDeferralQueue(16, nil)

	var mu sync.Mutex
	var order []int
	for i := 0; i < 5; i++ {
		i := i
		err := q.Put(func(context.Context) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}, testStatus("fifo"))
		if err != nil {
			t.Fatalf("put %d: %v", i, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Start(ctx)

	if err := testutil.WaitFor(time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 5
	}); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	for i, got := range order {
		if got != i {
			t.Fatalf("order = %v, want ascending", order)
		}
	}
}

func TestQueueNeverRunsActionsConcurrently(t *testing.T) {
	q := NewDeferralQueue(64, nil)

	var mu sync.Mutex
	inFlight, maxInFlight, done := 0, 0, 0
	for i := 0; i < 20; i++ {
		err := q.Put(func(context.Context) {
			mu.Lock()
			inFlight++
			if inFlight > maxInFlight {
				maxInFlight = inFlight
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inFlight--
			done++
			mu.Unlock()
		}, testStatus("serial"))
		if err != nil {
			t.Fatalf("put: %v", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Start(ctx)

	if err := testutil.WaitFor(5*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return done == 20
	}); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	if maxInFlight != 1 {
		t.Fatalf("max in-flight actions = %d, want 1", maxInFlight)
	}
}

func TestQueueOverflow(t *testing.T) {
	q := NewDeferralQueue(2, nil)
	noop := func(context.Context) {}

	if err := q.Put(noop, testStatus("a")); err != nil {
		t.Fatalf("put a: %v", err)
	}
	if err := q.Put(noop, testStatus("b")); err != nil {
		t.Fatalf("put b: %v", err)
	}

	err := q.Put(noop, testStatus("c"))
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("put c error = %v, want ErrQueueFull", err)
	}

	status := q.Status()
	if status.TotalEvents != 2 {
		t.Errorf("total events = %d, want 2", status.TotalEvents)
	}
	if status.PendingEvents != 2 {
		t.Errorf("pending events = %d, want 2", status.PendingEvents)
	}
	if status.SkippedEvents != 1 {
		t.Errorf("skipped events = %d, want 1", status.SkippedEvents)
	}
}

func TestQueueWorkerSurvivesPanic(t *testing.T) {
	q := NewDeferralQueue(4, nil)

	var mu sync.Mutex
	ran := false

	if err := q.Put(func(context.Context) { panic("handler exploded") }, testStatus("boom")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := q.Put(func(context.Context) {
		mu.Lock()
		ran = true
		mu.Unlock()
	}, testStatus("after")); err != nil {
		t.Fatalf("put: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Start(ctx)

	if err := testutil.WaitFor(time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return ran
	}); err != nil {
		t.Fatal("worker did not survive a panicking action")
	}
}
