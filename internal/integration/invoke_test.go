package integration

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ledgerworks/integration-runtime/internal/ledger"
	"github.com/ledgerworks/integration-runtime/pkg/logger"
	"github.com/ledgerworks/integration-runtime/pkg/testutil"
)

func newTestInvoker(client ledger.Client) *invoker {
	return &invoker{client: client, log: logger.NewDefault("test")}
}

func TestInvokeCountsUseAndCommands(t *testing.T) {
	client := testutil.NewMockLedgerClient()
	iv := newTestInvoker(client)
	status := testStatus("counting")

	_, err := iv.invoke(context.Background(), status, func(context.Context) (any, error) {
		return []ledger.Command{
			ledger.CreateCommand("Pkg:M:T", ledger.ContractData{"n": 1}),
			ledger.CreateCommand("Pkg:M:T", ledger.ContractData{"n": 2}),
		}, nil
	})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}

	snap := status.Snapshot()
	if snap.UseCount != 1 {
		t.Errorf("use count = %d, want 1", snap.UseCount)
	}
	if snap.CommandCount != 2 {
		t.Errorf("command count = %d, want 2", snap.CommandCount)
	}
	if snap.ErrorCount != 0 {
		t.Errorf("error count = %d, want 0", snap.ErrorCount)
	}
	if client.SubmittedCount() != 2 {
		t.Errorf("submitted = %d, want 2", client.SubmittedCount())
	}
}

func TestInvokeNilResultSubmitsNothing(t *testing.T) {
	client := testutil.NewMockLedgerClient()
	iv := newTestInvoker(client)
	status := testStatus("nil result")

	if _, err := iv.invoke(context.Background(), status, func(context.Context) (any, error) {
		return nil, nil
	}); err != nil {
		t.Fatalf("invoke: %v", err)
	}

	if client.SubmittedCount() != 0 {
		t.Errorf("submitted = %d, want 0", client.SubmittedCount())
	}
}

func TestInvokeRecordsHandlerError(t *testing.T) {
	client := testutil.NewMockLedgerClient()
	iv := newTestInvoker(client)
	status := testStatus("failing")

	boom := errors.New("boom")
	_, err := iv.invoke(context.Background(), status, func(context.Context) (any, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("invoke error = %v, want boom", err)
	}

	snap := status.Snapshot()
	if snap.ErrorCount != 1 {
		t.Errorf("error count = %d, want 1", snap.ErrorCount)
	}
	if snap.ErrorMessage != "boom" {
		t.Errorf("error message = %q, want boom", snap.ErrorMessage)
	}
	if snap.ErrorTime == nil {
		t.Error("error time not recorded")
	}
}

func TestInvokeRecoversPanic(t *testing.T) {
	client := testutil.NewMockLedgerClient()
	iv := newTestInvoker(client)
	status := testStatus("panicking")

	_, err := iv.invoke(context.Background(), status, func(context.Context) (any, error) {
		panic("kaboom")
	})
	if err == nil || !strings.Contains(err.Error(), "kaboom") {
		t.Fatalf("invoke error = %v, want panic message", err)
	}

	snap := status.Snapshot()
	if snap.UseCount != 1 || snap.ErrorCount != 1 {
		t.Errorf("use=%d errors=%d, want 1/1", snap.UseCount, snap.ErrorCount)
	}
}

func TestInvokeRejectsUnsupportedResult(t *testing.T) {
	client := testutil.NewMockLedgerClient()
	iv := newTestInvoker(client)
	status := testStatus("weird result")

	_, err := iv.invoke(context.Background(), status, func(context.Context) (any, error) {
		return 42, nil
	})
	if err == nil || !strings.Contains(err.Error(), "unsupported handler response type") {
		t.Fatalf("invoke error = %v, want unsupported type", err)
	}
	if status.Snapshot().ErrorCount != 1 {
		t.Error("unsupported result not recorded as error")
	}
}

func TestInvokeSubmissionFailureRecorded(t *testing.T) {
	client := testutil.NewMockLedgerClient()
	client.FailSubmissions(errors.New("ledger rejected"))
	iv := newTestInvoker(client)
	status := testStatus("submit fail")

	_, err := iv.invoke(context.Background(), status, func(context.Context) (any, error) {
		return ledger.CreateCommand("Pkg:M:T", nil), nil
	})
	if err == nil || !strings.Contains(err.Error(), "command submission failed") {
		t.Fatalf("invoke error = %v, want submission failure", err)
	}

	snap := status.Snapshot()
	if snap.ErrorCount != 1 {
		t.Errorf("error count = %d, want 1", snap.ErrorCount)
	}
	if snap.CommandCount != 0 {
		t.Errorf("command count = %d, want 0 after failed submit", snap.CommandCount)
	}
}

func TestInvokeSubmissionTimeout(t *testing.T) {
	client := testutil.NewMockLedgerClient()
	client.HangSubmissions()
	iv := newTestInvoker(client)
	status := testStatus("submit hang")

	start := time.Now()
	_, err := iv.invoke(context.Background(), status, func(context.Context) (any, error) {
		return &Response{
			Commands:       []ledger.Command{ledger.CreateCommand("Pkg:M:T", nil)},
			CommandTimeout: 20 * time.Millisecond,
		}, nil
	})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("submission blocked for %v, timeout not applied", elapsed)
	}
	if status.Snapshot().ErrorCount != 1 {
		t.Error("timeout not recorded as error")
	}
}
