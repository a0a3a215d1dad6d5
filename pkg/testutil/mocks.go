// Package testutil provides common testing utilities and mock implementations.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerworks/integration-runtime/internal/ledger"
)

// MockLedgerClient is a test implementation of ledger.Client. It records
// submitted commands, serves a configurable active-contract set, and
// lets tests drive subscription callbacks directly.
type MockLedgerClient struct {
	mu     sync.RWMutex
	active map[string][]ledger.ActiveContract

	submitted  [][]ledger.Command
	submitErr  error
	submitHang bool

	createSubs  []createSub
	archiveSubs []archiveSub
	txnStart    []ledger.TransactionStartHandler
	txnEnd      []ledger.TransactionEndHandler
}

type createSub struct {
	template string
	match    ledger.Match
	handler  ledger.CreateHandler
}

type archiveSub struct {
	template string
	match    ledger.Match
	handler  ledger.ArchiveHandler
}

// NewMockLedgerClient creates an empty mock ledger client.
func NewMockLedgerClient() *MockLedgerClient {
	return &MockLedgerClient{active: make(map[string][]ledger.ActiveContract)}
}

// AddActive seeds an active contract for FindActive queries and returns
// its generated contract ID.
func (m *MockLedgerClient) AddActive(template string, data ledger.ContractData) ledger.ContractID {
	m.mu.Lock()
	defer m.mu.Unlock()
	cid := ledger.ContractID(uuid.NewString())
	m.active[template] = append(m.active[template], ledger.ActiveContract{ContractID: cid, Data: data})
	return cid
}

// FailSubmissions makes every subsequent Submit return the given error.
func (m *MockLedgerClient) FailSubmissions(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submitErr = err
}

// HangSubmissions makes Submit block until its context is cancelled.
func (m *MockLedgerClient) HangSubmissions() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submitHang = true
}

// Submitted returns all command batches submitted so far.
func (m *MockLedgerClient) Submitted() [][]ledger.Command {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([][]ledger.Command, len(m.submitted))
	copy(out, m.submitted)
	return out
}

// SubmittedCount returns the total number of individual commands
// submitted across all batches.
func (m *MockLedgerClient) SubmittedCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, batch := range m.submitted {
		n += len(batch)
	}
	return n
}

// Submit implements ledger.Client.
func (m *MockLedgerClient) Submit(ctx context.Context, commands []ledger.Command) error {
	m.mu.Lock()
	hang := m.submitHang
	err := m.submitErr
	m.mu.Unlock()

	if hang {
		<-ctx.Done()
		return ctx.Err()
	}
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	batch := make([]ledger.Command, len(commands))
	copy(batch, commands)
	m.submitted = append(m.submitted, batch)
	return nil
}

// FindActive implements ledger.Client.
func (m *MockLedgerClient) FindActive(_ context.Context, template string, match ledger.Match) ([]ledger.ActiveContract, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ledger.ActiveContract
	for tmpl, contracts := range m.active {
		if template != ledger.WildcardTemplate && template != tmpl {
			continue
		}
		for _, ac := range contracts {
			if match.Matches(ac.Data) {
				out = append(out, ac)
			}
		}
	}
	return out, nil
}

// OnContractCreated implements ledger.Client.
func (m *MockLedgerClient) OnContractCreated(template string, match ledger.Match, handler ledger.CreateHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createSubs = append(m.createSubs, createSub{template: template, match: match, handler: handler})
}

// OnContractArchived implements ledger.Client.
func (m *MockLedgerClient) OnContractArchived(template string, match ledger.Match, handler ledger.ArchiveHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.archiveSubs = append(m.archiveSubs, archiveSub{template: template, match: match, handler: handler})
}

// OnTransactionStart implements ledger.Client.
func (m *MockLedgerClient) OnTransactionStart(handler ledger.TransactionStartHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txnStart = append(m.txnStart, handler)
}

// OnTransactionEnd implements ledger.Client.
func (m *MockLedgerClient) OnTransactionEnd(handler ledger.TransactionEndHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txnEnd = append(m.txnEnd, handler)
}

// Ready implements ledger.Client.
func (m *MockLedgerClient) Ready(_ context.Context) error { return nil }

// EmitCreate delivers a live create event to matching subscriptions.
func (m *MockLedgerClient) EmitCreate(template string, cid ledger.ContractID, data ledger.ContractData) {
	m.mu.RLock()
	subs := make([]createSub, len(m.createSubs))
	copy(subs, m.createSubs)
	m.mu.RUnlock()

	ev := ledger.ContractCreateEvent{Initial: false, Template: template, ContractID: cid, Data: data}
	for _, sub := range subs {
		if (sub.template == ledger.WildcardTemplate || sub.template == template) && sub.match.Matches(data) {
			sub.handler(ev)
		}
	}
}

// EmitArchive delivers a live archive event to matching subscriptions.
func (m *MockLedgerClient) EmitArchive(template string, cid ledger.ContractID) {
	m.mu.RLock()
	subs := make([]archiveSub, len(m.archiveSubs))
	copy(subs, m.archiveSubs)
	m.mu.RUnlock()

	for _, sub := range subs {
		if sub.template == ledger.WildcardTemplate || sub.template == template {
			sub.handler(ledger.ContractArchiveEvent{Template: template, ContractID: cid})
		}
	}
}

// EmitTransaction delivers a start event, then the contained contract
// events, then the matching end event, the way a live subscription
// would.
func (m *MockLedgerClient) EmitTransaction(commandID, workflowID string, events []ledger.ContractEvent) {
	m.mu.RLock()
	starts := make([]ledger.TransactionStartHandler, len(m.txnStart))
	copy(starts, m.txnStart)
	ends := make([]ledger.TransactionEndHandler, len(m.txnEnd))
	copy(ends, m.txnEnd)
	m.mu.RUnlock()

	for _, h := range starts {
		h(ledger.TransactionStartEvent{CommandID: commandID, WorkflowID: workflowID, ContractEvents: events})
	}
	for _, ev := range events {
		switch e := ev.(type) {
		case ledger.ContractCreateEvent:
			m.EmitCreate(e.Template, e.ContractID, e.Data)
		case ledger.ContractArchiveEvent:
			m.EmitArchive(e.Template, e.ContractID)
		}
	}
	for _, h := range ends {
		h(ledger.TransactionEndEvent{CommandID: commandID, WorkflowID: workflowID, ContractEvents: events})
	}
}

// WaitFor polls the condition until it holds or the timeout elapses.
func WaitFor(timeout time.Duration, cond func() bool) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return nil
		}
		time.Sleep(2 * time.Millisecond)
	}
	if cond() {
		return nil
	}
	return fmt.Errorf("condition not met within %v", timeout)
}
