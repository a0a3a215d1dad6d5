// Package integration implements the event dispatch runtime: the bounded
// deferral queue and its single worker, the four registration contexts
// (ledger, queue, time, webhook), and the invocation wrapper that turns
// handler results into ledger commands and captures failures.
package integration

import (
	"sync"
	"time"
)

// InvocationStatus tracks the health and usage of one registered
// handler. It is created at registration time, mutated only by the
// invocation wrapper for that handler, and never deleted.
type InvocationStatus struct {
	index int
	label string

	mu           sync.Mutex
	useCount     int
	errorCount   int
	commandCount int
	errorMessage string
	errorTime    time.Time
}

func newInvocationStatus(index int, label string) *InvocationStatus {
	return &InvocationStatus{index: index, label: label}
}

// Index returns the handler's registration order, stable for the
// process lifetime.
func (s *InvocationStatus) Index() int { return s.index }

// Label returns the human description given at registration.
func (s *InvocationStatus) Label() string { return s.label }

func (s *InvocationStatus) noteUse() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.useCount++
}

func (s *InvocationStatus) noteError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorCount++
	s.errorMessage = err.Error()
	s.errorTime = time.Now().UTC()
}

func (s *InvocationStatus) noteCommands(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commandCount += n
}

// InvocationSnapshot is a point-in-time copy of an InvocationStatus,
// shaped for the status API.
type InvocationSnapshot struct {
	Index        int        `json:"index"`
	Label        string     `json:"label"`
	UseCount     int        `json:"use_count"`
	ErrorCount   int        `json:"error_count"`
	CommandCount int        `json:"command_count"`
	ErrorMessage string     `json:"error_message,omitempty"`
	ErrorTime    *time.Time `json:"error_time,omitempty"`
}

// Snapshot returns a consistent copy of the counters.
func (s *InvocationStatus) Snapshot() InvocationSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := InvocationSnapshot{
		Index:        s.index,
		Label:        s.label,
		UseCount:     s.useCount,
		ErrorCount:   s.errorCount,
		CommandCount: s.commandCount,
		ErrorMessage: s.errorMessage,
	}
	if !s.errorTime.IsZero() {
		t := s.errorTime
		snap.ErrorTime = &t
	}
	return snap
}
