// Package ledger defines the abstract surface the integration runtime
// consumes from a ledger client: command submission, active-contract
// queries, and live event subscription. The wire protocol behind this
// surface belongs to the hosting process, not to this runtime.
package ledger

import (
	"context"
)

// ContractID identifies a contract on the ledger. IDs are opaque and
// scoped to a template.
type ContractID string

// ContractData is the payload of a contract.
type ContractData map[string]any

// CommandKind discriminates ledger commands.
type CommandKind string

const (
	CommandCreate   CommandKind = "create"
	CommandExercise CommandKind = "exercise"
)

// Command is a single instruction submitted to the ledger on behalf of
// an integration handler.
type Command struct {
	Kind       CommandKind  `json:"kind"`
	Template   string       `json:"template,omitempty"`
	ContractID ContractID   `json:"contract_id,omitempty"`
	Choice     string       `json:"choice,omitempty"`
	Arguments  ContractData `json:"arguments,omitempty"`
}

// CreateCommand builds a contract creation command.
func CreateCommand(template string, arguments ContractData) Command {
	return Command{Kind: CommandCreate, Template: template, Arguments: arguments}
}

// ExerciseCommand builds a choice exercise command.
func ExerciseCommand(cid ContractID, choice string, arguments ContractData) Command {
	return Command{Kind: CommandExercise, ContractID: cid, Choice: choice, Arguments: arguments}
}

// Match filters contracts by payload content. A nil Match accepts every
// contract; otherwise every listed field must be present and equal.
type Match map[string]any

// Matches reports whether the contract data satisfies the filter.
func (m Match) Matches(data ContractData) bool {
	for field, want := range m {
		got, ok := data[field]
		if !ok || got != want {
			return false
		}
	}
	return true
}

// ContractEvent is implemented by the contract-level ledger events.
type ContractEvent interface {
	EventContractID() ContractID
}

// ContractCreateEvent notifies an integration of a contract on ledger.
// During startup one event is delivered per active contract of interest
// with Initial set; afterwards events arrive within transaction
// boundaries with Initial clear. The contract's validity in the event
// stream spans this event and the matching archive event for its ID.
type ContractCreateEvent struct {
	Initial    bool
	Template   string
	ContractID ContractID
	Data       ContractData
}

func (e ContractCreateEvent) EventContractID() ContractID { return e.ContractID }

// ContractArchiveEvent marks the end of a contract's validity. It is
// never delivered before the create event for the same contract ID.
type ContractArchiveEvent struct {
	Template   string
	ContractID ContractID
}

func (e ContractArchiveEvent) EventContractID() ContractID { return e.ContractID }

// TransactionStartEvent opens a ledger transaction boundary. All
// contract events of the transaction are delivered between this event
// and the matching end event.
type TransactionStartEvent struct {
	CommandID      string
	WorkflowID     string
	ContractEvents []ContractEvent
}

// TransactionEndEvent closes a ledger transaction boundary.
type TransactionEndEvent struct {
	CommandID      string
	WorkflowID     string
	ContractEvents []ContractEvent
}

// ActiveContract is one entry in an active-contract query result.
type ActiveContract struct {
	ContractID ContractID
	Data       ContractData
}

// Handler signatures for live subscription delivery.
type (
	CreateHandler           func(ContractCreateEvent)
	ArchiveHandler          func(ContractArchiveEvent)
	TransactionStartHandler func(TransactionStartEvent)
	TransactionEndHandler   func(TransactionEndEvent)
)

// Client is the runtime's view of the ledger connection. Implementations
// must deliver subscription callbacks sequentially, preserve
// create-before-archive ordering per contract ID, and never interleave
// contract events of different transactions.
type Client interface {
	// Submit sends commands to the ledger, honouring ctx cancellation.
	Submit(ctx context.Context, commands []Command) error

	// FindActive returns the currently active contracts of a template
	// matching the filter.
	FindActive(ctx context.Context, template string, match Match) ([]ActiveContract, error)

	// Subscription registration. Handlers fire for live events only.
	OnContractCreated(template string, match Match, handler CreateHandler)
	OnContractArchived(template string, match Match, handler ArchiveHandler)
	OnTransactionStart(handler TransactionStartHandler)
	OnTransactionEnd(handler TransactionEndHandler)

	// Ready blocks until the client is connected and able to serve
	// queries. The runtime awaits this once before the sweep.
	Ready(ctx context.Context) error
}
