package integration

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ledgerworks/integration-runtime/internal/ledger"
)

// Environment is the integration's view of its deployment: the party it
// acts as, the model it runs against, its instance metadata, and the
// sink for posting internal queue messages.
type Environment struct {
	Party    string
	Model    *ledger.ModelInfo
	Metadata map[string]string
	Queue    *QueueSink
}

// Events bundles the four registration contexts handed to an entry
// point.
type Events struct {
	Ledger  *LedgerContext
	Queue   *QueueContext
	Time    *TimeContext
	Webhook *WebhookContext
}

// EntryPoint is the integration's registration function. It is called
// once during load, registers handlers against the contexts, and
// returns before any event is delivered.
type EntryPoint func(env *Environment, events *Events) error

var (
	registryMu sync.RWMutex
	registry   = make(map[string]EntryPoint)
)

// RegisterEntryPoint makes an entry point resolvable by qualified name.
// Integrations register themselves from an init function. A duplicate
// name panics, matching the fatal-at-startup contract for registration
// errors.
func RegisterEntryPoint(name string, entry EntryPoint) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("duplicate integration entry point: %s", name))
	}
	registry[name] = entry
}

// ResolveEntryPoint returns the entry point registered under a
// qualified name. An unknown name is a fatal startup error for the
// caller.
func ResolveEntryPoint(name string) (EntryPoint, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	entry, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown integration entry point: %s (registered: %v)", name, registeredNamesLocked())
	}
	return entry, nil
}

func registeredNamesLocked() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
