// Package auth enforces token-based authorization on externally
// reachable routes: per-route authorization levels, the bearer-token
// middleware, and accessors for the ledger claims attached to an
// authorized request.
package auth

import (
	"sync"

	"github.com/gorilla/mux"
)

// Level is the authorization requirement attached to a route at
// registration time.
type Level string

const (
	// Public routes pass through the middleware untouched.
	Public Level = "PUBLIC"

	// AnyParty requires a valid token carrying ledger claims for the
	// configured ledger, for any party.
	AnyParty Level = "ANY_PARTY"

	// IntegrationParty additionally requires the integration's own
	// party in both the read-access and act-access claim lists.
	IntegrationParty Level = "INTEGRATION_PARTY"
)

// RouteLevels records the authorization level declared for each named
// route. Routes without an entry default to Public.
type RouteLevels struct {
	mu     sync.RWMutex
	levels map[string]Level
}

// NewRouteLevels creates an empty registry.
func NewRouteLevels() *RouteLevels {
	return &RouteLevels{levels: make(map[string]Level)}
}

// Set declares the level for a route name. Levels are immutable after
// registration; Set on an existing name is ignored.
func (r *RouteLevels) Set(routeName string, level Level) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.levels[routeName]; exists {
		return
	}
	r.levels[routeName] = level
}

// Get returns the level declared for a route name, defaulting to
// Public.
func (r *RouteLevels) Get(routeName string) Level {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if level, ok := r.levels[routeName]; ok {
		return level
	}
	return Public
}

// RouteLevel resolves the level for the current mux route. Unnamed or
// unmatched routes are Public.
func (r *RouteLevels) RouteLevel(route *mux.Route) Level {
	if route == nil {
		return Public
	}
	name := route.GetName()
	if name == "" {
		return Public
	}
	return r.Get(name)
}
