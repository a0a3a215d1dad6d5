package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/ledgerworks/integration-runtime/internal/httputil"
	"github.com/ledgerworks/integration-runtime/pkg/logger"
)

// ledgerAPIClaim is the JWT claim namespace carrying ledger access
// grants.
const ledgerAPIClaim = "https://daml.com/ledger-api"

// Claims is a decoded JWT claim set.
type Claims = map[string]any

// TokenValidator verifies a bearer token and returns its claims.
type TokenValidator interface {
	DecodeClaims(ctx context.Context, token string) (Claims, error)
}

// Middleware intercepts every HTTP request, determines the route's
// required authorization level, and rejects non-conforming requests
// before the route handler runs.
type Middleware struct {
	ledgerID   string
	runAsParty string
	validator  TokenValidator
	levels     *RouteLevels
	log        *logger.Logger
}

// NewMiddleware builds the auth middleware. A nil validator leaves
// non-public routes unreachable (hard rejection), matching a runtime
// started without a key source.
func NewMiddleware(ledgerID, runAsParty string, validator TokenValidator, levels *RouteLevels, log *logger.Logger) *Middleware {
	if log == nil {
		log = logger.NewDefault("auth")
	}
	return &Middleware{
		ledgerID:   ledgerID,
		runAsParty: runAsParty,
		validator:  validator,
		levels:     levels,
		log:        log,
	}
}

// Handler returns the mux middleware.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		level := m.levels.RouteLevel(mux.CurrentRoute(r))

		if level == Public {
			next.ServeHTTP(w, r)
			return
		}

		if m.validator == nil {
			httputil.Unauthorized(w, "no_authorization_support",
				"this endpoint requires authorization, which is unavailable without JWKS support")
			return
		}

		token, err := extractToken(r)
		if err != nil {
			httputil.Unauthorized(w, "invalid_auth_scheme",
				"invalid authorization scheme, should be `Bearer <token>`")
			return
		}
		if token == "" {
			httputil.Unauthorized(w, "missing_token",
				"this endpoint requires a valid token and none was supplied")
			return
		}

		claims, err := m.validator.DecodeClaims(r.Context(), token)
		if err != nil {
			m.log.WithError(err).Warn("rejected a token")
			httputil.Forbidden(w, "invalid_token",
				"this endpoint was presented with an invalid token")
			return
		}

		ledgerClaims := m.ledgerClaims(claims)
		if ledgerClaims == nil {
			httputil.Unauthorized(w, "missing_ledger_claims",
				"this endpoint requires a valid token containing ledger API claims for ledger ID \""+m.ledgerID+"\"")
			return
		}

		if level == IntegrationParty && !m.isIntegrationPartyClaim(ledgerClaims) {
			httputil.Unauthorized(w, "unauthorized", "unauthorized token")
			return
		}

		next.ServeHTTP(w, r.WithContext(withLedgerClaims(r.Context(), ledgerClaims)))
	})
}

// extractToken pulls the bearer token from the Authorization header,
// or, for GET requests only, from the access_token query parameter to
// support link-based redirect flows. A present header with a bad scheme
// is an error; a missing credential returns the empty string.
func extractToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header != "" {
		scheme, token, found := strings.Cut(header, " ")
		if !found || scheme != "Bearer" || token == "" {
			return "", errInvalidScheme
		}
		return token, nil
	}

	if r.Method == http.MethodGet {
		return r.URL.Query().Get("access_token"), nil
	}
	return "", nil
}

// ledgerClaims returns the ledger-scoped claims from the token if and
// only if they name the configured ledger ID. Claims against other
// ledgers have no power here.
func (m *Middleware) ledgerClaims(claims Claims) Claims {
	raw, ok := claims[ledgerAPIClaim].(map[string]any)
	if !ok {
		return nil
	}

	claimedLedgerID, _ := raw["ledgerId"].(string)
	if claimedLedgerID != m.ledgerID {
		m.log.WithField("claimed", claimedLedgerID).
			WithField("configured", m.ledgerID).
			Debug("ledger ID mismatch in claims")
		return nil
	}
	return raw
}

// isIntegrationPartyClaim reports whether the configured integration
// party appears in both the readAs and actAs claim lists.
func (m *Middleware) isIntegrationPartyClaim(ledgerClaims Claims) bool {
	if m.runAsParty == "" {
		return false
	}
	return containsString(ledgerClaims["readAs"], m.runAsParty) &&
		containsString(ledgerClaims["actAs"], m.runAsParty)
}

func containsString(list any, want string) bool {
	for _, v := range asStringList(list) {
		if v == want {
			return true
		}
	}
	return false
}
