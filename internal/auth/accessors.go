package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var errInvalidScheme = errors.New("invalid authorization scheme")

type contextKey string

const ledgerClaimsKey contextKey = "ledger_claims"

func withLedgerClaims(ctx context.Context, claims Claims) context.Context {
	return context.WithValue(ctx, ledgerClaimsKey, claims)
}

// RequestClaims returns the ledger claims attached to the request by
// the middleware. Public endpoints, where no token is extracted, return
// nil.
func RequestClaims(r *http.Request) Claims {
	claims, _ := r.Context().Value(ledgerClaimsKey).(Claims)
	return claims
}

// RequestParties returns the parties named in both the readAs and actAs
// lists of the request's ledger claims. Without claims it returns an
// empty list.
func RequestParties(r *http.Request) []string {
	claims := RequestClaims(r)
	if claims == nil {
		return nil
	}

	actAs := make(map[string]bool)
	for _, p := range asStringList(claims["actAs"]) {
		actAs[p] = true
	}

	var parties []string
	seen := make(map[string]bool)
	for _, p := range asStringList(claims["readAs"]) {
		if actAs[p] && !seen[p] {
			seen[p] = true
			parties = append(parties, p)
		}
	}
	return parties
}

// SingleRequestParty returns the one party identified by the request's
// token, nil-equivalent ("") when there is none, and an error when the
// token names more than one.
func SingleRequestParty(r *http.Request) (string, error) {
	parties := RequestParties(r)
	switch len(parties) {
	case 0:
		return "", nil
	case 1:
		return parties[0], nil
	default:
		return "", fmt.Errorf("only one ledger party expected in token: %v", parties)
	}
}

// asStringList converts a decoded JSON claim value into a string slice.
func asStringList(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
