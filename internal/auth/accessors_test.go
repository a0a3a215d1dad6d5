package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func requestWithClaims(claims Claims) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	return req.WithContext(withLedgerClaims(req.Context(), claims))
}

func TestRequestClaimsWithoutMiddleware(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if claims := RequestClaims(req); claims != nil {
		t.Fatalf("claims = %v, want nil", claims)
	}
	if parties := RequestParties(req); parties != nil {
		t.Fatalf("parties = %v, want nil", parties)
	}
}

func TestRequestPartiesIntersectsReadAndAct(t *testing.T) {
	req := requestWithClaims(Claims{
		"readAs": []any{"alice", "bob", "carol", "alice"},
		"actAs":  []any{"bob", "alice"},
	})

	parties := RequestParties(req)
	if len(parties) != 2 {
		t.Fatalf("parties = %v, want two", parties)
	}
	if parties[0] != "alice" || parties[1] != "bob" {
		t.Errorf("parties = %v, want [alice bob]", parties)
	}
}

func TestSingleRequestParty(t *testing.T) {
	one := requestWithClaims(Claims{
		"readAs": []any{"alice"},
		"actAs":  []any{"alice"},
	})
	party, err := SingleRequestParty(one)
	if err != nil {
		t.Fatalf("single party: %v", err)
	}
	if party != "alice" {
		t.Errorf("party = %q, want alice", party)
	}

	none := requestWithClaims(Claims{
		"readAs": []any{"alice"},
		"actAs":  []any{"bob"},
	})
	if party, err := SingleRequestParty(none); err != nil || party != "" {
		t.Errorf("empty intersection: party=%q err=%v", party, err)
	}

	many := requestWithClaims(Claims{
		"readAs": []any{"alice", "bob"},
		"actAs":  []any{"alice", "bob"},
	})
	if _, err := SingleRequestParty(many); err == nil {
		t.Error("expected error for multiple parties")
	}
}

func TestRouteLevelsImmutableOnceSet(t *testing.T) {
	levels := NewRouteLevels()
	levels.Set("route", IntegrationParty)
	levels.Set("route", Public)

	if got := levels.Get("route"); got != IntegrationParty {
		t.Errorf("level = %s, want INTEGRATION_PARTY", got)
	}
	if got := levels.Get("unregistered"); got != Public {
		t.Errorf("default level = %s, want PUBLIC", got)
	}
}
