package integration

import (
	"testing"

	"github.com/ledgerworks/integration-runtime/internal/ledger"
)

func TestNormalizeResponse(t *testing.T) {
	cmd := ledger.CreateCommand("Pkg:M:T", nil)

	tests := []struct {
		name     string
		in       any
		commands int
		wantErr  bool
	}{
		{name: "nil", in: nil, commands: 0},
		{name: "single command", in: cmd, commands: 1},
		{name: "command slice", in: []ledger.Command{cmd, cmd}, commands: 2},
		{name: "response value", in: Response{Commands: []ledger.Command{cmd}}, commands: 1},
		{name: "response pointer", in: &Response{}, commands: 0},
		{name: "nil response pointer", in: (*Response)(nil), commands: 0},
		{name: "webhook value", in: WebhookResponse{Response: Response{Commands: []ledger.Command{cmd}}}, commands: 1},
		{name: "webhook pointer", in: &WebhookResponse{}, commands: 0},
		{name: "unsupported", in: "nope", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := normalizeResponse(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("normalize: %v", err)
			}
			if len(resp.Commands) != tt.commands {
				t.Errorf("commands = %d, want %d", len(resp.Commands), tt.commands)
			}
		})
	}
}
