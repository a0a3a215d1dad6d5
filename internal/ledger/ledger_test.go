package ledger

import "testing"

func TestMatch_Matches(t *testing.T) {
	data := ContractData{"owner": "alice", "amount": 5}

	tests := []struct {
		name  string
		match Match
		want  bool
	}{
		{"nil match accepts all", nil, true},
		{"empty match accepts all", Match{}, true},
		{"single field equal", Match{"owner": "alice"}, true},
		{"single field differs", Match{"owner": "bob"}, false},
		{"missing field", Match{"issuer": "bank"}, false},
		{"all fields equal", Match{"owner": "alice", "amount": 5}, true},
		{"one of two differs", Match{"owner": "alice", "amount": 6}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.match.Matches(data); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestQualifyTemplate(t *testing.T) {
	model := &ModelInfo{MainPackageID: "deadbeef"}

	tests := []struct {
		name     string
		model    *ModelInfo
		template string
		want     string
		wantErr  bool
	}{
		{"wildcard passes through", model, "*", "*", false},
		{"qualified passes through", model, "cafe:Main:Asset", "cafe:Main:Asset", false},
		{"unqualified takes model package", model, "Main:Asset", "deadbeef:Main:Asset", false},
		{"wildcard package takes model package", model, "*:Main:Asset", "deadbeef:Main:Asset", false},
		{"unqualified without model", nil, "Main:Asset", "", true},
		{"wildcard package without model", nil, "*:Main:Asset", "", true},
		{"malformed identifier", model, "Asset", "", true},
		{"too many segments", model, "a:b:c:d", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := QualifyTemplate(tt.model, tt.template)
			if (err != nil) != tt.wantErr {
				t.Fatalf("QualifyTemplate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("QualifyTemplate() = %q, want %q", got, tt.want)
			}
		})
	}
}
