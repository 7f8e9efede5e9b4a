package model

import "testing"

func TestParseKind(t *testing.T) {
	tests := []struct {
		input   string
		want    Kind
		wantErr bool
	}{
		{"pages", Pages, false},
		{"Page", Pages, false},
		{" sites ", Sites, false},
		{"items", Content, false},
		{"asset", Assets, false},
		{"library", Libraries, false},
		{"widgets", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseKind(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseKind(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseKind(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestKind_KeyedByPath(t *testing.T) {
	if !Assets.KeyedByPath() {
		t.Error("assets should be keyed by path")
	}
	if Pages.KeyedByPath() || Sites.KeyedByPath() {
		t.Error("pages and sites are keyed by id")
	}
}

func TestStatusFilter(t *testing.T) {
	if !StatusAll.Matches(StatusDraft) || !StatusAll.Matches(StatusReady) {
		t.Error("empty filter should match every status")
	}
	if StatusDraftOnly.Matches(StatusReady) {
		t.Error("draft filter matched ready")
	}

	f, err := ParseStatusFilter("READY")
	if err != nil || f != StatusReadyOnly {
		t.Errorf("ParseStatusFilter(READY) = %q, %v", f, err)
	}
	if _, err := ParseStatusFilter("published"); err == nil {
		t.Error("expected error for unknown filter")
	}
}

func TestFlags_Has(t *testing.T) {
	f := FlagNew | FlagModified
	if !f.Has(FlagNew) || !f.Has(FlagModified) {
		t.Error("combined flags should contain both bits")
	}
	if FlagNew.Has(FlagModified) {
		t.Error("FlagNew should not contain FlagModified")
	}
}
