package ui

import (
	"errors"
	"strings"
	"testing"

	"github.com/klauern/hubsync/internal/model"
	"github.com/klauern/hubsync/internal/sync"
)

func TestStatusFunctions(t *testing.T) {
	// Disable colors for consistent test output
	DisableColors()
	defer EnableColors()

	tests := []struct {
		name     string
		fn       func(string) string
		input    string
		contains string
	}{
		{"StatusSuccess empty", StatusSuccess, "", SymbolSuccess},
		{"StatusSuccess with msg", StatusSuccess, "done", SymbolSuccess + " done"},
		{"StatusError empty", StatusError, "", SymbolError},
		{"StatusError with msg", StatusError, "failed", SymbolError + " failed"},
		{"StatusWarning with msg", StatusWarning, "caution", SymbolWarning + " caution"},
		{"StatusSkipped with msg", StatusSkipped, "skip", SymbolSkipped + " skip"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.fn(tt.input)
			if got != tt.contains {
				t.Errorf("got %q, want %q", got, tt.contains)
			}
		})
	}
}

func TestActionStatus(t *testing.T) {
	DisableColors()
	defer EnableColors()

	tests := []struct {
		name string
		in   sync.ItemResult
		want string
	}{
		{"pushed", sync.ItemResult{Kind: model.Content, Item: "a", Action: sync.ActionPushed}, "✓ pushed content/a"},
		{"failed with message", sync.ItemResult{Kind: model.Pages, Item: "docs/x", Action: sync.ActionFailed, Message: "boom", Error: errors.New("boom")}, "✗ failed pages/docs/x: boom"},
		{"conflict", sync.ItemResult{Kind: model.Types, Item: "t", Action: sync.ActionConflict, Message: "differs"}, "⚠ conflict types/t: differs"},
		{"added", sync.ItemResult{Kind: model.Types, Item: "t", Action: sync.ActionAdded}, "+ added types/t"},
		{"local only", sync.ItemResult{Kind: model.Sites, Item: "s", Action: sync.ActionLocalOnly}, "- local-only sites/s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ActionStatus(tt.in); got != tt.want {
				t.Errorf("ActionStatus() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestColorToggle(t *testing.T) {
	initial := IsColorEnabled()

	DisableColors()
	if IsColorEnabled() {
		t.Error("expected colors to be disabled")
	}

	SetColorMode("always")
	if !IsColorEnabled() {
		t.Error("expected colors to be enabled")
	}

	SetColorMode("never")
	if IsColorEnabled() {
		t.Error("expected colors to be disabled")
	}

	SetColorMode("auto")
	if IsColorEnabled() {
		t.Error("auto should leave the current setting alone")
	}

	if initial {
		EnableColors()
	}
}

func TestColorFunctions(t *testing.T) {
	DisableColors()
	defer EnableColors()

	for name, fn := range map[string]func(...any) string{
		"Success": Success, "Error": Error, "Warning": Warning,
		"Info": Info, "Bold": Bold, "Dim": Dim, "Header": Header,
	} {
		if got := fn("test"); got != "test" {
			t.Errorf("%s() = %q, want %q", name, got, "test")
		}
	}
}

func TestTable(t *testing.T) {
	out := Table(
		[]string{"kind", "last modified"},
		[][]string{{"content", "2026-01-01"}, {"pages", strings.Repeat("x", 80)}},
		10,
	)

	for _, want := range []string{"Kind", "Last Modified", "content", "xxxxxxxxx…"} {
		if !strings.Contains(out, want) {
			t.Errorf("Table() missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, strings.Repeat("x", 11)) {
		t.Error("long cells should be truncated")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in    string
		width int
		want  string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"much too long", 5, "much…"},
		{"日本語テキスト", 6, "日本…"},
		{"anything", 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := Truncate(tt.in, tt.width); got != tt.want {
				t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.width, got, tt.want)
			}
		})
	}
}

func TestTitle(t *testing.T) {
	if got := Title("local only"); got != "Local Only" {
		t.Errorf("Title() = %q", got)
	}
}
