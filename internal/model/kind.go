// Package model defines the artifact types synchronized between a local working
// directory and a remote content hub.
package model

import (
	"fmt"
	"strings"
)

// Kind identifies an artifact type on the content hub.
type Kind string

const (
	Pages      Kind = "pages"
	Sites      Kind = "sites"
	Content    Kind = "content"
	Assets     Kind = "assets"
	Types      Kind = "types"
	Libraries  Kind = "libraries"
	Renditions Kind = "renditions"
)

// AllKinds returns every supported artifact kind.
func AllKinds() []Kind {
	return []Kind{Sites, Pages, Content, Assets, Types, Libraries, Renditions}
}

// IsValid returns true if the kind is recognized.
func (k Kind) IsValid() bool {
	for _, known := range AllKinds() {
		if k == known {
			return true
		}
	}
	return false
}

// KeyedByPath reports whether manifest entries for this kind are keyed by path
// instead of id.
func (k Kind) KeyedByPath() bool {
	return k == Assets
}

// Dir returns the sub directory holding this kind inside a workspace.
func (k Kind) Dir() string {
	return string(k)
}

// ParseKind parses a kind name, accepting singular forms.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "page", "pages":
		return Pages, nil
	case "site", "sites":
		return Sites, nil
	case "content", "contentitem", "contentitems", "items":
		return Content, nil
	case "asset", "assets":
		return Assets, nil
	case "type", "types":
		return Types, nil
	case "library", "libraries":
		return Libraries, nil
	case "rendition", "renditions":
		return Renditions, nil
	default:
		return "", fmt.Errorf("unknown artifact kind: %q", s)
	}
}

// Status is the lifecycle state of an artifact with draft/ready duality.
type Status string

const (
	StatusDraft Status = "draft"
	StatusReady Status = "ready"
)

// StatusFilter scopes list and pull operations. The zero value selects both states.
type StatusFilter string

const (
	StatusAll       StatusFilter = ""
	StatusDraftOnly StatusFilter = StatusFilter(StatusDraft)
	StatusReadyOnly StatusFilter = StatusFilter(StatusReady)
)

// Matches reports whether an artifact with status s passes the filter.
func (f StatusFilter) Matches(s Status) bool {
	if f == StatusAll {
		return true
	}
	return Status(f) == s
}

// ParseStatusFilter parses "draft", "ready" or "" / "all".
func ParseStatusFilter(s string) (StatusFilter, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return StatusAll, nil
	case "draft":
		return StatusDraftOnly, nil
	case "ready":
		return StatusReadyOnly, nil
	default:
		return "", fmt.Errorf("unknown status filter: %q", s)
	}
}

// Flags selects which change classes a modification check reports.
type Flags uint8

const (
	FlagNew Flags = 1 << iota
	FlagModified
)

// Has reports whether all bits of other are set.
func (f Flags) Has(other Flags) bool {
	return f&other == other
}
