// Package diff compares two JSON artifact graphs structurally.
//
// The comparison is a keyed-union walk: every key present in either object is
// visited once, nested objects and arrays are descended into, and scalar leaves
// are compared with typed equality. An ignore tree prunes branches that are
// expected to differ, such as server-stamped audit fields.
package diff

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Keys is a tree of field names to ignore. A nil value ignores the field and
// everything beneath it; a non-nil value descends into the field and applies
// the nested tree there.
type Keys map[string]Keys

// Merge returns a new tree holding the union of k and other. When both trees
// name the same key, a full ignore wins over a nested one.
func (k Keys) Merge(other Keys) Keys {
	out := make(Keys, len(k)+len(other))
	for name, sub := range k {
		out[name] = sub
	}
	for name, sub := range other {
		existing, ok := out[name]
		switch {
		case !ok:
			out[name] = sub
		case existing == nil || sub == nil:
			out[name] = nil
		default:
			out[name] = existing.Merge(sub)
		}
	}
	return out
}

// KeysOf builds a flat ignore tree from field names.
func KeysOf(names ...string) Keys {
	k := make(Keys, len(names))
	for _, n := range names {
		k[n] = nil
	}
	return k
}

// Change describes one difference between the two graphs.
type Change struct {
	// Node is the path of keys from the root to the differing value.
	Node []string `json:"node"`
	// Value1 is the value in the first graph (nil when added).
	Value1 any `json:"value1"`
	// Value2 is the value in the second graph (nil when removed).
	Value2 any `json:"value2"`
}

// Path returns the node as a dotted path.
func (c Change) Path() string {
	return strings.Join(c.Node, ".")
}

// Values returns both values formatted for display. Objects are rendered as
// indented JSON.
func (c Change) Values() (string, string) {
	return display(c.Value1), display(c.Value2)
}

// TextDiff renders a character-level patch between two string values. For
// non-string values it falls back to a two-line before/after listing.
func (c Change) TextDiff() string {
	s1, ok1 := c.Value1.(string)
	s2, ok2 := c.Value2.(string)
	if !ok1 || !ok2 {
		v1, v2 := c.Values()
		return fmt.Sprintf("- %s\n+ %s", v1, v2)
	}

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(s1, s2, false)
	diffs = dmp.DiffCleanupSemantic(diffs)
	return dmp.PatchToText(dmp.PatchMake(s1, diffs))
}

// String returns a one-line summary of the change.
func (c Change) String() string {
	v1, v2 := c.Values()
	return fmt.Sprintf("%s: %s -> %s", c.Path(), v1, v2)
}

// Result holds the differences between two graphs, relative to the first one.
type Result struct {
	Added   []Change `json:"added"`
	Removed []Change `json:"removed"`
	Changed []Change `json:"changed"`
}

// Empty returns true when the graphs are structurally equal.
func (r Result) Empty() bool {
	return len(r.Added) == 0 && len(r.Removed) == 0 && len(r.Changed) == 0
}

// Count returns the total number of differences.
func (r Result) Count() int {
	return len(r.Added) + len(r.Removed) + len(r.Changed)
}

// Compare walks obj1 and obj2 and reports what obj2 adds, removes and changes
// relative to obj1. Keys in ignore are skipped unless their entry is itself a
// nested tree, in which case the walk descends with that tree.
func Compare(obj1, obj2 any, ignore Keys) Result {
	r := Result{
		Added:   []Change{},
		Removed: []Change{},
		Changed: []Change{},
	}
	walk(normalize(obj1), normalize(obj2), ignore, nil, &r)
	return r
}

// Equal reports whether obj1 and obj2 differ only in ignored keys.
func Equal(obj1, obj2 any, ignore Keys) bool {
	return Compare(obj1, obj2, ignore).Empty()
}

func walk(v1, v2 any, ignore Keys, node []string, r *Result) {
	m1, ok1 := children(v1)
	m2, ok2 := children(v2)

	if !ok1 || !ok2 {
		if !scalarEqual(v1, v2) {
			r.Changed = append(r.Changed, Change{Node: copyNode(node), Value1: v1, Value2: v2})
		}
		return
	}

	for _, key := range unionKeys(m1, m2) {
		sub, listed := ignore[key]
		if listed && sub == nil {
			continue
		}

		child := append(copyNode(node), key)
		c1, in1 := m1[key]
		c2, in2 := m2[key]

		switch {
		case !in1:
			r.Added = append(r.Added, Change{Node: child, Value2: c2})
		case !in2:
			r.Removed = append(r.Removed, Change{Node: child, Value1: c1})
		default:
			walk(c1, c2, sub, child, r)
		}
	}
}

// children exposes objects and arrays as keyed maps. Arrays are keyed by index.
func children(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case []any:
		m := make(map[string]any, len(t))
		for i, item := range t {
			m[strconv.Itoa(i)] = item
		}
		return m, true
	default:
		return nil, false
	}
}

// unionKeys returns the keys of m1 in sorted order followed by the keys only
// present in m2, also sorted.
func unionKeys(m1, m2 map[string]any) []string {
	keys := make([]string, 0, len(m1)+len(m2))
	for k := range m1 {
		keys = append(keys, k)
	}
	sortKeys(keys)

	extra := make([]string, 0)
	for k := range m2 {
		if _, ok := m1[k]; !ok {
			extra = append(extra, k)
		}
	}
	sortKeys(extra)
	return append(keys, extra...)
}

// sortKeys orders numeric keys numerically so array indices stay in order.
func sortKeys(keys []string) {
	sort.Slice(keys, func(i, j int) bool {
		a, errA := strconv.Atoi(keys[i])
		b, errB := strconv.Atoi(keys[j])
		if errA == nil && errB == nil {
			return a < b
		}
		return keys[i] < keys[j]
	})
}

func scalarEqual(v1, v2 any) bool {
	_, obj1 := children(v1)
	_, obj2 := children(v2)
	if obj1 || obj2 {
		return false
	}
	return v1 == v2
}

// normalize converts typed Go values (structs, named maps, ints) into the
// generic shapes produced by encoding/json so graphs from different sources
// compare consistently.
func normalize(v any) any {
	switch t := v.(type) {
	case nil, string, bool, float64:
		return t
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case int32:
		return float64(t)
	case float32:
		return float64(t)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return v
	}
	return generic
}

func display(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return t
	case map[string]any, []any:
		data, err := json.MarshalIndent(t, "", "  ")
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(data)
	default:
		return fmt.Sprint(t)
	}
}

func copyNode(node []string) []string {
	out := make([]string, len(node), len(node)+1)
	copy(out, node)
	return out
}
