package sync

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	gosync "sync"

	"github.com/klauern/hubsync/internal/diff"
	"github.com/klauern/hubsync/internal/model"
)

// Action represents what happened to an item during an operation.
type Action string

const (
	// ActionPushed indicates the hub accepted a local item.
	ActionPushed Action = "pushed"

	// ActionPulled indicates a hub item was saved locally.
	ActionPulled Action = "pulled"

	// ActionDeleted indicates an item was deleted on the hub.
	ActionDeleted Action = "deleted"

	// ActionFailed indicates an error occurred processing the item.
	ActionFailed Action = "failed"

	// ActionConflict indicates the hub holds a different version of the item.
	ActionConflict Action = "conflict"

	// ActionLocalOnly indicates a local item the hub no longer lists.
	ActionLocalOnly Action = "local-only"

	// ActionAdded indicates an item only present on the source side of a comparison.
	ActionAdded Action = "added"

	// ActionRemoved indicates an item only present on the target side of a comparison.
	ActionRemoved Action = "removed"

	// ActionChanged indicates an item that differs between both sides of a comparison.
	ActionChanged Action = "changed"
)

// ItemResult represents the outcome for a single item.
type ItemResult struct {
	Kind model.Kind `json:"kind" yaml:"kind"`

	// Item is the local name or the hub id of the item.
	Item string `json:"item" yaml:"item"`

	Action Action `json:"action" yaml:"action"`

	// Path is the file written, for pulls.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// Rev is the hub revision after the operation.
	Rev string `json:"rev,omitempty" yaml:"rev,omitempty"`

	// Message carries the error text of failures and conflicts.
	Message string `json:"message,omitempty" yaml:"message,omitempty"`

	Error error        `json:"-" yaml:"-"`
	Diff  *diff.Result `json:"-" yaml:"-"`
}

// Success returns true if the item was processed without error.
func (ir *ItemResult) Success() bool {
	return ir.Action != ActionFailed && ir.Action != ActionConflict
}

// Result contains the item outcomes of an operation.
type Result struct {
	Items []ItemResult `json:"items" yaml:"items"`
}

// Pushed returns items accepted by the hub.
func (r *Result) Pushed() []ItemResult {
	return r.filterByAction(ActionPushed)
}

// Pulled returns items saved locally.
func (r *Result) Pulled() []ItemResult {
	return r.filterByAction(ActionPulled)
}

// Deleted returns items deleted on the hub.
func (r *Result) Deleted() []ItemResult {
	return r.filterByAction(ActionDeleted)
}

// Failed returns items that failed.
func (r *Result) Failed() []ItemResult {
	return r.filterByAction(ActionFailed)
}

// Conflicts returns items rejected because the hub version differs.
func (r *Result) Conflicts() []ItemResult {
	return r.filterByAction(ActionConflict)
}

// LocalOnly returns local items the hub no longer lists.
func (r *Result) LocalOnly() []ItemResult {
	return r.filterByAction(ActionLocalOnly)
}

// Differences returns added, removed and changed items of a comparison.
func (r *Result) Differences() []ItemResult {
	var out []ItemResult
	for _, ir := range r.Items {
		switch ir.Action {
		case ActionAdded, ActionRemoved, ActionChanged:
			out = append(out, ir)
		}
	}
	return out
}

// HasConflicts returns true if there are conflicts.
func (r *Result) HasConflicts() bool {
	return len(r.Conflicts()) > 0
}

// filterByAction returns items with the given action.
func (r *Result) filterByAction(action Action) []ItemResult {
	var filtered []ItemResult
	for _, ir := range r.Items {
		if ir.Action == action {
			filtered = append(filtered, ir)
		}
	}
	return filtered
}

// Success returns true if no item failed or conflicted.
func (r *Result) Success() bool {
	return len(r.Failed()) == 0 && len(r.Conflicts()) == 0
}

// TotalProcessed returns the number of item outcomes.
func (r *Result) TotalProcessed() int {
	return len(r.Items)
}

// TotalChanged returns the number of items pushed, pulled or deleted.
func (r *Result) TotalChanged() int {
	return len(r.Pushed()) + len(r.Pulled()) + len(r.Deleted())
}

// Summary returns a human-readable summary of the result.
func (r *Result) Summary() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("  Pushed:     %d\n", len(r.Pushed())))
	sb.WriteString(fmt.Sprintf("  Pulled:     %d\n", len(r.Pulled())))
	sb.WriteString(fmt.Sprintf("  Deleted:    %d\n", len(r.Deleted())))
	if n := len(r.LocalOnly()); n > 0 {
		sb.WriteString(fmt.Sprintf("  Local only: %d\n", n))
	}
	if n := len(r.Differences()); n > 0 {
		sb.WriteString(fmt.Sprintf("  Differ:     %d\n", n))
	}
	sb.WriteString(fmt.Sprintf("  Conflicts:  %d\n", len(r.Conflicts())))
	sb.WriteString(fmt.Sprintf("  Failed:     %d\n", len(r.Failed())))

	if r.HasConflicts() {
		sb.WriteString("\nConflicts requiring resolution:\n")
		for _, c := range r.Conflicts() {
			sb.WriteString(fmt.Sprintf("  - %s %s: %s\n", c.Kind, c.Item, c.Message))
		}
	}

	if failed := r.Failed(); len(failed) > 0 {
		sb.WriteString("\nErrors:\n")
		for _, f := range failed {
			sb.WriteString(fmt.Sprintf("  - %s %s: %s\n", f.Kind, f.Item, f.Message))
		}
	}

	return sb.String()
}

// Recorder is an Observer collecting item outcomes into a Result. It is safe
// for concurrent use.
type Recorder struct {
	mu    gosync.Mutex
	items []ItemResult
}

var _ Observer = (*Recorder)(nil)

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Result returns the outcomes recorded so far, sorted by kind and item.
func (rec *Recorder) Result() *Result {
	rec.mu.Lock()
	items := append([]ItemResult(nil), rec.items...)
	rec.mu.Unlock()

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Kind != items[j].Kind {
			return items[i].Kind < items[j].Kind
		}
		return items[i].Item < items[j].Item
	})
	return &Result{Items: items}
}

func (rec *Recorder) add(ir ItemResult) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.items = append(rec.items, ir)
}

func (rec *Recorder) failure(kind model.Kind, item string, err error) {
	ir := ItemResult{Kind: kind, Item: item, Action: ActionFailed, Error: err}
	if err != nil {
		ir.Message = err.Error()
	}
	var conflict *ConflictError
	if errors.As(err, &conflict) {
		ir.Action = ActionConflict
		ir.Diff = &conflict.Diff
	}
	rec.add(ir)
}

func (rec *Recorder) Pushed(kind model.Kind, name string, item model.Artifact) {
	rec.add(ItemResult{Kind: kind, Item: name, Action: ActionPushed, Rev: item.Rev()})
}

func (rec *Recorder) PushError(kind model.Kind, name string, err error) {
	rec.failure(kind, name, err)
}

func (rec *Recorder) Pulled(kind model.Kind, item model.Artifact, path string) {
	rec.add(ItemResult{Kind: kind, Item: item.ID(), Action: ActionPulled, Path: path, Rev: item.Rev()})
}

func (rec *Recorder) PullError(kind model.Kind, id string, err error) {
	rec.failure(kind, id, err)
}

func (rec *Recorder) PostProcess(model.Kind, model.Artifact, string) {}

func (rec *Recorder) LocalOnly(kind model.Kind, name string) {
	rec.add(ItemResult{Kind: kind, Item: name, Action: ActionLocalOnly})
}

func (rec *Recorder) Added(kind model.Kind, id string) {
	rec.add(ItemResult{Kind: kind, Item: id, Action: ActionAdded})
}

func (rec *Recorder) Removed(kind model.Kind, id string) {
	rec.add(ItemResult{Kind: kind, Item: id, Action: ActionRemoved})
}

func (rec *Recorder) Diff(kind model.Kind, id string, result diff.Result) {
	rec.add(ItemResult{Kind: kind, Item: id, Action: ActionChanged, Diff: &result,
		Message: fmt.Sprintf("%d differences", result.Count())})
}

func (rec *Recorder) Deleted(kind model.Kind, id string) {
	rec.add(ItemResult{Kind: kind, Item: id, Action: ActionDeleted})
}
