package sync

import (
	"github.com/klauern/hubsync/internal/diff"
	"github.com/klauern/hubsync/internal/model"
)

// Observer receives per-item events. Batch operations call it from several
// goroutines at once.
type Observer interface {
	Pushed(kind model.Kind, name string, item model.Artifact)
	PushError(kind model.Kind, name string, err error)
	Pulled(kind model.Kind, item model.Artifact, path string)
	PullError(kind model.Kind, id string, err error)
	// PostProcess runs after a pulled item was saved and recorded.
	PostProcess(kind model.Kind, item model.Artifact, path string)
	// LocalOnly reports a local item no longer present on the hub.
	LocalOnly(kind model.Kind, name string)
	Added(kind model.Kind, id string)
	Removed(kind model.Kind, id string)
	Diff(kind model.Kind, id string, result diff.Result)
	Deleted(kind model.Kind, id string)
}

// ObserverFuncs adapts optional functions to an Observer. Nil fields ignore
// their event.
type ObserverFuncs struct {
	OnPushed      func(kind model.Kind, name string, item model.Artifact)
	OnPushError   func(kind model.Kind, name string, err error)
	OnPulled      func(kind model.Kind, item model.Artifact, path string)
	OnPullError   func(kind model.Kind, id string, err error)
	OnPostProcess func(kind model.Kind, item model.Artifact, path string)
	OnLocalOnly   func(kind model.Kind, name string)
	OnAdded       func(kind model.Kind, id string)
	OnRemoved     func(kind model.Kind, id string)
	OnDiff        func(kind model.Kind, id string, result diff.Result)
	OnDeleted     func(kind model.Kind, id string)
}

// Nop ignores every event.
var Nop Observer = ObserverFuncs{}

func (o ObserverFuncs) Pushed(kind model.Kind, name string, item model.Artifact) {
	if o.OnPushed != nil {
		o.OnPushed(kind, name, item)
	}
}

func (o ObserverFuncs) PushError(kind model.Kind, name string, err error) {
	if o.OnPushError != nil {
		o.OnPushError(kind, name, err)
	}
}

func (o ObserverFuncs) Pulled(kind model.Kind, item model.Artifact, path string) {
	if o.OnPulled != nil {
		o.OnPulled(kind, item, path)
	}
}

func (o ObserverFuncs) PullError(kind model.Kind, id string, err error) {
	if o.OnPullError != nil {
		o.OnPullError(kind, id, err)
	}
}

func (o ObserverFuncs) PostProcess(kind model.Kind, item model.Artifact, path string) {
	if o.OnPostProcess != nil {
		o.OnPostProcess(kind, item, path)
	}
}

func (o ObserverFuncs) LocalOnly(kind model.Kind, name string) {
	if o.OnLocalOnly != nil {
		o.OnLocalOnly(kind, name)
	}
}

func (o ObserverFuncs) Added(kind model.Kind, id string) {
	if o.OnAdded != nil {
		o.OnAdded(kind, id)
	}
}

func (o ObserverFuncs) Removed(kind model.Kind, id string) {
	if o.OnRemoved != nil {
		o.OnRemoved(kind, id)
	}
}

func (o ObserverFuncs) Diff(kind model.Kind, id string, result diff.Result) {
	if o.OnDiff != nil {
		o.OnDiff(kind, id, result)
	}
}

func (o ObserverFuncs) Deleted(kind model.Kind, id string) {
	if o.OnDeleted != nil {
		o.OnDeleted(kind, id)
	}
}

// Multi fans events out to several observers in order.
func Multi(observers ...Observer) Observer {
	return multi(observers)
}

type multi []Observer

func (m multi) Pushed(kind model.Kind, name string, item model.Artifact) {
	for _, o := range m {
		o.Pushed(kind, name, item)
	}
}

func (m multi) PushError(kind model.Kind, name string, err error) {
	for _, o := range m {
		o.PushError(kind, name, err)
	}
}

func (m multi) Pulled(kind model.Kind, item model.Artifact, path string) {
	for _, o := range m {
		o.Pulled(kind, item, path)
	}
}

func (m multi) PullError(kind model.Kind, id string, err error) {
	for _, o := range m {
		o.PullError(kind, id, err)
	}
}

func (m multi) PostProcess(kind model.Kind, item model.Artifact, path string) {
	for _, o := range m {
		o.PostProcess(kind, item, path)
	}
}

func (m multi) LocalOnly(kind model.Kind, name string) {
	for _, o := range m {
		o.LocalOnly(kind, name)
	}
}

func (m multi) Added(kind model.Kind, id string) {
	for _, o := range m {
		o.Added(kind, id)
	}
}

func (m multi) Removed(kind model.Kind, id string) {
	for _, o := range m {
		o.Removed(kind, id)
	}
}

func (m multi) Diff(kind model.Kind, id string, result diff.Result) {
	for _, o := range m {
		o.Diff(kind, id, result)
	}
}

func (m multi) Deleted(kind model.Kind, id string) {
	for _, o := range m {
		o.Deleted(kind, id)
	}
}
