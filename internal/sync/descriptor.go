package sync

import (
	"errors"
	"net/http"
	"strings"

	"github.com/klauern/hubsync/internal/diff"
	"github.com/klauern/hubsync/internal/model"
	"github.com/klauern/hubsync/internal/remote"
)

// DefaultIgnoreKeys are fields the hub rewrites on every save. Differences in
// them never make a push conflict.
var DefaultIgnoreKeys = diff.KeysOf(
	model.FieldRev,
	model.FieldLastModified,
	"lastModifiedBy",
	"created",
	"createdBy",
	model.FieldLinks,
)

// Descriptor captures what differs between artifact kinds.
type Descriptor struct {
	Kind model.Kind

	// DraftReady kinds carry a draft or ready status and keep separate watermarks.
	DraftReady bool
	// PathBased kinds are stored under their hierarchical path.
	PathBased bool
	// Capabilities are passed to the remote store.
	Capabilities remote.Capabilities

	// IgnoreKeys extend DefaultIgnoreKeys when deciding if a conflict is real.
	IgnoreKeys diff.Keys
	// Retryable reports push and delete failures worth another round.
	// Nil uses remote.IsTransient.
	Retryable func(error) bool
	// Immutable kinds cannot be deleted on the hub.
	Immutable bool

	// CanPush and CanPull add kind specific shape checks.
	CanPush func(model.Artifact) error
	CanPull func(model.Artifact) error
	// PrepareForPush adjusts a clone of the local item before it is sent.
	PrepareForPush func(model.Artifact) model.Artifact
}

// ignoreKeys returns the full conflict ignore tree.
func (d Descriptor) ignoreKeys() diff.Keys {
	return DefaultIgnoreKeys.Merge(d.IgnoreKeys)
}

func (d Descriptor) retryable(err error) bool {
	if d.Retryable != nil {
		return d.Retryable(err)
	}
	return remote.IsTransient(err)
}

// DefaultDescriptors returns the descriptor of every known kind.
func DefaultDescriptors() map[model.Kind]Descriptor {
	return map[model.Kind]Descriptor{
		model.Pages: {
			Kind:       model.Pages,
			DraftReady: true,
			PathBased:  true,
			Retryable:  referenceNotReady,
		},
		model.Sites: {
			Kind:       model.Sites,
			DraftReady: true,
			IgnoreKeys: diff.KeysOf("pages"),
		},
		model.Content: {
			Kind:         model.Content,
			DraftReady:   true,
			Capabilities: remote.Capabilities{Tags: true},
			IgnoreKeys:   diff.Keys{"thumbnail": diff.KeysOf("url")},
			Retryable:    referenceNotReady,
		},
		model.Assets: {
			Kind:         model.Assets,
			Capabilities: remote.Capabilities{ItemByPath: true, Tags: true},
			IgnoreKeys:   diff.KeysOf("url", "resourceUrl"),
		},
		model.Types: {
			Kind:      model.Types,
			Retryable: referenceNotReady,
		},
		model.Libraries: {
			Kind:         model.Libraries,
			Capabilities: remote.Capabilities{ForceOverride: true},
		},
		model.Renditions: {
			Kind:         model.Renditions,
			Capabilities: remote.Capabilities{CreateOnly: true},
			Immutable:    true,
		},
	}
}

// DescriptorFor returns the default descriptor of kind.
func DescriptorFor(kind model.Kind) (Descriptor, bool) {
	d, ok := DefaultDescriptors()[kind]
	return d, ok
}

// referenceNotReady treats validation failures about missing parents or
// references as retryable: the referenced item may be created later in the
// same batch.
func referenceNotReady(err error) bool {
	if remote.IsTransient(err) {
		return true
	}
	var e *remote.Error
	if !errors.As(err, &e) {
		return false
	}
	if e.StatusCode != http.StatusBadRequest && e.StatusCode != http.StatusUnprocessableEntity {
		return false
	}
	msg := strings.ToLower(e.Message)
	return strings.Contains(msg, "reference") || strings.Contains(msg, "parent")
}
