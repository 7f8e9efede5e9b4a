package model

import (
	"encoding/json"
	"time"
)

// Well-known artifact fields the sync engine depends on.
const (
	FieldID               = "id"
	FieldRev              = "rev"
	FieldName             = "name"
	FieldPath             = "path"
	FieldHierarchicalPath = "hierarchicalPath"
	FieldLastModified     = "lastModified"
	FieldStatus           = "status"
	FieldContextRoot      = "contextRoot"
	FieldLinks            = "links"
)

// Artifact is an opaque JSON document exchanged with the content hub.
// Only the owning store mutates an artifact; everything else clones first.
type Artifact map[string]any

// ParseArtifact decodes a JSON object into an Artifact.
func ParseArtifact(data []byte) (Artifact, error) {
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, err
	}
	return a, nil
}

// ID returns the stable identity of the artifact.
func (a Artifact) ID() string {
	return a.String(FieldID)
}

// Rev returns the remote revision, empty for items never pushed.
func (a Artifact) Rev() string {
	return a.String(FieldRev)
}

// Name returns the display name.
func (a Artifact) Name() string {
	return a.String(FieldName)
}

// Path returns the location-derived identity, preferring "path" over "hierarchicalPath".
func (a Artifact) Path() string {
	if p := a.String(FieldPath); p != "" {
		return p
	}
	return a.String(FieldHierarchicalPath)
}

// LastModified returns the raw lastModified value.
func (a Artifact) LastModified() string {
	return a.String(FieldLastModified)
}

// LastModifiedTime parses lastModified as RFC 3339. The zero time is returned when absent.
func (a Artifact) LastModifiedTime() time.Time {
	t, err := time.Parse(time.RFC3339Nano, a.LastModified())
	if err != nil {
		return time.Time{}
	}
	return t
}

// Status returns the lifecycle status of the artifact.
func (a Artifact) Status() Status {
	return Status(a.String(FieldStatus))
}

// String returns a top-level string field, or "" when absent or not a string.
func (a Artifact) String(key string) string {
	if a == nil {
		return ""
	}
	if v, ok := a[key].(string); ok {
		return v
	}
	return ""
}

// Clone returns a deep copy of the artifact.
func (a Artifact) Clone() Artifact {
	if a == nil {
		return nil
	}
	return cloneValue(map[string]any(a)).(map[string]any)
}

// Without returns a copy of the artifact with the given top-level keys removed.
func (a Artifact) Without(keys ...string) Artifact {
	c := a.Clone()
	for _, k := range keys {
		delete(c, k)
	}
	return c
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[k] = cloneValue(val)
		}
		return m
	case Artifact:
		return cloneValue(map[string]any(t))
	case []any:
		s := make([]any, len(t))
		for i, val := range t {
			s[i] = cloneValue(val)
		}
		return s
	default:
		return v
	}
}
