package ledger

import (
	"encoding/json"
	"fmt"
	"time"
)

// Reserved keys of a tenant partition; every other key is an artifact id.
const (
	keyLastPull      = "lastPullTimestamp"
	keyLastPullDraft = "lastPullTimestampDraft"
	keyLastPullReady = "lastPullTimestampReady"
	keyLastPush      = "lastPushTimestamp"
	keyLastPushDraft = "lastPushTimestampDraft"
	keyLastPushReady = "lastPushTimestampReady"
	keyBaseURLs      = "baseUrls"
)

// Entry is what the ledger remembers about one artifact.
type Entry struct {
	ID           string `json:"id"`
	Rev          string `json:"rev,omitempty"`
	LastModified string `json:"lastModified,omitempty"`
	MD5          string `json:"md5,omitempty"`
	// Path is relative to the working directory.
	Path string `json:"path,omitempty"`
	// LocalLastModified is the file mtime in Unix milliseconds.
	LocalLastModified int64 `json:"localLastModified,omitempty"`
	// CheckedAt is when MD5 was last computed, in Unix milliseconds.
	CheckedAt int64 `json:"checkedAt,omitempty"`
}

// racyWindow is the span after a check in which a later write can leave the
// file mtime unchanged.
const racyWindow = 2 * time.Second

// racy reports whether an unchanged mtime cannot prove the content unchanged.
func (e *Entry) racy() bool {
	return e.CheckedAt-e.LocalLastModified < racyWindow.Milliseconds()
}

// watermarks holds a generic timestamp plus draft and ready variants.
type watermarks struct {
	Any, Draft, Ready time.Time
}

type tenant struct {
	Entries  map[string]*Entry
	Pull     watermarks
	Push     watermarks
	BaseURLs []string
}

func newTenant() *tenant {
	return &tenant{Entries: make(map[string]*Entry)}
}

func (t *tenant) hasURL(url string) bool {
	for _, u := range t.BaseURLs {
		if u == url {
			return true
		}
	}
	return false
}

// byPath returns the entry recorded for a relative path.
func (t *tenant) byPath(p string) *Entry {
	for _, e := range t.Entries {
		if e.Path == p {
			return e
		}
	}
	return nil
}

// purgePath deletes every entry at path p except the one with id keep.
func (t *tenant) purgePath(p, keep string) {
	if p == "" {
		return
	}
	for id, e := range t.Entries {
		if id != keep && e.Path == p {
			delete(t.Entries, id)
		}
	}
}

// MarshalJSON flattens entries, watermarks and base URLs into one object.
func (t *tenant) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(t.Entries)+7)
	for id, e := range t.Entries {
		out[id] = e
	}
	putTime(out, keyLastPull, t.Pull.Any)
	putTime(out, keyLastPullDraft, t.Pull.Draft)
	putTime(out, keyLastPullReady, t.Pull.Ready)
	putTime(out, keyLastPush, t.Push.Any)
	putTime(out, keyLastPushDraft, t.Push.Draft)
	putTime(out, keyLastPushReady, t.Push.Ready)
	if len(t.BaseURLs) > 0 {
		out[keyBaseURLs] = t.BaseURLs
	}
	return json.Marshal(out)
}

// UnmarshalJSON reverses MarshalJSON. Malformed entries are skipped.
func (t *tenant) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*t = *newTenant()
	for key, val := range raw {
		switch key {
		case keyLastPull:
			t.Pull.Any = parseTime(val)
		case keyLastPullDraft:
			t.Pull.Draft = parseTime(val)
		case keyLastPullReady:
			t.Pull.Ready = parseTime(val)
		case keyLastPush:
			t.Push.Any = parseTime(val)
		case keyLastPushDraft:
			t.Push.Draft = parseTime(val)
		case keyLastPushReady:
			t.Push.Ready = parseTime(val)
		case keyBaseURLs:
			if err := json.Unmarshal(val, &t.BaseURLs); err != nil {
				return fmt.Errorf("decoding %s: %w", keyBaseURLs, err)
			}
		default:
			var e Entry
			if err := json.Unmarshal(val, &e); err != nil {
				continue
			}
			if e.ID == "" {
				e.ID = key
			}
			t.Entries[key] = &e
		}
	}
	return nil
}

func putTime(out map[string]any, key string, v time.Time) {
	if !v.IsZero() {
		out[key] = v.UTC().Format(time.RFC3339Nano)
	}
}

func parseTime(raw json.RawMessage) time.Time {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}
	}
	v, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return v
}
