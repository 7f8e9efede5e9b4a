package ledger

import (
	"crypto/md5" // #nosec G501 - content fingerprint, not a security boundary
	"encoding/hex"
	"path"
	"sort"
	"time"

	"github.com/go-git/go-billy/v5/util"

	"github.com/klauern/hubsync/internal/logging"
	"github.com/klauern/hubsync/internal/model"
)

// Ledger is one tenant's view of a Document. File paths are relative to the
// working directory the document was opened on.
type Ledger struct {
	doc    *Document
	tenant string
}

// TenantKey returns the key this ledger is stored under.
func (l *Ledger) TenantKey() string {
	return l.tenant
}

// Document returns the shared document backing this ledger.
func (l *Ledger) Document() *Document {
	return l.doc
}

// IsLocalModified classifies a local file. FlagNew reports files without a
// complete entry; FlagModified reports files whose content hash changed. A
// changed mtime with an unchanged hash is not a modification; the stored mtime
// is refreshed instead. Files whose mtime is too close to the last check are
// hashed even when the mtime matches.
func (l *Ledger) IsLocalModified(flags model.Flags, filePath string) bool {
	rel := clean(filePath)
	info, err := l.doc.fs.Stat(rel)
	if err != nil || info.IsDir() {
		return false
	}

	l.doc.mu.Lock()
	var snapshot Entry
	e := l.t().byPath(rel)
	if e != nil {
		snapshot = *e
	}
	l.doc.mu.Unlock()

	if e == nil || snapshot.MD5 == "" || snapshot.LocalLastModified == 0 {
		return flags.Has(model.FlagNew)
	}
	if !flags.Has(model.FlagModified) {
		return false
	}

	mtime := info.ModTime().UnixMilli()
	if mtime == snapshot.LocalLastModified && !snapshot.racy() {
		return false
	}

	sum, err := l.hash(rel)
	if err != nil {
		l.doc.logger.Debug("failed to hash local file", logging.Path(rel), logging.Err(err))
		return false
	}
	if sum != snapshot.MD5 {
		return true
	}

	now := time.Now().UnixMilli()
	l.doc.mu.Lock()
	if cur := l.t().Entries[snapshot.ID]; cur != nil && cur.Path == rel && cur.MD5 == sum {
		changed := cur.LocalLastModified != mtime
		cur.LocalLastModified = mtime
		if now-mtime >= racyWindow.Milliseconds() {
			cur.CheckedAt = now
			changed = true
		}
		if changed {
			l.doc.markDirtyLocked()
		}
	}
	l.doc.mu.Unlock()
	return false
}

// IsRemoteModified classifies a remote item. FlagModified reports a recorded
// entry whose rev differs from the item's; FlagNew reports items with nothing
// recorded at filePath.
func (l *Ledger) IsRemoteModified(flags model.Flags, item model.Artifact, filePath string) bool {
	rel := clean(filePath)

	l.doc.mu.Lock()
	defer l.doc.mu.Unlock()

	t := l.t()
	if flags.Has(model.FlagModified) {
		if e := t.Entries[item.ID()]; e != nil && e.Rev != item.Rev() {
			return true
		}
	}
	if flags.Has(model.FlagNew) && t.byPath(rel) == nil {
		return true
	}
	return false
}

// Update records item as synchronized with the file at filePath. Entries for
// other ids at the same path are purged. Items without an id and unreadable
// files are ignored.
func (l *Ledger) Update(filePath string, item model.Artifact) {
	id := item.ID()
	if id == "" {
		return
	}
	rel := clean(filePath)

	info, err := l.doc.fs.Stat(rel)
	if err != nil {
		l.doc.logger.Debug("skipping ledger update for unreadable file", logging.Path(rel), logging.Err(err))
		return
	}
	sum, err := l.hash(rel)
	if err != nil {
		l.doc.logger.Debug("skipping ledger update for unreadable file", logging.Path(rel), logging.Err(err))
		return
	}

	l.doc.mu.Lock()
	defer l.doc.mu.Unlock()

	t := l.t()
	t.purgePath(rel, id)
	t.Entries[id] = &Entry{
		ID:                id,
		Rev:               item.Rev(),
		LastModified:      item.LastModified(),
		MD5:               sum,
		Path:              rel,
		LocalLastModified: info.ModTime().UnixMilli(),
		CheckedAt:         time.Now().UnixMilli(),
	}
	l.doc.markDirtyLocked()
}

// Remove purges the entries for ids along with anything sharing their paths.
func (l *Ledger) Remove(ids ...string) {
	l.doc.mu.Lock()
	defer l.doc.mu.Unlock()

	t := l.t()
	changed := false
	for _, id := range ids {
		e, ok := t.Entries[id]
		if !ok {
			continue
		}
		delete(t.Entries, id)
		t.purgePath(e.Path, "")
		changed = true
	}
	if changed {
		l.doc.markDirtyLocked()
	}
}

// FilePath returns the relative path recorded for id, or "".
func (l *Ledger) FilePath(id string) string {
	l.doc.mu.Lock()
	defer l.doc.mu.Unlock()

	if e := l.t().Entries[id]; e != nil {
		return e.Path
	}
	return ""
}

// SetFilePath repoints an existing entry after its file was renamed.
func (l *Ledger) SetFilePath(id, filePath string) {
	rel := clean(filePath)

	l.doc.mu.Lock()
	defer l.doc.mu.Unlock()

	t := l.t()
	e := t.Entries[id]
	if e == nil || e.Path == rel {
		return
	}
	t.purgePath(rel, id)
	e.Path = rel
	l.doc.markDirtyLocked()
}

// Entry returns a copy of the entry for id.
func (l *Ledger) Entry(id string) (Entry, bool) {
	l.doc.mu.Lock()
	defer l.doc.mu.Unlock()

	if e := l.t().Entries[id]; e != nil {
		return *e, true
	}
	return Entry{}, false
}

// Entries returns copies of every entry, sorted by path.
func (l *Ledger) Entries() []Entry {
	l.doc.mu.Lock()
	defer l.doc.mu.Unlock()

	out := make([]Entry, 0, len(l.t().Entries))
	for _, e := range l.t().Entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Missing returns entries whose file no longer exists in the working directory.
func (l *Ledger) Missing() []Entry {
	var missing []Entry
	for _, e := range l.Entries() {
		if e.Path == "" {
			continue
		}
		if _, err := l.doc.fs.Stat(e.Path); err != nil {
			missing = append(missing, e)
		}
	}
	return missing
}

// LastPull returns the pull watermark for filter. The empty filter returns the
// older of the draft and ready watermarks.
func (l *Ledger) LastPull(filter model.StatusFilter) time.Time {
	l.doc.mu.Lock()
	defer l.doc.mu.Unlock()
	return l.t().Pull.get(filter)
}

// SetLastPull advances the pull watermark for filter. Earlier values are ignored.
func (l *Ledger) SetLastPull(filter model.StatusFilter, ts time.Time) {
	l.doc.mu.Lock()
	defer l.doc.mu.Unlock()
	if l.t().Pull.set(filter, ts) {
		l.doc.markDirtyLocked()
	}
}

// LastPush returns the push watermark for filter.
func (l *Ledger) LastPush(filter model.StatusFilter) time.Time {
	l.doc.mu.Lock()
	defer l.doc.mu.Unlock()
	return l.t().Push.get(filter)
}

// SetLastPush advances the push watermark for filter. Earlier values are ignored.
func (l *Ledger) SetLastPush(filter model.StatusFilter, ts time.Time) {
	l.doc.mu.Lock()
	defer l.doc.mu.Unlock()
	if l.t().Push.set(filter, ts) {
		l.doc.markDirtyLocked()
	}
}

func (l *Ledger) t() *tenant {
	return l.doc.tenantLocked(l.tenant)
}

func (l *Ledger) hash(rel string) (string, error) {
	data, err := util.ReadFile(l.doc.fs, rel)
	if err != nil {
		return "", err
	}
	sum := md5.Sum(data) // #nosec G401
	return hex.EncodeToString(sum[:]), nil
}

func (w *watermarks) get(filter model.StatusFilter) time.Time {
	draft := w.Draft
	if draft.IsZero() {
		draft = w.Any
	}
	ready := w.Ready
	if ready.IsZero() {
		ready = w.Any
	}

	switch filter {
	case model.StatusDraftOnly:
		return draft
	case model.StatusReadyOnly:
		return ready
	default:
		if draft.Before(ready) {
			return draft
		}
		return ready
	}
}

// set advances the watermark and reports whether anything moved.
func (w *watermarks) set(filter model.StatusFilter, ts time.Time) bool {
	ts = ts.UTC()
	if w.Draft.IsZero() {
		w.Draft = w.Any
	}
	if w.Ready.IsZero() {
		w.Ready = w.Any
	}

	changed := false
	advance := func(v *time.Time) {
		if ts.After(*v) {
			*v = ts
			changed = true
		}
	}

	switch filter {
	case model.StatusDraftOnly:
		advance(&w.Draft)
	case model.StatusReadyOnly:
		advance(&w.Ready)
	default:
		advance(&w.Draft)
		advance(&w.Ready)
	}

	// The generic value trails both variants so readers of it never skip a window.
	oldest := w.Draft
	if w.Ready.Before(oldest) {
		oldest = w.Ready
	}
	if oldest.After(w.Any) {
		w.Any = oldest
		changed = true
	}
	return changed
}

func clean(p string) string {
	c := path.Clean("/" + p)
	return c[1:]
}
