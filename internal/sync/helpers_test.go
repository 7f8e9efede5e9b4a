package sync

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/require"

	"github.com/klauern/hubsync/internal/ledger"
	"github.com/klauern/hubsync/internal/local"
	"github.com/klauern/hubsync/internal/logging"
	"github.com/klauern/hubsync/internal/manifest"
	"github.com/klauern/hubsync/internal/model"
	"github.com/klauern/hubsync/internal/remote/mock"
)

var contentDesc = Descriptor{Kind: model.Content, DraftReady: true}

var pagesDesc = Descriptor{Kind: model.Pages, DraftReady: true, PathBased: true}

type fixture struct {
	t      *testing.T
	fs     billy.Filesystem
	local  *local.Store
	remote *mock.Store
	ledger *ledger.Ledger
	engine *Engine
	rec    *Recorder
	sess   *Session
}

func newFixture(t *testing.T, desc Descriptor, opts Options) *fixture {
	t.Helper()

	fs := osfs.New(t.TempDir())
	store := local.New(fs, local.Options{PathBased: desc.PathBased})
	rem := mock.New(desc.Kind).WithCapabilities(desc.Capabilities)

	doc := ledger.NewRegistry().Open(fs, ledger.Options{
		FlushCount:    ledger.Immediate,
		FlushInterval: ledger.Immediate,
		Logger:        logging.Discard(),
	})
	t.Cleanup(func() { _ = doc.Close() })
	l := doc.Tenant("test", "https://hub.example.com")

	rec := NewRecorder()
	sess := NewSession(SessionOptions{Logger: logging.Discard(), Observer: rec})
	t.Cleanup(sess.Close)

	return &fixture{
		t:      t,
		fs:     fs,
		local:  store,
		remote: rem,
		ledger: l,
		engine: New(desc, store, rem, l, opts),
		rec:    rec,
		sess:   sess,
	}
}

// save writes item through the local store.
func (f *fixture) save(item model.Artifact) string {
	f.t.Helper()
	p, err := f.local.Save(item)
	require.NoError(f.t, err)
	return p
}

// writeRaw writes a file without going through the local store.
func (f *fixture) writeRaw(p string, v any) {
	f.t.Helper()
	data, err := json.Marshal(v)
	require.NoError(f.t, err)
	require.NoError(f.t, util.WriteFile(f.fs, p, data, 0o644))
}

// touchFile moves the mtime of a file forward so the ledger notices it.
func (f *fixture) touchFile(p string) {
	f.t.Helper()
	ts := time.Now().Add(time.Hour)
	require.NoError(f.t, os.Chtimes(filepath.Join(f.fs.Root(), p), ts, ts))
}

func (f *fixture) ledgerRev(id string) string {
	f.t.Helper()
	e, ok := f.ledger.Entry(id)
	require.True(f.t, ok, "no ledger entry for %s", id)
	return e.Rev
}

func (f *fixture) remoteRev(id string) string {
	f.t.Helper()
	it, ok := f.remote.Item(id)
	require.True(f.t, ok, "no remote item %s", id)
	return it.Rev()
}

func fixedClock(ts time.Time) func() time.Time {
	return func() time.Time { return ts }
}

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts
}

// manifestSession returns a session whose read manifest is doc.
func (f *fixture) manifestSession(doc string) *Session {
	f.t.Helper()
	mfs := memfs.New()
	require.NoError(f.t, util.WriteFile(mfs, "manifests/selected.json", []byte(doc), 0o644))
	m := manifest.New(mfs, manifest.Options{Logger: logging.Discard()})
	require.NoError(f.t, m.Initialize(context.Background(), "selected", "", ""))
	sess := NewSession(SessionOptions{Logger: logging.Discard(), Observer: f.rec, Manifest: m})
	f.t.Cleanup(sess.Close)
	return sess
}
