package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/urfave/cli/v3"

	"github.com/klauern/hubsync/internal/ledger"
	"github.com/klauern/hubsync/internal/local"
	"github.com/klauern/hubsync/internal/logging"
	"github.com/klauern/hubsync/internal/manifest"
	"github.com/klauern/hubsync/internal/model"
	"github.com/klauern/hubsync/internal/progress"
	"github.com/klauern/hubsync/internal/sync"
)

// manifestFlags select the manifests of a session.
func manifestFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "read-manifest",
			Usage: "Only process artifacts listed in this manifest (name, path or remote:<path>)",
		},
		&cli.StringFlag{
			Name:  "write-manifest",
			Usage: "Record processed artifacts in this manifest",
		},
		&cli.StringFlag{
			Name:  "deletions-manifest",
			Usage: "Record artifacts missing on one side of a compare in this manifest",
		},
		&cli.StringFlag{
			Name:  "manifest-mode",
			Usage: "How written manifests merge with existing ones: append or replace",
		},
	}
}

// kindFlag selects the artifact kinds a command works on.
func kindFlag() cli.Flag {
	return &cli.StringSliceFlag{
		Name:    "type",
		Aliases: []string{"t"},
		Usage:   "Artifact kind (pages, sites, content, assets, types, libraries, renditions); repeatable, defaults to all",
	}
}

// selectedKinds parses --type, keeping the dependency order of model.AllKinds.
func selectedKinds(cmd *cli.Command) ([]model.Kind, error) {
	raw := cmd.StringSlice("type")
	if len(raw) == 0 {
		return model.AllKinds(), nil
	}
	want := make(map[model.Kind]bool, len(raw))
	for _, r := range raw {
		k, err := model.ParseKind(r)
		if err != nil {
			return nil, err
		}
		want[k] = true
	}
	var kinds []model.Kind
	for _, k := range model.AllKinds() {
		if want[k] {
			kinds = append(kinds, k)
		}
	}
	return kinds, nil
}

// workspace holds the stores and session shared by every kind processed in
// one command.
type workspace struct {
	app       *app
	root      billy.Filesystem
	registry  *ledger.Registry
	manifests *manifest.Store
	recorder  *sync.Recorder
	tracker   *progress.Tracker
	session   *sync.Session
}

func (a *app) openWorkspace(ctx context.Context, cmd *cli.Command, desc string) (*workspace, error) {
	root := osfs.New(a.cfg.WorkspaceRoot())

	mopts := a.cfg.ManifestOptions()
	if v := cmd.String("manifest-mode"); v != "" {
		mode, err := manifest.ParseMode(v)
		if err != nil {
			return nil, err
		}
		mopts.Mode = mode
	}
	mopts.Fetcher = a.hubClient()
	mopts.Logger = logging.Default()

	manifests := manifest.New(root, mopts)
	if err := manifests.Initialize(ctx, cmd.String("read-manifest"), cmd.String("write-manifest"), cmd.String("deletions-manifest")); err != nil {
		return nil, fmt.Errorf("loading manifests: %w", err)
	}

	w := &workspace{
		app:       a,
		root:      root,
		registry:  ledger.NewRegistry(),
		manifests: manifests,
		recorder:  sync.NewRecorder(),
		tracker:   progress.NewTracker(progress.Options{Max: progress.Unknown, Description: desc, Writer: a.errOut}),
	}
	w.session = sync.NewSession(sync.SessionOptions{
		Logger:   logging.Default().With(logging.Tenant(a.cfg.Server.Tenant)),
		Observer: sync.Multi(w.recorder, w.tracker),
		Manifest: manifests,
	})
	return w, nil
}

// engine builds the engine for kind. The kind directory holds both the
// artifact files and the ledger tracking them.
func (w *workspace) engine(kind model.Kind, opts sync.Options) (*sync.Engine, error) {
	desc, ok := sync.DescriptorFor(kind)
	if !ok {
		return nil, fmt.Errorf("unsupported artifact kind: %s", kind)
	}
	if err := w.root.MkdirAll(kind.Dir(), 0o755); err != nil {
		return nil, fmt.Errorf("creating %s directory: %w", kind, err)
	}
	fs, err := w.root.Chroot(kind.Dir())
	if err != nil {
		return nil, err
	}

	cfg := w.app.cfg
	doc := w.registry.Open(fs, cfg.LedgerOptions())
	l := doc.Tenant(cfg.Server.Tenant, cfg.Server.URL)
	store := local.New(fs, local.Options{PathBased: desc.PathBased})

	return sync.New(desc, store, w.app.remoteStore(kind, desc.Capabilities), l, opts), nil
}

// close ends the session, writes manifests and flushes every ledger.
func (w *workspace) close() error {
	w.session.Close()
	_ = w.tracker.Finish()

	var errs []error
	if p, err := w.manifests.Save(); err != nil {
		errs = append(errs, fmt.Errorf("saving manifests: %w", err))
	} else if p != "" {
		logging.Info("manifest written", logging.Path(p))
	}
	if err := w.registry.Close(); err != nil {
		errs = append(errs, fmt.Errorf("flushing ledger: %w", err))
	}
	return errors.Join(errs...)
}

// result returns the outcomes recorded so far.
func (w *workspace) result() *sync.Result {
	return w.recorder.Result()
}
