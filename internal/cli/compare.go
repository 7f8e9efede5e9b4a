package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/urfave/cli/v3"

	"github.com/klauern/hubsync/internal/diff"
	"github.com/klauern/hubsync/internal/local"
	"github.com/klauern/hubsync/internal/logging"
	"github.com/klauern/hubsync/internal/model"
	"github.com/klauern/hubsync/internal/sync"
	"github.com/klauern/hubsync/internal/ui"
)

// remoteSideArg names the hub as a side of a comparison.
const remoteSideArg = "remote"

func compareCommand(a *app) *cli.Command {
	flags := []cli.Flag{
		kindFlag(),
		&cli.BoolFlag{
			Name:    "details",
			Aliases: []string{"d"},
			Usage:   "Show the changed fields of every differing artifact",
		},
	}
	flags = append(flags, manifestFlags()...)

	return &cli.Command{
		Name:      "compare",
		Aliases:   []string{"diff"},
		Usage:     "Compare two copies of the artifacts",
		ArgsUsage: "<source> <target>",
		UsageText: `hubsync compare [options] <source> <target>
   hubsync compare . remote
   hubsync compare --type types ./staging ./production
   hubsync compare --write-manifest to-push --deletions-manifest to-delete . remote`,
		Description: `Compare the artifacts of two sides. Each side is either a workspace
   directory or "remote" for the content hub.

   Artifacts only in <source> are reported as added and recorded in the write
   manifest; artifacts only in <target> are reported as removed and recorded in
   the deletions manifest. Server-maintained fields such as rev and
   lastModified are ignored.`,
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return a.runCompare(ctx, cmd)
		},
	}
}

// kindComparison is the structured outcome for one kind.
type kindComparison struct {
	Kind       model.Kind     `json:"kind" yaml:"kind"`
	DiffCount  int            `json:"diffCount" yaml:"diffCount"`
	TotalCount int            `json:"totalCount" yaml:"totalCount"`
	Added      []string       `json:"added,omitempty" yaml:"added,omitempty"`
	Removed    []string       `json:"removed,omitempty" yaml:"removed,omitempty"`
	Changed    map[string]int `json:"changed,omitempty" yaml:"changed,omitempty"`
	Failed     []string       `json:"failed,omitempty" yaml:"failed,omitempty"`
}

func (a *app) runCompare(ctx context.Context, cmd *cli.Command) error {
	args := cmd.Args()
	if args.Len() != 2 {
		return errors.New("compare requires exactly 2 arguments: <source> <target>")
	}
	kinds, err := selectedKinds(cmd)
	if err != nil {
		return err
	}
	ws, err := a.openWorkspace(ctx, cmd, "comparing")
	if err != nil {
		return err
	}

	var (
		comparisons []kindComparison
		changed     = make(map[model.Kind]map[string]diff.Result)
		errs        []error
	)
	for _, kind := range kinds {
		if ws.manifests.Active() && !ws.manifests.HasSection(kind) {
			logging.Debug("kind not selected by the read manifest", logging.Kind(string(kind)))
			continue
		}
		e, err := ws.engine(kind, a.cfg.SyncOptions())
		if err != nil {
			errs = append(errs, err)
			continue
		}
		source := a.compareSide(e, args.Get(0))
		target := a.compareSide(e, args.Get(1))
		if ws.manifests.Active() {
			source = sync.ManifestSide(ws.manifests, kind, source)
		}

		res, err := e.Compare(ctx, ws.session, source, target)
		if err != nil {
			errs = append(errs, fmt.Errorf("comparing %s: %w", kind, err))
			continue
		}
		comparisons = append(comparisons, toKindComparison(kind, res))
		changed[kind] = res.Changed
	}

	if err := ws.close(); err != nil {
		errs = append(errs, err)
	}

	if ok, err := writeStructured(a.out, a.cfg.Output.Format, comparisons); ok {
		return errors.Join(append(errs, err)...)
	}
	a.printComparisons(comparisons, changed, cmd.Bool("details"))
	return errors.Join(errs...)
}

// compareSide resolves a side argument for the engine's kind.
func (a *app) compareSide(e *sync.Engine, arg string) sync.Side {
	if arg == remoteSideArg {
		return e.RemoteSide()
	}
	root := arg
	if !filepath.IsAbs(root) {
		root = filepath.Join(a.cfg.WorkspaceRoot(), root)
	}
	fs := osfs.New(filepath.Join(root, e.Kind().Dir()))
	return sync.LocalSide(local.New(fs, local.Options{PathBased: e.Descriptor().PathBased}))
}

func toKindComparison(kind model.Kind, res sync.CompareResult) kindComparison {
	kc := kindComparison{
		Kind:       kind,
		DiffCount:  res.DiffCount,
		TotalCount: res.TotalCount,
		Added:      res.Added,
		Removed:    res.Removed,
	}
	if len(res.Changed) > 0 {
		kc.Changed = make(map[string]int, len(res.Changed))
		for id, d := range res.Changed {
			kc.Changed[id] = d.Count()
		}
	}
	for id := range res.Failed {
		kc.Failed = append(kc.Failed, id)
	}
	sort.Strings(kc.Failed)
	return kc
}

func (a *app) printComparisons(comparisons []kindComparison, changed map[model.Kind]map[string]diff.Result, details bool) {
	var rows [][]string
	for _, kc := range comparisons {
		for _, id := range kc.Added {
			rows = append(rows, []string{string(kc.Kind), id, ui.Success(string(sync.ActionAdded)), ""})
		}
		for _, id := range kc.Removed {
			rows = append(rows, []string{string(kc.Kind), id, ui.Error(string(sync.ActionRemoved)), ""})
		}
		for _, id := range sortedKeys(kc.Changed) {
			rows = append(rows, []string{string(kc.Kind), id, ui.Warning(string(sync.ActionChanged)), strconv.Itoa(kc.Changed[id])})
		}
		for _, id := range kc.Failed {
			rows = append(rows, []string{string(kc.Kind), id, ui.Error(string(sync.ActionFailed)), ""})
		}
	}

	if len(rows) == 0 {
		fmt.Fprintln(a.out, ui.StatusSuccess("no differences"))
	} else {
		fmt.Fprintln(a.out, ui.Table([]string{"kind", "id", "difference", "fields"}, rows, 0))
	}

	if details {
		for _, kc := range comparisons {
			for _, id := range sortedKeys(kc.Changed) {
				fmt.Fprintf(a.out, "\n%s\n", ui.Header(string(kc.Kind)+"/"+id))
				printChanges(a, changed[kc.Kind][id])
			}
		}
	}

	for _, kc := range comparisons {
		fmt.Fprintf(a.out, "%s: %d of %d differ\n", ui.Bold(string(kc.Kind)), kc.DiffCount, kc.TotalCount)
	}
}

func printChanges(a *app, r diff.Result) {
	for _, c := range r.Added {
		_, v := c.Values()
		fmt.Fprintf(a.out, "  %s %s: %s\n", ui.Success(ui.SymbolAdded), c.Path(), v)
	}
	for _, c := range r.Removed {
		v, _ := c.Values()
		fmt.Fprintf(a.out, "  %s %s: %s\n", ui.Error(ui.SymbolRemoved), c.Path(), v)
	}
	for _, c := range r.Changed {
		fmt.Fprintf(a.out, "  %s %s\n", ui.Warning(ui.SymbolChanged), c.Path())
		for _, line := range strings.Split(strings.TrimRight(c.TextDiff(), "\n"), "\n") {
			fmt.Fprintf(a.out, "      %s\n", line)
		}
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
