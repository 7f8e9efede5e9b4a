package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/klauern/hubsync/internal/config"
	"github.com/klauern/hubsync/internal/model"
	"github.com/klauern/hubsync/internal/sync"
	"github.com/klauern/hubsync/internal/ui"
)

func configCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Display the effective configuration",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "write",
				Usage: "Save the effective configuration to the config file",
			},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			path := cmd.String("config")
			if path == "" {
				path = config.FilePath()
			}
			if cmd.Bool("write") {
				if err := a.cfg.SaveToPath(path); err != nil {
					return fmt.Errorf("saving config: %w", err)
				}
				fmt.Fprintln(a.out, ui.StatusSuccess("wrote "+path))
				return nil
			}

			if ok, err := writeStructured(a.out, a.cfg.Output.Format, a.cfg.Redacted()); ok {
				return err
			}
			data, err := a.cfg.Redacted().Marshal(path)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s %s\n\n%s", ui.Header("Config file:"), path, data)
			return nil
		},
	}
}

// listOptions reads --status and --path.
func listOptions(cmd *cli.Command) (sync.ListOptions, error) {
	status, err := model.ParseStatusFilter(cmd.String("status"))
	if err != nil {
		return sync.ListOptions{}, err
	}
	return sync.ListOptions{Status: status, Path: cmd.String("path")}, nil
}

func filterFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "status",
			Usage: "Only draft or ready artifacts: draft, ready, all",
		},
		&cli.StringFlag{
			Name:  "path",
			Usage: "Only artifacts whose path starts with this prefix",
		},
	}
}

// singleKind requires --type to name exactly one kind.
func singleKind(cmd *cli.Command) (model.Kind, error) {
	kinds, err := selectedKinds(cmd)
	if err != nil {
		return "", err
	}
	if len(cmd.StringSlice("type")) == 0 || len(kinds) != 1 {
		return "", errors.New("exactly one --type is required when naming items")
	}
	return kinds[0], nil
}

func listCommand(a *app) *cli.Command {
	flags := []cli.Flag{
		kindFlag(),
		&cli.BoolFlag{
			Name:    "remote",
			Aliases: []string{"r"},
			Usage:   "List artifacts on the hub instead of the working directory",
		},
		&cli.BoolFlag{
			Name:    "modified",
			Aliases: []string{"m"},
			Usage:   "Only artifacts changed since the last push (local) or pull (remote)",
		},
	}
	flags = append(flags, filterFlags()...)
	flags = append(flags, manifestFlags()...)

	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "List artifacts in the working directory or on the hub",
		UsageText: `hubsync list [options]
   hubsync list --modified --type pages
   hubsync list --remote --status ready --format json`,
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return a.runList(ctx, cmd)
		},
	}
}

func (a *app) runList(ctx context.Context, cmd *cli.Command) error {
	kinds, err := selectedKinds(cmd)
	if err != nil {
		return err
	}
	opts, err := listOptions(cmd)
	if err != nil {
		return err
	}
	ws, err := a.openWorkspace(ctx, cmd, "listing")
	if err != nil {
		return err
	}

	remoteMode := cmd.Bool("remote")
	modified := cmd.Bool("modified")
	local := make(map[model.Kind][]string)
	remote := make(map[model.Kind][]itemSummary)
	var rows [][]string
	var errs []error

	for _, kind := range kinds {
		e, err := ws.engine(kind, a.cfg.SyncOptions())
		if err != nil {
			errs = append(errs, err)
			continue
		}

		if remoteMode {
			var items []model.Artifact
			if modified {
				items, err = e.ListRemoteModified(ctx, ws.session, opts)
			} else {
				items, err = e.ListRemote(ctx, ws.session, opts)
			}
			if err != nil {
				errs = append(errs, fmt.Errorf("listing remote %s: %w", kind, err))
				continue
			}
			remote[kind] = summarize(items)
			for _, row := range itemRows(items) {
				rows = append(rows, append([]string{string(kind)}, row...))
			}
			continue
		}

		var names []string
		if modified {
			names, err = e.ListLocalModified(ctx, ws.session, opts)
		} else {
			names, err = e.ListLocal(ctx, ws.session, opts)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("listing local %s: %w", kind, err))
			continue
		}
		local[kind] = names
		for _, name := range names {
			rows = append(rows, []string{string(kind), name})
		}
	}

	if err := ws.close(); err != nil {
		errs = append(errs, err)
	}

	var structured any = local
	headers := []string{"kind", "name"}
	if remoteMode {
		structured = remote
		headers = append([]string{"kind"}, itemHeaders...)
	}
	if ok, err := writeStructured(a.out, a.cfg.Output.Format, structured); ok {
		return errors.Join(append(errs, err)...)
	}

	if len(rows) == 0 {
		fmt.Fprintln(a.out, ui.Dim("No artifacts found"))
	} else {
		fmt.Fprintln(a.out, ui.Table(headers, rows, 0))
		fmt.Fprintf(a.out, "%d artifact(s)\n", len(rows))
	}
	return errors.Join(errs...)
}

func pullCommand(a *app) *cli.Command {
	flags := []cli.Flag{
		kindFlag(),
		&cli.BoolFlag{
			Name:    "modified",
			Aliases: []string{"m"},
			Usage:   "Only pull artifacts changed on the hub since the last pull",
		},
		&cli.BoolFlag{
			Name:  "track-deletions",
			Usage: "Report local artifacts that no longer exist on the hub",
		},
		&cli.BoolFlag{
			Name:  "no-backup",
			Usage: "Do not back up local edits before overwriting them",
		},
	}
	flags = append(flags, filterFlags()...)
	flags = append(flags, manifestFlags()...)

	return &cli.Command{
		Name:      "pull",
		Usage:     "Download artifacts from the hub into the working directory",
		ArgsUsage: "[ids...]",
		UsageText: `hubsync pull [options] [ids...]
   hubsync pull --modified
   hubsync pull --type content 0f3c 9a1e
   hubsync pull --type pages --path /docs`,
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return a.runPull(ctx, cmd)
		},
	}
}

func (a *app) runPull(ctx context.Context, cmd *cli.Command) error {
	ids := cmd.Args().Slice()
	kinds, err := a.kindsFor(cmd, len(ids) > 0)
	if err != nil {
		return err
	}
	opts, err := listOptions(cmd)
	if err != nil {
		return err
	}
	ws, err := a.openWorkspace(ctx, cmd, "pulling")
	if err != nil {
		return err
	}

	engineOpts := a.cfg.SyncOptions()
	engineOpts.TrackDeletions = cmd.Bool("track-deletions")
	if a.cfg.Backup.Enabled && !cmd.Bool("no-backup") {
		engineOpts.Backups = a.backups()
	}

	var errs []error
	for _, kind := range kinds {
		e, err := ws.engine(kind, engineOpts)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		switch {
		case len(ids) > 0:
			_, err = e.PullIDs(ctx, ws.session, ids)
		case cmd.Bool("modified"):
			_, err = e.PullModified(ctx, ws.session, opts)
		default:
			_, err = e.PullAll(ctx, ws.session, opts)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("pulling %s: %w", kind, err))
		}
	}
	return a.finish("pull", ws, errors.Join(errs...))
}

func pushCommand(a *app) *cli.Command {
	flags := []cli.Flag{
		kindFlag(),
		&cli.BoolFlag{
			Name:    "modified",
			Aliases: []string{"m"},
			Usage:   "Only push artifacts changed locally since the last push",
		},
		&cli.BoolFlag{
			Name:  "rewrite",
			Usage: "Save the hub's response over each pushed file",
		},
		&cli.BoolFlag{
			Name:  "save-conflicts",
			Usage: "Write the hub's version of conflicting artifacts next to the local file",
		},
	}
	flags = append(flags, filterFlags()...)
	flags = append(flags, manifestFlags()...)

	return &cli.Command{
		Name:      "push",
		Usage:     "Upload artifacts from the working directory to the hub",
		ArgsUsage: "[names...]",
		UsageText: `hubsync push [options] [names...]
   hubsync push --modified
   hubsync push --type pages docs/intro docs/setup`,
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return a.runPush(ctx, cmd)
		},
	}
}

func (a *app) runPush(ctx context.Context, cmd *cli.Command) error {
	names := cmd.Args().Slice()
	kinds, err := a.kindsFor(cmd, len(names) > 0)
	if err != nil {
		return err
	}
	opts, err := listOptions(cmd)
	if err != nil {
		return err
	}
	ws, err := a.openWorkspace(ctx, cmd, "pushing")
	if err != nil {
		return err
	}

	engineOpts := a.cfg.SyncOptions()
	if cmd.Bool("rewrite") {
		engineOpts.RewriteOnPush = true
	}
	if cmd.Bool("save-conflicts") {
		engineOpts.SaveConflicts = true
	}

	var errs []error
	for _, kind := range kinds {
		e, err := ws.engine(kind, engineOpts)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		switch {
		case len(names) > 0:
			_, err = e.PushNames(ctx, ws.session, names)
		case cmd.Bool("modified"):
			_, err = e.PushModified(ctx, ws.session, opts)
		default:
			_, err = e.PushAll(ctx, ws.session, opts)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("pushing %s: %w", kind, err))
		}
	}
	return a.finish("push", ws, errors.Join(errs...))
}

func deleteCommand(a *app) *cli.Command {
	flags := append([]cli.Flag{kindFlag()}, manifestFlags()...)

	return &cli.Command{
		Name:      "delete",
		Aliases:   []string{"rm"},
		Usage:     "Delete artifacts from the hub",
		ArgsUsage: "<ids...>",
		UsageText: `hubsync delete --type content 0f3c 9a1e`,
		Flags:     flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			ids := cmd.Args().Slice()
			if len(ids) == 0 {
				return errors.New("delete requires at least one id")
			}
			kind, err := singleKind(cmd)
			if err != nil {
				return err
			}
			ws, err := a.openWorkspace(ctx, cmd, "deleting")
			if err != nil {
				return err
			}
			e, err := ws.engine(kind, a.cfg.SyncOptions())
			if err == nil {
				_, err = e.DeleteRemote(ctx, ws.session, ids)
			}
			return a.finish("delete", ws, err)
		},
	}
}

// kindsFor returns the kinds of a command; naming items requires a single kind.
func (a *app) kindsFor(cmd *cli.Command, named bool) ([]model.Kind, error) {
	if named {
		kind, err := singleKind(cmd)
		if err != nil {
			return nil, err
		}
		return []model.Kind{kind}, nil
	}
	return selectedKinds(cmd)
}

// finish closes the workspace, prints the result and turns item failures
// into the command's error.
func (a *app) finish(op string, ws *workspace, opErr error) error {
	failed := ws.session.ErrorCount()
	closeErr := ws.close()
	if err := a.writeResult(op, ws); err != nil {
		return err
	}
	if err := errors.Join(opErr, closeErr); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%s: %d %w", op, failed, errItemsFailed)
	}
	return nil
}
