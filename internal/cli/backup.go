package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/urfave/cli/v3"

	"github.com/klauern/hubsync/internal/backup"
	"github.com/klauern/hubsync/internal/model"
	"github.com/klauern/hubsync/internal/ui"
)

func backupCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:  "backup",
		Usage: "Manage copies of local edits replaced by pulls",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List backups, newest first",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "type",
						Aliases: []string{"t"},
						Usage:   "Only list backups of this artifact kind",
					},
				},
				Action: func(_ context.Context, cmd *cli.Command) error {
					return a.runBackupList(cmd)
				},
			},
			{
				Name:      "restore",
				Usage:     "Write a backup back into the workspace",
				ArgsUsage: "<id>",
				Action: func(_ context.Context, cmd *cli.Command) error {
					return a.runBackupRestore(cmd)
				},
			},
			{
				Name:  "clean",
				Usage: "Remove backups beyond the configured count and age",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "dry-run",
						Usage: "Show what would be removed without removing it",
					},
				},
				Action: func(_ context.Context, cmd *cli.Command) error {
					return a.runBackupClean(cmd)
				},
			},
			{
				Name:  "stats",
				Usage: "Summarize stored backups",
				Action: func(_ context.Context, _ *cli.Command) error {
					return a.runBackupStats()
				},
			},
		},
	}
}

func (a *app) backups() *backup.Store {
	return backup.Open(a.cfg.BackupDir())
}

func (a *app) runBackupList(cmd *cli.Command) error {
	var kind model.Kind
	if v := cmd.String("type"); v != "" {
		k, err := model.ParseKind(v)
		if err != nil {
			return err
		}
		kind = k
	}

	list, err := a.backups().List(kind)
	if err != nil {
		return err
	}
	if list == nil {
		list = []backup.Metadata{}
	}
	if ok, err := writeStructured(a.out, a.cfg.Output.Format, list); ok {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(a.out, ui.Dim("No backups found"))
		return nil
	}

	rows := make([][]string, 0, len(list))
	for _, b := range list {
		rows = append(rows, []string{
			b.ID,
			string(b.Kind),
			b.Source,
			b.CreatedAt.Local().Format(time.DateTime),
			strconv.FormatInt(b.Size, 10),
		})
	}
	fmt.Fprintln(a.out, ui.Table([]string{"id", "kind", "source", "created", "size"}, rows, 0))
	fmt.Fprintf(a.out, "%d backup(s)\n", len(list))
	return nil
}

func (a *app) runBackupRestore(cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return errors.New("restore requires exactly one backup id")
	}
	id := cmd.Args().First()

	store := a.backups()
	meta, err := store.Get(id)
	if err != nil {
		return err
	}
	root := osfs.New(a.cfg.WorkspaceRoot())
	if err := root.MkdirAll(meta.Kind.Dir(), 0o755); err != nil {
		return fmt.Errorf("creating %s directory: %w", meta.Kind, err)
	}
	target, err := root.Chroot(meta.Kind.Dir())
	if err != nil {
		return err
	}
	if _, err := store.Restore(id, target); err != nil {
		return err
	}
	fmt.Fprintln(a.out, ui.StatusSuccess(fmt.Sprintf("restored %s/%s", meta.Kind.Dir(), meta.Source)))
	return nil
}

func (a *app) runBackupClean(cmd *cli.Command) error {
	opts := a.cfg.CleanupOptions()
	opts.DryRun = cmd.Bool("dry-run")

	ids, err := a.backups().Cleanup(opts)
	if err != nil {
		return err
	}
	if ok, err := writeStructured(a.out, a.cfg.Output.Format, map[string]any{"dryRun": opts.DryRun, "removed": ids}); ok {
		return err
	}

	verb := "Removed"
	if opts.DryRun {
		verb = "Would remove"
	}
	for _, id := range ids {
		fmt.Fprintln(a.out, "  "+id)
	}
	fmt.Fprintf(a.out, "%s %d backup(s)\n", verb, len(ids))
	return nil
}

func (a *app) runBackupStats() error {
	stats, err := a.backups().Stats()
	if err != nil {
		return err
	}
	if ok, err := writeStructured(a.out, a.cfg.Output.Format, stats); ok {
		return err
	}

	fmt.Fprintf(a.out, "%s %d (%d bytes)\n", ui.Header("Backups:"), stats.TotalBackups, stats.TotalSize)
	for _, kind := range model.AllKinds() {
		if n := stats.ByKind[kind]; n > 0 {
			fmt.Fprintf(a.out, "  %-12s %d\n", kind, n)
		}
	}
	if stats.TotalBackups > 0 {
		fmt.Fprintf(a.out, "%s %s\n", ui.Header("Oldest:"), stats.OldestBackup.Local().Format(time.DateTime))
		fmt.Fprintf(a.out, "%s %s\n", ui.Header("Newest:"), stats.NewestBackup.Local().Format(time.DateTime))
	}
	return nil
}
