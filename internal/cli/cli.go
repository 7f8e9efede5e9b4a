// Package cli provides the command-line interface for hubsync.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/klauern/hubsync/internal/config"
	"github.com/klauern/hubsync/internal/logging"
	"github.com/klauern/hubsync/internal/model"
	"github.com/klauern/hubsync/internal/remote"
	"github.com/klauern/hubsync/internal/ui"
)

var (
	// Version is the current version of the application.
	Version = "dev"
	// Commit is the git commit hash.
	Commit = "unknown"
	// BuildDate is the date and time of the build.
	BuildDate = "unknown"
)

// RemoteFactory opens the hub store for one kind.
type RemoteFactory func(cfg *config.Config, kind model.Kind, caps remote.Capabilities) remote.Store

// app carries the state shared by every command of one invocation.
type app struct {
	out    io.Writer
	errOut io.Writer
	cfg    *config.Config

	// openRemote defaults to an HTTP client built from cfg.
	openRemote RemoteFactory
	client     *remote.Client
}

// Run executes the CLI application with the given context and arguments.
func Run(ctx context.Context, args []string) error {
	return newApp(os.Stdout, os.Stderr, nil).command().Run(ctx, args)
}

func newApp(out, errOut io.Writer, openRemote RemoteFactory) *app {
	return &app{out: out, errOut: errOut, openRemote: openRemote}
}

func (a *app) command() *cli.Command {
	return &cli.Command{
		Name:    "hubsync",
		Usage:   "Synchronize content hub artifacts with a local working directory",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Options file (.yaml, .yml or .toml), defaults to ~/.hubsync/config.yaml",
			},
			&cli.StringFlag{
				Name:  "server",
				Usage: "Content hub base URL",
			},
			&cli.StringFlag{
				Name:  "tenant",
				Usage: "Tenant sent to the hub and used to partition the change ledger",
			},
			&cli.StringFlag{
				Name:    "root",
				Aliases: []string{"C"},
				Usage:   "Workspace root holding one directory per artifact kind",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format: table, json, yaml",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable verbose output (info level logging)",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug output (debug level logging, implies verbose)",
			},
			&cli.BoolFlag{
				Name:  "no-color",
				Usage: "Disable colored output",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			if err := a.loadConfig(cmd); err != nil {
				return ctx, err
			}
			a.configureColors(cmd)
			return ctx, a.configureLogging(cmd)
		},
		Commands: []*cli.Command{
			versionCommand(a),
			configCommand(a),
			listCommand(a),
			pullCommand(a),
			pushCommand(a),
			deleteCommand(a),
			compareCommand(a),
			backupCommand(a),
		},
	}
}

// loadConfig reads the options file and applies global flag overrides.
func (a *app) loadConfig(cmd *cli.Command) error {
	var (
		cfg *config.Config
		err error
	)
	if p := cmd.String("config"); p != "" {
		cfg, err = config.LoadFromPath(p)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if v := cmd.String("server"); v != "" {
		cfg.Server.URL = v
	}
	if v := cmd.String("tenant"); v != "" {
		cfg.Server.Tenant = v
	}
	if v := cmd.String("root"); v != "" {
		cfg.Workspace.Root = v
	}
	if v := cmd.String("format"); v != "" {
		cfg.Output.Format = v
	}
	if cmd.Bool("verbose") {
		cfg.Output.Verbose = true
	}

	a.cfg = cfg
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// configureColors sets up color output based on config and CLI flags.
func (a *app) configureColors(cmd *cli.Command) {
	ui.SetColorMode(a.cfg.Output.Color)
	if cmd.Bool("no-color") {
		ui.DisableColors()
	}
}

// configureLogging sets up the logging level based on CLI flags.
func (a *app) configureLogging(cmd *cli.Command) error {
	opts := logging.DefaultOptions()
	opts.Output = a.errOut

	if cmd.Bool("debug") {
		opts.Level = slog.LevelDebug
		opts.AddSource = true
	} else if a.cfg.Output.Verbose {
		opts.Level = slog.LevelInfo
	}

	logger := logging.New(opts)
	logging.SetDefault(logger)

	logging.Debug("logging configured", slog.String("level", opts.Level.String()))

	return nil
}

// remoteStore opens the hub store for kind.
func (a *app) remoteStore(kind model.Kind, caps remote.Capabilities) remote.Store {
	if a.openRemote != nil {
		return a.openRemote(a.cfg, kind, caps)
	}
	return a.hubClient().Store(kind, caps)
}

func (a *app) hubClient() *remote.Client {
	if a.client == nil {
		a.client = remote.NewClient(a.cfg.Server.URL, remote.ClientOptions{
			Token:   a.cfg.Server.Token,
			Tenant:  a.cfg.Server.Tenant,
			Timeout: a.cfg.Server.Timeout,
		})
	}
	return a.client
}

// errItemsFailed is returned when an operation finished with failed items.
var errItemsFailed = errors.New("items failed")
