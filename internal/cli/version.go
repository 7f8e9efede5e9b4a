package cli

import (
	"context"
	"fmt"
	"runtime"

	"github.com/urfave/cli/v3"
)

func versionCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Display version and build information",
		Action: func(_ context.Context, _ *cli.Command) error {
			fmt.Fprintf(a.out, "hubsync version %s\n", Version)
			fmt.Fprintf(a.out, "  commit: %s\n", Commit)
			fmt.Fprintf(a.out, "  built: %s\n", BuildDate)
			fmt.Fprintf(a.out, "  go: %s\n", runtime.Version())
			return nil
		},
	}
}
