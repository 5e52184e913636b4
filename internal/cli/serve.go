package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/latticekv/lattice/internal/kvstore"
)

// NewServeCommand creates the serve command: open the database, let its
// background dispatcher and expiration watcher run, and block until
// signaled.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Open the database and run its background tasks until signaled",
		Long: `Open the database at --db (creating and migrating it if necessary),
start the queue dispatcher and expiration watcher, and block until
SIGINT/SIGTERM.

Example:
  latticekv serve --db ./kv.sqlite3`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(rootOpts, cmd)
		},
	}
	return cmd
}

func runServe(opts *RootOptions, cmd *cobra.Command) error {
	configureLogging(opts)

	slog.Info("opening database", "path", opts.Database)
	db, err := kvstore.Open(cmd.Context(), opts.Database, kvstore.Options{})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	slog.Info("database ready")

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	fmt.Fprintln(cmd.OutOrStdout(), "latticekv is running. Press Ctrl-C to stop.")

	select {
	case sig := <-sigCh:
		slog.Info("received signal, shutting down", "signal", sig)
	case <-ctx.Done():
	}

	slog.Info("database stopped gracefully")
	return nil
}
