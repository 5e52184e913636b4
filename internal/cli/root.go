package cli

import (
	"log/slog"

	"github.com/spf13/cobra"
)

// RootOptions holds the global flags shared by every subcommand.
type RootOptions struct {
	Database string
	Verbose  bool
}

// NewRootCommand builds the latticekv root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "latticekv",
		Short: "latticekv - an embedded transactional key-value store",
		Long: `latticekv operates an embedded SQLite-backed key-value store: ordered
keys, atomic multi-key writes with optimistic checks, range scans, and a
durable at-least-once delivery queue.`,
	}

	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to the SQLite database (default: OS config dir)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewPutCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewScanCommand(opts))
	cmd.AddCommand(NewApplyCommand(opts))
	cmd.AddCommand(NewDequeueCommand(opts))

	return cmd
}

// configureLogging installs a slog text handler at the level implied by
// --verbose, matching the teacher's run.go setup.
func configureLogging(opts *RootOptions) {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	installLogger(level)
}
