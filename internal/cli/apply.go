package cli

import (
	"encoding/base64"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/latticekv/lattice/internal/kvstore"
)

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "apply -f <batch.yaml>",
		Short: "Submit an AtomicWrite loaded from a YAML batch file",
		Long: `Load a YAML document describing checks, mutations, and enqueues and
submit it as a single all-or-nothing AtomicWrite.

Example:
  latticekv apply -f batch.yaml`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(rootOpts, file, cmd)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "path to the YAML batch file (required)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func runApply(opts *RootOptions, file string, cmd *cobra.Command) error {
	configureLogging(opts)

	aw, err := loadBatchFile(file)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load batch file", err)
	}

	db, err := kvstore.Open(cmd.Context(), opts.Database, kvstore.Options{})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer db.Close()

	result, err := db.AtomicWrite(cmd.Context(), aw)
	if err != nil {
		return WrapExitError(ExitFailure, "atomic write failed", err)
	}
	if result == nil {
		return WrapExitError(ExitFailure, "a check failed; write was not applied", nil)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "committed versionstamp: %s\n", base64.StdEncoding.EncodeToString(result.Versionstamp[:]))
	return nil
}
