package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/latticekv/lattice/internal/kvstore"
)

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <key-part> [key-part...]",
		Short: "Delete a single key",
		Args:  cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(rootOpts, args, cmd)
		},
	}
	return cmd
}

func runDelete(opts *RootOptions, keyParts []string, cmd *cobra.Command) error {
	configureLogging(opts)
	key, err := parseKeyParts(keyParts)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid key", err)
	}

	db, err := kvstore.Open(cmd.Context(), opts.Database, kvstore.Options{})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer db.Close()

	_, err = db.AtomicWrite(cmd.Context(), kvstore.AtomicWrite{
		Mutations: []kvstore.Mutation{{Key: key, Kind: kvstore.MutationDelete}},
	})
	if err != nil {
		return WrapExitError(ExitFailure, "delete failed", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "deleted")
	return nil
}
