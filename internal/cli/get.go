package cli

import (
	"encoding/base64"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/latticekv/lattice/internal/kvstore"
)

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "get <key-part> [key-part...]",
		Short: "Read a single key",
		Args:  cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(rootOpts, args, cmd)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 1, "unused, reserved for symmetry with scan")
	return cmd
}

func runGet(opts *RootOptions, keyParts []string, cmd *cobra.Command) error {
	configureLogging(opts)
	key, err := parseKeyParts(keyParts)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid key", err)
	}
	encoded, err := encodeKeyArg(key)
	if err != nil {
		return WrapExitError(ExitCommandError, "encode key", err)
	}

	db, err := kvstore.Open(cmd.Context(), opts.Database, kvstore.Options{})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer db.Close()

	out, err := db.SnapshotRead(cmd.Context(), []kvstore.ReadRange{
		{Selector: kvstore.Selector{Start: encoded}, Limit: 1},
	})
	if err != nil {
		return WrapExitError(ExitFailure, "read failed", err)
	}

	if len(out[0]) == 0 {
		return WrapExitError(ExitFailure, "key not found", nil)
	}
	entry := out[0][0]
	fmt.Fprintf(cmd.OutOrStdout(), "versionstamp: %s\n", base64.StdEncoding.EncodeToString(entry.Versionstamp[:]))
	fmt.Fprintf(cmd.OutOrStdout(), "value: %s\n", describeValue(entry.Value))
	return nil
}
