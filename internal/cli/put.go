package cli

import (
	"encoding/base64"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/latticekv/lattice/internal/kvstore"
	"github.com/latticekv/lattice/internal/kvvalue"
)

// NewPutCommand creates the put command.
func NewPutCommand(rootOpts *RootOptions) *cobra.Command {
	var valueStr string
	var expireInMs int64
	cmd := &cobra.Command{
		Use:   "put <key-part> [key-part...] --value <text>",
		Short: "Set a single key to a UTF-8 text value",
		Args:  cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPut(rootOpts, args, valueStr, expireInMs, cmd)
		},
	}
	cmd.Flags().StringVar(&valueStr, "value", "", "value to store (UTF-8 text, stored as raw bytes)")
	cmd.Flags().Int64Var(&expireInMs, "expire-in-ms", 0, "optional expiration relative to commit time, in milliseconds")
	_ = cmd.MarkFlagRequired("value")
	return cmd
}

func runPut(opts *RootOptions, keyParts []string, valueStr string, expireInMs int64, cmd *cobra.Command) error {
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

	mutation := kvstore.Mutation{Key: key, Kind: kvstore.MutationSet, Value: kvvalue.RawBytes(valueStr)}
	if expireInMs > 0 {
		mutation.ExpireInMs = &expireInMs
	}

	result, err := db.AtomicWrite(cmd.Context(), kvstore.AtomicWrite{Mutations: []kvstore.Mutation{mutation}})
	if err != nil {
		return WrapExitError(ExitFailure, "write failed", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "committed versionstamp: %s\n", base64.StdEncoding.EncodeToString(result.Versionstamp[:]))
	return nil
}
