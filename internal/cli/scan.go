package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/latticekv/lattice/internal/kvstore"
)

// NewScanCommand creates the scan command.
func NewScanCommand(rootOpts *RootOptions) *cobra.Command {
	var limit int
	var reverse bool
	var cursor string
	cmd := &cobra.Command{
		Use:   "scan <prefix-part> [prefix-part...]",
		Short: "Scan every key under a prefix",
		Args:  cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(rootOpts, args, limit, reverse, cursor, cmd)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum entries to return")
	cmd.Flags().BoolVar(&reverse, "reverse", false, "scan in descending key order")
	cmd.Flags().StringVar(&cursor, "cursor", "", "resume cursor from a prior scan's \"# next cursor\" line")
	return cmd
}

func runScan(opts *RootOptions, prefixParts []string, limit int, reverse bool, cursor string, cmd *cobra.Command) error {
	configureLogging(opts)
	prefixKey, err := parseKeyParts(prefixParts)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid prefix", err)
	}
	prefix, err := encodeKeyArg(prefixKey)
	if err != nil {
		return WrapExitError(ExitCommandError, "encode prefix", err)
	}

	db, err := kvstore.Open(cmd.Context(), opts.Database, kvstore.Options{})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer db.Close()

	sel := kvstore.Selector{Prefix: prefix}
	out, err := db.SnapshotRead(cmd.Context(), []kvstore.ReadRange{
		{Selector: sel, Limit: limit, Reverse: reverse, Cursor: cursor},
	})
	if err != nil {
		return WrapExitError(ExitFailure, "scan failed", err)
	}

	entries := out[0]
	for _, e := range entries {
		fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", renderKey(e.Key), describeValue(e.Value))
	}
	if len(entries) > 0 {
		last := entries[len(entries)-1].Key
		lastKeyBytes, encErr := encodeKeyArg(last)
		if encErr == nil {
			if next, cursorErr := kvstore.EncodeCursor(sel, lastKeyBytes); cursorErr == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "# next cursor: %s\n", next)
			}
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "# %d entries\n", len(entries))
	return nil
}
