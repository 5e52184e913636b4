package cli

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/latticekv/lattice/internal/kvstore"
)

// NewDequeueCommand creates the dequeue command.
func NewDequeueCommand(rootOpts *RootOptions) *cobra.Command {
	var timeout time.Duration
	var yes bool
	cmd := &cobra.Command{
		Use:   "dequeue",
		Short: "Pull the next queue message and prompt to finish it",
		Long: `Pull the next ready queue message, print its payload, and ask
whether to report it as delivered or failed. Useful for draining a
dead-letter-prone queue by hand during an incident.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDequeue(rootOpts, timeout, yes, cmd)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "how long to wait for a message before giving up")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "report the message as delivered without prompting")
	return cmd
}

func runDequeue(opts *RootOptions, timeout time.Duration, yes bool, cmd *cobra.Command) error {
	configureLogging(opts)

	db, err := kvstore.Open(cmd.Context(), opts.Database, kvstore.Options{})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer db.Close()

	dctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	msg, err := db.DequeueNextMessage(dctx)
	if err != nil {
		return WrapExitError(ExitFailure, "no message available", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "payload: %s\n", base64.StdEncoding.EncodeToString(msg.Payload))

	success := yes
	if !yes {
		success = promptYesNo(cmd, "mark delivered? [y/N] ")
	}

	if err := msg.Finish(cmd.Context(), success); err != nil {
		return WrapExitError(ExitFailure, "failed to finish message", err)
	}
	if success {
		fmt.Fprintln(cmd.OutOrStdout(), "marked delivered")
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), "marked failed; requeued per its backoff schedule, or dead-lettered if the schedule is exhausted")
	}
	return nil
}

func promptYesNo(cmd *cobra.Command, prompt string) bool {
	fmt.Fprint(cmd.OutOrStdout(), prompt)
	scanner := bufio.NewScanner(cmd.InOrStdin())
	if !scanner.Scan() {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
	return answer == "y" || answer == "yes"
}
