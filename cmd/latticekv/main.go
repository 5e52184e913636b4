// Command latticekv is the operator-facing CLI for the embedded
// transactional key-value store: open/serve a database, run direct
// get/put/delete/scan operations for scripting, submit YAML-described
// atomic writes, and manually drain the durable queue.
package main

import (
	"fmt"
	"os"

	"github.com/latticekv/lattice/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
