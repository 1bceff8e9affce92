// Command taskengine runs the task processing server: the REST API, the
// Processor Registry's background dispatch workers, and startup
// reconciliation of any tasks left inconsistent by a previous crash.
package main

import (
	"fmt"
	"os"

	"github.com/marmos91/taskengine/cmd/taskengine/commands"
)

// Build-time variables injected via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.Version = version
	commands.Commit = commit
	commands.Date = date

	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
