// Command taskenginectl is an operator CLI for the task engine's REST API:
// creating, listing, executing, pausing and inspecting tasks, and managing
// each task's durable queues.
package main

import (
	"fmt"
	"os"

	"github.com/marmos91/taskengine/cmd/taskenginectl/commands"
)

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
