// Package commands implements taskenginectl's cobra command tree, a thin
// HTTP-client CLI over the task engine's REST API (internal/apiclient),
// shaped after the teacher's cmd/dfs/commands package.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/taskengine/internal/apiclient"
)

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var serverURL string

var rootCmd = &cobra.Command{
	Use:     "taskenginectl",
	Short:   "Operate a task engine server over its REST API",
	Version: Version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "task engine server base URL")
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(executeCmd)
	rootCmd.AddCommand(pauseCmd)
	rootCmd.AddCommand(progressCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(inputsCmd)
	rootCmd.AddCommand(logsCmd)
}

func client() *apiclient.Client {
	return apiclient.New(serverURL)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
