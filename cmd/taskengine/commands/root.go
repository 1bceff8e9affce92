// Package commands implements the taskengine server's cobra command tree,
// grounded on the teacher's cmd/dfs/commands package (the cobra-based
// entrypoint, as opposed to the teacher's alternate flag-parsing
// cmd/dittofs/main.go).
package commands

import (
	"github.com/spf13/cobra"
)

// Version, Commit and Date are set from main via ldflags.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "taskengine",
	Short: "Durable, resumable, rate-limited task processing server",
	Long: `taskengine runs tasks that fetch items from a paginated or
per-item data source, persist progress so a crash never loses more than
the in-flight batch, and stream fetched output to compressed segments
uploaded to object storage.`,
	Version: Version,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to config file (default: $XDG_CONFIG_HOME/taskengine/config.yaml)")
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(logsCmd)
}

// GetConfigFile returns the --config flag value, empty if unset.
func GetConfigFile() string {
	return configFile
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
