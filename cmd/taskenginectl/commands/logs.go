package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var logsDataSource string

var logsCmd = &cobra.Command{
	Use:   "logs <task-id>",
	Short: "Download a task's log file",
	Long: `Downloads a task's log file and writes it to stdout. Pass
--data-source instead of a task id to download a data source's shared
client log file.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if logsDataSource != "" {
			body, err := client().DownloadClientLogs(cmd.Context(), logsDataSource)
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(body)
			return err
		}

		if len(args) != 1 {
			return fmt.Errorf("a task id is required unless --data-source is given")
		}
		id, err := parseTaskID(args[0])
		if err != nil {
			return err
		}

		body, err := client().DownloadLogs(cmd.Context(), id)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(body)
		return err
	},
}

func init() {
	logsCmd.Flags().StringVar(&logsDataSource, "data-source", "", "download a data source's client log file instead")
}
