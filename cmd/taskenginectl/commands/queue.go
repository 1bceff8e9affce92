package commands

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marmos91/taskengine/internal/cliutil"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and manage a task's durable queues",
}

var queueListCursor uint
var queueListLimit int

var queueListCmd = &cobra.Command{
	Use:   "list <task-id> <queue>",
	Short: "List items in one of a task's queues (inputs, successes, failures, no-output)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseTaskID(args[0])
		if err != nil {
			return err
		}

		var cursor *uint
		if queueListCursor != 0 {
			cursor = &queueListCursor
		}

		list, err := client().ListQueueItems(cmd.Context(), id, args[1], cursor, queueListLimit)
		if err != nil {
			return err
		}

		table := cliutil.NewTableData("ID", "TIMESTAMP", "DATA")
		for _, it := range list.Items {
			table.AddRow(strconv.FormatUint(uint64(it.ID), 10), it.Timestamp, string(it.Data))
		}
		cliutil.PrintTable(os.Stdout, table)

		fmt.Printf("\ntotal: %d\n", list.Total)
		if list.NextCursor != nil {
			fmt.Printf("next cursor: %d\n", *list.NextCursor)
		}
		return nil
	},
}

var queueDeleteForce bool

var queueDeleteCmd = &cobra.Command{
	Use:   "delete <task-id> <queue> <id> [id...]",
	Short: "Remove items from one of a task's queues by id",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseTaskID(args[0])
		if err != nil {
			return err
		}
		queue := args[1]

		ids := make([]uint, 0, len(args)-2)
		for _, raw := range args[2:] {
			itemID, err := parseTaskID(raw)
			if err != nil {
				return err
			}
			ids = append(ids, itemID)
		}

		confirmed, err := cliutil.ConfirmWithForce(
			fmt.Sprintf("delete %d item(s) from task %d's %s queue?", len(ids), id, queue), queueDeleteForce)
		if err != nil {
			return err
		}
		if !confirmed {
			fmt.Println("aborted")
			return nil
		}

		removed, err := client().DeleteQueueItems(cmd.Context(), id, queue, ids)
		if err != nil {
			return err
		}
		fmt.Printf("removed %d item(s)\n", removed)
		return nil
	},
}

func init() {
	queueListCmd.Flags().UintVar(&queueListCursor, "cursor", 0, "pagination cursor")
	queueListCmd.Flags().IntVar(&queueListLimit, "limit", 50, "page size")
	queueDeleteCmd.Flags().BoolVarP(&queueDeleteForce, "force", "y", false, "skip the confirmation prompt")

	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueDeleteCmd)
}

// validQueueNames documents the accepted <queue> values for help text.
var validQueueNames = strings.Join([]string{"inputs", "successes", "failures", "no-output"}, ", ")
