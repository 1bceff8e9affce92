package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/marmos91/taskengine/internal/cliutil"
)

var createParams string

var createCmd = &cobra.Command{
	Use:   "create <data-source> <task-type>",
	Short: "Create a new task",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var params json.RawMessage
		if createParams != "" {
			if !json.Valid([]byte(createParams)) {
				return fmt.Errorf("--params is not valid JSON")
			}
			params = json.RawMessage(createParams)
		}

		task, err := client().CreateTask(cmd.Context(), args[0], args[1], params)
		if err != nil {
			return err
		}
		fmt.Printf("created task %d (status=%s)\n", task.ID, task.Status)
		return nil
	},
}

func init() {
	createCmd.Flags().StringVar(&createParams, "params", "", "task params as a JSON object")
}

var listCursor uint
var listLimit int

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var cursor *uint
		if listCursor != 0 {
			cursor = &listCursor
		}

		list, err := client().ListTasks(cmd.Context(), cursor, listLimit)
		if err != nil {
			return err
		}

		table := cliutil.NewTableData("ID", "STATUS", "DATA SOURCE", "TASK TYPE")
		for _, t := range list.Items {
			table.AddRow(strconv.FormatUint(uint64(t.ID), 10), t.Status, t.DataSource, t.TaskType)
		}
		cliutil.PrintTable(os.Stdout, table)

		if list.NextCursor != nil {
			fmt.Printf("\nnext cursor: %d\n", *list.NextCursor)
		}
		return nil
	},
}

func init() {
	listCmd.Flags().UintVar(&listCursor, "cursor", 0, "pagination cursor")
	listCmd.Flags().IntVar(&listLimit, "limit", 50, "page size")
}

var getCmd = &cobra.Command{
	Use:   "get <task-id>",
	Short: "Show one task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseTaskID(args[0])
		if err != nil {
			return err
		}

		task, err := client().GetTask(cmd.Context(), id)
		if err != nil {
			return err
		}

		pairs := [][2]string{
			{"ID", strconv.FormatUint(uint64(task.ID), 10)},
			{"Status", task.Status},
			{"Data source", task.DataSource},
			{"Task type", task.TaskType},
		}
		if len(task.Params) > 0 {
			pairs = append(pairs, [2]string{"Params", string(task.Params)})
		}
		cliutil.SimpleTable(os.Stdout, pairs)
		return nil
	},
}

var executeCmd = &cobra.Command{
	Use:   "execute <task-id>",
	Short: "Dispatch a task for execution",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseTaskID(args[0])
		if err != nil {
			return err
		}
		if err := client().Execute(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Printf("task %d dispatched\n", id)
		return nil
	},
}

var pauseCmd = &cobra.Command{
	Use:   "pause <task-id>",
	Short: "Request a running task pause at the next safe boundary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseTaskID(args[0])
		if err != nil {
			return err
		}
		if err := client().Pause(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Printf("pause requested for task %d\n", id)
		return nil
	},
}

var progressCmd = &cobra.Command{
	Use:   "progress <task-id>",
	Short: "Show a task's queue counts and current segment size",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseTaskID(args[0])
		if err != nil {
			return err
		}

		prog, err := client().GetProgress(cmd.Context(), id)
		if err != nil {
			return err
		}

		cliutil.SimpleTable(os.Stdout, [][2]string{
			{"Status", prog.Status},
			{"Success", strconv.FormatInt(prog.Success, 10)},
			{"Failure", strconv.FormatInt(prog.Failure, 10)},
			{"No output", strconv.FormatInt(prog.NoOutput, 10)},
			{"Remaining", strconv.FormatInt(prog.Remaining, 10)},
			{"Current segment size", strconv.FormatInt(prog.CurrentSegmentSize, 10)},
		})
		return nil
	},
}

func parseTaskID(s string) (uint, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid task id %q", s)
	}
	return uint(n), nil
}
