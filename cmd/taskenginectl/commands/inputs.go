package commands

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var inputsFile string

var inputsCmd = &cobra.Command{
	Use:   "inputs <task-id>",
	Short: "Append inputs to a task's input queue, one JSON value per line",
	Long: `Reads newline-delimited JSON values from --file (or stdin when
--file is omitted) and appends them to the task's input queue.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseTaskID(args[0])
		if err != nil {
			return err
		}

		src := cmd.InOrStdin()
		if inputsFile != "" {
			f, err := os.Open(inputsFile)
			if err != nil {
				return err
			}
			defer f.Close()
			src = f
		}

		var inputs []json.RawMessage
		scanner := bufio.NewScanner(src)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(bytesTrim(line)) == 0 {
				continue
			}
			if !json.Valid(line) {
				return fmt.Errorf("invalid JSON line: %s", line)
			}
			inputs = append(inputs, json.RawMessage(append([]byte(nil), line...)))
		}
		if err := scanner.Err(); err != nil {
			return err
		}
		if len(inputs) == 0 {
			return fmt.Errorf("no inputs read")
		}

		if err := client().AddInputs(cmd.Context(), id, inputs); err != nil {
			return err
		}
		fmt.Printf("added %d input(s) to task %d\n", len(inputs), id)
		return nil
	},
}

func init() {
	inputsCmd.Flags().StringVar(&inputsFile, "file", "", "file of newline-delimited JSON inputs (default: stdin)")
}

func bytesTrim(b []byte) []byte {
	start, end := 0, len(b)
	for start < end && (b[start] == ' ' || b[start] == '\t' || b[start] == '\r') {
		start++
	}
	for end > start && (b[end-1] == ' ' || b[end-1] == '\t' || b[end-1] == '\r') {
		end--
	}
	return b[start:end]
}
