package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/marcus/arcsync/internal/db"
	"github.com/marcus/arcsync/internal/output"
)

var queueCmd = &cobra.Command{
	Use:     "queue",
	Aliases: []string{"q"},
	Short:   "Inspect writes waiting for the connection to return",
	GroupID: "devices",
}

var queueListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List pending operations, oldest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOut, _ := cmd.Flags().GetBool("json")

		database, err := db.Open(cfg.DataDir)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer database.Close()

		ops, err := database.ListOperations(cmd.Context())
		if err != nil {
			if jsonOut {
				output.JSONError(output.ErrCodeDatabase, err.Error())
			} else {
				output.Error("list pending: %v", err)
			}
			return err
		}

		if jsonOut {
			return output.JSON(ops)
		}
		if len(ops) == 0 {
			fmt.Println("No pending operations")
			return nil
		}

		width := output.TerminalWidth(100)
		fmt.Println(output.SectionHeader(fmt.Sprintf("PENDING (%d)", len(ops))))
		for _, op := range ops {
			fmt.Println(output.FormatOperation(op, width))
		}
		return nil
	},
}

var queueRemoveCmd = &cobra.Command{
	Use:     "remove <id>",
	Aliases: []string{"rm"},
	Short:   "Drop a pending operation without sending it",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			output.Error("invalid id %q", args[0])
			return err
		}

		database, err := db.Open(cfg.DataDir)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer database.Close()

		if err := database.RemoveOperation(cmd.Context(), id); err != nil {
			output.Error("remove %d: %v", id, err)
			return err
		}
		output.Success("Removed pending operation %d", id)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(queueCmd)
	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueRemoveCmd)

	queueListCmd.Flags().Bool("json", false, "Output as JSON")
}
