package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marcus/arcsync/internal/db"
	"github.com/marcus/arcsync/internal/output"
)

var eventsCmd = &cobra.Command{
	Use:     "events",
	Aliases: []string{"log"},
	Short:   "Show the geofence monitor's diagnostic log",
	GroupID: "agent",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		jsonOut, _ := cmd.Flags().GetBool("json")

		database, err := db.Open(cfg.DataDir)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer database.Close()

		events, err := database.ListEvents(cmd.Context(), limit)
		if err != nil {
			if jsonOut {
				output.JSONError(output.ErrCodeDatabase, err.Error())
			} else {
				output.Error("read events: %v", err)
			}
			return err
		}

		if jsonOut {
			return output.JSON(events)
		}
		if len(events) == 0 {
			fmt.Println("No events recorded")
			return nil
		}
		for _, e := range events {
			fmt.Println(output.FormatEvent(e))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)

	eventsCmd.Flags().IntP("limit", "n", 50, "Max events to show")
	eventsCmd.Flags().Bool("json", false, "Output as JSON")
}
