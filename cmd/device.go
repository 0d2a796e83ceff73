package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/marcus/arcsync/internal/db"
	"github.com/marcus/arcsync/internal/models"
	"github.com/marcus/arcsync/internal/output"
)

var deviceCmd = &cobra.Command{
	Use:     "device",
	Short:   "Register devices with the device API",
	GroupID: "devices",
}

var deviceAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a device, queueing it if the device API is unreachable",
	Example: `  arcsync device add --name lobby --address 10.0.0.12 --http-port 80 --rtsp-port 554 --type camera`,
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOut, _ := cmd.Flags().GetBool("json")

		d := models.DevicePayload{}
		d.Name, _ = cmd.Flags().GetString("name")
		d.Address, _ = cmd.Flags().GetString("address")
		d.HttpPort, _ = cmd.Flags().GetInt("http-port")
		d.RtspPort, _ = cmd.Flags().GetInt("rtsp-port")
		d.UserName, _ = cmd.Flags().GetString("username")
		d.Password, _ = cmd.Flags().GetString("password")
		d.Type, _ = cmd.Flags().GetString("type")

		database, err := db.Open(cfg.DataDir)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer database.Close()

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		status, err := openStatus(ctx, cfg)
		if err != nil {
			output.Error("connectivity: %v", err)
			return err
		}

		res, err := newEngine(database, status, cfg).Submit(ctx, d)
		if err != nil {
			if jsonOut {
				output.JSONError(output.ErrCodeInvalidInput, err.Error())
			} else {
				output.Error("add device: %v", err)
			}
			return err
		}

		if jsonOut {
			return output.JSON(map[string]any{
				"queued":   res.Queued,
				"queue_id": res.QueueID,
				"name":     d.Name,
			})
		}
		if res.Queued {
			output.Warning("Device %q saved offline (queue #%d); it will sync when the connection returns.", d.Name, res.QueueID)
			return nil
		}
		output.Success("Device %q added.", d.Name)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(deviceCmd)
	deviceCmd.AddCommand(deviceAddCmd)

	f := deviceAddCmd.Flags()
	f.String("name", "", "Device name")
	f.String("address", "", "Device host or IP address")
	f.Int("http-port", 80, "HTTP port")
	f.Int("rtsp-port", 554, "RTSP port")
	f.String("username", "", "Device username")
	f.String("password", "", "Device password")
	f.String("type", "", "Device type")
	f.Bool("json", false, "Output as JSON")
	deviceAddCmd.MarkFlagRequired("name")
	deviceAddCmd.MarkFlagRequired("address")
	deviceAddCmd.MarkFlagRequired("type")
}
