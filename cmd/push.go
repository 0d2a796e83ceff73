package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/marcus/arcsync/internal/apiclient"
	"github.com/marcus/arcsync/internal/output"
)

var pushCmd = &cobra.Command{
	Use:     "push",
	Short:   "Talk to the push notification backend",
	GroupID: "push",
}

var pushSubscribeCmd = &cobra.Command{
	Use:   "subscribe",
	Short: "Register a Web Push subscription",
	RunE: func(cmd *cobra.Command, args []string) error {
		endpoint, _ := cmd.Flags().GetString("endpoint")
		p256dh, _ := cmd.Flags().GetString("p256dh")
		auth, _ := cmd.Flags().GetString("auth")

		res, err := pushClient(cfg).Subscribe(cmd.Context(), endpoint, p256dh, auth)
		if err != nil {
			reportPushError(err)
			return err
		}
		output.Success("%s (id %d)", res.Message, res.ID)
		return nil
	},
}

var pushNotifyCmd = &cobra.Command{
	Use:   "notify <message>",
	Short: "Send a notification to the current subscriber",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOut, _ := cmd.Flags().GetBool("json")

		res, err := pushClient(cfg).SendNotification(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			if jsonOut {
				output.JSONError(pushErrorCode(err), err.Error())
			} else {
				reportPushError(err)
			}
			return err
		}
		if jsonOut {
			return output.JSON(res)
		}
		if res.FailedCount > 0 {
			output.Warning("Delivery failed; the subscription was removed.")
			return nil
		}
		output.Success("%s (%d sent)", res.Message, res.TotalSent)
		return nil
	},
}

var pushListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List registered subscriptions",
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOut, _ := cmd.Flags().GetBool("json")

		subs, err := pushClient(cfg).Subscriptions(cmd.Context())
		if err != nil {
			reportPushError(err)
			return err
		}
		if jsonOut {
			return output.JSON(subs)
		}
		if len(subs) == 0 {
			fmt.Println("No subscriptions")
			return nil
		}
		width := output.TerminalWidth(100)
		for _, s := range subs {
			when := s.CreatedAt
			if t, err := time.Parse(time.RFC3339, s.CreatedAt); err == nil {
				when = output.FormatTimeAgo(t)
			}
			head := fmt.Sprintf("#%-4d %-10s ", s.ID, when)
			fmt.Println(head + output.Truncate(s.Endpoint, width-len(head)))
		}
		return nil
	},
}

var pushVapidKeyCmd = &cobra.Command{
	Use:   "vapid-key",
	Short: "Print the backend's VAPID public key",
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := pushClient(cfg).VapidPublicKey(cmd.Context())
		if err != nil {
			reportPushError(err)
			return err
		}
		fmt.Println(key)
		return nil
	},
}

func pushErrorCode(err error) string {
	switch {
	case errors.Is(err, apiclient.ErrUnreachable):
		return output.ErrCodeUnreachable
	case errors.Is(err, apiclient.ErrNotFound):
		return output.ErrCodeNotFound
	default:
		return output.ErrCodeInvalidInput
	}
}

func reportPushError(err error) {
	switch {
	case errors.Is(err, apiclient.ErrUnreachable):
		output.Error("push backend unreachable at %s", cfg.PushAPI.URL)
	case errors.Is(err, apiclient.ErrNotFound):
		output.Error("no subscription registered")
	default:
		output.Error("%v", err)
	}
}

func init() {
	rootCmd.AddCommand(pushCmd)
	pushCmd.AddCommand(pushSubscribeCmd, pushNotifyCmd, pushListCmd, pushVapidKeyCmd)

	pushSubscribeCmd.Flags().String("endpoint", "", "Push service endpoint URL")
	pushSubscribeCmd.Flags().String("p256dh", "", "Client public key (base64url)")
	pushSubscribeCmd.Flags().String("auth", "", "Client auth secret (base64url)")
	pushSubscribeCmd.MarkFlagRequired("endpoint")
	pushSubscribeCmd.MarkFlagRequired("p256dh")
	pushSubscribeCmd.MarkFlagRequired("auth")

	pushNotifyCmd.Flags().Bool("json", false, "Output as JSON")
	pushListCmd.Flags().Bool("json", false, "Output as JSON")
}
