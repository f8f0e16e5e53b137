package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/herodrop/rewards-service/internal/app"
	"github.com/herodrop/rewards-service/internal/notify"
	"github.com/spf13/cobra"
)

var broadcastReq app.BroadcastRequest

var broadcastCmd = &cobra.Command{
	Use:   "broadcast",
	Short: "Send one broadcast SMS from a template or custom message",
	Example: `  herodrop broadcast --phone 0712345678 --template urgent-blood-need --name Jane
  herodrop broadcast --phone +254712345678 --message "Hi {{userName}}, thank you!"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		b := app.NewBroadcaster(notify.NewDispatcher(newSender(cfg, logger), logger), logger)
		res, err := b.Send(ctx, broadcastReq)
		if err != nil {
			return err
		}
		if !res.Success {
			return errors.New(res.Message)
		}
		fmt.Fprintln(cmd.OutOrStdout(), res.Message)
		fmt.Fprintln(cmd.OutOrStdout(), res.Text)
		return nil
	},
}

func init() {
	f := broadcastCmd.Flags()
	f.StringVar(&broadcastReq.PhoneNumber, "phone", "", "recipient phone number")
	f.StringVar(&broadcastReq.Template, "template", app.TemplateCustom, "custom, new-service, reward-offer or urgent-blood-need")
	f.StringVar(&broadcastReq.Message, "message", "", "custom message text; overrides the template")
	f.StringVar(&broadcastReq.UserName, "name", "", "recipient name substituted for {{userName}}")
	_ = broadcastCmd.MarkFlagRequired("phone")
}
