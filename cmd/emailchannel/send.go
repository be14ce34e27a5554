package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mixelka/emailchannel/internal/dispatch"
	"github.com/mixelka/emailchannel/internal/email"
)

func newSendCmd(opts *rootOptions) *cobra.Command {
	var req email.SendRequest

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send one email through a configured account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}

			app, err := wireApp(cfg, logger, dispatch.Multi{})
			if err != nil {
				return err
			}
			defer app.Close()

			id, err := app.manager.SendText(cmd.Context(), req)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.AccountID, "account", "", "account id (default account when empty)")
	cmd.Flags().StringVar(&req.To, "to", "", "recipient address")
	cmd.Flags().StringVar(&req.Text, "text", "", "message text")
	cmd.Flags().StringVar(&req.FilePath, "file", "", "file to attach")
	cmd.Flags().StringVar(&req.MediaURL, "media-url", "", "link appended to the text")
	_ = cmd.MarkFlagRequired("to")

	return cmd
}
