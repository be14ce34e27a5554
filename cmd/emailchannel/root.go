package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/mixelka/emailchannel/internal/config"
)

// Execute runs the root command
func Execute() error {
	return newRootCmd().Execute()
}

type rootOptions struct {
	accountsFile string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "emailchannel",
		Short:         "Email as a chat channel",
		Long:          "emailchannel polls IMAP inboxes, hands new mail to a webhook or Telegram chat and sends the replies back over SMTP.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVar(&opts.accountsFile, "accounts", "", "accounts file (overrides ACCOUNTS_FILE)")

	rootCmd.AddCommand(
		newRunCmd(opts),
		newAccountsCmd(opts),
		newSendCmd(opts),
	)

	return rootCmd
}

// load reads the process config and builds the logger
func (o *rootOptions) load() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if o.accountsFile != "" {
		cfg.AccountsFile = o.accountsFile
	}
	return cfg, setupLogger(cfg.LogLevel, cfg.LogFormat, cfg.LogFile), nil
}
