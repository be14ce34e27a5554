package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mixelka/emailchannel/internal/config"
)

func newAccountsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "accounts",
		Short: "List configured email accounts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := opts.load()
			if err != nil {
				return err
			}
			accounts, err := config.LoadAccounts(cfg.AccountsFile)
			if err != nil {
				return err
			}

			ids := accounts.ListAccountIDs()
			if len(ids) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no accounts configured")
				return nil
			}

			defaultID := accounts.DefaultAccountID()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "ID\tFROM\tCONFIGURED\tENABLED\tDEFAULT")
			var hints []string
			for _, id := range ids {
				acc, err := accounts.ResolveAccount(id)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(w, "%s\t%s\t%t\t%t\t%t\n", acc.ID, acc.FromAddress, acc.Configured, acc.Enabled, id == defaultID)

				if !acc.Configured && acc.FromAddress != "" && (acc.IMAP.Host == "" || acc.SMTP.Host == "") {
					if h, known := config.SuggestEndpoints(acc.FromAddress); known {
						hints = append(hints, fmt.Sprintf("%s: try imap %s:%d and smtp %s:%d", id, h.IMAP.Host, h.IMAP.Port, h.SMTP.Host, h.SMTP.Port))
					}
				}
			}
			if err := w.Flush(); err != nil {
				return err
			}

			for _, h := range hints {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), h)
			}
			return nil
		},
	}
}
