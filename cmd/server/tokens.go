package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/eGGnogSC/qbinvoice/config"
	"github.com/eGGnogSC/qbinvoice/infrastructure"
	"github.com/eGGnogSC/qbinvoice/internal/auth"
	"github.com/eGGnogSC/qbinvoice/internal/logging"
)

func tokensCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tokens",
		Short: "Inspect stored OAuth tokens",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List companies with stored tokens and their expiry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			container, err := infrastructure.NewContainer(ctx, cfg, logging.NewLogger("warn"))
			if err != nil {
				return err
			}
			defer container.Shutdown()

			return listTokens(ctx, cmd.OutOrStdout(), container.TokenStore, time.Now())
		},
	})
	return cmd
}

// listTokens prints one row per company. Token values are never printed.
func listTokens(ctx context.Context, out io.Writer, store auth.TokenStore, now time.Time) error {
	companies, err := store.Companies(ctx)
	if err != nil {
		return fmt.Errorf("failed to list companies: %w", err)
	}
	if len(companies) == 0 {
		fmt.Fprintln(out, "No stored tokens. Authorize a company at /auth/authorize.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "COMPANY\tEXPIRES AT\tSTATUS")
	for _, id := range companies {
		token, err := store.GetToken(ctx, id)
		if err != nil {
			fmt.Fprintf(w, "%s\t-\terror: %v\n", id, err)
			continue
		}

		status := "valid"
		switch {
		case token.ExpiresAt.IsZero() || !token.ExpiresAt.After(now):
			status = "expired"
		case token.NeedsRefresh(now):
			status = "refresh due"
		}

		expires := "unknown"
		if !token.ExpiresAt.IsZero() {
			expires = token.ExpiresAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", id, expires, status)
	}
	return w.Flush()
}
