package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/productinfo/stitch-js-sdk/auth"
)

func newRefreshCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Refresh the active user's access token now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withAuth(cmd, func(ctx context.Context, ws *workspace) error {
				if err := ws.auth.RefreshAccessToken(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Access token refreshed.")
				return nil
			})
		},
	}
}

func newKeepaliveCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "keepalive",
		Short: "Keep the active user's access token fresh until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return c.withAuth(cmd, func(_ context.Context, ws *workspace) error {
				r := auth.NewRefresher(ws.auth,
					auth.WithInterval(c.cfg.RefreshInterval),
					auth.WithWindow(c.cfg.ExpirationWindow),
				)
				fmt.Fprintf(cmd.OutOrStdout(), "Refreshing every %s, press Ctrl-C to stop\n", c.cfg.RefreshInterval)
				r.Run(ctx)
				return nil
			})
		},
	}
}
