package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newLogoutCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "logout [user-id]",
		Short: "Log out the active user or the given user",
		Long: `logout ends a user's session. Anonymous users are removed entirely;
other users stay listed as logged out and can log in again.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withAuth(cmd, func(ctx context.Context, ws *workspace) error {
				var err error
				if len(args) == 1 {
					err = ws.auth.LogoutUserWithID(ctx, args[0])
				} else {
					err = ws.auth.Logout(ctx)
				}
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
				return nil
			})
		},
	}
}

func newRemoveCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "remove [user-id]",
		Short: "Log out and forget the active user or the given user",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withAuth(cmd, func(ctx context.Context, ws *workspace) error {
				var err error
				if len(args) == 1 {
					err = ws.auth.RemoveUserWithID(ctx, args[0])
				} else {
					err = ws.auth.RemoveUser(ctx)
				}
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Removed.")
				return nil
			})
		},
	}
}
