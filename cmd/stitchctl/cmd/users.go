package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/productinfo/stitch-js-sdk/auth"
)

func newUsersCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "List the users known on this machine in login order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withAuth(cmd, func(ctx context.Context, ws *workspace) error {
				users := ws.auth.ListUsers()
				if len(users) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No users.")
					return nil
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "\tID\tTYPE\tPROVIDER\tSTATE\tLAST ACTIVITY")
				for _, u := range users {
					marker := ""
					if u.Active {
						marker = "*"
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
						marker, u.ID, u.UserType, u.LoggedInProviderName, userState(u), formatActivity(u.LastAuthActivity))
				}
				return tw.Flush()
			})
		},
	}
}

func userState(u auth.User) string {
	if u.LoggedIn {
		return "logged in"
	}
	return "logged out"
}

func formatActivity(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}

func newWhoamiCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the active user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withAuth(cmd, func(ctx context.Context, ws *workspace) error {
				user, ok := ws.auth.CurrentUser()
				if !ok {
					return auth.ErrNotLoggedIn
				}
				printUser(cmd.OutOrStdout(), user)
				return nil
			})
		},
	}
}

func newSwitchCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "switch <user-id>",
		Short: "Make a logged-in user the active user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withAuth(cmd, func(ctx context.Context, ws *workspace) error {
				user, err := ws.auth.SwitchToUserWithID(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Switched to %s\n", user.ID)
				return nil
			})
		},
	}
}
