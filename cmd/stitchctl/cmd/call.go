package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newCallCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "call <function> [json-arg...]",
		Short: "Call a server function as the active user",
		Long: `call runs a server function with the active user's access token and
prints the JSON result. Each argument is parsed as JSON; arguments that are
not valid JSON are sent as strings.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fnArgs := parseArgs(args[1:])
			return c.withAuth(cmd, func(ctx context.Context, ws *workspace) error {
				var out json.RawMessage
				err := ws.auth.DoAuthenticated(ctx, func(ctx context.Context, accessToken string) error {
					return ws.client.CallFunction(ctx, accessToken, args[0], fnArgs, &out)
				})
				if err != nil {
					return fmt.Errorf("calling %s: %w", args[0], err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return nil
			})
		},
	}
}

func parseArgs(raw []string) []any {
	out := make([]any, 0, len(raw))
	for _, s := range raw {
		var v any
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			v = s
		}
		out = append(out, v)
	}
	return out
}
