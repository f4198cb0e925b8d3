package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/productinfo/stitch-js-sdk/auth"
)

// credentialFlags are shared by login and link.
type credentialFlags struct {
	provider string
	name     string
	username string
	password string
	token    string
}

func (f *credentialFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.provider, "provider", "anon", "Provider: anon, userpass or custom")
	cmd.Flags().StringVar(&f.name, "provider-name", "", "Provider name when it differs from the provider type")
	cmd.Flags().StringVarP(&f.username, "username", "u", "", "Username or email (userpass)")
	cmd.Flags().StringVarP(&f.password, "password", "P", "", "Password (userpass)")
	cmd.Flags().StringVar(&f.token, "token", "", "Signed JWT (custom)")
}

func (f *credentialFlags) credential() (auth.Credential, error) {
	switch f.provider {
	case "anon", auth.ProviderTypeAnonymous:
		return auth.AnonymousCredential{Name: f.name}, nil
	case "userpass", auth.ProviderTypeUserPassword:
		if f.username == "" || f.password == "" {
			return nil, fmt.Errorf("--username and --password are required for userpass")
		}
		return auth.UserPasswordCredential{Name: f.name, Username: f.username, Password: f.password}, nil
	case "custom", auth.ProviderTypeCustom:
		if f.token == "" {
			return nil, fmt.Errorf("--token is required for custom")
		}
		return auth.CustomCredential{Name: f.name, Token: f.token}, nil
	default:
		return nil, fmt.Errorf("unknown provider %q", f.provider)
	}
}

func newLoginCmd(c *cli) *cobra.Command {
	var f credentialFlags
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in a user and make it active",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cred, err := f.credential()
			if err != nil {
				return err
			}
			return c.withAuth(cmd, func(ctx context.Context, ws *workspace) error {
				user, err := ws.auth.LoginWithCredential(ctx, cred)
				if err != nil {
					return fmt.Errorf("login failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", user.ID)
				return nil
			})
		},
	}
	f.register(cmd)
	return cmd
}

func newLinkCmd(c *cli) *cobra.Command {
	var f credentialFlags
	var userID string
	cmd := &cobra.Command{
		Use:   "link",
		Short: "Link another identity to a logged-in user",
		Long: `link attaches the identity behind the given credential to a user,
the active one unless --user is set. Linking an anonymous user converts it
into a regular user.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cred, err := f.credential()
			if err != nil {
				return err
			}
			return c.withAuth(cmd, func(ctx context.Context, ws *workspace) error {
				id := userID
				if id == "" {
					current, ok := ws.auth.CurrentUser()
					if !ok {
						return auth.ErrNotLoggedIn
					}
					id = current.ID
				}
				user, err := ws.auth.LinkWithCredential(ctx, id, cred)
				if err != nil {
					return fmt.Errorf("link failed: %w", err)
				}
				printUser(cmd.OutOrStdout(), user)
				return nil
			})
		},
	}
	f.register(cmd)
	cmd.Flags().StringVar(&userID, "user", "", "User to link (default: the active user)")
	return cmd
}

func newRegisterCmd(c *cli) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a username/password account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" || password == "" {
				return fmt.Errorf("--email and --password are required")
			}
			return c.withAuth(cmd, func(ctx context.Context, ws *workspace) error {
				if err := ws.client.RegisterWithEmail(ctx, email, password); err != nil {
					return fmt.Errorf("registration failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Registered %s\n", email)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().StringVarP(&password, "password", "P", "", "Password")
	return cmd
}

func printUser(w io.Writer, u auth.User) {
	fmt.Fprintf(w, "User:      %s\n", u.ID)
	fmt.Fprintf(w, "Type:      %s\n", u.UserType)
	fmt.Fprintf(w, "Provider:  %s (%s)\n", u.LoggedInProviderName, u.LoggedInProviderType)
	fmt.Fprintf(w, "Device:    %s\n", u.DeviceID)
	fmt.Fprintf(w, "Logged in: %t\n", u.LoggedIn)
	fmt.Fprintf(w, "Active:    %t\n", u.Active)
	for _, id := range u.Identities {
		fmt.Fprintf(w, "Identity:  %s %s\n", id.ProviderType, id.ID)
	}
}
