package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/productinfo/stitch-js-sdk/auth"
	"github.com/productinfo/stitch-js-sdk/client"
	"github.com/productinfo/stitch-js-sdk/config"
	"github.com/productinfo/stitch-js-sdk/internal/telemetry"
	"github.com/productinfo/stitch-js-sdk/session"
)

// Version is set at build time with -ldflags.
var Version = "dev"

// cli holds state shared by every subcommand of one invocation.
type cli struct {
	configPath  string
	appID       string
	baseURL     string
	backend     string
	storagePath string
	logLevel    string

	cfg    config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "stitchctl",
		Short: "Manage the users logged in on this machine",
		Long: `stitchctl keeps several users of one application logged in at once,
switches between them, and runs a local development backend.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.load(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&c.configPath, "config", os.Getenv("STITCH_CONFIG"), "Path to YAML config file")
	pf.StringVar(&c.appID, "app-id", "", "Application id")
	pf.StringVar(&c.baseURL, "base-url", "", "Backend base URL")
	pf.StringVar(&c.backend, "storage", "", "Storage backend: memory, bbolt, sqlite or postgres")
	pf.StringVar(&c.storagePath, "storage-path", "", "Storage file (bbolt, sqlite) or DSN (postgres)")
	pf.StringVar(&c.logLevel, "log-level", "", "Log level: debug, info, warn or error")

	root.AddCommand(
		newServeCmd(c),
		newRegisterCmd(c),
		newLoginCmd(c),
		newLinkCmd(c),
		newUsersCmd(c),
		newWhoamiCmd(c),
		newSwitchCmd(c),
		newLogoutCmd(c),
		newRemoveCmd(c),
		newRefreshCmd(c),
		newCallCmd(c),
		newKeepaliveCmd(c),
	)
	return root
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
		os.Exit(1)
	}
}

// load resolves configuration: file and environment first, then flags.
func (c *cli) load(cmd *cobra.Command) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("app-id") {
		cfg.AppID = c.appID
	}
	if flags.Changed("base-url") {
		cfg.BaseURL = c.baseURL
	}
	if flags.Changed("storage") {
		cfg.Storage.Backend = c.backend
	}
	if flags.Changed("storage-path") {
		if cfg.Storage.Backend == config.BackendPostgres {
			cfg.Storage.DSN = c.storagePath
		} else {
			cfg.Storage.Path = c.storagePath
		}
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = c.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	c.cfg = cfg
	c.logger = config.NewLogger(cfg.LogLevel)
	return nil
}

// workspace is an open session store plus the Auth and Client over it.
type workspace struct {
	auth   *auth.Auth
	client *client.Client
	close  func()
}

// open builds the Auth for the configured application. The background
// refresher is not started; commands are short-lived.
func (c *cli) open(ctx context.Context) (*workspace, error) {
	shutdown, err := telemetry.Setup(ctx, "stitchctl", c.cfg.OTelEndpoint)
	if err != nil {
		return nil, fmt.Errorf("setting up tracing: %w", err)
	}

	repo, closeRepo, err := config.OpenRepository(ctx, c.cfg.Storage)
	if err != nil {
		shutdown(ctx)
		return nil, err
	}
	var opts []session.Option
	key, err := c.cfg.EncryptionKeyBytes()
	if err != nil {
		closeRepo()
		shutdown(ctx)
		return nil, err
	}
	if key != nil {
		opts = append(opts, session.WithEncryptionKey(key))
	}
	store, err := session.Open(ctx, repo, c.cfg.AppID, opts...)
	if err != nil {
		closeRepo()
		shutdown(ctx)
		return nil, fmt.Errorf("opening session store: %w", err)
	}

	cl, err := client.New(c.cfg.BaseURL, c.cfg.AppID,
		client.WithLogger(c.logger),
		client.WithHTTPClient(&http.Client{Timeout: c.cfg.RequestTimeout}),
	)
	if err != nil {
		closeRepo()
		shutdown(ctx)
		return nil, err
	}
	a := auth.New(cl, store,
		auth.WithLogger(c.logger),
		auth.WithoutRefresher(),
		auth.WithRefreshInterval(c.cfg.RefreshInterval),
		auth.WithExpirationWindow(c.cfg.ExpirationWindow),
	)
	return &workspace{
		auth:   a,
		client: cl,
		close: func() {
			a.Close()
			if err := closeRepo(); err != nil {
				c.logger.Warn("closing storage", "error", err)
			}
			shutdown(context.Background())
		},
	}, nil
}

// withAuth opens the workspace, runs fn, and closes it.
func (c *cli) withAuth(cmd *cobra.Command, fn func(ctx context.Context, ws *workspace) error) error {
	ctx := cmd.Context()
	ws, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer ws.close()
	return fn(ctx, ws)
}
