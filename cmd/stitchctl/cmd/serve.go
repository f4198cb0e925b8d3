package cmd

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/productinfo/stitch-js-sdk/devserver"
	"github.com/productinfo/stitch-js-sdk/internal/util"
)

type serveFlags struct {
	port       int
	customKey  string
	accessTTL  time.Duration
	metrics    bool
	tlsCert    string
	tlsKey     string
	requestLog bool
}

func newServeCmd(c *cli) *cobra.Command {
	var f serveFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run an in-memory development backend",
		Long: `serve hosts the configured application on an in-memory backend that
speaks the client API. State is lost when the process exits.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.serve(cmd, f)
		},
	}
	cmd.Flags().IntVarP(&f.port, "port", "p", 8080, "Port to listen on")
	cmd.Flags().StringVar(&f.customKey, "custom-key", "", "Hex HS256 key accepted for custom-token logins")
	cmd.Flags().DurationVar(&f.accessTTL, "access-ttl", devserver.DefaultAccessTokenTTL, "Lifetime of issued access tokens")
	cmd.Flags().BoolVar(&f.metrics, "metrics", true, "Serve Prometheus metrics on /metrics")
	cmd.Flags().StringVar(&f.tlsCert, "tls-cert", "", "Path to TLS certificate file")
	cmd.Flags().StringVar(&f.tlsKey, "tls-key", "", "Path to TLS key file")
	cmd.Flags().BoolVar(&f.requestLog, "request-log", false, "Log every request")
	return cmd
}

func (c *cli) serve(cmd *cobra.Command, f serveFlags) error {
	opts := []devserver.Option{
		devserver.WithLogger(c.logger),
		devserver.WithAccessTokenTTL(f.accessTTL),
	}
	if f.customKey != "" {
		key, err := util.HexDecode(f.customKey)
		if err != nil {
			return fmt.Errorf("--custom-key: %w", err)
		}
		opts = append(opts, devserver.WithCustomTokenKey(key))
	}
	if f.metrics {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		opts = append(opts, devserver.WithMetrics(reg))
	}
	srv, err := devserver.New(c.cfg.AppID, opts...)
	if err != nil {
		return err
	}

	handler := srv.Handler()
	if f.requestLog {
		handler = middleware.Logger(handler)
	}

	var tlsConfig *tls.Config
	if f.tlsCert != "" || f.tlsKey != "" {
		cert, err := tls.LoadX509KeyPair(f.tlsCert, f.tlsKey)
		if err != nil {
			return fmt.Errorf("failed to load TLS key pair: %w", err)
		}
		tlsConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", f.port),
		Handler:           handler,
		TLSConfig:         tlsConfig,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	done := make(chan error, 1)
	go func() {
		var err error
		if tlsConfig != nil {
			err = server.ListenAndServeTLS("", "")
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			done <- fmt.Errorf("server failed: %w", err)
			return
		}
		done <- nil
	}()

	out := cmd.OutOrStdout()
	printBanner(out)
	fmt.Fprintf(out, "Serving app %s on port %d\n", c.cfg.AppID, f.port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		fmt.Fprintf(out, "\nReceived %s, shutting down...\n", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-done:
		return err
	}
}
