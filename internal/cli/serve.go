package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iwvelando/tank-quote/internal/backend"
	"github.com/iwvelando/tank-quote/internal/server"
	"github.com/iwvelando/tank-quote/internal/telemetry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func (a *app) newServeCommand() *cobra.Command {
	var address string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the proxy server",
		Long: `Start the HTTP proxy that forwards the UI's /api calls and generated
file downloads to the quoting backend.

Examples:
  tankquote serve                         # listen on the configured address
  tankquote serve --address 127.0.0.1:9000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if address != "" {
				a.conf.Server.Address = address
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
	cmd.Flags().StringVarP(&address, "address", "a", "", "listen address override")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	upstream, err := backend.New(a.conf.Backend.BaseURL, a.conf.Backend.Timeout)
	if err != nil {
		return fmt.Errorf("invalid backend configuration: %w", err)
	}
	if _, err := upstream.WithPublicOrigin(a.conf.Server.PublicOrigin); err != nil {
		return fmt.Errorf("invalid server configuration: %w", err)
	}

	metrics := telemetry.New(ctx, a.conf.Telemetry, a.version, a.logger)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metrics.Close(closeCtx); err != nil {
			a.logger.Warn("failed to flush metrics", zap.String("op", "cli.serve"), zap.Error(err))
		}
	}()

	handler := server.NewHandler(server.Options{
		Logger:      a.logger,
		Backend:     upstream,
		Metrics:     metrics,
		MaxBodySize: a.conf.MaxBodySizeBytes(),
		Version:     a.version,
	})

	listener, err := net.Listen("tcp", a.conf.Server.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.conf.Server.Address, err)
	}

	a.logger.Info("starting proxy server",
		zap.String("op", "cli.serve"),
		zap.String("address", listener.Addr().String()),
		zap.String("backend", a.conf.Backend.BaseURL),
		zap.String("version", a.version),
	)
	return runServer(ctx, listener, handler, a.conf.Server.ShutdownTimeout, a.logger)
}

// runServer serves on listener until ctx is cancelled, then shuts down,
// giving in-flight requests up to shutdownTimeout to finish.
func runServer(ctx context.Context, listener net.Listener, handler http.Handler, shutdownTimeout time.Duration, logger *zap.Logger) error {
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down proxy server", zap.String("op", "cli.runServer"))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
