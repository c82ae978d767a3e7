package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"arblog/internal/api"
	"arblog/internal/model"
	"arblog/internal/stream"
)

func newServeCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and the live attempt stream",
		Long: `Serve the HTTP API and the live attempt stream until interrupted.

The log table is created if missing. Appends made by any process are
pushed to websocket clients of /api/stream.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			repo, err := openRepository(ctx)
			if err != nil {
				return err
			}
			defer repo.Pool.Close()

			if err := repo.EnsureSchema(ctx); err != nil {
				return fmt.Errorf("failed to initialise log: %w", err)
			}

			serverCfg := cfg.Server
			if addr != "" {
				serverCfg.Addr = addr
			}
			hub := stream.NewHub(logger)
			server := api.NewServer(logger, repo, repo, hub.ServeWS, serverCfg)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(server.ListenAndServe)
			g.Go(func() error {
				return hub.Run(gctx, repo, repo)
			})
			g.Go(func() error {
				<-gctx.Done()
				logger.Info("Shutdown signal received")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), serverCfg.ShutdownTimeout)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			})

			return g.Wait()
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")

	return cmd
}

func newTailCommand() *cobra.Command {
	var url string

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Follow attempts as they are appended",
		Long: `Connect to a running 'arblog serve' and print every appended attempt
as one JSON line until interrupted.

Example:
  arblog tail --url ws://localhost:8089/api/stream`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			enc := json.NewEncoder(cmd.OutOrStdout())
			return stream.Tail(ctx, logger, url, func(a model.ArbitrageAttempt) {
				if err := enc.Encode(a); err != nil {
					logger.Warn("Failed to print attempt", "id", a.ID, "error", err)
				}
			})
		},
	}

	cmd.Flags().StringVar(&url, "url", "ws://localhost:8089/api/stream", "Stream endpoint of a running server")

	return cmd
}
