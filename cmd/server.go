package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"modelmap/api"
	"modelmap/api/router/handlers"
	"modelmap/config"
	"modelmap/logger"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
)

var serverPort string

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Starts the HTTP API server",
	Long: `Loads the rule set from the database and serves the HTTP API under /api.
Edits are saved shortly after they are made; pending edits are flushed on Ctrl+C.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger.Info("--- Server Command: Run ---")

		port := serverPort
		if !cmd.Flags().Changed("port") {
			port = config.AppConfig.Server.Port
		}
		if port == "" {
			logger.Error("Server Command: Server port is empty after checking flag and config, defaulting to 3000")
			port = "3000"
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		svc, err := newServices(ctx, true)
		if err != nil {
			return err
		}

		apiRouter := api.NewRouter(&handlers.API{
			Store:    svc.store,
			Sync:     svc.sync,
			Channels: svc.channels,
		}, config.AppConfig.Server.AccessToken)

		mainRouter := chi.NewRouter()
		mainRouter.Mount("/api", apiRouter)

		server := &http.Server{
			Addr:              ":" + port,
			Handler:           mainRouter,
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info("Server Command: Listening on :%s", port)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case <-ctx.Done():
			logger.Info("Server Command: Shutdown signal received...")
		case err := <-errCh:
			if err != nil {
				logger.Error("Server Command: ListenAndServe error: %v", err)
				svc.close(context.Background())
				return err
			}
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server Command: Graceful shutdown failed: %v", err)
		}
		if err := svc.close(shutdownCtx); err != nil {
			logger.Error("Server Command: Final save failed: %v", err)
			return err
		}
		logger.Info("Server Command: Stopped.")
		return nil
	},
}

func init() {
	serverCmd.Flags().StringVarP(&serverPort, "port", "p", "3000", "Port for the server to listen on (overrides config)")
	rootCmd.AddCommand(serverCmd)
}
