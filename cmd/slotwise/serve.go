package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/slotwise/adapter/api"
)

var (
	serveAddr string
	serving   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Run the HTTP API. Without a message broker the outbox is also
drained in this process, so booking events reach connected calendars.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if container == nil {
			return errors.New("application not initialized - database connection required")
		}
		serving = true
		ctx := cmd.Context()
		cfg := container.Config
		logger := container.Logger

		serverCfg := api.DefaultServerConfig()
		serverCfg.Addr = cfg.HTTPAddr
		if serveAddr != "" {
			serverCfg.Addr = serveAddr
		}
		handler := api.NewHandler(api.HandlerConfig{
			ComputeSlots:   container.ComputeSlots,
			CreateBooking:  container.CreateBooking,
			CancelBooking:  container.CancelBooking,
			ConfirmBooking: container.ConfirmBooking,
			DeclineBooking: container.DeclineBooking,
			ListBookings:   container.ListBookings,
			Logger:         logger,
		})
		server := api.NewServer(serverCfg, handler, container.Health, logger)

		if container.InProcessBus != nil {
			if cfg.OutboxProcessorEnabled {
				go container.OutboxProcessor.Start(ctx)
			} else {
				logger.Info("outbox processor disabled, events stay in the outbox")
			}
		}

		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Start()
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("API server shutdown error", "error", err)
		}
		container.OutboxProcessor.Stop()
		logger.Info("server stopped")
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default HTTP_ADDR)")
}
