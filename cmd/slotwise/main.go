package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/felixgeelhaar/slotwise/adapter/cli"
	"github.com/felixgeelhaar/slotwise/internal/app"
	"github.com/felixgeelhaar/slotwise/internal/shared/infrastructure/migrations"
	"github.com/felixgeelhaar/slotwise/pkg/config"
	"github.com/felixgeelhaar/slotwise/pkg/observability"
)

// container is shared with the serve command.
var container *app.Container

func main() {
	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		cancel()
	}()

	envFile := cli.EnvFile(os.Args[1:])
	cfg, cfgErr := config.LoadFile(envFile)

	logCfg := observability.DefaultLogConfig()
	if cfgErr == nil {
		logCfg.Level = cfg.LogLevel
		logCfg.Format = observability.LogFormat(cfg.LogFormat)
		logCfg.ServiceVersion = cfg.Version
	}
	if cli.Verbose() {
		logCfg.Level = "debug"
	}
	logger := observability.NewLogger(logCfg)
	slog.SetDefault(logger)
	cli.SetLogger(logger)

	var cliApp *cli.App
	switch {
	case cfgErr != nil:
		// version and help still work without a valid configuration
		logger.Warn("invalid configuration, running in limited mode", "error", cfgErr)
	default:
		c, err := app.NewContainer(ctx, cfg, logger)
		if err != nil {
			if !cfg.IsDevelopment() {
				logger.Error("failed to initialize container", "error", err)
				os.Exit(1)
			}
			logger.Warn("failed to initialize container, running in limited mode", "error", err)
			break
		}
		container = c
		defer container.Close()

		cliApp = &cli.App{
			ComputeSlots:    container.ComputeSlots,
			CreateBooking:   container.CreateBooking,
			CancelBooking:   container.CancelBooking,
			ConfirmBooking:  container.ConfirmBooking,
			DeclineBooking:  container.DeclineBooking,
			ListBookings:    container.ListBookings,
			DetectConflicts: container.DetectConflicts,
			UpsertSchedule:  container.UpsertSchedule,
			UpsertEventType: container.UpsertEventType,
			Health:          container.Health,
		}
		if migrator, err := migrations.New(container.DBConn, logger); err == nil {
			cliApp.Migrator = migrator
		} else {
			logger.Warn("migrations unavailable", "error", err)
		}
	}

	cli.SetApp(cliApp)
	cli.AddCommand(serveCmd)

	cli.ExecuteContext(ctx)

	// Without a broker nothing else drains the outbox, so deliver what this
	// command wrote before exiting.
	if container != nil && container.InProcessBus != nil && !serving {
		if err := container.OutboxProcessor.ProcessOnce(ctx); err != nil {
			logger.Warn("outbox flush failed", "error", err)
		}
	}
}
