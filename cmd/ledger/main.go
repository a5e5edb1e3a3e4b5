package main

import (
	"os"
	"time"

	"ledgerlite/internal/cli"
	"ledgerlite/internal/console"
	"ledgerlite/internal/filter"
	applog "ledgerlite/internal/log"
	"ledgerlite/internal/remote/httpapi"
	"ledgerlite/internal/reports"
	"ledgerlite/internal/services"
	"ledgerlite/internal/session"
	"ledgerlite/internal/transactions"
)

func main() {
	// Load .env file for local development
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)

	logger.Info("Starting ledger",
		applog.FieldOperation, applog.OpStartup,
		"api_url", cfg.APIURL,
		"state_backend", cfg.StateBackend)

	var cleanups []func() error
	cleanup := func() {
		for _, fn := range cleanups {
			if err := fn(); err != nil {
				logger.Error("Cleanup failed", "error", err)
			}
		}
	}

	ctx, done := cli.GracefulShutdown(logger, 10*time.Second, cleanup)

	state := cli.InitStateStore(ctx, logger, cfg)
	if state.Cleanup != nil {
		cleanups = append(cleanups, state.Cleanup)
	}

	client := httpapi.New(cfg.APIURL, httpapi.NewHTTPClient(cfg.HTTPTimeout, logger))

	sess := session.New(client, state.Store, logger)
	ctrl := services.NewSyncController(
		sess,
		filter.New(),
		transactions.New(client, sess, logger),
		reports.New(client, sess, logger),
		logger,
	)

	if publisher := cli.InitAMQP(logger, cfg); publisher != nil {
		ctrl.SetPublisher(publisher)
		cleanups = append(cleanups, publisher.Close)
	}

	if id, ok := ctrl.Restore(ctx); ok {
		logger.Info("Resumed session", applog.FieldUserID, id.ID)
	}

	con := console.New(ctrl, os.Stdout, logger)
	if err := con.Run(ctx, os.Stdin); err != nil {
		logger.Error("Console stopped", "error", err)
	}

	// Input ended without a signal
	if ctx.Err() == nil {
		cleanup()
		return
	}
	<-done
}
