package main

import (
	"context"
	"errors"
	"os"
	"time"

	"ledgerlite/internal/amqp"
	"ledgerlite/internal/cli"
	applog "ledgerlite/internal/log"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)

	if !cfg.AMQPEnabled() {
		logger.Error("AMQP_URL is required for ledger-events")
		os.Exit(1)
	}

	logger.Info("Starting ledger-events",
		applog.FieldOperation, applog.OpStartup,
		"exchange", cfg.AMQPExchange,
		"queue", cfg.AMQPQueue)

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(logger, 10*time.Second, func() {
		if err := client.Close(); err != nil {
			logger.Error("Failed to close AMQP client", "error", err)
		}
	})

	events := logger.WithComponent(applog.ComponentAMQP)
	err = client.ConsumeMutations(ctx, func(msg *amqp.MutationEvent) error {
		events.Info("Transaction mutated",
			applog.FieldOperation, msg.Op,
			applog.FieldTransactionID, msg.TransactionID,
			applog.FieldUserID, msg.UserID,
			"at", msg.Timestamp.Format(time.RFC3339))
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", "error", err)
	}

	cli.WaitForShutdown(ctx, done)
}
