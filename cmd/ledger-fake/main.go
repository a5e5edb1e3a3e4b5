package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"time"

	"ledgerlite/internal/cli"
	"ledgerlite/internal/core"
	applog "ledgerlite/internal/log"
	"ledgerlite/internal/remote/fake"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)

	email := flag.String("email", "demo@example.com", "login email of the seeded user")
	password := flag.String("password", "demo", "login password of the seeded user")
	seed := flag.Bool("seed", true, "add a few sample transactions")
	flag.Parse()

	srv := fake.New()
	srv.Register(*email, *password, "Demo")
	if *seed {
		seedSamples(srv)
	}

	server := &http.Server{
		Addr:              cfg.FakeAddr,
		Handler:           srv.Handler(logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, done := cli.GracefulShutdown(logger, 10*time.Second, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown failed", "error", err)
		}
	})

	logger.Info("Fake collaborator listening",
		applog.FieldOperation, applog.OpStartup,
		"addr", cfg.FakeAddr,
		"email", *email)

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
}

func seedSamples(srv *fake.Server) {
	today := core.Today()
	samples := []core.NewTransaction{
		{Description: "Salary", Amount: core.NewMoney(3200), Type: core.Income, Date: core.Date{Time: today.AddDate(0, 0, -20)}},
		{Description: "Rent", Amount: core.NewMoney(1250), Type: core.Expense, Date: core.Date{Time: today.AddDate(0, 0, -18)}},
		{Description: "Groceries", Amount: core.NewMoney(86.4), Type: core.Expense, Date: core.Date{Time: today.AddDate(0, 0, -5)}},
		{Description: "Freelance invoice", Amount: core.NewMoney(450), Type: core.Income, Date: core.Date{Time: today.AddDate(0, 0, -2)}},
	}
	for _, nt := range samples {
		srv.Seed(nt)
	}
}
