package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"

	"github.com/segyhp/loan-aggregator/internal/config"
	"github.com/segyhp/loan-aggregator/internal/repository"
	"github.com/segyhp/loan-aggregator/internal/scheduler"
)

// The scheduler keeps the partner_rules table in line with the partner feed
// file. Servers started with PARTNERS_SOURCE=database read from that table.
func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("Failed to load configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger := config.NewLogger(cfg.Logging)
	logger.Info("Starting partner feed scheduler...")

	if cfg.Database.URL == "" {
		logger.Fatal("DATABASE_URL is required for the partner feed scheduler")
	}

	db, err := sqlx.Connect("postgres", cfg.Database.URL)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	sync := scheduler.NewFeedSync(
		config.NewFileSource(cfg.Partners.File),
		repository.NewPartnerRuleRepository(db),
		logger,
	)

	// Sync once on start so a fresh database is usable right away
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if _, err := sync.Run(ctx); err != nil {
		logger.WithError(err).Error("Initial partner feed sync failed")
	}
	cancel()

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(logger))))
	if err := sync.Schedule(c, cfg.Partners.ReloadSchedule); err != nil {
		logger.Fatalf("Error scheduling partner feed sync: %v", err)
	}

	c.Start()
	logger.Info("Scheduler started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down scheduler...")
	<-c.Stop().Done()
	logger.Info("Scheduler stopped")
}
