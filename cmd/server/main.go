package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/segyhp/loan-aggregator/internal/config"
	"github.com/segyhp/loan-aggregator/internal/events"
	"github.com/segyhp/loan-aggregator/internal/handler"
	"github.com/segyhp/loan-aggregator/internal/offers"
	"github.com/segyhp/loan-aggregator/internal/pdn"
	"github.com/segyhp/loan-aggregator/internal/referral"
	"github.com/segyhp/loan-aggregator/internal/repository"
	"github.com/segyhp/loan-aggregator/internal/scheduler"
	"github.com/segyhp/loan-aggregator/internal/scoring"
	"github.com/segyhp/loan-aggregator/internal/service"
	"github.com/segyhp/loan-aggregator/internal/tracing"
	"github.com/segyhp/loan-aggregator/pkg/response"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	logger := config.NewLogger(cfg.Logging)
	response.SetLogger(logger)

	tracer, err := tracing.Init(cfg.TracingConfig())
	if err != nil {
		logger.Fatalf("Failed to initialize tracing: %v", err)
	}

	// Database is optional: without it referrals are kept in memory
	var db *sqlx.DB
	if cfg.Database.URL != "" {
		db, err = initDB(cfg)
		if err != nil {
			logger.Fatalf("Failed to initialize database: %v", err)
		}
		defer db.Close()
	}

	var redisClient redis.UniversalClient
	var publisher events.RewardPublisher = events.NewLogPublisher(logger)
	if cfg.RedisEnabled() {
		client, err := initRedis(cfg)
		if err != nil {
			logger.Fatalf("Failed to initialize Redis: %v", err)
		}
		defer client.Close()
		redisClient = client
		publisher = events.NewRedisPublisher(client, cfg.Redis.Stream, cfg.Redis.MaxLen, logger)
	}

	svc, err := buildService(cfg, db, publisher, tracer, logger)
	if err != nil {
		logger.Fatalf("Failed to build decision service: %v", err)
	}

	// A failed first load leaves the service unready until the next reload
	if snapshot, _, err := svc.ReloadPartners(context.Background()); err != nil {
		logger.WithError(err).Error("Initial partner load failed")
	} else {
		logger.WithFields(logrus.Fields{
			"version":  snapshot.Version,
			"partners": snapshot.Len(),
		}).Info("Partner snapshot loaded")
	}

	reloader, err := scheduler.New(svc, cfg.Partners.ReloadSchedule, logger)
	if err != nil {
		logger.Fatalf("Failed to schedule partner reload: %v", err)
	}
	reloader.Start()

	router := handler.NewRouter(
		handler.NewDecisionHandler(svc),
		handler.NewHealthHandler(db, redisClient, svc, cfg.Health.Timeout),
		tracer.Middleware,
		response.LoggingMiddleware(logger),
		response.CORSMiddleware,
	)

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Infof("Server starting on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	reloader.Stop()
	if err := server.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}
	if err := tracer.Shutdown(ctx); err != nil {
		logger.Errorf("Failed to flush traces: %v", err)
	}

	logger.Info("Server exited")
}

func buildService(cfg *config.Config, db *sqlx.DB, publisher events.RewardPublisher, tracer *tracing.Tracer, logger *logrus.Logger) (*service.DecisionService, error) {
	pdnPolicy, err := cfg.DebtBurdenPolicy()
	if err != nil {
		return nil, err
	}
	debtBurden, err := pdn.NewEngine(pdnPolicy)
	if err != nil {
		return nil, err
	}

	scoringPolicy, err := cfg.ScoringPolicy()
	if err != nil {
		return nil, err
	}
	scorer, err := scoring.NewEngine(scoringPolicy)
	if err != nil {
		return nil, err
	}

	referralPolicy, err := cfg.ReferralPolicy()
	if err != nil {
		return nil, err
	}
	var referrals repository.ReferralRepository = referral.NewMemoryStore()
	if db != nil {
		referrals = repository.NewReferralRepository(db)
	}
	ledger, err := referral.NewLedger(referrals, referralPolicy)
	if err != nil {
		return nil, err
	}

	referenceRate, err := cfg.ReferenceRate()
	if err != nil {
		return nil, err
	}

	var partners offers.Source = config.NewFileSource(cfg.Partners.File)
	if cfg.Partners.Source == config.PartnerSourceDatabase {
		partners = repository.NewPartnerRuleRepository(db)
	}

	return service.NewDecisionService(service.Dependencies{
		DebtBurden: debtBurden,
		Scoring:    scorer,
		Offers: offers.NewEngine(
			offers.WithEvaluationTimeout(cfg.Partners.EvaluationTimeout),
			offers.WithMaxParallel(cfg.Partners.MaxParallel),
		),
		Registry:      offers.NewRegistry(),
		Partners:      partners,
		Ledger:        ledger,
		Publisher:     publisher,
		ReferenceRate: referenceRate,
		Tracer:        tracer,
		Log:           logger,
	}), nil
}

func initDB(cfg *config.Config) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.Database.URL)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	return db, nil
}

func initRedis(cfg *config.Config) (*redis.Client, error) {
	opts, err := cfg.RedisOptions()
	if err != nil {
		return nil, err
	}
	return redis.NewClient(opts), nil
}
