package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/talentdesk/recruiter-notify/internal/api"
	"github.com/talentdesk/recruiter-notify/internal/config"
	"github.com/talentdesk/recruiter-notify/internal/db"
	"github.com/talentdesk/recruiter-notify/internal/delivery"
	"github.com/talentdesk/recruiter-notify/internal/eligibility"
	"github.com/talentdesk/recruiter-notify/internal/metrics"
	"github.com/talentdesk/recruiter-notify/internal/processor"
	"github.com/talentdesk/recruiter-notify/internal/queue"
	"github.com/talentdesk/recruiter-notify/internal/ratelimiter"
	"github.com/talentdesk/recruiter-notify/internal/repository"
	"github.com/talentdesk/recruiter-notify/internal/settings"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	// ---- configuration ----
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	// ---- database ----
	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}
	logger.Info("database migrations applied")

	// ---- core dependencies ----
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	records := repository.NewPgRecordRepository(pool)
	jobs := repository.NewPgJobRepository(pool)
	recruiters := repository.NewPgRecruiterRepository(pool)
	store := settings.NewPgStore(pool)

	sender, err := buildSender(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to build email sender", zap.Error(err))
	}

	compose := delivery.NewComposer()
	limiter := ratelimiter.New(cfg.SendRatePerSec)
	evaluator := eligibility.NewEvaluator(records, jobs, store, logger)
	resolver := eligibility.NewResolver(recruiters)

	handler := processor.NewWorkItemHandler(records, jobs, sender, compose, limiter, logger)
	q := queue.New(handler, queue.Options{
		Tick:           cfg.QueueTick,
		MaxConcurrency: cfg.MaxConcurrency,
		MaxAttempts:    cfg.MaxAttempts,
		CleanupAge:     cfg.CleanupAge,
	}, logger, m.QueueHooks())

	proc := processor.New(q, evaluator, resolver, records, jobs, recruiters,
		sender, compose, limiter, logger, processor.Options{
			TickInterval:  cfg.TickInterval,
			SweepInterval: cfg.SweepInterval,
			RetryCap:      cfg.RetryCap,
		})
	proc.Start(ctx)

	// ---- HTTP server ----
	router := api.NewRouter(proc, store, reg, logger)
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	// Start server in a goroutine so it does not block the shutdown listener.
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// ---- graceful shutdown ----
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutdown signal received")

	// 1. Stop accepting new HTTP requests.
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// 2. Stop the timer loops and wait for in-flight sends to finish.
	proc.Stop()

	logger.Info("server stopped cleanly")
}

// buildSender selects the outbound email transport. "mock" keeps local
// development free of AWS credentials.
func buildSender(ctx context.Context, cfg *config.Config, logger *zap.Logger) (delivery.Sender, error) {
	switch cfg.EmailProvider {
	case "ses":
		return delivery.NewSESSender(ctx, cfg.SESRegion, cfg.FromAddress)
	default:
		logger.Warn("using mock email sender; set EMAIL_PROVIDER=ses for real delivery")
		mock := delivery.NewMockSender()
		// Mock accepts everything; FailFirst stays zero outside tests.
		return mock, nil
	}
}
