// Command server runs the approval gateway. main wires configuration, stores,
// background workers, and the HTTP router; business logic lives in the
// internal service packages.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	approvalhandler "leadgate/internal/approval/handler"
	approvalmetrics "leadgate/internal/approval/metrics"
	approvalservice "leadgate/internal/approval/service"
	requeststore "leadgate/internal/approval/store/request"
	"leadgate/internal/audit"
	"leadgate/internal/notify"
	"leadgate/internal/notify/hub"
	"leadgate/internal/notify/redispub"
	"leadgate/internal/notify/webhook"
	"leadgate/internal/platform/config"
	"leadgate/internal/platform/httpserver"
	"leadgate/internal/platform/logger"
	"leadgate/internal/platform/postgres"
	platformredis "leadgate/internal/platform/redis"
	"leadgate/internal/platform/token"
	"leadgate/internal/rules/adapters"
	ruleshandler "leadgate/internal/rules/handler"
	rulesmetrics "leadgate/internal/rules/metrics"
	rulesmodels "leadgate/internal/rules/models"
	"leadgate/internal/rules/optimizer"
	rulesservice "leadgate/internal/rules/service"
	rulestore "leadgate/internal/rules/store/rule"
	"leadgate/pkg/platform/middleware/auth"
	requestmw "leadgate/pkg/platform/middleware/request"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Stores. An empty DATABASE_URL switches to in-memory stores for local
	// development.
	var (
		ruleStore     rulesservice.Store
		approvalStore approvalservice.Store
		history       rulesservice.History
	)
	if cfg.Postgres.URL != "" {
		db, err := postgres.Open(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer db.Close()
		reqStore := requeststore.NewPostgres(db)
		ruleStore = rulestore.NewPostgres(db)
		approvalStore = reqStore
		history = adapters.NewHistory(reqStore)
	} else {
		log.Warn("DATABASE_URL not set, using in-memory stores")
		reqStore := requeststore.NewInMemory()
		ruleStore = rulestore.NewInMemory()
		approvalStore = reqStore
		history = adapters.NewHistory(reqStore)
	}

	// Delivery sinks.
	reg := prometheus.DefaultRegisterer
	webhooks := webhook.New(cfg.Webhook, log, reg)
	webhooks.Start(ctx)
	wsHub := hub.New(log)
	defer wsHub.Close()

	sinks := []notify.Sink{webhooks, wsHub}
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		sinks = append(sinks, redispub.New(redisClient, cfg.Redis.EventChannel, log))
	}
	dispatcher := notify.NewDispatcher(log, sinks...)

	// Audit trail.
	auditSinks := []audit.Sink{audit.NewLogSink(log)}
	if cfg.Kafka.Enabled() {
		kafkaSink, err := audit.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return err
		}
		defer kafkaSink.Close()
		auditSinks = append(auditSinks, kafkaSink)
	}
	auditor := audit.NewPublisher(256, log)
	go func() {
		if err := audit.NewWorker(auditor.Inbox(), log, auditSinks...).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("audit worker stopped", "error", err)
		}
	}()

	// Services.
	registry := rulesmodels.DefaultFieldRegistry()
	rulesSvc := rulesservice.New(ruleStore, history, registry,
		rulesservice.WithLogger(log),
		rulesservice.WithMetrics(rulesmetrics.New(reg)),
		rulesservice.WithOptimizerConfig(optimizer.Config{
			MinSamples:          cfg.Optimizer.MinSamples,
			FalseApproveWeight:  cfg.Optimizer.FalseApproveWeight,
			FalseEscalateWeight: cfg.Optimizer.FalseEscalateWeight,
		}),
	)

	approvalSvc := approvalservice.New(approvalStore, ruleStore, cfg.Lifecycle,
		approvalservice.WithLogger(log),
		approvalservice.WithMetrics(approvalmetrics.New(reg)),
		approvalservice.WithNotifier(dispatcher),
		approvalservice.WithAuditPublisher(auditor),
		approvalservice.WithWebhookStats(webhooks),
		approvalservice.WithBulkParallelism(cfg.BulkDecideParallelism),
	)

	sweeper, err := approvalservice.NewSweeper(approvalSvc, cfg.Lifecycle.SweepSchedule, log)
	if err != nil {
		return err
	}
	sweeper.Start()
	defer sweeper.Stop()

	// Router.
	validator := token.NewValidator(cfg.Server.JWTSigningKey)
	router := chi.NewRouter()
	router.Use(chimiddleware.Recoverer)
	router.Use(requestmw.RequestID)

	router.Get("/healthz", healthz)
	router.Method(http.MethodGet, "/metrics", promhttp.Handler())

	router.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(validator, log))
		approvalhandler.New(approvalSvc, log).Register(r)
		ruleshandler.New(rulesSvc, registry, log).Register(r)
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireOperator(log))
			r.Get("/approvals/events", wsHub.ServeHTTP)
		})
	})

	srv := httpserver.New(cfg.Server.Addr, router)
	errCh := make(chan error, 1)
	go func() {
		log.Info("starting leadgate", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	webhooks.Wait()
	return nil
}

func healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
