package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/robo-agendamentos/internal/api/router"
	"github.com/wolfman30/robo-agendamentos/internal/app/bootstrap"
	appconfig "github.com/wolfman30/robo-agendamentos/internal/config"
	"github.com/wolfman30/robo-agendamentos/internal/correlation"
	"github.com/wolfman30/robo-agendamentos/internal/dispatch"
	"github.com/wolfman30/robo-agendamentos/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/robo-agendamentos/internal/http/middleware"
	"github.com/wolfman30/robo-agendamentos/internal/messaging"
	"github.com/wolfman30/robo-agendamentos/internal/messaging/whatsapp"
	"github.com/wolfman30/robo-agendamentos/internal/observability/metrics"
	"github.com/wolfman30/robo-agendamentos/internal/replies"
	"github.com/wolfman30/robo-agendamentos/pkg/logging"
)

func main() {
	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting robo-agendamentos",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		logger.Info("shutdown signal received")
		cancel()
	}()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
	fmt.Println("Server exited gracefully")
}

func setupMetrics() (http.Handler, *metrics.NotifierMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewNotifierMetrics(reg)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), m
}

// run wires every component and blocks until ctx is cancelled.
func run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) error {
	metricsHandler, m := setupMetrics()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	store := bootstrap.BuildCorrelationStore(ctx, cfg, redisClient, logger.WithComponent("correlation"))
	m.SetPendingEntries(store.Len())
	sweeper, err := correlation.NewSweeper(store, cfg.CorrelationRetention, cfg.SweepSchedule, logger.WithComponent("sweeper"))
	if err != nil {
		return err
	}
	sweeper.OnSweep(func(_, remaining int) { m.SetPendingEntries(remaining) })
	sweeper.Start()
	defer sweeper.Stop()

	awsCfg, err := bootstrap.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("load aws config: %w", err)
	}

	hub := messaging.NewStatusHub()
	wa, err := whatsapp.New(ctx, whatsapp.Config{
		StorePath: cfg.WhatsAppStorePath,
		PrintQR:   cfg.WhatsAppPrintQR,
	}, hub, m, logger.WithComponent("whatsapp"))
	if err != nil {
		return err
	}

	dispatcher := dispatch.NewDispatcher(wa, store, dispatch.Config{
		CountryCode:       cfg.CountryCode,
		BaseDelay:         cfg.DispatchBaseDelay,
		Jitter:            cfg.DispatchJitter,
		OutboundPerMinute: cfg.OutboundPerMinute,
		Location:          cfg.Location(),
	}, m, logger.WithComponent("dispatch"))
	queue := dispatch.NewQueue(dispatcher, cfg.DispatchWorkers, cfg.DispatchQueueSize, m, logger.WithComponent("queue"))

	classifierSvc, closeClassifier, err := bootstrap.BuildClassifier(ctx, cfg, awsCfg, m, logger.WithComponent("classifier"))
	if err != nil {
		_ = wa.Stop()
		return err
	}
	defer func() { _ = closeClassifier() }()

	persister, closeDB, err := bootstrap.BuildPersister(ctx, cfg, logger.WithComponent("outcome"))
	if err != nil {
		_ = wa.Stop()
		return err
	}
	defer closeDB()

	emailSender, emailProvider := bootstrap.BuildEmailSender(cfg, awsCfg, logger.WithComponent("notify"))
	logger.Info("operator email configured", "provider", emailProvider)

	replyHandler := replies.NewHandler(store, wa, classifierSvc, persister, logger.WithComponent("replies")).
		WithMetrics(m).
		WithArchive(bootstrap.BuildArchive(cfg, bootstrap.NewS3Client(awsCfg, cfg), logger.WithComponent("archive")))
	if alerts := bootstrap.BuildOperatorAlerts(cfg, emailSender, logger.WithComponent("alerts")); alerts != nil {
		replyHandler.WithAlerts(alerts)
	}
	wa.SetInboundHandler(func(ctx context.Context, msg messaging.InboundMessage) {
		replyHandler.HandleInbound(ctx, msg)
	})

	queue.Run(ctx)
	if err := wa.Start(ctx); err != nil {
		_ = wa.Stop()
		return err
	}

	routerCfg := &router.Config{
		Logger:          logger,
		DispatchHandler: dispatch.NewHandler(queue, logger.WithComponent("dispatch_http")),
		StatusHandler: handlers.NewStatusHandler(hub, handlers.Counters{
			PendingCorrelations: store.Len,
			QueuedBatches:       queue.Pending,
		}, logger.WithComponent("status")),
		MetricsHandler: metricsHandler,
		TriggerSecret:  cfg.AdminJWTSecret,
		RateLimiter:    httpmiddleware.NewIPRateLimiter(ctx, cfg.APIRatePerSecond, cfg.APIRateBurst),
	}
	if cfg.AdminJWTSecret == "" {
		logger.Warn("ADMIN_JWT_SECRET not set; notification triggers are unauthenticated")
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router.New(routerCfg),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		logger.Error("server error", "error", err)
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	// Workers stop between events once ctx is done.
	queue.Wait()
	if err := wa.Stop(); err != nil {
		logger.Error("whatsapp stop failed", "error", err)
	}
	logger.Info("server stopped", "pending_correlations", store.Len())
	return nil
}
