package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/ticket-triage/internal/api/http"
	"github.com/spec-kit/ticket-triage/internal/api/http/handlers"
	"github.com/spec-kit/ticket-triage/internal/events"
	"github.com/spec-kit/ticket-triage/internal/llm"
	"github.com/spec-kit/ticket-triage/internal/observability"
	"github.com/spec-kit/ticket-triage/internal/persistence"
	"github.com/spec-kit/ticket-triage/internal/repository"
	"github.com/spec-kit/ticket-triage/internal/service"
	"github.com/spec-kit/ticket-triage/internal/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API (default)",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Error("failed to connect postgres", zap.Error(err))
		return err
	}
	defer pg.Close()

	var ticketRepo repository.TicketRepository
	if pool := pg.PoolHandle(); pool != nil {
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pool, logger); err != nil {
				logger.Error("failed to run migrations", zap.Error(err))
				return err
			}
		}
		ticketRepo = repository.NewTicketRepository(pool)
	} else {
		logger.Warn("using in-memory ticket store; data is lost on restart")
		ticketRepo = repository.NewMemoryTicketRepository(nil)
	}

	var redis *persistence.Redis
	if cfg.RateLimit.Enabled {
		redis = persistence.NewRedis(ctx, cfg.Redis, logger)
		defer redis.Close()
	}

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher(logger)
	if publisher := worker.StartNotificationWorker(dispatcher, cfg.Events, logger); publisher != nil {
		defer publisher.Close() //nolint:errcheck
	}

	var completer service.Completer
	if cfg.Classifier.Enabled() {
		completer = llm.NewOpenAIClient(cfg.Classifier)
		logger.Info("classifier enabled", zap.String("model", cfg.Classifier.Model))
	} else {
		logger.Warn("OPENAI_API_KEY not provided; classification suggestions are disabled")
	}
	advisor := service.NewClassificationService(service.ClassificationDependencies{
		Completer: completer,
		Timeout:   cfg.Classifier.Timeout(),
		Logger:    logger,
		Metrics:   metrics,
	})
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo: ticketRepo,
		Dispatcher: dispatcher,
		Suggester:  advisor,
	})
	statsService := service.NewStatsService(ticketRepo, nil)

	app := httptransport.NewApp(httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(handlers.HealthDependencies{
			Name:              cfg.App.Name,
			Version:           cfg.App.Version,
			Postgres:          pg,
			Redis:             redis,
			ClassifierEnabled: cfg.Classifier.Enabled(),
		}),
		Tickets:   handlers.NewTicketsHandler(ticketService),
		Classify:  handlers.NewClassifyHandler(advisor),
		Stats:     handlers.NewStatsHandler(statsService),
		Metrics:   metrics,
		RateLimit: httptransport.RateLimit(cfg.RateLimit, redis.Scripter(), logger),
	}, httptransport.AppDependencies{
		Name:           cfg.App.Name,
		Logger:         logger,
		RequestTimeout: cfg.App.RequestTimeout(),
		TrustedProxies: cfg.RateLimit.TrustedProxies,
		ProxyHeader:    cfg.RateLimit.ProxyHeader,
	})

	listenErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.App.Addr()), zap.String("env", cfg.App.Env))
		listenErr <- app.Listen(cfg.App.Addr())
	}()

	select {
	case err := <-listenErr:
		if err != nil {
			logger.Error("fiber listen", zap.Error(err))
			return err
		}
		return nil
	case sig := <-shutdownSignal():
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	return app.ShutdownWithTimeout(10 * time.Second)
}

func shutdownSignal() <-chan os.Signal {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	return sigCh
}
