package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/sla-engine/internal/api/http"
	"github.com/spec-kit/sla-engine/internal/api/http/handlers"
	"github.com/spec-kit/sla-engine/internal/auth"
	"github.com/spec-kit/sla-engine/internal/config"
	"github.com/spec-kit/sla-engine/internal/events"
	"github.com/spec-kit/sla-engine/internal/notify"
	"github.com/spec-kit/sla-engine/internal/observability"
	"github.com/spec-kit/sla-engine/internal/persistence"
	"github.com/spec-kit/sla-engine/internal/repository"
	"github.com/spec-kit/sla-engine/internal/service"
	"github.com/spec-kit/sla-engine/internal/worker"
)

type stores struct {
	tickets   repository.TicketRepository
	calendars repository.CalendarRepository
	policies  repository.PolicyRepository
	states    repository.SLAStateRepository
	breaches  repository.BreachRepository
	staff     repository.StaffRepository
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if pg.Enabled() && cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	repos := buildStores(pg)
	if cfg.SLA.SeedFile != "" {
		seed, err := config.LoadSeed(cfg.SLA.SeedFile)
		if err != nil {
			logger.Fatal("failed to load seed", zap.Error(err))
		}
		seeded, err := service.SeedCatalog(ctx, seed, repos.calendars, repos.policies, logger)
		if err != nil {
			logger.Fatal("failed to seed catalog", zap.Error(err))
		}
		if seeded {
			logger.Info("catalog seeded", zap.String("file", cfg.SLA.SeedFile))
		}
	}

	metrics := observability.NewMetrics()
	catalog, err := service.NewPolicyCatalog(ctx, service.CatalogDependencies{
		PolicyRepo:   repos.policies,
		CalendarRepo: repos.calendars,
		Logger:       logger,
	})
	if err != nil {
		logger.Fatal("refusing to start without a usable default policy", zap.Error(err))
	}

	clock := service.NewSLAClock(service.ClockDependencies{
		Catalog:            catalog,
		StateRepo:          repos.states,
		Logger:             logger,
		Metrics:            metrics,
		PriorityChangeMode: cfg.SLA.PriorityChangeMode,
		Strict:             !cfg.App.IsProduction(),
		WarningRatio:       cfg.SLA.WarningRatio,
	})

	dispatcher := service.NewEscalationDispatcher(service.DispatcherDependencies{
		BreachRepo: repos.breaches,
		TicketRepo: repos.tickets,
		StaffRepo:  repos.staff,
		Catalog:    catalog,
		Notifier:   buildNotifier(cfg, redis, logger),
		ManagerIDs: cfg.SLA.ManagerIDs,
		Timeout:    cfg.Notification.Timeout(),
		Logger:     logger,
		Metrics:    metrics,
	})

	deduper := repository.NewNoopBreachDeduper()
	if redis.Enabled() {
		deduper = repository.NewRedisBreachDeduper(redis.Client, cfg.SLA.DedupTTL())
	}
	monitor := service.NewBreachMonitor(service.MonitorDependencies{
		TicketRepo:      repos.tickets,
		StateRepo:       repos.states,
		BreachRepo:      repos.breaches,
		Deduper:         deduper,
		Clock:           clock,
		Catalog:         catalog,
		Dispatcher:      dispatcher,
		Logger:          logger,
		Metrics:         metrics,
		WarningRatio:    cfg.SLA.WarningRatio,
		PoolSize:        cfg.SLA.WorkerPoolSize,
		DedupLocation:   cfg.SLA.DedupLocation(),
		BackfillMissing: cfg.SLA.BackfillMissing,
	})

	bus := events.NewInMemoryDispatcher()
	service.NewTicketLifecycle(repos.tickets, clock, logger).RegisterHandlers(bus)

	sweeper, err := worker.NewSweepWorker(cfg.SLA.SweepSchedule, monitor, logger)
	if err != nil {
		logger.Fatal("invalid SLA_SWEEP_SCHEDULE", zap.Error(err))
	}

	ingestKey := auth.NewIngestKeyVerifier(cfg.Auth.IngestKeyHash)
	if !ingestKey.Enabled() {
		logger.Warn("AUTH_INGEST_KEY_HASH not set; ingest requires a bearer token with the ingest role")
	}
	authMiddleware := auth.NewAuthMiddleware(auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL()), ingestKey)

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: cfg.App.IsProduction(),
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		SLA:            handlers.NewSLAHandler(clock, catalog, monitor),
		Admin:          handlers.NewAdminHandler(catalog),
		Staff:          handlers.NewStaffHandler(repos.staff),
		Ingest:         handlers.NewIngestHandler(bus, logger),
		AuthMiddleware: authMiddleware,
		Metrics:        metrics,
	})

	sweeper.Start()

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	sweeper.Stop(shutdownCtx)
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
}

func buildStores(pg *persistence.Postgres) stores {
	if !pg.Enabled() {
		mem := repository.NewMemoryStore()
		return stores{
			tickets:   mem.Tickets(),
			calendars: mem.Calendars(),
			policies:  mem.Policies(),
			states:    mem.States(),
			breaches:  mem.Breaches(),
			staff:     mem.Staff(),
		}
	}
	pool := pg.PoolHandle()
	return stores{
		tickets:   repository.NewTicketRepository(pool),
		calendars: repository.NewCalendarRepository(pool),
		policies:  repository.NewPolicyRepository(pool),
		states:    repository.NewSLAStateRepository(pool),
		breaches:  repository.NewBreachRepository(pool),
		staff:     repository.NewStaffRepository(pool),
	}
}

func buildNotifier(cfg *config.Config, redis *persistence.Redis, logger *zap.Logger) notify.Notifier {
	notifiers := notify.Multi{notify.NewLogNotifier(logger)}
	if cfg.Notification.WebhookURL != "" {
		notifiers = append(notifiers, notify.NewWebhookNotifier(cfg.Notification.WebhookURL, cfg.Notification.Timeout(), logger))
	}
	if redis.Enabled() {
		notifiers = append(notifiers, notify.NewRedisNotifier(redis.Client, cfg.Notification.RedisChannel))
	}
	return notifiers
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
