package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/support-bot/internal/api/http"
	"github.com/spec-kit/support-bot/internal/api/http/handlers"
	"github.com/spec-kit/support-bot/internal/auth"
	"github.com/spec-kit/support-bot/internal/config"
	"github.com/spec-kit/support-bot/internal/events"
	"github.com/spec-kit/support-bot/internal/observability"
	"github.com/spec-kit/support-bot/internal/persistence"
	"github.com/spec-kit/support-bot/internal/repository"
	"github.com/spec-kit/support-bot/internal/service"
	"github.com/spec-kit/support-bot/internal/session"
	"github.com/spec-kit/support-bot/internal/transport/telegram"
	"github.com/spec-kit/support-bot/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App.Env)
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

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	store := repository.NewStore(pg.PoolHandle())
	metrics := observability.NewMetrics()
	dispatcher := events.NewDispatcher(logger)

	var (
		sessions session.Store
		sweeper  worker.Sweeper
	)
	if err := redis.Ping(ctx); err == nil {
		sessions = session.NewRedisStore(redis.Client, cfg.Intake.SessionTTL())
	} else {
		logger.Warn("redis unavailable, using in-memory sessions", zap.Error(err))
		mem := session.NewMemoryStore(cfg.Intake.SessionTTL())
		sessions = mem
		sweeper = mem
	}

	api, err := tgbotapi.NewBotAPI(cfg.Bot.Token)
	if err != nil {
		logger.Fatal("failed to init bot api", zap.Error(err))
	}
	sender := telegram.NewSender(api)

	intake, err := service.NewIntakeService(store, sessions, dispatcher, metrics, cfg.Intake, cfg.Bot, logger)
	if err != nil {
		logger.Fatal("failed to init intake service", zap.Error(err))
	}
	lifecycle := service.NewLifecycleService(store, dispatcher, metrics, cfg.Bot, logger)
	registry := service.NewRegistryService(store, sessions, dispatcher, cfg.Bot, cfg.Registry, logger)
	notifier := service.NewNotificationService(sender, cfg.Bot, cfg.Registry, metrics, logger)
	notifier.Register(dispatcher)

	handler := telegram.NewHandler(intake, lifecycle, registry, sessions, sender, metrics, cfg.Bot, logger)
	bot := telegram.NewBot(api, handler, cfg.Bot, logger)

	maintenance := worker.NewMaintenance(registry, sweeper, logger)
	if err := maintenance.Start(); err != nil {
		logger.Fatal("failed to start maintenance", zap.Error(err))
	}
	defer maintenance.Stop()

	tokens := auth.NewTokenManager(cfg.Ops.JWTSecret, cfg.Ops.TokenTTLMinutes)
	authMiddleware := auth.NewMiddleware(tokens)

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Ops:            handlers.NewOpsHandler(store, tokens, metrics, cfg.Ops),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	go func() {
		if err := bot.Run(ctx); err != nil && err != context.Canceled {
			logger.Error("bot stopped", zap.Error(err))
		}
	}()

	waitForShutdown(logger)
	cancel()

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
