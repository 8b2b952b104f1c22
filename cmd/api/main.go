package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/ticket-lifecycle/internal/api/http"
	"github.com/spec-kit/ticket-lifecycle/internal/api/http/handlers"
	"github.com/spec-kit/ticket-lifecycle/internal/auth"
	"github.com/spec-kit/ticket-lifecycle/internal/config"
	"github.com/spec-kit/ticket-lifecycle/internal/events"
	"github.com/spec-kit/ticket-lifecycle/internal/notification"
	"github.com/spec-kit/ticket-lifecycle/internal/observability"
	"github.com/spec-kit/ticket-lifecycle/internal/persistence"
	"github.com/spec-kit/ticket-lifecycle/internal/repository"
	"github.com/spec-kit/ticket-lifecycle/internal/scheduler"
	"github.com/spec-kit/ticket-lifecycle/internal/service"
	"github.com/spec-kit/ticket-lifecycle/internal/sla"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
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

	pool := pg.PoolHandle()
	ticketRepo := repository.NewTicketRepository(pool)
	teamRepo := repository.NewTeamRepository(pool)
	userRepo := repository.NewUserRepository(pool)
	eventRepo := repository.NewTicketEventRepository(pool)
	slaRuleRepo := repository.NewSLARuleRepository(pool)
	surveyRepo := repository.NewSurveyRepository(pool)

	defaults, err := sla.TableFromConfig(cfg.SLA)
	if err != nil {
		logger.Fatal("invalid sla defaults", zap.Error(err))
	}
	resolver, err := sla.NewResolver(defaults, slaRuleRepo)
	if err != nil {
		logger.Fatal("failed to build sla resolver", zap.Error(err))
	}

	metrics := observability.NewMetrics()
	sched := scheduler.New(cfg.Scheduler, logger, scheduler.WithMetrics(metrics))
	dispatcher := events.NewInMemoryDispatcher()
	channel := notification.NewChannel(cfg.Notification, logger)

	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo: ticketRepo,
		TeamRepo:   teamRepo,
		UserRepo:   userRepo,
		AuditRepo:  eventRepo,
		Resolver:   resolver,
		Jobs:       sched,
		Dispatcher: dispatcher,
		SLAConfig:  cfg.SLA,
	})
	escalationService := service.NewEscalationService(service.EscalationDependencies{
		TicketRepo: ticketRepo,
		TeamRepo:   teamRepo,
		AuditRepo:  eventRepo,
		Jobs:       sched,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	notificationService := service.NewNotificationService(service.NotificationDependencies{
		TicketRepo: ticketRepo,
		UserRepo:   userRepo,
		Channel:    channel,
		Logger:     logger,
	})
	surveyService := service.NewSurveyService(service.SurveyDependencies{
		SurveyRepo: surveyRepo,
		TicketRepo: ticketRepo,
		UserRepo:   userRepo,
		Claims:     persistence.NewSurveyClaims(redis),
		Channel:    channel,
		Jobs:       sched,
		Dispatcher: dispatcher,
		Config:     cfg.Survey,
		Logger:     logger,
	})

	escalationService.RegisterHandlers(sched)
	notificationService.RegisterHandlers(sched)
	surveyService.RegisterHandlers(sched)
	notificationService.Subscribe(dispatcher)
	surveyService.Subscribe(dispatcher)

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	authService := service.NewAuthService(userRepo, tokens)
	authMiddleware := auth.NewAuthMiddleware(tokens, userRepo)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Auth:           handlers.NewAuthHandler(authService),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		Surveys:        handlers.NewSurveysHandler(surveyService),
		Jobs:           handlers.NewJobsHandler(sched),
		AuthMiddleware: authMiddleware,
	})

	sched.Start(ctx)

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	sched.Stop()
	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
