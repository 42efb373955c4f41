package cli

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/helpdesk-service/internal/api/http"
	"github.com/spec-kit/helpdesk-service/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/notify"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/persistence"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	"github.com/spec-kit/helpdesk-service/internal/service"
	"github.com/spec-kit/helpdesk-service/internal/worker"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx)
		},
	}
}

func serve(ctx context.Context) error {
	env, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer env.close()

	cfg, logger := env.cfg, env.logger
	pool := env.pg.PoolHandle()
	if pool == nil {
		return persistence.ErrNoDatabase
	}

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pool, logger); err != nil {
			return err
		}
	}

	if cfg.Auth.UsesDefaultSecret() {
		logger.Warn("AUTH_JWT_SECRET is not set; tokens are signed with the insecure development secret")
	}

	shutdownTracing := observability.SetupTracing(ctx, cfg.Tracing, cfg.App.Name, cfg.App.Version, logger)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown", zap.Error(err))
		}
	}()

	userRepo := repository.NewUserRepository(pool)
	ticketRepo := repository.NewTicketRepository(pool)

	highest, err := ticketRepo.MaxSequentialID(ctx)
	if err != nil {
		return err
	}

	dependencies := map[string]handlers.Pinger{"postgres": env.pg}
	counters := repository.NewCounterRepository(pool)
	seed := func(ctx context.Context) (int64, error) {
		return repository.SeedCounter(ctx, pool, domain.TicketSequenceName, highest)
	}
	if cfg.Sequence.Backend == config.SequenceBackendRedis {
		redis, err := persistence.NewRedis(ctx, cfg.Redis, logger)
		if err != nil {
			return err
		}
		defer redis.Close()
		counters = repository.NewRedisCounterRepository(redis.Client)
		dependencies["redis"] = redis
		seed = func(ctx context.Context) (int64, error) {
			return repository.SeedRedisCounter(ctx, redis.Client, domain.TicketSequenceName, highest)
		}
	}
	current, err := seed(ctx)
	if err != nil {
		return err
	}
	logger.Info("ticket sequence backend",
		zap.String("backend", cfg.Sequence.Backend),
		zap.Int64("highest_ticket", highest),
		zap.Int64("counter", current))

	dispatcher := events.NewInMemoryDispatcher(logger)
	var mailer notify.Mailer
	if smtp := notify.NewSMTPMailer(notify.SMTPConfig{
		Host:     cfg.Notification.SMTPHost,
		Port:     cfg.Notification.SMTPPort,
		Username: cfg.Notification.SMTPUsername,
		Password: cfg.Notification.SMTPPassword,
		From:     cfg.Notification.EmailFrom,
	}); smtp != nil {
		mailer = smtp
	}
	worker.StartNotificationWorker(service.NewNotificationService(dispatcher, userRepo, mailer, logger, cfg.Notification), logger)

	credentials := service.NewCredentialStore(userRepo, cfg.Auth.BcryptCost)
	authService := service.NewAuthService(cfg.Auth, credentials)
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:  ticketRepo,
		UserRepo:    userRepo,
		CounterRepo: counters,
		Dispatcher:  dispatcher,
		Logger:      logger,
	})

	metrics := observability.NewMetrics()
	app := httptransport.NewApp(cfg.App.Name, logger)
	httptransport.RegisterMiddlewares(app, logger, metrics, httptransport.MiddlewareConfig{
		Timeout:          cfg.App.RequestTimeout(),
		CORSAllowOrigins: cfg.App.CORSAllowOrigins,
	})
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, dependencies, metrics),
		Users:          handlers.NewUsersHandler(authService),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		AuthMiddleware: auth.NewAuthMiddleware(authService.TokenManager(), credentials),
		Policy:         auth.DefaultPolicy(),
	})

	listenErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.App.Addr()), zap.String("env", cfg.App.Env))
		listenErr <- app.Listen(cfg.App.Addr())
	}()

	select {
	case err := <-listenErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}
