package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mbergh0930/create3x/internal/catalog"
	"github.com/mbergh0930/create3x/internal/config"
	"github.com/mbergh0930/create3x/internal/database"
	"github.com/mbergh0930/create3x/internal/game"
	"github.com/mbergh0930/create3x/internal/handlers"
	"github.com/mbergh0930/create3x/internal/logging"
	"github.com/mbergh0930/create3x/internal/middleware"
	"github.com/mbergh0930/create3x/internal/repository"
	"github.com/mbergh0930/create3x/internal/router"
	"github.com/mbergh0930/create3x/internal/services"
	"github.com/mbergh0930/create3x/internal/telemetry"
	"github.com/mbergh0930/create3x/internal/websocket"
	"github.com/mbergh0930/create3x/internal/worker"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, worker pool and notification scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Env, cfg.LogLevel)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg, logger)
		},
	}
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path != "" {
		return catalog.LoadFile(path)
	}
	return catalog.Load()
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("starting create3x", zap.String("env", cfg.Env))

	shutdownTracing, err := telemetry.Setup(ctx, "create3x", cfg.OTELEndpoint)
	if err != nil {
		return fmt.Errorf("tracing setup: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}()

	// ──── Storage ────
	pool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	db := database.OpenDB(pool)
	defer func() { _ = db.Close() }()
	logger.Info("postgres connected")

	redisClients, err := database.NewRedisClients(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer func() { _ = redisClients.Close() }()
	logger.Info("redis connected")

	if err := database.MigrateUp(db, logger); err != nil {
		return err
	}

	cat, err := loadCatalog(cfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("catalog: %w", err)
	}

	if err := os.MkdirAll(cfg.StoragePath, 0o755); err != nil {
		return fmt.Errorf("storage path: %w", err)
	}

	// ──── Repositories ────
	userRepo := repository.NewUserRepo(pool)
	jobRepo := repository.NewJobRepo(pool)
	sessionRepo := repository.NewSessionRepo(db)

	// ──── Services ────
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)
	emailService := services.NewEmailService(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom, cfg.FrontendURL, logger)
	authService := services.NewAuthService(userRepo, redisClients.Queue, jwtAuth, emailService, logger)
	publisher := services.NewRedisPublisher(redisClients.Queue)

	machine := game.NewMachine(sessionRepo, cat, game.NewRand(), cfg.Limits())
	sessionService := services.NewSessionService(
		machine,
		sessionRepo,
		services.NewRedisSessionState(redisClients.Queue),
		services.NewJobDispatcher(jobRepo, redisClients.Queue),
		publisher,
		userRepo,
		logger,
	)

	// ──── Background work ────
	workerPool := worker.NewPool(
		worker.NewRedisQueue(redisClients.Queue),
		jobRepo,
		sessionRepo,
		userRepo,
		publisher,
		logger,
		cfg.WorkerCount,
	)
	workerPool.Start(ctx)
	defer workerPool.Stop()

	scheduler := services.NewNotificationScheduler(userRepo, sessionRepo, emailService, logger)
	scheduler.Start()
	defer scheduler.Stop()

	hub := websocket.NewHub(websocket.NewRedisSubscriber(redisClients.PubSub), jwtAuth, logger)
	defer hub.Close()

	authLimiter := middleware.NewRateLimiter(10, time.Minute)
	defer authLimiter.Stop()

	// ──── HTTP ────
	handler := router.New(router.Config{
		JWTAuth:     jwtAuth,
		AuthLimiter: authLimiter,
		Logger:      logger,
		FrontendURL: cfg.FrontendURL,
		StoragePath: cfg.StoragePath,
		Auth:        handlers.NewAuthHandler(authService, logger),
		Catalog:     handlers.NewCatalogHandler(cat),
		Sessions:    handlers.NewSessionHandler(sessionService, cfg.StoragePath, logger),
		Dashboard:   handlers.NewDashboardHandler(sessionRepo, userRepo, logger),
		User:        handlers.NewUserHandler(userRepo, cfg.Limits(), logger),
		Jobs:        handlers.NewJobHandler(jobRepo),
		Hub:         hub,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("create3x ready",
			zap.String("api", "http://localhost:"+cfg.Port+"/api/v1"),
			zap.String("ws", "ws://localhost:"+cfg.Port+"/api/v1/ws"),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
