package app

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-co-op/gocron/v2"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/tipvault/relayer/src/handler"
	"github.com/tipvault/relayer/src/repository"
	"github.com/tipvault/relayer/src/service"
	postgresDriver "gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type Application struct {
	config    AppConfig
	database  *gorm.DB
	redis     *redis.Client
	pipeline  *RelayPipeline
	registry  *prometheus.Registry
	scheduler gocron.Scheduler

	RelayService *service.RelayService
	Reconciler   *service.Reconciler
}

func NewApplication(ctx context.Context, config AppConfig) (*Application, error) {
	logger := zerolog.Ctx(ctx).With().Str("function", "NewApplication").Logger()
	app := &Application{config: config}

	// Connect to Redis
	redisOpts, err := redis.ParseURL(config.RedisAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	app.redis = redis.NewClient(redisOpts)
	if err := app.redis.Ping(ctx).Err(); err != nil {
		app.Shutdown(ctx)
		return nil, fmt.Errorf("connection to redis failed: %w", err)
	}
	logger.Info().Msg("Redis connection established")

	// Connect to database
	app.database, err = gorm.Open(postgresDriver.Open(config.DSN), &gorm.Config{})
	if err != nil {
		app.Shutdown(ctx)
		return nil, fmt.Errorf("connection to database failed: %w", err)
	}
	if err := app.pingDatabase(ctx); err != nil {
		app.Shutdown(ctx)
		return nil, fmt.Errorf("connection to database failed: %w", err)
	}
	logger.Info().Msg("Database connection established")

	version, err := MigrationUp(config.DSN, config.MigrationPath)
	if err != nil {
		app.Shutdown(ctx)
		return nil, err
	}
	logger.Info().Uint("version", version).Msg("Database migrated")

	app.pipeline, err = NewRelayPipeline(ctx, &config)
	if err != nil {
		app.Shutdown(ctx)
		return nil, err
	}

	if err := app.buildServices(); err != nil {
		app.Shutdown(ctx)
		return nil, err
	}

	return app, nil
}

func (app *Application) buildServices() error {
	app.registry = prometheus.NewRegistry()
	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := service.NewMetrics(app.registry)

	relayRepo := repository.NewRelayRepository(app.database)
	relayCache := repository.NewRelayCacheRepository(app.redis, app.config.RedisPrefix)

	app.RelayService = service.NewRelayService(app.pipeline.Coordinator, relayRepo, relayCache, metrics, app.config.ChainID)
	app.Reconciler = service.NewReconciler(relayRepo, relayCache, app.pipeline.Submission, metrics, service.ReconcilerConfig{
		CallTimeout: app.config.CallTimeout,
	})

	var err error
	app.scheduler, err = gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	return nil
}

func (app *Application) pingDatabase(ctx context.Context) error {
	db, err := app.database.DB()
	if err != nil {
		return err
	}
	return db.PingContext(ctx)
}

func (app *Application) Shutdown(ctx context.Context) {
	logger := zerolog.Ctx(ctx).With().Str("function", "Shutdown").Logger()

	if app.pipeline != nil {
		app.pipeline.Close()
	}

	// Close database connection
	if app.database != nil {
		db, err := app.database.DB()
		if err != nil {
			logger.Error().Err(err).Msg("Failed to get underlying database connection")
		} else {
			if err := db.Close(); err != nil {
				logger.Error().Err(err).Msg("Failed to close database connection")
			} else {
				logger.Info().Msg("Database connection closed")
			}
		}
	}

	// Close Redis connection
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close redis connection")
		} else {
			logger.Info().Msg("Redis connection closed")
		}
	}
}

func (app *Application) RunHTTPServer(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	logger := zerolog.Ctx(ctx).With().Str("function", "RunHTTPServer").Logger()

	// Set to release mode to disable Gin logger
	gin.SetMode(gin.ReleaseMode)

	ginRouter := gin.New()
	ginRouter.Use(gin.Recovery())

	handler.RegisterRoutes(ctx, ginRouter, handler.RouteConfig{
		RelayService:  app.RelayService,
		DefaultTarget: app.config.VaultAddress,
		HealthChecks: map[string]handler.HealthCheck{
			"postgres": app.pingDatabase,
			"redis": func(ctx context.Context) error {
				return app.redis.Ping(ctx).Err()
			},
		},
		Metrics:      app.registry,
		APISecret:    app.config.APISecret,
		AllowOrigins: app.config.AllowOrigins,
	})

	// Relay requests wait for inclusion, so only the header read is bounded
	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", app.config.Port),
		Handler:           ginRouter,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Msgf("HTTP server is on http://localhost:%s/api/v1/health", app.config.Port)
		err := server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			logger.Panic().Err(err).Msg("Failed to start HTTP server")
		}
	}()

	<-ctx.Done()

	logger.Info().Msg("Gracefully shutting down HTTP server...")

	// In-flight relays get the poll window to finish
	grace := app.config.ReceiptPollInterval*time.Duration(app.config.ReceiptPollAttempts) + 5*time.Second
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), grace)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Failed to shutdown HTTP server gracefully")
	} else {
		logger.Info().Msg("HTTP server shutdown complete")
	}
}

// RunReconciler settles unresolved relays on an interval until ctx is cancelled.
func (app *Application) RunReconciler(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	logger := zerolog.Ctx(ctx).With().Str("function", "RunReconciler").Logger()

	job, err := app.Reconciler.Schedule(ctx, app.scheduler, app.config.ReconcileInterval)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to schedule reconciler")
		return
	}
	logger.Info().
		Str("job_id", job.ID().String()).
		Dur("interval", app.config.ReconcileInterval).
		Msg("Starting reconciler")

	app.scheduler.Start()

	<-ctx.Done()
	logger.Info().Msg("Stopping reconciler...")

	if err := app.scheduler.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("Failed to stop reconciler")
		return
	}
	logger.Info().Msg("Reconciler stopped")
}
