package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/hszk-dev/beatvault/internal/api/handler"
	"github.com/hszk-dev/beatvault/internal/api/middleware"
	"github.com/hszk-dev/beatvault/internal/config"
	"github.com/hszk-dev/beatvault/internal/infrastructure/cache"
	"github.com/hszk-dev/beatvault/internal/infrastructure/postgres"
	"github.com/hszk-dev/beatvault/internal/infrastructure/queue"
	"github.com/hszk-dev/beatvault/internal/infrastructure/storage"
	"github.com/hszk-dev/beatvault/internal/observability"
	"github.com/hszk-dev/beatvault/internal/usecase"
	"github.com/hszk-dev/beatvault/internal/validation"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	shutdownTracer, err := observability.InitTracer(ctx, observability.TracerConfig{
		ServiceName: "beatvault-api",
		Environment: cfg.Tracing.Environment,
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		SampleRatio: cfg.Tracing.SampleRatio,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Warn("failed to flush traces", slog.String("error", err.Error()))
		}
	}()

	// Initialize infrastructure clients
	pgClient, err := postgres.NewClient(ctx, postgres.DefaultClientConfig(cfg.Database.DSN(), "beatvault-api"))
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	defer pgClient.Close()
	logger.Info("connected to PostgreSQL")

	storageClient, err := storage.NewClient(ctx, storage.ClientConfig{
		Credentials: storage.Credentials{
			Endpoint:  cfg.MinIO.Endpoint,
			AccessKey: cfg.MinIO.AccessKey,
			SecretKey: cfg.MinIO.SecretKey,
			UseSSL:    cfg.MinIO.UseSSL,
		},
		PublicEndpoint: cfg.MinIO.PublicEndpoint,
		Bucket:         cfg.MinIO.Bucket,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to MinIO: %w", err)
	}
	logger.Info("connected to MinIO")

	queueClient, err := queue.NewClient(ctx, queue.DefaultClientConfig(cfg.RabbitMQ.URL()), logger)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	defer queueClient.Close()
	logger.Info("connected to RabbitMQ")

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	logger.Info("connected to Redis")

	// Initialize services
	assetRepo := postgres.NewAssetRepository(pgClient.Pool())
	profiles := validation.ProfilesWithLimits(cfg.Upload.GeneralMaxBytes, cfg.Upload.StudioMaxBytes, cfg.Upload.AllowedTypes)

	assetSvc := usecase.NewAssetService(assetRepo, storageClient, queueClient, profiles, usecase.AssetServiceConfig{
		UploadURLExpiry:  cfg.Server.UploadURLExpiry,
		PreviewURLExpiry: cfg.Server.PreviewURLExpiry,
	})
	assetSvc = usecase.NewCachedAssetService(assetSvc, cache.NewRedisAssetCache(redisClient), storageClient, usecase.CachedAssetServiceConfig{
		CacheTTL:         cfg.Server.CacheTTL,
		PreviewURLExpiry: cfg.Server.PreviewURLExpiry,
	}, logger)

	checks := map[string]handler.Check{
		"postgres": pgClient.Ping,
		"minio":    storageClient.Ping,
		"redis": func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		},
	}

	r := setupRouter(logger, handler.NewAssetHandler(assetSvc), checks)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down server", slog.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func setupRouter(logger *slog.Logger, assets *handler.AssetHandler, checks map[string]handler.Check) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))

	r.Get("/health", handler.Health(checks))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/assets", assets.Routes)
	})

	return r
}
