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
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/hszk-dev/beatvault/internal/api/handler"
	"github.com/hszk-dev/beatvault/internal/audio"
	"github.com/hszk-dev/beatvault/internal/config"
	"github.com/hszk-dev/beatvault/internal/domain/repository"
	"github.com/hszk-dev/beatvault/internal/infrastructure/cache"
	"github.com/hszk-dev/beatvault/internal/infrastructure/postgres"
	"github.com/hszk-dev/beatvault/internal/infrastructure/queue"
	"github.com/hszk-dev/beatvault/internal/infrastructure/storage"
	"github.com/hszk-dev/beatvault/internal/observability"
	"github.com/hszk-dev/beatvault/internal/pipeline"
	"github.com/hszk-dev/beatvault/internal/usecase"
	"github.com/hszk-dev/beatvault/internal/validation"
	"github.com/hszk-dev/beatvault/internal/vault"
)

// abortGrace is how long cancelled runs get to record their outcome once the
// shutdown timeout has passed.
const abortGrace = 5 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	shutdownTracer, err := observability.InitTracer(ctx, observability.TracerConfig{
		ServiceName: "beatvault-worker",
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

	// Ensure temp directory exists
	if err := os.MkdirAll(cfg.Worker.TempDir, 0755); err != nil {
		return fmt.Errorf("failed to create temp directory: %w", err)
	}

	wrapper, err := vault.NewKeyWrapper([]byte(cfg.Vault.Secret), cfg.Vault.KeyID)
	if err != nil {
		return fmt.Errorf("failed to initialize key wrapper: %w", err)
	}

	// Initialize infrastructure clients
	pgClient, err := postgres.NewClient(ctx, postgres.DefaultClientConfig(cfg.Database.DSN(), "beatvault-worker"))
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	defer pgClient.Close()
	logger.Info("connected to PostgreSQL")

	credentials := storage.Credentials{
		Endpoint:  cfg.MinIO.Endpoint,
		AccessKey: cfg.MinIO.AccessKey,
		SecretKey: cfg.MinIO.SecretKey,
		UseSSL:    cfg.MinIO.UseSSL,
	}
	storageClient, err := storage.NewClient(ctx, storage.ClientConfig{
		Credentials: credentials,
		Bucket:      cfg.MinIO.Bucket,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to MinIO: %w", err)
	}

	breaker := storage.DefaultBreakerConfig()
	breaker.MaxFailures = cfg.MinIO.BreakerMaxFailures
	breaker.OpenTimeout = cfg.MinIO.BreakerOpenTimeout
	contentStore, err := storage.NewContentStore(ctx, storage.ColdStoreConfig{
		Credentials: credentials,
		Bucket:      cfg.MinIO.ColdBucket,
		TempDir:     cfg.Worker.TempDir,
		Breaker:     breaker,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to open cold store: %w", err)
	}
	logger.Info("connected to MinIO",
		slog.String("bucket", cfg.MinIO.Bucket),
		slog.String("cold_bucket", cfg.MinIO.ColdBucket),
	)

	queueCfg := queue.DefaultClientConfig(cfg.RabbitMQ.URL())
	queueCfg.Concurrency = cfg.Worker.Concurrency
	queueClient, err := queue.NewClient(ctx, queueCfg, logger)
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

	// Pipeline stages
	ffmpeg := audio.NewFFmpeg(audio.FFmpegConfig{
		FFmpegPath:         cfg.Pipeline.FFmpegPath,
		FFprobePath:        cfg.Pipeline.FFprobePath,
		PreviewCodec:       audio.DefaultFFmpegConfig().PreviewCodec,
		PreviewBitrate:     audio.DefaultFFmpegConfig().PreviewBitrate,
		WaveformSampleRate: audio.DefaultFFmpegConfig().WaveformSampleRate,
	})
	preview := audio.NewPreviewGenerator(storageClient, ffmpeg, audio.PreviewConfig{
		Duration: cfg.Pipeline.PreviewDuration,
		TempDir:  cfg.Worker.TempDir,
	})
	waveform := audio.NewWaveformGenerator(storageClient, ffmpeg, audio.WaveformConfig{
		Points:  cfg.Pipeline.WaveformPoints,
		TempDir: cfg.Worker.TempDir,
	})

	assetRepo := postgres.NewAssetRepository(pgClient.Pool())
	updater := pipeline.NewRepositoryUpdater(assetRepo, cache.NewRedisAssetCache(redisClient), pipeline.RetryPolicy{
		Attempts:       cfg.Pipeline.PersistAttempts,
		InitialBackoff: cfg.Pipeline.PersistInitialBackoff,
		MaxBackoff:     cfg.Pipeline.PersistMaxBackoff,
	}, logger)

	orchestrator := pipeline.New(pipeline.Dependencies{
		Profiles:  validation.ProfilesWithLimits(cfg.Upload.GeneralMaxBytes, cfg.Upload.StudioMaxBytes, cfg.Upload.AllowedTypes),
		Preview:   preview,
		Waveform:  waveform,
		Encryptor: vault.New(storageClient, contentStore, wrapper),
		Updater:   updater,
		Logger:    logger,
	}, pipeline.Config{
		PreviewTimeout:  cfg.Pipeline.PreviewTimeout,
		WaveformTimeout: cfg.Pipeline.WaveformTimeout,
		EncryptTimeout:  cfg.Pipeline.EncryptTimeout,
		PersistTimeout:  cfg.Pipeline.PersistTimeout,
	})

	processSvc := usecase.NewProcessService(
		orchestrator,
		updater,
		cache.NewRedisPendingResultStore(redisClient),
		cache.NewRedisAssetLocker(redisClient),
		usecase.ProcessServiceConfig{
			MaxRetries: cfg.Worker.MaxRetries,
			PendingTTL: cfg.Worker.PendingTTL,
			LeaseTTL:   cfg.Worker.LeaseTTL,
		},
		logger,
	)

	metricsSrv := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Worker.MetricsPort),
		Handler: setupMetricsRouter(map[string]handler.Check{
			"postgres":   pgClient.Ping,
			"minio":      storageClient.Ping,
			"cold_store": contentStore.Ping,
			"redis": func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			},
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("starting metrics server", slog.Int("port", cfg.Worker.MetricsPort))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics server error: %w", err)
		}
	}()

	// Setup signal handling for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Runs are detached from the consumer context so that stopping
	// consumption lets in-flight work finish. workCtx aborts them once the
	// shutdown timeout is exceeded.
	workCtx, abort := context.WithCancel(context.Background())
	defer abort()

	// consumed closes once ConsumeProcessTasks returns, which happens only
	// after every consumer goroutine has finished its current delivery.
	consumed := make(chan struct{})
	go func() {
		defer close(consumed)
		logger.Info("starting worker, consuming process tasks", slog.Int("concurrency", cfg.Worker.Concurrency))
		err := queueClient.ConsumeProcessTasks(ctx, func(msgCtx context.Context, task repository.ProcessAssetTask) error {
			taskCtx, cancelTask := context.WithCancel(context.WithoutCancel(msgCtx))
			defer cancelTask()
			stop := context.AfterFunc(workCtx, cancelTask)
			defer stop()

			logger.Info("processing task",
				slog.String("asset_id", task.AssetID.String()),
				slog.Int("retry_count", task.RetryCount),
			)

			if err := processSvc.ProcessTask(taskCtx, task); err != nil {
				logger.Error("task processing failed",
					slog.String("asset_id", task.AssetID.String()),
					slog.Int("retry_count", task.RetryCount),
					slog.String("error", err.Error()),
				)
				return err
			}

			logger.Info("task handled", slog.String("asset_id", task.AssetID.String()))
			return nil
		})
		if err != nil && ctx.Err() == nil {
			errCh <- fmt.Errorf("consumer error: %w", err)
		}
	}()

	// Wait for shutdown signal or error
	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down worker", slog.String("signal", sig.String()))
	}

	// Stop consuming new messages
	cancel()

	select {
	case <-consumed:
		logger.Info("all in-flight tasks completed")
	case <-time.After(cfg.Worker.ShutdownTimeout):
		logger.Warn("shutdown timeout exceeded, cancelling in-flight tasks")
		abort()
		select {
		case <-consumed:
		case <-time.After(abortGrace):
			logger.Warn("in-flight tasks did not stop, their deliveries will be redelivered")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), abortGrace)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics server shutdown error", slog.String("error", err.Error()))
	}

	logger.Info("worker stopped")
	return nil
}

func setupMetricsRouter(checks map[string]handler.Check) *chi.Mux {
	r := chi.NewRouter()
	r.Get("/health", handler.Health(checks))
	r.Handle("/metrics", promhttp.Handler())
	return r
}
