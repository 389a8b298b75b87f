package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Server   ServerConfig
	Worker   WorkerConfig
	Pipeline PipelineConfig
	Upload   UploadConfig
	Database DatabaseConfig
	MinIO    MinIOConfig
	RabbitMQ RabbitMQConfig
	Redis    RedisConfig
	Vault    VaultConfig
	Tracing  TracingConfig
}

type ServerConfig struct {
	Port             int           `envconfig:"API_PORT" default:"8080"`
	ReadTimeout      time.Duration `envconfig:"API_READ_TIMEOUT" default:"10s"`
	WriteTimeout     time.Duration `envconfig:"API_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout  time.Duration `envconfig:"API_SHUTDOWN_TIMEOUT" default:"10s"`
	UploadURLExpiry  time.Duration `envconfig:"API_UPLOAD_URL_EXPIRY" default:"15m"`
	PreviewURLExpiry time.Duration `envconfig:"API_PREVIEW_URL_EXPIRY" default:"1h"`
	CacheTTL         time.Duration `envconfig:"API_CACHE_TTL" default:"5m"`
}

type WorkerConfig struct {
	TempDir         string        `envconfig:"WORKER_TEMP_DIR" default:"/tmp/beatvault"`
	MaxRetries      int           `envconfig:"WORKER_MAX_RETRIES" default:"3"`
	Concurrency     int           `envconfig:"WORKER_CONCURRENCY" default:"2"`
	ShutdownTimeout time.Duration `envconfig:"WORKER_SHUTDOWN_TIMEOUT" default:"30s"`
	MetricsPort     int           `envconfig:"WORKER_METRICS_PORT" default:"9091"`
	PendingTTL      time.Duration `envconfig:"WORKER_PENDING_RESULT_TTL" default:"24h"`
	// LeaseTTL bounds how long one worker holds an asset. It must exceed
	// the sum of the stage and persist timeouts.
	LeaseTTL time.Duration `envconfig:"WORKER_LEASE_TTL" default:"30m"`
}

// PipelineConfig tunes the processing stages and terminal writes.
type PipelineConfig struct {
	PreviewDuration time.Duration `envconfig:"PIPELINE_PREVIEW_DURATION" default:"30s"`
	WaveformPoints  int           `envconfig:"PIPELINE_WAVEFORM_POINTS" default:"100"`
	PreviewTimeout  time.Duration `envconfig:"PIPELINE_PREVIEW_TIMEOUT" default:"5m"`
	WaveformTimeout time.Duration `envconfig:"PIPELINE_WAVEFORM_TIMEOUT" default:"5m"`
	EncryptTimeout  time.Duration `envconfig:"PIPELINE_ENCRYPT_TIMEOUT" default:"10m"`
	PersistTimeout  time.Duration `envconfig:"PIPELINE_PERSIST_TIMEOUT" default:"30s"`

	PersistAttempts       int           `envconfig:"PIPELINE_PERSIST_ATTEMPTS" default:"4"`
	PersistInitialBackoff time.Duration `envconfig:"PIPELINE_PERSIST_INITIAL_BACKOFF" default:"200ms"`
	PersistMaxBackoff     time.Duration `envconfig:"PIPELINE_PERSIST_MAX_BACKOFF" default:"2s"`

	FFmpegPath  string `envconfig:"FFMPEG_PATH" default:"ffmpeg"`
	FFprobePath string `envconfig:"FFPROBE_PATH" default:"ffprobe"`
}

// UploadConfig holds the size limits of the upload profiles.
type UploadConfig struct {
	GeneralMaxBytes int64 `envconfig:"UPLOAD_GENERAL_MAX_BYTES" default:"104857600"`
	StudioMaxBytes  int64 `envconfig:"UPLOAD_STUDIO_MAX_BYTES" default:"524288000"`
	// AllowedTypes overrides the built-in audio MIME allow-list when set.
	AllowedTypes []string `envconfig:"UPLOAD_ALLOWED_TYPES"`
}

type DatabaseConfig struct {
	Host     string `envconfig:"POSTGRES_HOST" default:"localhost"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER" default:"beatvault"`
	Password string `envconfig:"POSTGRES_PASSWORD" default:"beatvault"`
	DBName   string `envconfig:"POSTGRES_DB" default:"beatvault"`
	SSLMode  string `envconfig:"POSTGRES_SSLMODE" default:"disable"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

type MinIOConfig struct {
	Endpoint       string `envconfig:"MINIO_ENDPOINT" default:"localhost:9000"`
	PublicEndpoint string `envconfig:"MINIO_PUBLIC_ENDPOINT"`
	AccessKey      string `envconfig:"MINIO_ACCESS_KEY" default:"minioadmin"`
	SecretKey      string `envconfig:"MINIO_SECRET_KEY" default:"minioadmin"`
	Bucket         string `envconfig:"MINIO_BUCKET" default:"beats"`
	ColdBucket     string `envconfig:"MINIO_COLD_BUCKET" default:"beats-vault"`
	UseSSL         bool   `envconfig:"MINIO_USE_SSL" default:"false"`

	BreakerMaxFailures uint32        `envconfig:"COLD_STORE_BREAKER_MAX_FAILURES" default:"5"`
	BreakerOpenTimeout time.Duration `envconfig:"COLD_STORE_BREAKER_OPEN_TIMEOUT" default:"30s"`
}

type RabbitMQConfig struct {
	Host     string `envconfig:"RABBITMQ_HOST" default:"localhost"`
	Port     int    `envconfig:"RABBITMQ_PORT" default:"5672"`
	User     string `envconfig:"RABBITMQ_USER" default:"beatvault"`
	Password string `envconfig:"RABBITMQ_PASSWORD" default:"beatvault"`
	VHost    string `envconfig:"RABBITMQ_VHOST" default:"/"`
}

func (c RabbitMQConfig) URL() string {
	return fmt.Sprintf(
		"amqp://%s:%s@%s:%d%s",
		c.User, c.Password, c.Host, c.Port, c.VHost,
	)
}

type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// VaultConfig holds the key wrapping secret for encrypted masters.
type VaultConfig struct {
	// Secret is the master secret content keys are wrapped under.
	// It must be at least 32 bytes.
	Secret string `envconfig:"VAULT_SECRET"`
	KeyID  string `envconfig:"VAULT_KEY_ID" default:"k1"`
}

type TracingConfig struct {
	Endpoint    string  `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	Insecure    bool    `envconfig:"OTEL_EXPORTER_OTLP_INSECURE" default:"true"`
	SampleRatio float64 `envconfig:"OTEL_TRACES_SAMPLE_RATIO" default:"1"`
	Environment string  `envconfig:"DEPLOY_ENV" default:"dev"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings envconfig cannot express as tags.
func (c *Config) Validate() error {
	var errs []error
	if c.Pipeline.WaveformPoints < 1 {
		errs = append(errs, errors.New("PIPELINE_WAVEFORM_POINTS must be positive"))
	}
	if c.Pipeline.PreviewDuration <= 0 {
		errs = append(errs, errors.New("PIPELINE_PREVIEW_DURATION must be positive"))
	}
	if c.Pipeline.PersistAttempts < 1 {
		errs = append(errs, errors.New("PIPELINE_PERSIST_ATTEMPTS must be at least 1"))
	}
	if stages := c.Pipeline.PreviewTimeout + c.Pipeline.WaveformTimeout + c.Pipeline.EncryptTimeout; c.Worker.LeaseTTL <= stages {
		errs = append(errs, errors.New("WORKER_LEASE_TTL must exceed the sum of the stage timeouts"))
	}
	if c.Worker.Concurrency < 1 {
		errs = append(errs, errors.New("WORKER_CONCURRENCY must be at least 1"))
	}
	if c.Upload.GeneralMaxBytes <= 0 || c.Upload.StudioMaxBytes <= 0 {
		errs = append(errs, errors.New("upload size limits must be positive"))
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		errs = append(errs, errors.New("OTEL_TRACES_SAMPLE_RATIO must be within [0, 1]"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
