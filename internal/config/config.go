package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Backend names accepted by the metadata and blob stores.
const (
	MetadataSQLite   = "sqlite"
	MetadataPostgres = "postgres"
	BlobFS           = "fs"
	BlobMinIO        = "minio"
)

// Config aggregates runtime configuration for the sharefiles API.
type Config struct {
	Server   ServerConfig
	Metadata MetadataConfig
	Postgres PostgresConfig
	Blob     BlobConfig
	MinIO    MinIOConfig
	Redis    RedisConfig
	Upload   UploadConfig
	Download DownloadConfig
	Sweeper  SweeperConfig
	Metrics  MetricsConfig
}

// ServerConfig parameterizes the HTTP server.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Address returns the listen address in host:port form.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// MetadataConfig selects the relational engine holding entries and files.
type MetadataConfig struct {
	Backend    string
	SQLitePath string
}

// PostgresConfig contains PostgreSQL connection details.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// DSN returns the PostgreSQL DSN string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode)
}

// BlobConfig selects where uploaded bytes live.
type BlobConfig struct {
	Backend string
	Dir     string
}

// MinIOConfig carries MinIO connection and bucket information.
type MinIOConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	UseSSL          bool
	Region          string
}

// RedisConfig enables cross-process append locking when Addr is set.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	LockTTL  time.Duration
}

// Enabled reports whether a Redis server was configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.Addr) != ""
}

// UploadConfig bounds the chunked upload endpoint.
type UploadConfig struct {
	MaxRetention time.Duration
	MaxBodyBytes int64
	RateLimit    float64
	RateBurst    int
}

// DownloadConfig shapes the streamed archive.
type DownloadConfig struct {
	ArchiveName      string
	CompressionLevel int
}

// SweeperConfig controls the background expiry task.
type SweeperConfig struct {
	Interval      time.Duration
	Concurrency   int
	DeleteEntries bool
}

// MetricsConfig groups observability settings.
type MetricsConfig struct {
	PrometheusPath string
}

// Load reads configuration values from environment variables, applying defaults.
func Load() (Config, error) {
	cfg := Config{
		Server: ServerConfig{
			Host:         getString("SHAREFILES_API_HOST", "0.0.0.0"),
			Port:         getInt("SHAREFILES_API_PORT", 8080),
			ReadTimeout:  getDuration("SHAREFILES_API_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getDuration("SHAREFILES_API_WRITE_TIMEOUT", 0),
			IdleTimeout:  getDuration("SHAREFILES_API_IDLE_TIMEOUT", 60*time.Second),
		},
		Metadata: MetadataConfig{
			Backend:    strings.ToLower(getString("METADATA_BACKEND", MetadataSQLite)),
			SQLitePath: getString("SQLITE_PATH", "data/sharefiles.db"),
		},
		Postgres: PostgresConfig{
			Host:     getString("POSTGRES_HOST", "localhost"),
			Port:     getInt("POSTGRES_PORT", 5432),
			User:     getString("POSTGRES_USER", "sharefiles_app"),
			Password: getString("POSTGRES_PASSWORD", "change-me"),
			Database: getString("POSTGRES_DB", "sharefiles"),
			SSLMode:  strings.ToLower(getString("POSTGRES_SSL_MODE", "disable")),
		},
		Blob: BlobConfig{
			Backend: strings.ToLower(getString("BLOB_BACKEND", BlobFS)),
			Dir:     getString("BLOB_DIR", "data/blobs"),
		},
		MinIO: MinIOConfig{
			Endpoint:        getString("MINIO_ENDPOINT", "localhost:9000"),
			AccessKeyID:     getString("MINIO_ROOT_USER", "sharefiles"),
			SecretAccessKey: getString("MINIO_ROOT_PASSWORD", "change-me-strong-password"),
			Bucket:          getString("MINIO_BUCKET", "sharefiles"),
			UseSSL:          getBool("MINIO_USE_SSL", false),
			Region:          getString("MINIO_REGION", ""),
		},
		Redis: RedisConfig{
			Addr:     getString("REDIS_ADDR", ""),
			Password: getString("REDIS_PASSWORD", ""),
			DB:       getInt("REDIS_DB", 0),
			LockTTL:  getDuration("REDIS_LOCK_TTL", 30*time.Second),
		},
		Upload: UploadConfig{
			MaxRetention: getDuration("UPLOAD_MAX_RETENTION", 14*24*time.Hour),
			MaxBodyBytes: getInt64("UPLOAD_MAX_BODY_BYTES", 4<<20),
			RateLimit:    getFloat("UPLOAD_RATE_LIMIT", 0),
			RateBurst:    getInt("UPLOAD_RATE_BURST", 16),
		},
		Download: DownloadConfig{
			ArchiveName:      getString("DOWNLOAD_ARCHIVE_NAME", "share-those-files"),
			CompressionLevel: getInt("DOWNLOAD_COMPRESSION_LEVEL", -1),
		},
		Sweeper: SweeperConfig{
			Interval:      getDuration("SWEEP_INTERVAL", time.Minute),
			Concurrency:   getInt("SWEEP_CONCURRENCY", 4),
			DeleteEntries: getBool("SWEEP_DELETE_ENTRIES", false),
		},
		Metrics: MetricsConfig{
			PrometheusPath: getString("SHAREFILES_METRICS_PATH", "/metrics"),
		},
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Metadata.Backend {
	case MetadataSQLite, MetadataPostgres:
	default:
		return fmt.Errorf("unknown METADATA_BACKEND %q", c.Metadata.Backend)
	}
	switch c.Blob.Backend {
	case BlobFS, BlobMinIO:
	default:
		return fmt.Errorf("unknown BLOB_BACKEND %q", c.Blob.Backend)
	}
	if c.Upload.MaxRetention <= 0 {
		return fmt.Errorf("UPLOAD_MAX_RETENTION must be positive")
	}
	if c.Download.CompressionLevel < -1 || c.Download.CompressionLevel > 9 {
		return fmt.Errorf("DOWNLOAD_COMPRESSION_LEVEL must be between -1 and 9")
	}
	if c.Sweeper.Interval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be positive")
	}
	return nil
}

func getString(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func getInt64(key string, fallback int64) int64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		val = strings.ToLower(strings.TrimSpace(val))
		switch val {
		case "1", "true", "t", "yes", "y":
			return true
		case "0", "false", "f", "no", "n":
			return false
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := time.ParseDuration(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}
