package config

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Cache backends.
const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)

// Prefetch transports.
const (
	TransportLocal    = "local"
	TransportRabbitMQ = "rabbitmq"
)

// Catalog origins.
const (
	OriginStatic   = "static"
	OriginYouTube  = "youtube"
	OriginSnapshot = "snapshot"
)

type Config struct {
	Server   ServerConfig
	Log      LogConfig
	Cache    CacheConfig
	Redis    RedisConfig
	Database DatabaseConfig
	Prefetch PrefetchConfig
	RabbitMQ RabbitMQConfig
	Origin   OriginConfig
	YouTube  YouTubeConfig
	MinIO    MinIOConfig
	Query    QueryConfig
	Worker   WorkerConfig
}

type ServerConfig struct {
	Port            int           `envconfig:"API_PORT" default:"9000"`
	ReadTimeout     time.Duration `envconfig:"API_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"API_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"API_SHUTDOWN_TIMEOUT" default:"10s"`
	SeedOnStartup   bool          `envconfig:"SEED_ON_STARTUP" default:"false"`
}

type LogConfig struct {
	Format string `envconfig:"LOG_FORMAT" default:"json"`
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
}

type CacheConfig struct {
	Backend string        `envconfig:"CACHE_BACKEND" default:"memory"`
	TTL     time.Duration `envconfig:"CACHE_TTL" default:"20m"`
}

type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD" default:""`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

func (c RedisConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

type DatabaseConfig struct {
	Enabled  bool   `envconfig:"POSTGRES_ENABLED" default:"false"`
	Host     string `envconfig:"POSTGRES_HOST" default:"localhost"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER" default:"countrytube"`
	Password string `envconfig:"POSTGRES_PASSWORD" default:"countrytube"`
	DBName   string `envconfig:"POSTGRES_DB" default:"countrytube"`
	SSLMode  string `envconfig:"POSTGRES_SSLMODE" default:"disable"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

type PrefetchConfig struct {
	Transport      string        `envconfig:"PREFETCH_TRANSPORT" default:"local"`
	Pages          int           `envconfig:"PREFETCH_PAGES" default:"3"`
	Workers        int           `envconfig:"PREFETCH_WORKERS" default:"4"`
	QueueSize      int           `envconfig:"PREFETCH_QUEUE_SIZE" default:"256"`
	MaxRetries     int           `envconfig:"PREFETCH_MAX_RETRIES" default:"3"`
	PublishTimeout time.Duration `envconfig:"PREFETCH_PUBLISH_TIMEOUT" default:"5s"`
}

type RabbitMQConfig struct {
	Host     string `envconfig:"RABBITMQ_HOST" default:"localhost"`
	Port     int    `envconfig:"RABBITMQ_PORT" default:"5672"`
	User     string `envconfig:"RABBITMQ_USER" default:"countrytube"`
	Password string `envconfig:"RABBITMQ_PASSWORD" default:"countrytube"`
	VHost    string `envconfig:"RABBITMQ_VHOST" default:"/"`
}

func (c RabbitMQConfig) URL() string {
	return fmt.Sprintf(
		"amqp://%s:%s@%s:%d%s",
		c.User, c.Password, c.Host, c.Port, c.VHost,
	)
}

type OriginConfig struct {
	Kind        string `envconfig:"ORIGIN_KIND" default:"static"`
	FixturePath string `envconfig:"ORIGIN_FIXTURE_PATH" default:""`
}

type YouTubeConfig struct {
	APIKey    string   `envconfig:"YOUTUBE_API_KEY" default:""`
	Endpoint  string   `envconfig:"YOUTUBE_ENDPOINT" default:""`
	Regions   []string `envconfig:"YOUTUBE_REGIONS" default:"IT,NL,GR,ES,DE,GB"`
	MaxVideos int      `envconfig:"YOUTUBE_MAX_VIDEOS" default:"200"`
}

type MinIOConfig struct {
	Endpoint    string `envconfig:"MINIO_ENDPOINT" default:"localhost:9002"`
	AccessKey   string `envconfig:"MINIO_ACCESS_KEY" default:"minioadmin"`
	SecretKey   string `envconfig:"MINIO_SECRET_KEY" default:"minioadmin"`
	Bucket      string `envconfig:"MINIO_BUCKET" default:"catalogs"`
	SnapshotKey string `envconfig:"MINIO_SNAPSHOT_KEY" default:"catalog.yaml"`
	UseSSL      bool   `envconfig:"MINIO_USE_SSL" default:"false"`
}

type QueryConfig struct {
	DefaultMaxResults int `envconfig:"QUERY_DEFAULT_MAX_RESULTS" default:"5"`
	MaxPageSize       int `envconfig:"QUERY_MAX_PAGE_SIZE" default:"1000"`
	MaxConcurrency    int `envconfig:"QUERY_MAX_CONCURRENCY" default:"8"`
}

type WorkerConfig struct {
	ShutdownTimeout time.Duration `envconfig:"WORKER_SHUTDOWN_TIMEOUT" default:"30s"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Validate checks values envconfig cannot constrain by itself.
func (c *Config) Validate() error {
	switch c.Cache.Backend {
	case CacheBackendMemory, CacheBackendRedis:
	default:
		return fmt.Errorf("CACHE_BACKEND %q: want %s or %s", c.Cache.Backend, CacheBackendMemory, CacheBackendRedis)
	}

	switch c.Prefetch.Transport {
	case TransportLocal, TransportRabbitMQ:
	default:
		return fmt.Errorf("PREFETCH_TRANSPORT %q: want %s or %s", c.Prefetch.Transport, TransportLocal, TransportRabbitMQ)
	}
	// A remote worker can only warm a cache it shares with the API.
	if c.Prefetch.Transport == TransportRabbitMQ && c.Cache.Backend != CacheBackendRedis {
		return fmt.Errorf("PREFETCH_TRANSPORT=%s requires CACHE_BACKEND=%s", TransportRabbitMQ, CacheBackendRedis)
	}

	switch c.Origin.Kind {
	case OriginStatic, OriginSnapshot:
	case OriginYouTube:
		if c.YouTube.APIKey == "" {
			return fmt.Errorf("YOUTUBE_API_KEY is required for origin %s", OriginYouTube)
		}
	default:
		return fmt.Errorf("ORIGIN_KIND %q: want %s, %s or %s", c.Origin.Kind, OriginStatic, OriginYouTube, OriginSnapshot)
	}

	if c.Query.DefaultMaxResults <= 0 {
		return fmt.Errorf("QUERY_DEFAULT_MAX_RESULTS must be positive")
	}
	if c.Query.MaxPageSize < c.Query.DefaultMaxResults {
		return fmt.Errorf("QUERY_MAX_PAGE_SIZE must be at least QUERY_DEFAULT_MAX_RESULTS")
	}
	if c.Query.MaxConcurrency <= 0 {
		return fmt.Errorf("QUERY_MAX_CONCURRENCY must be positive")
	}
	if c.Prefetch.Pages < 0 || c.Prefetch.Workers <= 0 || c.Prefetch.QueueSize <= 0 {
		return fmt.Errorf("PREFETCH_PAGES must be non-negative and PREFETCH_WORKERS, PREFETCH_QUEUE_SIZE positive")
	}
	return nil
}
