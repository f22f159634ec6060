// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Postgres, Redis, Kafka, Cache, Queue, Search, Scraper).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Cache    CacheConfig    `yaml:"cache"`
	Queue    QueueConfig    `yaml:"queue"`
	Search   SearchConfig   `yaml:"search"`
	Scraper  ScraperConfig  `yaml:"scraper"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds the HTTP server settings for the health and metrics
// endpoints exposed by `civicd serve`.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// PostgresConfig holds PostgreSQL connection parameters for the article
// corpus.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// RedisConfig holds Redis connection parameters for the tiered cache backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"poolSize"`
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	CacheInvalidate string `yaml:"cacheInvalidate"`
	ArticleIndexed  string `yaml:"articleIndexed"`
}

// CacheConfig controls the tiered cache store.
type CacheConfig struct {
	KeyPrefix     string        `yaml:"keyPrefix"`
	SweepInterval time.Duration `yaml:"sweepInterval"`
	MaxExcerpts   int           `yaml:"maxExcerpts"`
}

// QueueConfig controls the rate-limited fetch queue. Intervals are hard lower
// bounds on inter-request spacing, globally and per domain.
type QueueConfig struct {
	MaxConcurrent         int                      `yaml:"maxConcurrent"`
	MaxQueueSize          int                      `yaml:"maxQueueSize"`
	MaxRetries            int                      `yaml:"maxRetries"`
	RetryDelay            time.Duration            `yaml:"retryDelay"`
	FetchTimeout          time.Duration            `yaml:"fetchTimeout"`
	GlobalInterval        time.Duration            `yaml:"globalInterval"`
	DefaultDomainInterval time.Duration            `yaml:"defaultDomainInterval"`
	DomainIntervals       map[string]time.Duration `yaml:"domainIntervals"`
	BreakerThreshold      int                      `yaml:"breakerThreshold"`
	BreakerResetTimeout   time.Duration            `yaml:"breakerResetTimeout"`
}

// SearchConfig controls the relevance-ranked search pipeline.
type SearchConfig struct {
	DefaultLimit      int           `yaml:"defaultLimit"`
	EntityLimit       int           `yaml:"entityLimit"`
	FallbackThreshold int           `yaml:"fallbackThreshold"`
	OutletDelay       time.Duration `yaml:"outletDelay"`
	TrustedOutlets    []string      `yaml:"trustedOutlets"`
}

// ScraperConfig controls article content extraction.
type ScraperConfig struct {
	MinContentLength int    `yaml:"minContentLength"`
	MaxContentLength int    `yaml:"maxContentLength"`
	UserAgent        string `yaml:"userAgent"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// defaultConfig returns a Config with conservative defaults for local
// development. Queue defaults err on the side of politeness: one request in
// flight and multi-second inter-request gaps.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "civicdata",
			User:            "civicdata",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "civicdata-group",
			Topics: KafkaTopics{
				CacheInvalidate: "cache-invalidate",
				ArticleIndexed:  "article-indexed",
			},
		},
		Cache: CacheConfig{
			KeyPrefix:     "civic:",
			SweepInterval: 15 * time.Minute,
			MaxExcerpts:   5,
		},
		Queue: QueueConfig{
			MaxConcurrent:         1,
			MaxQueueSize:          100,
			MaxRetries:            3,
			RetryDelay:            5 * time.Second,
			FetchTimeout:          30 * time.Second,
			GlobalInterval:        2 * time.Second,
			DefaultDomainInterval: 5 * time.Second,
			DomainIntervals: map[string]time.Duration{
				"congress.gov":    6 * time.Second,
				"govtrack.us":     5 * time.Second,
				"reuters.com":     3 * time.Second,
				"apnews.com":      3 * time.Second,
				"politico.com":    4 * time.Second,
				"thehill.com":     4 * time.Second,
				"npr.org":         3 * time.Second,
				"ballotpedia.org": 5 * time.Second,
			},
			BreakerThreshold:    5,
			BreakerResetTimeout: 2 * time.Minute,
		},
		Search: SearchConfig{
			DefaultLimit:      20,
			EntityLimit:       30,
			FallbackThreshold: 10,
			OutletDelay:       2 * time.Second,
			TrustedOutlets: []string{
				"reuters.com",
				"apnews.com",
				"politico.com",
				"thehill.com",
				"npr.org",
				"axios.com",
				"rollcall.com",
				"govtrack.us",
			},
		},
		Scraper: ScraperConfig{
			MinContentLength: 200,
			MaxContentLength: 50000,
			UserAgent:        "civicdata/1.0 (article indexer)",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads CD_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CD_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("CD_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("CD_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("CD_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("CD_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("CD_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("CD_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("CD_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("CD_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("CD_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("CD_QUEUE_MAX_CONCURRENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Queue.MaxConcurrent = n
		}
	}
	if v := os.Getenv("CD_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("CD_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("CD_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
}
