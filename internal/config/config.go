package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	StorageMemory   = "memory"
	StorageMongo    = "mongo"
	StoragePostgres = "postgres"

	EventsNone     = "none"
	EventsRedis    = "redis"
	EventsRabbitMQ = "rabbitmq"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Mongo     MongoConfig     `mapstructure:"mongo"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Cache     CacheConfig     `mapstructure:"cache"`
	RabbitMQ  RabbitMQConfig  `mapstructure:"rabbitmq"`
	Events    EventsConfig    `mapstructure:"events"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Migration MigrationConfig `mapstructure:"migration"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Env  string `mapstructure:"env"`
}

type StorageConfig struct {
	Driver string `mapstructure:"driver"`
}

type MongoConfig struct {
	URI        string        `mapstructure:"uri"`
	Database   string        `mapstructure:"database"`
	Collection string        `mapstructure:"collection"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.DBName,
		c.SSLMode,
	)
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type CacheConfig struct {
	PollTTL time.Duration `mapstructure:"poll_ttl"`
}

type RabbitMQConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	VHost    string `mapstructure:"vhost"`
	Exchange string `mapstructure:"exchange"`
	Queue    string `mapstructure:"queue"`
}

type EventsConfig struct {
	Driver  string `mapstructure:"driver"`
	Channel string `mapstructure:"channel"`
}

type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

type MigrationConfig struct {
	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// Load reads configFile (or config.yaml from . and ./config when empty),
// then applies POLLVOTE_* environment overrides. A .env file in the working
// directory is loaded first when present.
func Load(configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	if configFile != "" {
		v.SetConfigFile(configFile)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}
	if err := bindEnvs(v); err != nil {
		return nil, fmt.Errorf("bind env vars: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.env", "development")
	v.SetDefault("storage.driver", StorageMemory)
	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "pollvote")
	v.SetDefault("mongo.collection", "polls")
	v.SetDefault("mongo.timeout", 10*time.Second)
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("cache.poll_ttl", 5*time.Minute)
	v.SetDefault("rabbitmq.enabled", false)
	v.SetDefault("rabbitmq.port", 5672)
	v.SetDefault("rabbitmq.vhost", "/")
	v.SetDefault("rabbitmq.exchange", "poll_events")
	v.SetDefault("rabbitmq.queue", "poll_activity")
	v.SetDefault("events.driver", EventsNone)
	v.SetDefault("events.channel", "poll_events")
	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.requests", 1000)
	v.SetDefault("rate_limit.window", time.Minute)
	v.SetDefault("migration.auto_migrate", false)
}

func bindEnvs(v *viper.Viper) error {
	bindings := map[string]string{
		"server.port":            "POLLVOTE_SERVER_PORT",
		"server.env":             "POLLVOTE_SERVER_ENV",
		"storage.driver":         "POLLVOTE_STORAGE_DRIVER",
		"mongo.uri":              "POLLVOTE_MONGO_URI",
		"mongo.database":         "POLLVOTE_MONGO_DATABASE",
		"mongo.collection":       "POLLVOTE_MONGO_COLLECTION",
		"mongo.timeout":          "POLLVOTE_MONGO_TIMEOUT",
		"postgres.host":          "POLLVOTE_POSTGRES_HOST",
		"postgres.port":          "POLLVOTE_POSTGRES_PORT",
		"postgres.user":          "POLLVOTE_POSTGRES_USER",
		"postgres.password":      "POLLVOTE_POSTGRES_PASSWORD",
		"postgres.dbname":        "POLLVOTE_POSTGRES_DBNAME",
		"postgres.sslmode":       "POLLVOTE_POSTGRES_SSLMODE",
		"redis.enabled":          "POLLVOTE_REDIS_ENABLED",
		"redis.host":             "POLLVOTE_REDIS_HOST",
		"redis.port":             "POLLVOTE_REDIS_PORT",
		"redis.password":         "POLLVOTE_REDIS_PASSWORD",
		"redis.db":               "POLLVOTE_REDIS_DB",
		"cache.poll_ttl":         "POLLVOTE_CACHE_POLL_TTL",
		"rabbitmq.enabled":       "POLLVOTE_RABBITMQ_ENABLED",
		"rabbitmq.host":          "POLLVOTE_RABBITMQ_HOST",
		"rabbitmq.port":          "POLLVOTE_RABBITMQ_PORT",
		"rabbitmq.user":          "POLLVOTE_RABBITMQ_USER",
		"rabbitmq.password":      "POLLVOTE_RABBITMQ_PASSWORD",
		"rabbitmq.vhost":         "POLLVOTE_RABBITMQ_VHOST",
		"rabbitmq.exchange":      "POLLVOTE_RABBITMQ_EXCHANGE",
		"rabbitmq.queue":         "POLLVOTE_RABBITMQ_QUEUE",
		"events.driver":          "POLLVOTE_EVENTS_DRIVER",
		"events.channel":         "POLLVOTE_EVENTS_CHANNEL",
		"rate_limit.enabled":     "POLLVOTE_RATE_LIMIT_ENABLED",
		"rate_limit.requests":    "POLLVOTE_RATE_LIMIT_REQUESTS",
		"rate_limit.window":      "POLLVOTE_RATE_LIMIT_WINDOW",
		"migration.auto_migrate": "POLLVOTE_MIGRATION_AUTO_MIGRATE",
	}

	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	return nil
}

func validateConfig(cfg *Config) error {
	if cfg.Server.Port <= 0 {
		return fmt.Errorf("server.port must be greater than 0")
	}
	if cfg.Server.Env == "" {
		return fmt.Errorf("server.env is required")
	}

	switch cfg.Storage.Driver {
	case StorageMemory:
	case StorageMongo:
		if cfg.Mongo.URI == "" {
			return fmt.Errorf("mongo.uri is required")
		}
		if cfg.Mongo.Database == "" || cfg.Mongo.Collection == "" {
			return fmt.Errorf("mongo.database and mongo.collection are required")
		}
		if cfg.Mongo.Timeout <= 0 {
			return fmt.Errorf("mongo.timeout must be greater than 0")
		}
	case StoragePostgres:
		if err := validatePostgres(cfg.Postgres); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown storage.driver %q", cfg.Storage.Driver)
	}

	if cfg.Redis.Enabled {
		if cfg.Redis.Host == "" {
			return fmt.Errorf("redis.host is required")
		}
		if cfg.Redis.Port <= 0 {
			return fmt.Errorf("redis.port must be greater than 0")
		}
		if cfg.Cache.PollTTL < 0 {
			return fmt.Errorf("cache.poll_ttl must not be negative")
		}
	}

	if cfg.RabbitMQ.Enabled {
		if cfg.RabbitMQ.Host == "" {
			return fmt.Errorf("rabbitmq.host is required")
		}
		if cfg.RabbitMQ.Port <= 0 {
			return fmt.Errorf("rabbitmq.port must be greater than 0")
		}
		if cfg.RabbitMQ.User == "" {
			return fmt.Errorf("rabbitmq.user is required")
		}
		if cfg.RabbitMQ.Exchange == "" || cfg.RabbitMQ.Queue == "" {
			return fmt.Errorf("rabbitmq.exchange and rabbitmq.queue are required")
		}
	}

	switch cfg.Events.Driver {
	case EventsNone:
	case EventsRedis:
		if !cfg.Redis.Enabled {
			return fmt.Errorf("events.driver %q requires redis.enabled", cfg.Events.Driver)
		}
		if cfg.Events.Channel == "" {
			return fmt.Errorf("events.channel is required")
		}
	case EventsRabbitMQ:
		if !cfg.RabbitMQ.Enabled {
			return fmt.Errorf("events.driver %q requires rabbitmq.enabled", cfg.Events.Driver)
		}
	default:
		return fmt.Errorf("unknown events.driver %q", cfg.Events.Driver)
	}

	if cfg.RateLimit.Enabled {
		if !cfg.Redis.Enabled {
			return fmt.Errorf("rate_limit.enabled requires redis.enabled")
		}
		if cfg.RateLimit.Requests <= 0 {
			return fmt.Errorf("rate_limit.requests must be greater than 0")
		}
		if cfg.RateLimit.Window < time.Second {
			return fmt.Errorf("rate_limit.window must be at least 1s")
		}
	}

	return nil
}

func validatePostgres(cfg PostgresConfig) error {
	if cfg.Host == "" {
		return fmt.Errorf("postgres.host is required")
	}
	if cfg.Port <= 0 {
		return fmt.Errorf("postgres.port must be greater than 0")
	}
	if cfg.User == "" {
		return fmt.Errorf("postgres.user is required")
	}
	if cfg.DBName == "" {
		return fmt.Errorf("postgres.dbname is required")
	}
	return nil
}

// ValidatePostgres is used by the migrate command, which needs postgres
// regardless of storage.driver.
func (c *Config) ValidatePostgres() error {
	return validatePostgres(c.Postgres)
}
