package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/behzadon/pollvote/internal/api"
	"github.com/behzadon/pollvote/internal/config"
	"github.com/behzadon/pollvote/internal/domain"
	"github.com/behzadon/pollvote/internal/events"
	"github.com/behzadon/pollvote/internal/logging"
	"github.com/behzadon/pollvote/internal/service"
	"github.com/behzadon/pollvote/internal/storage/cache"
	rabbitmq "github.com/behzadon/pollvote/internal/storage/events"
	"github.com/behzadon/pollvote/internal/storage/memory"
	"github.com/behzadon/pollvote/internal/storage/mongodb"
	"github.com/behzadon/pollvote/internal/storage/postgres"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the poll API server",
	Long:  `Start the poll API server with the specified configuration.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		cfg := GetConfig()

		zapLogger, err := logging.New(cfg.Server.Env)
		if err != nil {
			return fmt.Errorf("create logger: %w", err)
		}
		defer func() {
			_ = zapLogger.Sync()
		}()

		logger := logging.NewLogger(zapLogger)

		store, closeStore, err := openStore(ctx, cfg, zapLogger)
		if err != nil {
			return fmt.Errorf("open %s store: %w", cfg.Storage.Driver, err)
		}
		defer closeStore()
		logger.Info("Poll store ready", zap.String("driver", cfg.Storage.Driver))

		var redisClient *redis.Client
		if cfg.Redis.Enabled {
			redisClient, err = connectRedis(ctx, cfg.Redis)
			if err != nil {
				return fmt.Errorf("connect to redis: %w", err)
			}
			defer func() {
				if err := redisClient.Close(); err != nil {
					logger.Error("Failed to close Redis connection", err)
				}
			}()
			logger.Info("Successfully connected to Redis")
		}

		publisher, err := openPublisher(cfg, redisClient, zapLogger)
		if err != nil {
			return fmt.Errorf("create %s publisher: %w", cfg.Events.Driver, err)
		}
		defer func() {
			if err := publisher.Close(); err != nil {
				logger.Error("Failed to close event publisher", err)
			}
		}()

		var opts []service.Option
		if redisClient != nil {
			opts = append(opts, service.WithPollCache(cache.NewRedisCache(redisClient), cfg.Cache.PollTTL))
		}
		svc := service.NewService(store, publisher, zapLogger, opts...)

		var rateLimiter *api.RateLimiter
		if cfg.RateLimit.Enabled {
			rateLimiter = api.NewRateLimiter(redisClient, cfg.RateLimit.Requests, cfg.RateLimit.Window, zapLogger)
		}
		handler := api.NewHandler(svc, rateLimiter, zapLogger)

		if cfg.Server.Env != "development" {
			gin.SetMode(gin.ReleaseMode)
		}
		engine := gin.New()
		engine.Use(gin.Recovery())
		engine.Use(logger.GinLogger())
		handler.RegisterRoutes(engine)

		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			logger.Info("Starting server",
				zap.Int("port", cfg.Server.Port),
			)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Fatal("Failed to start server", err)
			}
		}()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		logger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server forced to shutdown", err)
			return fmt.Errorf("server shutdown: %w", err)
		}

		logger.Info("Server exited properly")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (domain.PollStore, func(), error) {
	switch cfg.Storage.Driver {
	case config.StorageMongo:
		connectCtx, cancel := context.WithTimeout(ctx, cfg.Mongo.Timeout)
		defer cancel()

		client, err := mongodb.Connect(connectCtx, cfg.Mongo.URI)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			if err := client.Disconnect(context.Background()); err != nil {
				logger.Error("Failed to disconnect from mongo", zap.Error(err))
			}
		}

		store := mongodb.NewStore(client.Database(cfg.Mongo.Database).Collection(cfg.Mongo.Collection), logger)
		if err := store.EnsureIndexes(connectCtx); err != nil {
			closeFn()
			return nil, nil, err
		}
		return store, closeFn, nil

	case config.StoragePostgres:
		db, err := connectPostgres(cfg.Postgres)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			if err := db.Close(); err != nil {
				logger.Error("Failed to close database connection", zap.Error(err))
			}
		}

		if cfg.Migration.AutoMigrate {
			logger.Info("Auto-migration is enabled, running migrations...")
			if err := migrateUp(ctx, db, migrationsDir, logger); err != nil {
				closeFn()
				return nil, nil, fmt.Errorf("run migrations: %w", err)
			}
		}
		return postgres.NewStore(db, logger), closeFn, nil

	default:
		return memory.NewStore(), func() {}, nil
	}
}

func openPublisher(cfg *config.Config, redisClient *redis.Client, logger *zap.Logger) (events.Publisher, error) {
	switch cfg.Events.Driver {
	case config.EventsRedis:
		return events.NewRedisPublisher(redisClient, cfg.Events.Channel, logger), nil
	case config.EventsRabbitMQ:
		return rabbitmq.NewRabbitMQPublisher(rabbitMQConfig(cfg.RabbitMQ), logger)
	default:
		return events.NopPublisher{}, nil
	}
}

func rabbitMQConfig(cfg config.RabbitMQConfig) rabbitmq.RabbitMQConfig {
	return rabbitmq.RabbitMQConfig{
		Host:     cfg.Host,
		Port:     cfg.Port,
		User:     cfg.User,
		Password: cfg.Password,
		VHost:    cfg.VHost,
		Exchange: cfg.Exchange,
		Queue:    cfg.Queue,
	}
}

func connectPostgres(cfg config.PostgresConfig) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

func connectRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}
