package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/behzadon/pollvote/internal/logging"
	"github.com/behzadon/pollvote/internal/notification"
	"github.com/behzadon/pollvote/internal/storage/events"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var milestone int64

var eventsConsumerCmd = &cobra.Command{
	Use:   "events-consumer",
	Short: "Consume poll events from RabbitMQ",
	Long:  `Consume poll.created and poll.voted events from the RabbitMQ queue and emit activity notifications.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		if !cfg.RabbitMQ.Enabled {
			return fmt.Errorf("events-consumer requires rabbitmq.enabled")
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		zapLogger, err := logging.New(cfg.Server.Env)
		if err != nil {
			return fmt.Errorf("create logger: %w", err)
		}
		defer func() {
			_ = zapLogger.Sync()
		}()

		logger := logging.NewLogger(zapLogger)

		handler := notification.NewNotificationHandler(
			&notification.LogNotificationService{Logger: zapLogger},
			milestone,
			zapLogger,
		)

		consumer, err := events.NewRabbitMQConsumer(rabbitMQConfig(cfg.RabbitMQ), handler, zapLogger)
		if err != nil {
			return fmt.Errorf("create RabbitMQ consumer: %w", err)
		}
		defer func() {
			if err := consumer.Close(); err != nil {
				logger.Error("Failed to close RabbitMQ consumer", err)
			}
		}()

		if err := consumer.Start(ctx); err != nil {
			return fmt.Errorf("start consumer: %w", err)
		}

		logger.Info("Events consumer started",
			zap.String("queue", cfg.RabbitMQ.Queue),
			zap.Int64("milestone", milestone),
		)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		logger.Info("Shutting down events consumer...")
		return nil
	},
}

func init() {
	eventsConsumerCmd.Flags().Int64Var(&milestone, "milestone", notification.DefaultMilestone, "vote count interval that triggers a notification")
	rootCmd.AddCommand(eventsConsumerCmd)
}
