package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/behzadon/pollvote/internal/domain"
	"github.com/behzadon/pollvote/internal/events"
	"github.com/behzadon/pollvote/internal/metrics"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

var _ events.Publisher = (*RabbitMQPublisher)(nil)

type RabbitMQPublisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	// amqp channels are not safe for concurrent publishing.
	mu     sync.Mutex
	logger *zap.Logger
}

type RabbitMQConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	VHost    string
	Exchange string
	Queue    string
}

func (c RabbitMQConfig) url() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d/%s", c.User, c.Password, c.Host, c.Port, c.VHost)
}

func cleanup(ch *amqp.Channel, conn *amqp.Connection, logger *zap.Logger) {
	if ch != nil {
		if err := ch.Close(); err != nil {
			logger.Error("Failed to close RabbitMQ channel", zap.Error(err))
		}
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			logger.Error("Failed to close RabbitMQ connection", zap.Error(err))
		}
	}
}

func NewRabbitMQPublisher(cfg RabbitMQConfig, logger *zap.Logger) (*RabbitMQPublisher, error) {
	conn, err := amqp.Dial(cfg.url())
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		cleanup(nil, conn, logger)
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := declareTopology(ch, cfg); err != nil {
		cleanup(ch, conn, logger)
		return nil, err
	}

	return &RabbitMQPublisher{
		conn:     conn,
		channel:  ch,
		exchange: cfg.Exchange,
		logger:   logger,
	}, nil
}

func declareTopology(ch *amqp.Channel, cfg RabbitMQConfig) error {
	err := ch.ExchangeDeclare(
		cfg.Exchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	_, err = ch.QueueDeclare(
		cfg.Queue,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", cfg.Queue, err)
	}

	err = ch.QueueBind(
		cfg.Queue,
		"poll.*",
		cfg.Exchange,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("bind queue %s: %w", cfg.Queue, err)
	}
	return nil
}

func (p *RabbitMQPublisher) Close() error {
	var errs []error

	if err := p.channel.Close(); err != nil {
		p.logger.Error("Failed to close RabbitMQ channel", zap.Error(err))
		errs = append(errs, fmt.Errorf("close channel: %w", err))
	}

	if err := p.conn.Close(); err != nil {
		p.logger.Error("Failed to close RabbitMQ connection", zap.Error(err))
		errs = append(errs, fmt.Errorf("close connection: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during cleanup: %v", errs)
	}
	return nil
}

func (p *RabbitMQPublisher) PublishPollCreated(ctx context.Context, poll *domain.Poll) error {
	body, err := events.Encode(events.TypePollCreated, poll.CreatedAt, poll)
	if err != nil {
		return err
	}
	return p.publish(ctx, body, events.TypePollCreated)
}

func (p *RabbitMQPublisher) PublishPollVoted(ctx context.Context, vote *domain.VoteEvent) error {
	body, err := events.Encode(events.TypePollVoted, vote.CreatedAt, vote)
	if err != nil {
		return err
	}
	return p.publish(ctx, body, events.TypePollVoted)
}

func (p *RabbitMQPublisher) publish(ctx context.Context, body []byte, routingKey string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := p.channel.PublishWithContext(ctx,
		p.exchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	)
	metrics.RecordEventPublish("rabbitmq", routingKey, err)
	if err != nil {
		p.logger.Error("Failed to publish message to RabbitMQ",
			zap.Error(err),
			zap.String("routing_key", routingKey),
		)
		return fmt.Errorf("publish message: %w", err)
	}

	return nil
}
