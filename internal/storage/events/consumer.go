package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/behzadon/pollvote/internal/domain"
	"github.com/behzadon/pollvote/internal/events"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

type EventHandler interface {
	HandlePollCreated(ctx context.Context, poll *domain.Poll) error
	HandlePollVoted(ctx context.Context, vote *domain.VoteEvent) error
}

type RabbitMQConsumer struct {
	conn      *amqp.Connection
	channel   *amqp.Channel
	handler   EventHandler
	logger    *zap.Logger
	queueName string
}

func NewRabbitMQConsumer(cfg RabbitMQConfig, handler EventHandler, logger *zap.Logger) (*RabbitMQConsumer, error) {
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

	err = ch.Qos(
		1,
		0,
		false,
	)
	if err != nil {
		cleanup(ch, conn, logger)
		return nil, fmt.Errorf("set QoS: %w", err)
	}

	return &RabbitMQConsumer{
		conn:      conn,
		channel:   ch,
		handler:   handler,
		logger:    logger,
		queueName: cfg.Queue,
	}, nil
}

func (c *RabbitMQConsumer) Start(ctx context.Context) error {
	msgs, err := c.channel.Consume(
		c.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("register consumer: %w", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					c.logger.Error("Consumer channel closed")
					return
				}

				if err := dispatch(ctx, c.handler, msg.Body); err != nil {
					c.logger.Error("Failed to handle message",
						zap.Error(err),
						zap.String("routing_key", msg.RoutingKey),
					)
					// Undecodable payloads would loop forever if requeued.
					if err := msg.Nack(false, false); err != nil {
						c.logger.Error("Failed to nack message", zap.Error(err))
					}
					continue
				}

				if err := msg.Ack(false); err != nil {
					c.logger.Error("Failed to ack message", zap.Error(err))
				}
			}
		}
	}()

	return nil
}

func dispatch(ctx context.Context, handler EventHandler, body []byte) error {
	var event events.Envelope
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("unmarshal event: %w", err)
	}

	switch event.Type {
	case events.TypePollCreated:
		var poll domain.Poll
		if err := json.Unmarshal(event.Data, &poll); err != nil {
			return fmt.Errorf("unmarshal poll: %w", err)
		}
		return handler.HandlePollCreated(ctx, &poll)

	case events.TypePollVoted:
		var vote domain.VoteEvent
		if err := json.Unmarshal(event.Data, &vote); err != nil {
			return fmt.Errorf("unmarshal vote: %w", err)
		}
		return handler.HandlePollVoted(ctx, &vote)

	default:
		return fmt.Errorf("unknown event type: %s", event.Type)
	}
}

func (c *RabbitMQConsumer) Close() error {
	var errs []error

	if err := c.channel.Close(); err != nil {
		c.logger.Error("Failed to close RabbitMQ channel", zap.Error(err))
		errs = append(errs, fmt.Errorf("close channel: %w", err))
	}

	if err := c.conn.Close(); err != nil {
		c.logger.Error("Failed to close RabbitMQ connection", zap.Error(err))
		errs = append(errs, fmt.Errorf("close connection: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during cleanup: %v", errs)
	}
	return nil
}
