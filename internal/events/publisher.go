package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/behzadon/pollvote/internal/domain"
	"github.com/behzadon/pollvote/internal/metrics"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	TypePollCreated = "poll.created"
	TypePollVoted   = "poll.voted"
)

// Envelope is the wire shape shared by every transport.
type Envelope struct {
	Type      string          `json:"type"`
	Timestamp string          `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

func Encode(eventType string, ts time.Time, data interface{}) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	body, err := json.Marshal(Envelope{
		Type:      eventType,
		Timestamp: ts.UTC().Format(time.RFC3339),
		Data:      payload,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal %s event: %w", eventType, err)
	}
	return body, nil
}

type Publisher interface {
	PublishPollCreated(ctx context.Context, poll *domain.Poll) error
	PublishPollVoted(ctx context.Context, vote *domain.VoteEvent) error
	Close() error
}

type NopPublisher struct{}

func (NopPublisher) PublishPollCreated(context.Context, *domain.Poll) error    { return nil }
func (NopPublisher) PublishPollVoted(context.Context, *domain.VoteEvent) error { return nil }
func (NopPublisher) Close() error                                              { return nil }

type RedisPublisher struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

func NewRedisPublisher(client *redis.Client, channel string, logger *zap.Logger) *RedisPublisher {
	return &RedisPublisher{
		client:  client,
		channel: channel,
		logger:  logger,
	}
}

func (p *RedisPublisher) PublishPollCreated(ctx context.Context, poll *domain.Poll) error {
	data, err := Encode(TypePollCreated, poll.CreatedAt, poll)
	if err != nil {
		return err
	}

	err = p.client.Publish(ctx, p.channel, data).Err()
	metrics.RecordEventPublish("redis", TypePollCreated, err)
	if err != nil {
		return fmt.Errorf("publish poll created event: %w", err)
	}

	p.logger.Debug("published poll created event",
		zap.String("poll_id", poll.ID),
		zap.String("question", poll.Question),
	)

	return nil
}

func (p *RedisPublisher) PublishPollVoted(ctx context.Context, vote *domain.VoteEvent) error {
	data, err := Encode(TypePollVoted, vote.CreatedAt, vote)
	if err != nil {
		return err
	}

	err = p.client.Publish(ctx, p.channel, data).Err()
	metrics.RecordEventPublish("redis", TypePollVoted, err)
	if err != nil {
		return fmt.Errorf("publish poll voted event: %w", err)
	}

	p.logger.Debug("published poll voted event",
		zap.String("poll_id", vote.PollID),
		zap.Int("option_index", vote.OptionIndex),
		zap.Int64("total_votes", vote.TotalVotes),
	)

	return nil
}

// Close is a no-op; the redis client is owned by the caller.
func (p *RedisPublisher) Close() error {
	return nil
}
