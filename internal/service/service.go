package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/behzadon/pollvote/internal/domain"
	"github.com/behzadon/pollvote/internal/events"
	"go.uber.org/zap"
)

const DefaultPollCacheTTL = 5 * time.Minute

type Service interface {
	CreatePoll(ctx context.Context, req *domain.CreatePollRequest) (*domain.Poll, error)
	ListPolls(ctx context.Context) ([]domain.Poll, error)
	GetPollByID(ctx context.Context, id string) (*domain.Poll, error)
	CastVote(ctx context.Context, req *domain.VoteRequest) (*domain.Poll, error)
}

type service struct {
	store     domain.PollStore
	cache     domain.PollCache
	cacheTTL  time.Duration
	publisher events.Publisher
	logger    *zap.Logger
}

type Option func(*service)

// WithPollCache serves the vote pre-check from cache. Question and options
// never change after creation, so any cached copy is valid for that check.
func WithPollCache(cache domain.PollCache, ttl time.Duration) Option {
	return func(s *service) {
		s.cache = cache
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

func NewService(store domain.PollStore, publisher events.Publisher, logger *zap.Logger, opts ...Option) Service {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	s := &service{
		store:     store,
		cacheTTL:  DefaultPollCacheTTL,
		publisher: publisher,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) CreatePoll(ctx context.Context, req *domain.CreatePollRequest) (*domain.Poll, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: request body is required", domain.ErrValidation)
	}

	draft, err := domain.NewPoll(req.Question, req.Options)
	if err != nil {
		return nil, err
	}

	options := make([]string, len(draft.Options))
	for i, o := range draft.Options {
		options[i] = o.Text
	}

	poll, err := s.store.Create(ctx, draft.Question, options)
	if err != nil {
		return nil, fmt.Errorf("create poll: %w", err)
	}

	if err := s.publisher.PublishPollCreated(ctx, poll); err != nil {
		s.logger.Error("failed to publish poll created event",
			zap.Error(err),
			zap.String("poll_id", poll.ID),
		)
	}

	return poll, nil
}

func (s *service) ListPolls(ctx context.Context) ([]domain.Poll, error) {
	polls, err := s.store.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list polls: %w", err)
	}
	return polls, nil
}

func (s *service) GetPollByID(ctx context.Context, id string) (*domain.Poll, error) {
	return s.store.FindByID(ctx, id)
}

// CastVote records one vote. The pre-check read may be stale; the outcome of
// the atomic increment is what decides between success and not-found.
func (s *service) CastVote(ctx context.Context, req *domain.VoteRequest) (*domain.Poll, error) {
	if req == nil || req.OptionIndex < 0 {
		return nil, fmt.Errorf("%w: valid option index is required", domain.ErrInvalidInput)
	}
	if req.BodyPollID != "" && req.BodyPollID != req.PollID {
		return nil, fmt.Errorf("%w: poll id in body does not match path", domain.ErrInvalidInput)
	}

	poll, err := s.lookupPoll(ctx, req.PollID)
	if err != nil {
		return nil, err
	}

	if req.OptionIndex >= len(poll.Options) {
		return nil, domain.ErrInvalidOption
	}

	updated, err := s.store.IncrementOptionVote(ctx, req.PollID, req.OptionIndex)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidIdentifier) {
			return nil, fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
		}
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetPoll(ctx, updated, s.cacheTTL); err != nil {
			s.logger.Warn("failed to cache poll",
				zap.Error(err),
				zap.String("poll_id", updated.ID),
			)
		}
	}

	vote := &domain.VoteEvent{
		PollID:      updated.ID,
		OptionIndex: req.OptionIndex,
		OptionVotes: updated.Options[req.OptionIndex].Votes,
		TotalVotes:  updated.TotalVotes,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.publisher.PublishPollVoted(ctx, vote); err != nil {
		s.logger.Error("failed to publish poll voted event",
			zap.Error(err),
			zap.String("poll_id", updated.ID),
			zap.Int("option_index", req.OptionIndex),
		)
	}

	return updated, nil
}

func (s *service) lookupPoll(ctx context.Context, id string) (*domain.Poll, error) {
	if s.cache != nil {
		cached, err := s.cache.GetPoll(ctx, id)
		if err != nil {
			s.logger.Warn("failed to read poll cache",
				zap.Error(err),
				zap.String("poll_id", id),
			)
		}
		if cached != nil {
			return cached, nil
		}
	}

	poll, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidIdentifier) {
			return nil, fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
		}
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetPoll(ctx, poll, s.cacheTTL); err != nil {
			s.logger.Warn("failed to cache poll",
				zap.Error(err),
				zap.String("poll_id", id),
			)
		}
	}

	return poll, nil
}
