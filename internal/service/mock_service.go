package service

import (
	"context"

	"github.com/behzadon/pollvote/internal/domain"
	"github.com/stretchr/testify/mock"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) CreatePoll(ctx context.Context, req *domain.CreatePollRequest) (*domain.Poll, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Poll), args.Error(1)
}

func (m *MockService) ListPolls(ctx context.Context) ([]domain.Poll, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Poll), args.Error(1)
}

func (m *MockService) GetPollByID(ctx context.Context, id string) (*domain.Poll, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Poll), args.Error(1)
}

func (m *MockService) CastVote(ctx context.Context, req *domain.VoteRequest) (*domain.Poll, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Poll), args.Error(1)
}
