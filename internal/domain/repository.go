package domain

import (
	"context"
	"time"
)

// PollStore is the durable home of polls. IncrementOptionVote is the only
// mutation after creation and must apply both counters in one indivisible
// write, returning the document that write produced.
type PollStore interface {
	Create(ctx context.Context, question string, options []string) (*Poll, error)
	FindAll(ctx context.Context) ([]Poll, error)
	FindByID(ctx context.Context, id string) (*Poll, error)
	IncrementOptionVote(ctx context.Context, id string, optionIndex int) (*Poll, error)
}

// PollCache holds polls for the vote pre-check. A miss is (nil, nil).
type PollCache interface {
	GetPoll(ctx context.Context, id string) (*Poll, error)
	SetPoll(ctx context.Context, poll *Poll, ttl time.Duration) error
}
