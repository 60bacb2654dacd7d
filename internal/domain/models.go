package domain

import (
	"fmt"
	"strings"
	"time"
)

const MinOptions = 2

type Poll struct {
	ID         string    `json:"id"`
	Question   string    `json:"question"`
	Options    []Option  `json:"options"`
	TotalVotes int64     `json:"totalVotes"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

type Option struct {
	Text  string `json:"text"`
	Votes int64  `json:"votes"`
}

// SumVotes adds up the per-option counters. For any persisted poll it equals
// TotalVotes.
func (p *Poll) SumVotes() int64 {
	var sum int64
	for _, o := range p.Options {
		sum += o.Votes
	}
	return sum
}

type CreatePollRequest struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

type VoteRequest struct {
	// PollID is the path-bound identifier; it is the only id ever mutated.
	PollID string
	// BodyPollID is the optional id echoed in the request body, used only to
	// cross-check PollID.
	BodyPollID  string
	OptionIndex int
}

type PollListResponse struct {
	Polls []Poll `json:"polls"`
}

// VoteEvent is emitted after a vote has been applied.
type VoteEvent struct {
	PollID      string    `json:"pollId"`
	OptionIndex int       `json:"optionIndex"`
	OptionVotes int64     `json:"optionVotes"`
	TotalVotes  int64     `json:"totalVotes"`
	CreatedAt   time.Time `json:"createdAt"`
}

// NewPoll trims and validates the creation input and returns an unsaved poll
// with zeroed counters. Stores assign ID and timestamps.
func NewPoll(question string, options []string) (*Poll, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: question is required", ErrValidation)
	}

	if len(options) < MinOptions {
		return nil, fmt.Errorf("%w: at least two options are required", ErrValidation)
	}

	poll := &Poll{
		Question: question,
		Options:  make([]Option, len(options)),
	}
	for i, text := range options {
		text = strings.TrimSpace(text)
		if text == "" {
			return nil, fmt.Errorf("%w: all options must be non-empty strings", ErrValidation)
		}
		poll.Options[i] = Option{Text: text}
	}

	return poll, nil
}
