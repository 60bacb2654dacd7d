// Package memory keeps polls in process memory. It backs tests and
// single-instance local runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/behzadon/pollvote/internal/domain"
	"github.com/google/uuid"
)

type entry struct {
	poll domain.Poll
	seq  uint64
}

type Store struct {
	mu    sync.RWMutex
	polls map[string]*entry
	seq   uint64
	now   func() time.Time
}

func NewStore() *Store {
	return &Store{
		polls: make(map[string]*entry),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Create(_ context.Context, question string, options []string) (*domain.Poll, error) {
	poll, err := domain.NewPoll(question, options)
	if err != nil {
		return nil, err
	}

	now := s.now()
	poll.ID = uuid.New().String()
	poll.CreatedAt = now
	poll.UpdatedAt = now

	s.mu.Lock()
	s.seq++
	s.polls[poll.ID] = &entry{poll: clonePoll(*poll), seq: s.seq}
	s.mu.Unlock()

	return poll, nil
}

func (s *Store) FindAll(_ context.Context) ([]domain.Poll, error) {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.polls))
	for _, e := range s.polls {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].poll.CreatedAt.Equal(entries[j].poll.CreatedAt) {
			return entries[i].poll.CreatedAt.After(entries[j].poll.CreatedAt)
		}
		return entries[i].seq > entries[j].seq
	})
	polls := make([]domain.Poll, len(entries))
	for i, e := range entries {
		polls[i] = clonePoll(e.poll)
	}
	s.mu.RUnlock()

	return polls, nil
}

func (s *Store) FindByID(_ context.Context, id string) (*domain.Poll, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrInvalidIdentifier
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.polls[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	poll := clonePoll(e.poll)
	return &poll, nil
}

func (s *Store) IncrementOptionVote(_ context.Context, id string, optionIndex int) (*domain.Poll, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrInvalidIdentifier
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.polls[id]
	if !ok || optionIndex < 0 || optionIndex >= len(e.poll.Options) {
		return nil, domain.ErrNotFound
	}
	e.poll.Options[optionIndex].Votes++
	e.poll.TotalVotes++
	e.poll.UpdatedAt = s.now()

	poll := clonePoll(e.poll)
	return &poll, nil
}

func clonePoll(p domain.Poll) domain.Poll {
	p.Options = append([]domain.Option(nil), p.Options...)
	return p
}
