package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/behzadon/pollvote/internal/domain"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRedis struct {
	values map[string]string
	ttls   map[string]time.Duration
	getErr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{
		values: make(map[string]string),
		ttls:   make(map[string]time.Duration),
	}
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	if f.getErr != nil {
		return redis.NewStringResult("", f.getErr)
	}
	v, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	switch v := value.(type) {
	case []byte:
		f.values[key] = string(v)
	case string:
		f.values[key] = v
	}
	f.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func TestRedisCache_SetGet(t *testing.T) {
	ctx := context.Background()
	client := newFakeRedis()
	c := NewRedisCache(client)

	poll := &domain.Poll{
		ID:       "65f1c2a9e4b0a1b2c3d4e5f6",
		Question: "Colour?",
		Options:  []domain.Option{{Text: "Red"}, {Text: "Blue"}},
	}

	require.NoError(t, c.SetPoll(ctx, poll, time.Minute))
	assert.Equal(t, time.Minute, client.ttls["poll:65f1c2a9e4b0a1b2c3d4e5f6"])

	got, err := c.GetPoll(ctx, poll.ID)
	require.NoError(t, err)
	assert.Equal(t, poll.Question, got.Question)
	assert.Equal(t, poll.Options, got.Options)

	got, err = c.GetPoll(ctx, "65f1c2a9e4b0a1b2c3d4e5f7")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisCache_GetErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("transport error", func(t *testing.T) {
		client := newFakeRedis()
		client.getErr = errors.New("connection refused")
		_, err := NewRedisCache(client).GetPoll(ctx, "x")
		assert.ErrorContains(t, err, "connection refused")
	})

	t.Run("corrupt payload", func(t *testing.T) {
		client := newFakeRedis()
		client.values["poll:x"] = "{not json"
		_, err := NewRedisCache(client).GetPoll(ctx, "x")
		assert.ErrorContains(t, err, "unmarshal poll")
	})
}
