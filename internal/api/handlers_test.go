package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/behzadon/pollvote/internal/domain"
	"github.com/behzadon/pollvote/internal/service"
	"github.com/behzadon/pollvote/internal/storage/memory"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockRedis struct {
	mu       sync.Mutex
	counters map[string]int64
	err      error
}

func NewMockRedis() *MockRedis {
	return &MockRedis{
		counters: make(map[string]int64),
	}
}

func (m *MockRedis) Incr(ctx context.Context, key string) *redis.IntCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return redis.NewIntResult(0, m.err)
	}
	m.counters[key]++
	return redis.NewIntResult(m.counters[key], nil)
}

func (m *MockRedis) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	return redis.NewBoolResult(true, nil)
}

const testPollID = "1b4e28ba-2fa1-11d2-883f-0016d3cca427"

func testPoll(red, blue int64) *domain.Poll {
	return &domain.Poll{
		ID:         testPollID,
		Question:   "Colour?",
		Options:    []domain.Option{{Text: "Red", Votes: red}, {Text: "Blue", Votes: blue}},
		TotalVotes: red + blue,
	}
}

func setupTest(t *testing.T) (*gin.Engine, *service.MockService) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	mockService := new(service.MockService)
	logger, _ := zap.NewDevelopment()

	handler := NewHandler(mockService, nil, logger)
	handler.RegisterRoutes(r)

	return r, mockService
}

func doJSON(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	switch v := body.(type) {
	case nil:
	case string:
		buf.WriteString(v)
	default:
		_ = json.NewEncoder(&buf).Encode(v)
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) string {
	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "error", response["status"])
	msg, _ := response["message"].(string)
	assert.NotEmpty(t, msg)
	return msg
}

func TestListPolls(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		r, mockService := setupTest(t)
		mockService.On("ListPolls", mock.Anything).Return([]domain.Poll{*testPoll(1, 2)}, nil)

		w := doJSON(r, http.MethodGet, "/polls", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		var response domain.PollListResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		require.Len(t, response.Polls, 1)
		assert.Equal(t, int64(3), response.Polls[0].TotalVotes)
	})

	t.Run("empty list is an array", func(t *testing.T) {
		r, mockService := setupTest(t)
		mockService.On("ListPolls", mock.Anything).Return(nil, nil)

		w := doJSON(r, http.MethodGet, "/polls", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"polls":[]}`, w.Body.String())
	})

	t.Run("store failure", func(t *testing.T) {
		r, mockService := setupTest(t)
		mockService.On("ListPolls", mock.Anything).
			Return(nil, &domain.StoreError{Op: "find polls", Err: errors.New("connection refused")})

		w := doJSON(r, http.MethodGet, "/polls", nil)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, decodeError(t, w), "connection refused")
	})
}

func TestGetPollByID(t *testing.T) {
	tests := []struct {
		name         string
		body         interface{}
		setupMocks   func(*service.MockService)
		expectedCode int
		expectedLen  int
	}{
		{
			name: "found",
			body: map[string]string{"pollId": testPollID},
			setupMocks: func(m *service.MockService) {
				m.On("GetPollByID", mock.Anything, testPollID).Return(testPoll(0, 0), nil)
			},
			expectedCode: http.StatusOK,
			expectedLen:  1,
		},
		{
			name: "not found is an empty list",
			body: map[string]string{"pollId": testPollID},
			setupMocks: func(m *service.MockService) {
				m.On("GetPollByID", mock.Anything, testPollID).Return(nil, domain.ErrNotFound)
			},
			expectedCode: http.StatusOK,
			expectedLen:  0,
		},
		{
			name: "malformed id",
			body: map[string]string{"pollId": "xyz"},
			setupMocks: func(m *service.MockService) {
				m.On("GetPollByID", mock.Anything, "xyz").Return(nil, domain.ErrInvalidIdentifier)
			},
			expectedCode: http.StatusBadRequest,
		},
		{
			name:         "missing pollId",
			body:         map[string]string{},
			setupMocks:   func(m *service.MockService) {},
			expectedCode: http.StatusInternalServerError,
		},
		{
			name:         "no body",
			body:         nil,
			setupMocks:   func(m *service.MockService) {},
			expectedCode: http.StatusInternalServerError,
		},
		{
			name: "store failure",
			body: map[string]string{"pollId": testPollID},
			setupMocks: func(m *service.MockService) {
				m.On("GetPollByID", mock.Anything, testPollID).Return(nil, errors.New("timeout"))
			},
			expectedCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, mockService := setupTest(t)
			tt.setupMocks(mockService)

			w := doJSON(r, http.MethodGet, "/polls/byId", tt.body)

			assert.Equal(t, tt.expectedCode, w.Code)
			if tt.expectedCode == http.StatusOK {
				var response domain.PollListResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
				assert.Len(t, response.Polls, tt.expectedLen)
			} else {
				decodeError(t, w)
			}
			mockService.AssertExpectations(t)
		})
	}
}

func TestCreatePoll(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		r, mockService := setupTest(t)
		req := &domain.CreatePollRequest{Question: "Colour?", Options: []string{"Red", "Blue"}}
		mockService.On("CreatePoll", mock.Anything, req).Return(testPoll(0, 0), nil)

		w := doJSON(r, http.MethodPost, "/polls", req)

		assert.Equal(t, http.StatusCreated, w.Code)
		var poll domain.Poll
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &poll))
		assert.Equal(t, testPollID, poll.ID)
		assert.Len(t, poll.Options, 2)
	})

	t.Run("validation failure", func(t *testing.T) {
		r, mockService := setupTest(t)
		mockService.On("CreatePoll", mock.Anything, mock.Anything).
			Return(nil, fmt.Errorf("%w: at least two options are required", domain.ErrValidation))

		w := doJSON(r, http.MethodPost, "/polls", map[string]interface{}{"question": "Q?", "options": []string{"a"}})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, decodeError(t, w), "at least two options are required")
	})

	t.Run("options of the wrong type", func(t *testing.T) {
		r, _ := setupTest(t)

		w := doJSON(r, http.MethodPost, "/polls", `{"question":"Q?","options":[1,2]}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("store failure", func(t *testing.T) {
		r, mockService := setupTest(t)
		mockService.On("CreatePoll", mock.Anything, mock.Anything).Return(nil, errors.New("disk full"))

		w := doJSON(r, http.MethodPost, "/polls", map[string]interface{}{"question": "Q?", "options": []string{"a", "b"}})

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		decodeError(t, w)
	})
}

func TestVoteOnPoll(t *testing.T) {
	tests := []struct {
		name         string
		body         string
		setupMocks   func(*service.MockService)
		expectedCode int
	}{
		{
			name: "success",
			body: `{"optionIndex":1,"pollId":"` + testPollID + `"}`,
			setupMocks: func(m *service.MockService) {
				m.On("CastVote", mock.Anything, &domain.VoteRequest{
					PollID:      testPollID,
					BodyPollID:  testPollID,
					OptionIndex: 1,
				}).Return(testPoll(0, 1), nil)
			},
			expectedCode: http.StatusOK,
		},
		{
			name:         "missing option index",
			body:         `{"pollId":"` + testPollID + `"}`,
			setupMocks:   func(m *service.MockService) {},
			expectedCode: http.StatusBadRequest,
		},
		{
			name:         "non-numeric option index",
			body:         `{"optionIndex":"first"}`,
			setupMocks:   func(m *service.MockService) {},
			expectedCode: http.StatusBadRequest,
		},
		{
			name:         "fractional option index",
			body:         `{"optionIndex":1.5}`,
			setupMocks:   func(m *service.MockService) {},
			expectedCode: http.StatusBadRequest,
		},
		{
			name:         "negative option index",
			body:         `{"optionIndex":-1}`,
			setupMocks:   func(m *service.MockService) {},
			expectedCode: http.StatusBadRequest,
		},
		{
			name: "out of range",
			body: `{"optionIndex":5}`,
			setupMocks: func(m *service.MockService) {
				m.On("CastVote", mock.Anything, mock.Anything).Return(nil, domain.ErrInvalidOption)
			},
			expectedCode: http.StatusBadRequest,
		},
		{
			name: "malformed id",
			body: `{"optionIndex":0}`,
			setupMocks: func(m *service.MockService) {
				m.On("CastVote", mock.Anything, mock.Anything).
					Return(nil, fmt.Errorf("%w: %w", domain.ErrInvalidInput, domain.ErrInvalidIdentifier))
			},
			expectedCode: http.StatusBadRequest,
		},
		{
			name: "not found",
			body: `{"optionIndex":0}`,
			setupMocks: func(m *service.MockService) {
				m.On("CastVote", mock.Anything, mock.Anything).Return(nil, domain.ErrNotFound)
			},
			expectedCode: http.StatusNotFound,
		},
		{
			name: "store failure",
			body: `{"optionIndex":0}`,
			setupMocks: func(m *service.MockService) {
				m.On("CastVote", mock.Anything, mock.Anything).
					Return(nil, &domain.StoreError{Op: "increment vote", Err: errors.New("timeout")})
			},
			expectedCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, mockService := setupTest(t)
			tt.setupMocks(mockService)

			w := doJSON(r, http.MethodPost, "/polls/"+testPollID+"/vote", tt.body)

			assert.Equal(t, tt.expectedCode, w.Code)
			if tt.expectedCode == http.StatusOK {
				var poll domain.Poll
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &poll))
				assert.Equal(t, int64(1), poll.Options[1].Votes)
			} else {
				decodeError(t, w)
			}
			mockService.AssertExpectations(t)
		})
	}
}

func TestHealthz(t *testing.T) {
	r, _ := setupTest(t)

	w := doJSON(r, http.MethodGet, "/healthz", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestPollLifecycle_MemoryStore(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	svc := service.NewService(memory.NewStore(), nil, zap.NewNop())
	NewHandler(svc, nil, zap.NewNop()).RegisterRoutes(r)

	w := doJSON(r, http.MethodPost, "/polls", map[string]interface{}{
		"question": " Colour? ",
		"options":  []string{"Red", "Blue"},
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var created domain.Poll
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "Colour?", created.Question)

	votePath := "/polls/" + created.ID + "/vote"
	var wg sync.WaitGroup
	for _, idx := range []int{1, 1, 0} {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			w := doJSON(r, http.MethodPost, votePath, map[string]interface{}{"optionIndex": idx, "pollId": created.ID})
			assert.Equal(t, http.StatusOK, w.Code)
		}(idx)
	}
	wg.Wait()

	w = doJSON(r, http.MethodPost, votePath, map[string]interface{}{"optionIndex": 2})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodPost, votePath, map[string]interface{}{"optionIndex": 0, "pollId": testPollID})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodPost, "/polls/"+testPollID+"/vote", map[string]interface{}{"optionIndex": 0})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(r, http.MethodPost, "/polls/nope/vote", map[string]interface{}{"optionIndex": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodGet, "/polls/byId", map[string]string{"pollId": created.ID})
	require.Equal(t, http.StatusOK, w.Code)
	var response domain.PollListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	require.Len(t, response.Polls, 1)
	poll := response.Polls[0]
	assert.Equal(t, int64(1), poll.Options[0].Votes)
	assert.Equal(t, int64(2), poll.Options[1].Votes)
	assert.Equal(t, int64(3), poll.TotalVotes)

	w = doJSON(r, http.MethodGet, "/polls", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Len(t, response.Polls, 1)
}
