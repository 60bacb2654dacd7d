package api

import (
	"errors"
	"math"
	"net/http"

	"github.com/behzadon/pollvote/internal/domain"
	"github.com/behzadon/pollvote/internal/metrics"
	"github.com/behzadon/pollvote/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Handler struct {
	service     service.Service
	logger      *zap.Logger
	rateLimiter *RateLimiter
}

// NewHandler builds the HTTP surface. A nil rateLimiter disables request limiting.
func NewHandler(service service.Service, rateLimiter *RateLimiter, logger *zap.Logger) *Handler {
	return &Handler{
		service:     service,
		logger:      logger,
		rateLimiter: rateLimiter,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.Use(metrics.MetricsMiddleware())

	r.GET("/healthz", h.healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	polls := r.Group("/polls")
	if h.rateLimiter != nil {
		polls.Use(h.rateLimiter.RateLimit())
	}
	{
		polls.GET("", h.listPolls)
		polls.GET("/byId", h.getPollByID)
		polls.POST("", h.createPoll)
		polls.POST("/:id/vote", h.voteOnPoll)
	}
}

func (h *Handler) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

func errorResponse(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{
		"status":  "error",
		"message": message,
	})
}

func (h *Handler) listPolls(c *gin.Context) {
	polls, err := h.service.ListPolls(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list polls", zap.Error(err))
		errorResponse(c, http.StatusInternalServerError, "Failed to get polls")
		return
	}
	if polls == nil {
		polls = []domain.Poll{}
	}
	c.JSON(http.StatusOK, domain.PollListResponse{Polls: polls})
}

// getPollByID reads the poll id from the JSON body. An unknown poll yields an
// empty list rather than 404.
func (h *Handler) getPollByID(c *gin.Context) {
	var req struct {
		PollID string `json:"pollId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.PollID == "" {
		h.logger.Error("poll lookup without pollId", zap.Error(err))
		errorResponse(c, http.StatusInternalServerError, "pollId is required")
		return
	}

	poll, err := h.service.GetPollByID(c.Request.Context(), req.PollID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			c.JSON(http.StatusOK, domain.PollListResponse{Polls: []domain.Poll{}})
		case errors.Is(err, domain.ErrInvalidIdentifier):
			errorResponse(c, http.StatusBadRequest, domain.ErrInvalidIdentifier.Error())
		default:
			h.logger.Error("failed to get poll",
				zap.Error(err),
				zap.String("pollId", req.PollID),
			)
			errorResponse(c, http.StatusInternalServerError, "Failed to get poll")
		}
		return
	}

	c.JSON(http.StatusOK, domain.PollListResponse{Polls: []domain.Poll{*poll}})
}

func (h *Handler) createPoll(c *gin.Context) {
	var req domain.CreatePollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	poll, err := h.service.CreatePoll(c.Request.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrValidation):
			errorResponse(c, http.StatusBadRequest, err.Error())
		default:
			h.logger.Error("failed to create poll",
				zap.Error(err),
				zap.String("question", req.Question),
			)
			errorResponse(c, http.StatusInternalServerError, "Failed to create poll")
		}
		return
	}

	c.JSON(http.StatusCreated, poll)
}

// optionIndex is decoded as a float so that 1.5 can be told apart from 1.
type voteOnPollRequest struct {
	OptionIndex *float64 `json:"optionIndex"`
	PollID      string   `json:"pollId"`
}

func (r voteOnPollRequest) index() (int, bool) {
	if r.OptionIndex == nil {
		return 0, false
	}
	v := *r.OptionIndex
	if v < 0 || v != math.Trunc(v) || v > math.MaxInt32 {
		return 0, false
	}
	return int(v), true
}

func (h *Handler) voteOnPoll(c *gin.Context) {
	id := c.Param("id")

	var req voteOnPollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "Valid option index is required")
		return
	}
	optionIndex, ok := req.index()
	if !ok {
		errorResponse(c, http.StatusBadRequest, "Valid option index is required")
		return
	}

	poll, err := h.service.CastVote(c.Request.Context(), &domain.VoteRequest{
		PollID:      id,
		BodyPollID:  req.PollID,
		OptionIndex: optionIndex,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidIdentifier):
			errorResponse(c, http.StatusBadRequest, domain.ErrInvalidIdentifier.Error())
		case errors.Is(err, domain.ErrInvalidOption):
			errorResponse(c, http.StatusBadRequest, "Invalid option index")
		case errors.Is(err, domain.ErrInvalidInput):
			errorResponse(c, http.StatusBadRequest, err.Error())
		case errors.Is(err, domain.ErrNotFound):
			errorResponse(c, http.StatusNotFound, "Poll not found")
		default:
			h.logger.Error("failed to vote on poll",
				zap.Error(err),
				zap.String("pollId", id),
				zap.Int("optionIndex", optionIndex),
			)
			errorResponse(c, http.StatusInternalServerError, "Failed to record vote")
		}
		return
	}

	c.JSON(http.StatusOK, poll)
}
