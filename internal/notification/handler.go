package notification

import (
	"context"
	"fmt"

	"github.com/behzadon/pollvote/internal/domain"
	"github.com/behzadon/pollvote/internal/storage/events"
	"go.uber.org/zap"
)

// DefaultMilestone is the vote interval at which a poll's audience is notified.
const DefaultMilestone = 100

type NotificationService interface {
	SendNotification(ctx context.Context, topic string, title, message string) error
}

type NotificationHandler struct {
	notificationService NotificationService
	milestone           int64
	logger              *zap.Logger
}

func NewNotificationHandler(notificationService NotificationService, milestone int64, logger *zap.Logger) events.EventHandler {
	if milestone <= 0 {
		milestone = DefaultMilestone
	}
	return &NotificationHandler{
		notificationService: notificationService,
		milestone:           milestone,
		logger:              logger,
	}
}

func (h *NotificationHandler) HandlePollCreated(ctx context.Context, poll *domain.Poll) error {
	h.logger.Info("Poll created",
		zap.String("poll_id", poll.ID),
		zap.String("question", poll.Question),
		zap.Int("options", len(poll.Options)),
	)

	return h.notificationService.SendNotification(ctx, "polls", "New poll", poll.Question)
}

func (h *NotificationHandler) HandlePollVoted(ctx context.Context, vote *domain.VoteEvent) error {
	h.logger.Info("Poll voted",
		zap.String("poll_id", vote.PollID),
		zap.Int("option_index", vote.OptionIndex),
		zap.Int64("total_votes", vote.TotalVotes),
	)

	if vote.TotalVotes == 0 || vote.TotalVotes%h.milestone != 0 {
		return nil
	}

	return h.notificationService.SendNotification(ctx,
		"poll:"+vote.PollID,
		"Poll milestone",
		fmt.Sprintf("Poll reached %d votes", vote.TotalVotes),
	)
}

// LogNotificationService writes notifications to the log instead of a
// delivery channel.
type LogNotificationService struct {
	Logger *zap.Logger
}

func (s *LogNotificationService) SendNotification(ctx context.Context, topic string, title, message string) error {
	s.Logger.Info("Notification sent",
		zap.String("topic", topic),
		zap.String("title", title),
		zap.String("message", message),
	)
	return nil
}
