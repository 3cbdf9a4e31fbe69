package changefeed

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"letsvida.com/guestsos/internal/model"
)

// Publisher pushes row-change events onto the feed after a store write has
// been confirmed. Publishing is best-effort: a subscriber that missed events
// re-fetches a snapshot on reconnect, so a dropped publish is never a
// correctness problem for the store itself.
type Publisher struct {
	redisClient *redis.Client
	logger      *zap.Logger
}

func NewPublisher(redisClient *redis.Client, logger *zap.Logger) *Publisher {
	return &Publisher{
		redisClient: redisClient,
		logger:      logger,
	}
}

func (p *Publisher) PublishAlert(ctx context.Context, eventType EventType, alert *model.Alert) {
	p.publish(ctx, eventType, TableAlerts, alert, AlertsChannel)
}

// PublishNotification publishes to both the generic notifications channel and
// the recipient's own channel. A client subscribed to both must still effect
// the event at most once (the reconciler dedups by id + updated_at).
func (p *Publisher) PublishNotification(ctx context.Context, eventType EventType, notification *model.Notification) {
	p.publish(ctx, eventType, TableNotifications, notification,
		NotificationsChannel, UserNotificationsChannel(notification.UserID))
}

func (p *Publisher) PublishMessage(ctx context.Context, eventType EventType, message *model.Message) {
	channels := []string{MessagesChannel}
	if message.RecipientID != nil {
		channels = append(channels, UserMessagesChannel(*message.RecipientID))
	}
	p.publish(ctx, eventType, TableMessages, message, channels...)
}

func (p *Publisher) publish(ctx context.Context, eventType EventType, table string, record interface{}, channels ...string) {
	if p.redisClient == nil {
		return
	}

	raw, err := json.Marshal(record)
	if err != nil {
		p.logger.Error("failed to marshal feed record",
			zap.String("table", table), zap.Error(err))
		return
	}

	payload, err := json.Marshal(Envelope{
		Type:   eventType,
		Table:  table,
		Record: raw,
	})
	if err != nil {
		p.logger.Error("failed to marshal feed envelope",
			zap.String("table", table), zap.Error(err))
		return
	}

	for _, channel := range channels {
		if err := p.redisClient.Publish(ctx, channel, payload).Err(); err != nil {
			p.logger.Warn("feed publish failed",
				zap.String("channel", channel), zap.Error(err))
		}
	}
}
