package changefeed

import (
	"fmt"

	"github.com/google/uuid"
)

// Channel names are the coarse server-side predicates of the feed: one channel
// per table, plus per-user channels for user-scoped rows.
const (
	AlertsChannel        = "feed:alerts"
	NotificationsChannel = "feed:notifications"
	MessagesChannel      = "feed:messages"
)

func UserNotificationsChannel(userID uuid.UUID) string {
	return fmt.Sprintf("feed:notifications:%s", userID)
}

func UserMessagesChannel(userID uuid.UUID) string {
	return fmt.Sprintf("feed:messages:%s", userID)
}
