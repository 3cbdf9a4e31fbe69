package session

import (
	"time"

	"letsvida.com/guestsos/internal/feedback"
)

// Frame kinds pushed to the client.
const (
	FrameSnapshot     = "snapshot"
	FrameAlert        = "alert"
	FrameNotification = "notification"
	FrameMessage      = "message"
	FrameCounters     = "counters"
	FrameRevert       = "revert"
	FrameError        = "error"
)

// Frame is one server-to-client websocket payload. Cue is attached only when
// the event qualifies for sensory feedback and only on its first delivery.
type Frame struct {
	Kind      string        `json:"kind"`
	Data      interface{}   `json:"data,omitempty"`
	Cue       *feedback.Cue `json:"cue,omitempty"`
	Timestamp int64         `json:"timestamp"`
}

func newFrame(kind string, data interface{}, cue *feedback.Cue) Frame {
	return Frame{
		Kind:      kind,
		Data:      data,
		Cue:       cue,
		Timestamp: time.Now().Unix(),
	}
}

// Snapshot is the full per-session view sent on mount and after every
// reconnect gap.
type Snapshot struct {
	Alerts        interface{} `json:"alerts,omitempty"`
	Notifications interface{} `json:"notifications"`
	Messages      interface{} `json:"messages"`
	Counters      Counters    `json:"counters"`
}

// Counters are always derived from the merged view, never incremented.
type Counters struct {
	PendingAlerts       int `json:"pending_alerts"`
	UnreadNotifications int `json:"unread_notifications"`
	UnreadMessages      int `json:"unread_messages"`
}

// Client-to-server frame kinds.
const (
	clientMarkRead    = "mark_read"
	clientPermissions = "permissions"
	clientResync      = "resync"
)

type clientFrame struct {
	Kind        string                `json:"kind"`
	Entity      string                `json:"entity,omitempty"` // "notification" or "message"
	ID          string                `json:"id,omitempty"`
	Permissions *feedback.Permissions `json:"permissions,omitempty"`
}
