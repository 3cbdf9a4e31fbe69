package changefeed

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"letsvida.com/guestsos/internal/model"
)

type EventType string

const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
)

// Table names carried in feed envelopes.
const (
	TableAlerts        = "alerts"
	TableNotifications = "notifications"
	TableMessages      = "messages"
)

// Envelope is the wire form of a row-change event.
type Envelope struct {
	Type   EventType       `json:"event_type"`
	Table  string          `json:"table"`
	Record json.RawMessage `json:"record"`
	Old    json.RawMessage `json:"old,omitempty"`
}

// Event is a decoded, fully-typed row-change event. Exactly one of the record
// pointers is non-nil, matching Table.
type Event struct {
	Type         EventType
	Table        string
	Alert        *model.Alert
	Notification *model.Notification
	Message      *model.Message
}

// EntityID returns the id of the affected row.
func (e *Event) EntityID() uuid.UUID {
	switch e.Table {
	case TableAlerts:
		return e.Alert.ID
	case TableNotifications:
		return e.Notification.ID
	case TableMessages:
		return e.Message.ID
	}
	return uuid.Nil
}

// UpdatedAt returns the row's own logical clock. Per-id ordering in the
// reconciler relies on this, never on transport order.
func (e *Event) UpdatedAt() time.Time {
	switch e.Table {
	case TableAlerts:
		return e.Alert.UpdatedAt
	case TableNotifications:
		return e.Notification.UpdatedAt
	case TableMessages:
		return e.Message.UpdatedAt
	}
	return time.Time{}
}

// Decode parses and validates one feed payload. Malformed or partial payloads
// are rejected here so they never reach a session's merged view.
func Decode(payload []byte) (*Event, error) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("malformed feed envelope: %w", err)
	}

	switch env.Type {
	case EventInsert, EventUpdate, EventDelete:
	default:
		return nil, fmt.Errorf("unknown event type %q", env.Type)
	}

	if len(env.Record) == 0 {
		return nil, fmt.Errorf("feed event %s/%s has no record", env.Type, env.Table)
	}

	evt := &Event{Type: env.Type, Table: env.Table}

	switch env.Table {
	case TableAlerts:
		var alert model.Alert
		if err := json.Unmarshal(env.Record, &alert); err != nil {
			return nil, fmt.Errorf("malformed alert record: %w", err)
		}
		if alert.ID == uuid.Nil {
			return nil, fmt.Errorf("alert record has no id")
		}
		evt.Alert = &alert
	case TableNotifications:
		var notification model.Notification
		if err := json.Unmarshal(env.Record, &notification); err != nil {
			return nil, fmt.Errorf("malformed notification record: %w", err)
		}
		if notification.ID == uuid.Nil {
			return nil, fmt.Errorf("notification record has no id")
		}
		evt.Notification = &notification
	case TableMessages:
		var message model.Message
		if err := json.Unmarshal(env.Record, &message); err != nil {
			return nil, fmt.Errorf("malformed message record: %w", err)
		}
		if message.ID == uuid.Nil {
			return nil, fmt.Errorf("message record has no id")
		}
		evt.Message = &message
	default:
		return nil, fmt.Errorf("unknown feed table %q", env.Table)
	}

	return evt, nil
}
