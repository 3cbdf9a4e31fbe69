package session

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"letsvida.com/guestsos/internal/changefeed"
	"letsvida.com/guestsos/internal/feedback"
	"letsvida.com/guestsos/internal/model"
	"letsvida.com/guestsos/internal/reconciler"
)

func testSession(t *testing.T, roleName string) *Session {
	t.Helper()

	role := model.Role{ID: 1, Name: roleName}
	user := &model.User{ID: uuid.New(), Username: "u", RoleID: &role.ID, Role: role}

	window := 10 * time.Second
	return &Session{
		id:   uuid.NewString(),
		user: user,
		alerts: reconciler.NewView(
			func(a model.Alert) uuid.UUID { return a.ID },
			func(a model.Alert) time.Time { return a.UpdatedAt },
			window),
		notifications: reconciler.NewView(
			func(n model.Notification) uuid.UUID { return n.ID },
			func(n model.Notification) time.Time { return n.UpdatedAt },
			window),
		messages: reconciler.NewView(
			func(m model.Message) uuid.UUID { return m.ID },
			func(m model.Message) time.Time { return m.UpdatedAt },
			window),
		cues:   feedback.NewPolicy(),
		queue:  make(chan queueItem, 16),
		out:    make(chan Frame, 64),
		logger: zap.NewNop(),
	}
}

func drainFrames(s *Session) []Frame {
	var frames []Frame
	for {
		select {
		case f := <-s.out:
			frames = append(frames, f)
		default:
			return frames
		}
	}
}

func framesOfKind(frames []Frame, kind string) []Frame {
	var out []Frame
	for _, f := range frames {
		if f.Kind == kind {
			out = append(out, f)
		}
	}
	return out
}

func TestResponderGetsCuedAlertFrameOnce(t *testing.T) {
	s := testSession(t, "staff")

	alert := &model.Alert{
		ID:        uuid.New(),
		Status:    model.AlertStatusPending,
		UpdatedAt: time.Now().UTC(),
	}
	evt := &changefeed.Event{Type: changefeed.EventInsert, Table: changefeed.TableAlerts, Alert: alert}

	s.handleEvent(evt)
	// Duplicate delivery on a second logical channel.
	s.handleEvent(evt)

	frames := framesOfKind(drainFrames(s), FrameAlert)
	require.Len(t, frames, 1, "redelivered version is silent")
	require.NotNil(t, frames[0].Cue)
	assert.Equal(t, feedback.ClipSOS, frames[0].Cue.Sound)
	assert.Equal(t, 1, s.alerts.Len())
}

func TestGuestIgnoresAlertEvents(t *testing.T) {
	s := testSession(t, "guest")

	alert := &model.Alert{ID: uuid.New(), Status: model.AlertStatusPending, UpdatedAt: time.Now().UTC()}
	s.handleEvent(&changefeed.Event{Type: changefeed.EventInsert, Table: changefeed.TableAlerts, Alert: alert})

	assert.Empty(t, drainFrames(s))
	assert.Equal(t, 0, s.alerts.Len())
}

func TestForeignNotificationIsDroppedEntirely(t *testing.T) {
	s := testSession(t, "staff")

	foreign := &model.Notification{ID: uuid.New(), UserID: uuid.New(), UpdatedAt: time.Now().UTC()}
	s.handleEvent(&changefeed.Event{
		Type: changefeed.EventInsert, Table: changefeed.TableNotifications, Notification: foreign,
	})

	// No frame, no counter movement, nothing merged.
	assert.Empty(t, drainFrames(s))
	assert.Equal(t, 0, s.notifications.Len())
	assert.Equal(t, 0, s.counters().UnreadNotifications)
}

func TestOwnNotificationMovesCounter(t *testing.T) {
	s := testSession(t, "guest")

	n := &model.Notification{ID: uuid.New(), UserID: s.user.ID, UpdatedAt: time.Now().UTC()}
	s.handleEvent(&changefeed.Event{
		Type: changefeed.EventInsert, Table: changefeed.TableNotifications, Notification: n,
	})

	frames := drainFrames(s)
	require.Len(t, framesOfKind(frames, FrameNotification), 1)
	counters := framesOfKind(frames, FrameCounters)
	require.NotEmpty(t, counters)
	assert.Equal(t, 1, counters[len(counters)-1].Data.(Counters).UnreadNotifications)
}

func TestStaleAlertUpdateIsSilent(t *testing.T) {
	s := testSession(t, "staff")
	id := uuid.New()
	now := time.Now().UTC()

	resolved := &model.Alert{ID: id, Status: model.AlertStatusResolved, UpdatedAt: now}
	s.handleEvent(&changefeed.Event{Type: changefeed.EventInsert, Table: changefeed.TableAlerts, Alert: resolved})
	drainFrames(s)

	// Out-of-order delivery of the earlier acknowledgment.
	stale := &model.Alert{ID: id, Status: model.AlertStatusAcknowledged, UpdatedAt: now.Add(-time.Second)}
	s.handleEvent(&changefeed.Event{Type: changefeed.EventUpdate, Table: changefeed.TableAlerts, Alert: stale})

	assert.Empty(t, drainFrames(s))
	got, _ := s.alerts.Get(id)
	assert.Equal(t, model.AlertStatusResolved, got.Status)
}

func TestMessageVisibility(t *testing.T) {
	guest := testSession(t, "guest")
	staff := testSession(t, "staff")

	broadcast := &model.Message{ID: uuid.New(), SenderID: uuid.New(), UpdatedAt: time.Now().UTC()}
	assert.False(t, guest.messageVisible(broadcast), "guest is not in the admin pool")
	assert.True(t, staff.messageVisible(broadcast))

	direct := &model.Message{ID: uuid.New(), SenderID: uuid.New(), RecipientID: &guest.user.ID, UpdatedAt: time.Now().UTC()}
	assert.True(t, guest.messageVisible(direct))
	assert.False(t, staff.messageVisible(direct))

	own := &model.Message{ID: uuid.New(), SenderID: guest.user.ID, UpdatedAt: time.Now().UTC()}
	assert.True(t, guest.messageVisible(own))
}

func TestOwnMessageEchoHasNoCue(t *testing.T) {
	s := testSession(t, "guest")

	own := &model.Message{ID: uuid.New(), SenderID: s.user.ID, UpdatedAt: time.Now().UTC()}
	s.handleEvent(&changefeed.Event{Type: changefeed.EventInsert, Table: changefeed.TableMessages, Message: own})

	frames := framesOfKind(drainFrames(s), FrameMessage)
	require.Len(t, frames, 1)
	assert.Nil(t, frames[0].Cue)

	// Unread counter excludes the user's own sends.
	assert.Equal(t, 0, s.counters().UnreadMessages)
}

func TestExpirePendingEmitsRevertFrame(t *testing.T) {
	s := testSession(t, "guest")
	now := time.Now().UTC()
	s.notifications.WithClock(func() time.Time { return now })

	n := model.Notification{ID: uuid.New(), UserID: s.user.ID, UpdatedAt: now.Add(-time.Minute)}
	s.notifications.Seed([]model.Notification{n})

	read := n
	read.IsRead = true
	s.notifications.ApplyOptimistic(read)
	require.True(t, s.notifications.HasPending(n.ID))

	now = now.Add(time.Minute)
	s.expirePending()

	frames := drainFrames(s)
	reverts := framesOfKind(frames, FrameRevert)
	require.Len(t, reverts, 1)
	got, _ := s.notifications.Get(n.ID)
	assert.False(t, got.IsRead, "overlay rolled back")
}
