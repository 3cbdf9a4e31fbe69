package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"letsvida.com/guestsos/internal/changefeed"
	"letsvida.com/guestsos/internal/feedback"
	"letsvida.com/guestsos/internal/model"
	"letsvida.com/guestsos/internal/reconciler"
)

const (
	outBufferSize  = 64
	queueSize      = 256
	pingInterval   = 30 * time.Second
	writeWait      = 10 * time.Second
	expireInterval = time.Second
)

type queueItem struct {
	event  *changefeed.Event
	local  *clientFrame
	resync bool
}

// Session is one connected client. It owns a per-session reconciler view for
// each entity table; all merges and optimistic writes funnel through a single
// drain goroutine, so no reader ever observes a half-applied merge.
type Session struct {
	id      string
	user    *model.User
	conn    *websocket.Conn
	gateway *Gateway

	alerts        *reconciler.View[model.Alert]
	notifications *reconciler.View[model.Notification]
	messages      *reconciler.View[model.Message]

	cues *feedback.Policy

	queue chan queueItem
	out   chan Frame

	logger *zap.Logger
}

func newSession(gateway *Gateway, user *model.User, conn *websocket.Conn) *Session {
	window := gateway.confirmWindow
	return &Session{
		id:      uuid.NewString(),
		user:    user,
		conn:    conn,
		gateway: gateway,
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
		queue:  make(chan queueItem, queueSize),
		out:    make(chan Frame, outBufferSize),
		logger: gateway.logger.With(zap.String("user_id", user.ID.String())),
	}
}

// scopes lists the logical feed channels for this session's role. Responders
// watch the generic channels as well as their own; guests only their own.
// Events for other users that land on a generic channel are filtered out in
// the drain loop before they can have any visible effect.
func (s *Session) scopes() []string {
	channels := []string{
		changefeed.UserNotificationsChannel(s.user.ID),
		changefeed.UserMessagesChannel(s.user.ID),
	}
	if s.user.IsResponder() {
		channels = append(channels,
			changefeed.AlertsChannel,
			changefeed.NotificationsChannel,
			changefeed.MessagesChannel,
		)
	}
	return channels
}

func (s *Session) run(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	// Subscribe before the snapshot fetch so nothing written in between is
	// missed: events racing the snapshot reconcile away by timestamp.
	for _, channel := range s.scopes() {
		sub, created := s.gateway.registry.Subscribe(ctx, s.id, channel)
		if created {
			go s.forward(ctx, sub)
		}
	}

	if err := s.resync(ctx); err != nil {
		s.logger.Error("initial snapshot failed", zap.Error(err))
		return
	}

	go s.writeLoop(ctx, cancel)
	go s.readLoop(cancel)

	s.drainLoop(ctx)
}

func (s *Session) forward(ctx context.Context, sub *changefeed.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-sub.Events:
			if !ok {
				return
			}
			select {
			case s.queue <- queueItem{event: evt}:
			case <-ctx.Done():
				return
			}
		case _, ok := <-sub.Interruptions:
			if !ok {
				return
			}
			// Missed events are not replayed; force a full re-sync.
			select {
			case s.queue <- queueItem{resync: true}:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *Session) writeLoop(ctx context.Context, cancel context.CancelFunc) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.conn.Close()
			return
		case frame := <-s.out:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(frame); err != nil {
				s.logger.Debug("websocket write failed", zap.Error(err))
				cancel()
				return
			}
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				cancel()
				return
			}
		}
	}
}

func (s *Session) readLoop(cancel context.CancelFunc) {
	defer cancel()
	for {
		var cf clientFrame
		if err := s.conn.ReadJSON(&cf); err != nil {
			// Client disconnected, or sent something unreadable enough to
			// poison the stream.
			return
		}
		s.queue <- queueItem{local: &cf}
	}
}

// drainLoop is the only goroutine that touches the views after mount.
func (s *Session) drainLoop(ctx context.Context) {
	expire := time.NewTicker(expireInterval)
	defer expire.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case item := <-s.queue:
			switch {
			case item.resync:
				if err := s.resync(ctx); err != nil {
					s.logger.Error("re-sync failed", zap.Error(err))
					s.send(newFrame(FrameError, "re-sync failed, retrying on next event", nil))
				}
			case item.event != nil:
				s.handleEvent(item.event)
			case item.local != nil:
				s.handleLocal(ctx, item.local)
			}
		case <-expire.C:
			s.expirePending()
		}
	}
}

// resync replaces every view with a fresh snapshot. Called on mount and after
// every detected feed interruption.
func (s *Session) resync(ctx context.Context) error {
	limit := s.gateway.snapshotLimit

	if s.user.IsResponder() {
		alerts, err := s.gateway.alerts.ListAlerts(ctx, nil, limit, 0)
		if err != nil {
			return err
		}
		s.alerts.Seed(alerts)
	}

	notifications, err := s.gateway.notifications.GetNotifications(ctx, s.user.ID, limit, 0)
	if err != nil {
		return err
	}
	s.notifications.Seed(notifications)

	messages, err := s.gateway.messages.GetConversation(ctx, s.user.ID, limit, 0)
	if err != nil {
		return err
	}
	s.messages.Seed(messages)

	snapshot := Snapshot{
		Notifications: s.notifications.List(),
		Messages:      s.messages.List(),
		Counters:      s.counters(),
	}
	if s.user.IsResponder() {
		snapshot.Alerts = s.alerts.List()
	}
	s.send(newFrame(FrameSnapshot, snapshot, nil))
	return nil
}

func (s *Session) handleEvent(evt *changefeed.Event) {
	switch evt.Table {
	case changefeed.TableAlerts:
		s.handleAlertEvent(evt)
	case changefeed.TableNotifications:
		s.handleNotificationEvent(evt)
	case changefeed.TableMessages:
		s.handleMessageEvent(evt)
	}
}

func (s *Session) handleAlertEvent(evt *changefeed.Event) {
	if !s.user.IsResponder() {
		return
	}

	out := applyTyped(s.alerts, evt, *evt.Alert)
	if !out.Applied {
		return
	}

	cue := s.cues.ForAlert(evt.Alert, out.SideEffect)
	s.send(newFrame(FrameAlert, evt.Alert, cue))
	s.send(newFrame(FrameCounters, s.counters(), nil))
}

func (s *Session) handleNotificationEvent(evt *changefeed.Event) {
	// A generically-subscribed client drops rows owned by someone else
	// entirely: no frame, no cue, no counter movement.
	if evt.Notification.UserID != s.user.ID {
		return
	}

	out := applyTyped(s.notifications, evt, *evt.Notification)
	if !out.Applied {
		return
	}

	cue := s.cues.ForNotification(evt.Notification, s.user.ID, out.SideEffect)
	s.send(newFrame(FrameNotification, evt.Notification, cue))
	s.send(newFrame(FrameCounters, s.counters(), nil))
}

func (s *Session) handleMessageEvent(evt *changefeed.Event) {
	if !s.messageVisible(evt.Message) {
		return
	}

	out := applyTyped(s.messages, evt, *evt.Message)
	if !out.Applied {
		return
	}

	cue := s.cues.ForMessage(evt.Message, s.user.ID, out.SideEffect)
	s.send(newFrame(FrameMessage, evt.Message, cue))
	s.send(newFrame(FrameCounters, s.counters(), nil))
}

func (s *Session) messageVisible(m *model.Message) bool {
	if m.SenderID == s.user.ID {
		return true
	}
	if m.RecipientID != nil {
		return *m.RecipientID == s.user.ID
	}
	// Broadcast messages go to the admin pool.
	return s.user.IsResponder()
}

func applyTyped[T any](view *reconciler.View[T], evt *changefeed.Event, rec T) reconciler.Outcome {
	switch evt.Type {
	case changefeed.EventInsert:
		return view.ApplyInsert(rec)
	case changefeed.EventUpdate:
		return view.ApplyUpdate(rec)
	case changefeed.EventDelete:
		return view.ApplyDelete(evt.EntityID())
	}
	return reconciler.Outcome{}
}

func (s *Session) handleLocal(ctx context.Context, cf *clientFrame) {
	switch cf.Kind {
	case clientPermissions:
		if cf.Permissions != nil {
			s.cues.SetPermissions(*cf.Permissions)
		}
	case clientResync:
		if err := s.resync(ctx); err != nil {
			s.logger.Error("client-requested re-sync failed", zap.Error(err))
			s.send(newFrame(FrameError, "re-sync failed", nil))
		}
	case clientMarkRead:
		s.handleMarkRead(ctx, cf)
	}
}

// handleMarkRead applies the optimistic write to the local view immediately,
// then issues the store write. The write's feed event confirms the overlay;
// if nothing confirms within the window, expirePending reverts it and the
// client is told.
func (s *Session) handleMarkRead(ctx context.Context, cf *clientFrame) {
	id, err := uuid.Parse(cf.ID)
	if err != nil {
		s.send(newFrame(FrameError, "invalid id in mark_read", nil))
		return
	}

	switch cf.Entity {
	case "notification":
		current, ok := s.notifications.Get(id)
		if !ok || current.UserID != s.user.ID {
			s.send(newFrame(FrameError, "unknown notification", nil))
			return
		}
		if current.IsRead {
			return
		}
		optimistic := current
		optimistic.IsRead = true
		s.notifications.ApplyOptimistic(optimistic)
		go func() {
			if _, err := s.gateway.notifications.MarkAsRead(ctx, id, s.user.ID); err != nil {
				s.logger.Warn("mark notification read failed", zap.Error(err))
			}
		}()
	case "message":
		current, ok := s.messages.Get(id)
		if !ok {
			s.send(newFrame(FrameError, "unknown message", nil))
			return
		}
		if current.IsRead {
			return
		}
		optimistic := current
		optimistic.IsRead = true
		s.messages.ApplyOptimistic(optimistic)
		go func() {
			if _, err := s.gateway.messages.MarkAsRead(ctx, id, s.user.ID); err != nil {
				s.logger.Warn("mark message read failed", zap.Error(err))
			}
		}()
	default:
		s.send(newFrame(FrameError, "unknown entity in mark_read", nil))
		return
	}

	s.send(newFrame(FrameCounters, s.counters(), nil))
}

func (s *Session) expirePending() {
	count := 0
	for _, reverted := range s.notifications.ExpirePending() {
		count++
		s.send(newFrame(FrameRevert, map[string]string{
			"entity": "notification",
			"id":     reverted.ID.String(),
			"reason": "write not confirmed in time",
		}, nil))
	}
	for _, reverted := range s.messages.ExpirePending() {
		count++
		s.send(newFrame(FrameRevert, map[string]string{
			"entity": "message",
			"id":     reverted.ID.String(),
			"reason": "write not confirmed in time",
		}, nil))
	}
	for _, reverted := range s.alerts.ExpirePending() {
		count++
		s.send(newFrame(FrameRevert, map[string]string{
			"entity": "alert",
			"id":     reverted.ID.String(),
			"reason": "write not confirmed in time",
		}, nil))
	}
	if count > 0 {
		s.send(newFrame(FrameCounters, s.counters(), nil))
	}
}

// counters recomputes every derived count from the merged views.
func (s *Session) counters() Counters {
	return Counters{
		PendingAlerts: s.alerts.Count(func(a model.Alert) bool {
			return a.Status == model.AlertStatusPending
		}),
		UnreadNotifications: s.notifications.Count(func(n model.Notification) bool {
			return !n.IsRead
		}),
		UnreadMessages: s.messages.Count(func(m model.Message) bool {
			return !m.IsRead && m.SenderID != s.user.ID
		}),
	}
}

// send never blocks the drain loop: a slow consumer loses frames rather than
// stalling reconciliation, and the periodic counters frame self-heals.
func (s *Session) send(frame Frame) {
	select {
	case s.out <- frame:
	default:
		s.logger.Debug("session send buffer full, dropping frame",
			zap.String("kind", frame.Kind))
	}
}
