package changefeed

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"letsvida.com/guestsos/internal/model"
)

func newTestFeed(t *testing.T) (*redis.Client, *Publisher, *Registry) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := zap.NewNop()
	return client, NewPublisher(client, logger), NewRegistry(client, logger)
}

func waitForEvent(t *testing.T, sub *Subscription) *Event {
	t.Helper()
	select {
	case evt := <-sub.Events:
		return evt
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for feed event")
		return nil
	}
}

func TestPublishNotificationReachesBothChannels(t *testing.T) {
	_, publisher, registry := newTestFeed(t)
	ctx := context.Background()

	userID := uuid.New()
	generic, created := registry.Subscribe(ctx, "sess-1", NotificationsChannel)
	require.True(t, created)
	personal, created := registry.Subscribe(ctx, "sess-1", UserNotificationsChannel(userID))
	require.True(t, created)

	// Give miniredis time to register both subscribers.
	time.Sleep(50 * time.Millisecond)

	notification := &model.Notification{
		ID:        uuid.New(),
		UserID:    userID,
		Title:     "SOS",
		Type:      "sos_alert",
		UpdatedAt: time.Now().UTC(),
	}
	publisher.PublishNotification(ctx, EventInsert, notification)

	got := waitForEvent(t, generic)
	assert.Equal(t, notification.ID, got.EntityID())
	got = waitForEvent(t, personal)
	assert.Equal(t, notification.ID, got.EntityID())

	registry.CloseSession("sess-1")
}

func TestPublishAlertRoundTrip(t *testing.T) {
	_, publisher, registry := newTestFeed(t)
	ctx := context.Background()

	sub, created := registry.Subscribe(ctx, "sess-1", AlertsChannel)
	require.True(t, created)
	time.Sleep(50 * time.Millisecond)

	lat, lng := 9.64, -83.67
	alert := &model.Alert{
		ID:        uuid.New(),
		Status:    model.AlertStatusPending,
		Latitude:  &lat,
		Longitude: &lng,
		UpdatedAt: time.Now().UTC(),
	}
	publisher.PublishAlert(ctx, EventInsert, alert)

	got := waitForEvent(t, sub)
	assert.Equal(t, EventInsert, got.Type)
	require.NotNil(t, got.Alert)
	assert.Equal(t, model.AlertStatusPending, got.Alert.Status)
	require.NotNil(t, got.Alert.Latitude)
	assert.InDelta(t, lat, *got.Alert.Latitude, 1e-9)

	registry.CloseSession("sess-1")
}

func TestMalformedPayloadIsDropped(t *testing.T) {
	client, publisher, registry := newTestFeed(t)
	ctx := context.Background()

	sub, _ := registry.Subscribe(ctx, "sess-1", MessagesChannel)
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, client.Publish(ctx, MessagesChannel, "{broken").Err())

	message := &model.Message{
		ID:        uuid.New(),
		SenderID:  uuid.New(),
		Content:   "hello",
		UpdatedAt: time.Now().UTC(),
	}
	publisher.PublishMessage(ctx, EventInsert, message)

	// Only the valid event comes through.
	got := waitForEvent(t, sub)
	assert.Equal(t, message.ID, got.EntityID())

	registry.CloseSession("sess-1")
}

func TestSubscribeIsIdempotentPerSessionChannel(t *testing.T) {
	_, _, registry := newTestFeed(t)
	ctx := context.Background()

	first, created := registry.Subscribe(ctx, "sess-1", AlertsChannel)
	require.True(t, created)
	second, created := registry.Subscribe(ctx, "sess-1", AlertsChannel)
	assert.False(t, created)
	assert.Same(t, first, second)

	// A different session gets its own subscription.
	other, created := registry.Subscribe(ctx, "sess-2", AlertsChannel)
	require.True(t, created)
	assert.NotSame(t, first, other)

	registry.CloseSession("sess-1")
	registry.CloseSession("sess-2")
}

func TestCloseSessionTearsDownAllChannels(t *testing.T) {
	_, _, registry := newTestFeed(t)
	ctx := context.Background()

	registry.Subscribe(ctx, "sess-1", AlertsChannel)
	registry.Subscribe(ctx, "sess-1", MessagesChannel)
	require.Len(t, registry.SessionChannels("sess-1"), 2)

	registry.CloseSession("sess-1")
	assert.Empty(t, registry.SessionChannels("sess-1"))

	// Idempotent.
	registry.CloseSession("sess-1")
}

func TestUnsubscribeSingleChannel(t *testing.T) {
	_, _, registry := newTestFeed(t)
	ctx := context.Background()

	registry.Subscribe(ctx, "sess-1", AlertsChannel)
	registry.Subscribe(ctx, "sess-1", MessagesChannel)

	registry.Unsubscribe("sess-1", AlertsChannel)
	channels := registry.SessionChannels("sess-1")
	require.Len(t, channels, 1)
	assert.Equal(t, MessagesChannel, channels[0])

	registry.CloseSession("sess-1")
}
