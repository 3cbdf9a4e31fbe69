package service

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"letsvida.com/guestsos/internal/changefeed"
	"letsvida.com/guestsos/internal/model"
	messageRepo "letsvida.com/guestsos/internal/modules/message/repository"
)

func newMessageService(t *testing.T) MessageService {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Role{}, &model.User{}, &model.Message{}))

	return NewMessageService(messageRepo.NewMessageRepository(db), changefeed.NewPublisher(nil, zap.NewNop()))
}

func TestSendMessageIdempotentOnRetry(t *testing.T) {
	svc := newMessageService(t)
	ctx := context.Background()

	sender := uuid.New()
	recipient := uuid.New()
	correlationID := uuid.New()

	first, err := svc.SendMessage(ctx, sender, &recipient, "are you okay?", correlationID)
	require.NoError(t, err)

	// The retry after a lost acknowledgment returns the stored row.
	second, err := svc.SendMessage(ctx, sender, &recipient, "are you okay?", correlationID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	conversation, err := svc.GetConversation(ctx, recipient, 50, 0)
	require.NoError(t, err)
	assert.Len(t, conversation, 1)
}

func TestSendMessageRejectsForeignCorrelationID(t *testing.T) {
	svc := newMessageService(t)
	ctx := context.Background()

	correlationID := uuid.New()
	_, err := svc.SendMessage(ctx, uuid.New(), nil, "hi", correlationID)
	require.NoError(t, err)

	_, err = svc.SendMessage(ctx, uuid.New(), nil, "hi", correlationID)
	assert.Error(t, err)
}

func TestSendMessageRequiresCorrelationID(t *testing.T) {
	svc := newMessageService(t)

	_, err := svc.SendMessage(context.Background(), uuid.New(), nil, "hi", uuid.Nil)
	assert.Error(t, err)
}

func TestBroadcastVisibleToEveryoneButFilteredByRecipient(t *testing.T) {
	svc := newMessageService(t)
	ctx := context.Background()

	guest := uuid.New()
	staff := uuid.New()
	other := uuid.New()

	// Broadcast from the guest plus one direct message to staff.
	_, err := svc.SendMessage(ctx, guest, nil, "anyone there?", uuid.New())
	require.NoError(t, err)
	_, err = svc.SendMessage(ctx, guest, &staff, "for staff only", uuid.New())
	require.NoError(t, err)

	staffView, err := svc.GetConversation(ctx, staff, 50, 0)
	require.NoError(t, err)
	assert.Len(t, staffView, 2)

	otherView, err := svc.GetConversation(ctx, other, 50, 0)
	require.NoError(t, err)
	assert.Len(t, otherView, 1, "only the broadcast is visible")
}

func TestMarkAsReadRules(t *testing.T) {
	svc := newMessageService(t)
	ctx := context.Background()

	sender := uuid.New()
	recipient := uuid.New()

	sent, err := svc.SendMessage(ctx, sender, &recipient, "hello", uuid.New())
	require.NoError(t, err)

	// The sender cannot mark their own message read.
	_, err = svc.MarkAsRead(ctx, sent.ID, sender)
	assert.Error(t, err)

	// Nor can a third party.
	_, err = svc.MarkAsRead(ctx, sent.ID, uuid.New())
	assert.Error(t, err)

	read, err := svc.MarkAsRead(ctx, sent.ID, recipient)
	require.NoError(t, err)
	assert.True(t, read.IsRead)

	// Idempotent once read.
	again, err := svc.MarkAsRead(ctx, sent.ID, recipient)
	require.NoError(t, err)
	assert.True(t, again.IsRead)
}

func TestUnreadCount(t *testing.T) {
	svc := newMessageService(t)
	ctx := context.Background()

	sender := uuid.New()
	recipient := uuid.New()

	first, err := svc.SendMessage(ctx, sender, &recipient, "one", uuid.New())
	require.NoError(t, err)
	_, err = svc.SendMessage(ctx, sender, &recipient, "two", uuid.New())
	require.NoError(t, err)

	count, err := svc.UnreadCount(ctx, recipient)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	_, err = svc.MarkAsRead(ctx, first.ID, recipient)
	require.NoError(t, err)

	count, err = svc.UnreadCount(ctx, recipient)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}
