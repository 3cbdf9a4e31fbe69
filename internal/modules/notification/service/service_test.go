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
	notifRepo "letsvida.com/guestsos/internal/modules/notification/repository"
)

func newNotificationService(t *testing.T) NotificationService {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Role{}, &model.User{}, &model.Notification{}))

	return NewNotificationService(notifRepo.NewNotificationRepository(db), changefeed.NewPublisher(nil, zap.NewNop()))
}

func seedNotification(t *testing.T, svc NotificationService, userID uuid.UUID) *model.Notification {
	t.Helper()
	n := &model.Notification{
		UserID:  userID,
		Title:   "SOS alert",
		Message: "A guest has raised an emergency alert.",
		Type:    "sos_alert",
	}
	require.NoError(t, svc.CreateNotification(context.Background(), n))
	return n
}

func TestMarkAsReadAndBack(t *testing.T) {
	svc := newNotificationService(t)
	ctx := context.Background()
	userID := uuid.New()
	n := seedNotification(t, svc, userID)

	read, err := svc.MarkAsRead(ctx, n.ID, userID)
	require.NoError(t, err)
	assert.True(t, read.IsRead)

	// Explicit unread override.
	unread, err := svc.MarkAsUnread(ctx, n.ID, userID)
	require.NoError(t, err)
	assert.False(t, unread.IsRead)
}

func TestMarkAsReadEnforcesOwnership(t *testing.T) {
	svc := newNotificationService(t)
	n := seedNotification(t, svc, uuid.New())

	_, err := svc.MarkAsRead(context.Background(), n.ID, uuid.New())
	assert.Error(t, err)
}

func TestMarkAsReadUnknownID(t *testing.T) {
	svc := newNotificationService(t)

	_, err := svc.MarkAsRead(context.Background(), uuid.New(), uuid.New())
	assert.Error(t, err)
}

func TestMarkAsReadIdempotent(t *testing.T) {
	svc := newNotificationService(t)
	ctx := context.Background()
	userID := uuid.New()
	n := seedNotification(t, svc, userID)

	_, err := svc.MarkAsRead(ctx, n.ID, userID)
	require.NoError(t, err)
	again, err := svc.MarkAsRead(ctx, n.ID, userID)
	require.NoError(t, err)
	assert.True(t, again.IsRead)
}

func TestMarkAllAsRead(t *testing.T) {
	svc := newNotificationService(t)
	ctx := context.Background()
	userID := uuid.New()
	otherID := uuid.New()

	seedNotification(t, svc, userID)
	seedNotification(t, svc, userID)
	seedNotification(t, svc, otherID)

	require.NoError(t, svc.MarkAllAsRead(ctx, userID))

	count, err := svc.UnreadCount(ctx, userID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, count)

	// Other inboxes untouched.
	count, err = svc.UnreadCount(ctx, otherID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}
