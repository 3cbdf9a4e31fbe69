package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"letsvida.com/guestsos/internal/changefeed"
	"letsvida.com/guestsos/internal/model"
	notifRepo "letsvida.com/guestsos/internal/modules/notification/repository"
	"letsvida.com/guestsos/pkg/apperror"
)

type NotificationService interface {
	CreateNotification(ctx context.Context, notification *model.Notification) error
	GetNotifications(ctx context.Context, userID uuid.UUID, limit, offset int) ([]model.Notification, error)
	MarkAsRead(ctx context.Context, id, userID uuid.UUID) (*model.Notification, error)
	MarkAsUnread(ctx context.Context, id, userID uuid.UUID) (*model.Notification, error)
	MarkAllAsRead(ctx context.Context, userID uuid.UUID) error
	UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error)
}

type notificationService struct {
	repo      notifRepo.NotificationRepository
	publisher *changefeed.Publisher
}

func NewNotificationService(repo notifRepo.NotificationRepository, publisher *changefeed.Publisher) NotificationService {
	return &notificationService{
		repo:      repo,
		publisher: publisher,
	}
}

func (s *notificationService) CreateNotification(ctx context.Context, notification *model.Notification) error {
	// 1. Save to DB
	if err := s.repo.Create(ctx, notification); err != nil {
		return err
	}

	// 2. Publish the insert to the feed (generic + per-user channels)
	s.publisher.PublishNotification(ctx, changefeed.EventInsert, notification)

	return nil
}

func (s *notificationService) GetNotifications(ctx context.Context, userID uuid.UUID, limit, offset int) ([]model.Notification, error) {
	return s.repo.GetByUserID(ctx, userID, limit, offset)
}

func (s *notificationService) MarkAsRead(ctx context.Context, id, userID uuid.UUID) (*model.Notification, error) {
	return s.setRead(ctx, id, userID, true)
}

// MarkAsUnread is the explicit user-initiated override; is_read is otherwise
// monotonic false to true.
func (s *notificationService) MarkAsUnread(ctx context.Context, id, userID uuid.UUID) (*model.Notification, error) {
	return s.setRead(ctx, id, userID, false)
}

func (s *notificationService) setRead(ctx context.Context, id, userID uuid.UUID, isRead bool) (*model.Notification, error) {
	notification, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	// A notification belongs to exactly one user.
	if notification.UserID != userID {
		return nil, apperror.ErrForbidden
	}

	if notification.IsRead == isRead {
		return notification, nil
	}

	if err := s.repo.SetRead(ctx, id, isRead); err != nil {
		return nil, err
	}

	refreshed, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.publisher.PublishNotification(ctx, changefeed.EventUpdate, refreshed)
	return refreshed, nil
}

func (s *notificationService) MarkAllAsRead(ctx context.Context, userID uuid.UUID) error {
	if err := s.repo.MarkAllAsRead(ctx, userID); err != nil {
		return err
	}

	// Re-publish the affected rows so every subscribed client converges.
	notifications, err := s.repo.GetByUserID(ctx, userID, 200, 0)
	if err != nil {
		return nil
	}
	for i := range notifications {
		if notifications[i].IsRead {
			s.publisher.PublishNotification(ctx, changefeed.EventUpdate, &notifications[i])
		}
	}
	return nil
}

func (s *notificationService) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.repo.CountUnread(ctx, userID)
}
