package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"letsvida.com/guestsos/internal/model"
)

type MessageRepository interface {
	Create(ctx context.Context, message *model.Message) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Message, error)
	FindByCorrelationID(ctx context.Context, correlationID uuid.UUID) (*model.Message, error)
	// FindConversation returns messages visible to userID: sent by them,
	// addressed to them, or addressed to the general inbox.
	FindConversation(ctx context.Context, userID uuid.UUID, limit, offset int) ([]model.Message, error)
	SetRead(ctx context.Context, id uuid.UUID, isRead bool) error
	CountUnread(ctx context.Context, userID uuid.UUID) (int64, error)
}

type messageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Create(ctx context.Context, message *model.Message) error {
	return r.db.WithContext(ctx).Create(message).Error
}

func (r *messageRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Message, error) {
	var message model.Message
	err := r.db.WithContext(ctx).First(&message, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &message, nil
}

func (r *messageRepository) FindByCorrelationID(ctx context.Context, correlationID uuid.UUID) (*model.Message, error) {
	var message model.Message
	err := r.db.WithContext(ctx).First(&message, "correlation_id = ?", correlationID).Error
	if err != nil {
		return nil, err
	}
	return &message, nil
}

func (r *messageRepository) FindConversation(ctx context.Context, userID uuid.UUID, limit, offset int) ([]model.Message, error) {
	var messages []model.Message
	err := r.db.WithContext(ctx).
		Where("sender_id = ? OR recipient_id = ? OR recipient_id IS NULL", userID, userID).
		Order("created_at desc").
		Limit(limit).
		Offset(offset).
		Preload("Sender", func(db *gorm.DB) *gorm.DB {
			return db.Select("id", "username", "role_id")
		}).
		Find(&messages).Error
	return messages, err
}

func (r *messageRepository) SetRead(ctx context.Context, id uuid.UUID, isRead bool) error {
	return r.db.WithContext(ctx).
		Model(&model.Message{}).
		Where("id = ?", id).
		Update("is_read", isRead).Error
}

func (r *messageRepository) CountUnread(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Message{}).
		Where("(recipient_id = ? OR recipient_id IS NULL) AND sender_id <> ? AND is_read = ?", userID, userID, false).
		Count(&count).Error
	return count, err
}
