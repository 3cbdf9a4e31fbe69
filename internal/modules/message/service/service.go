package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"letsvida.com/guestsos/internal/changefeed"
	"letsvida.com/guestsos/internal/model"
	messageRepo "letsvida.com/guestsos/internal/modules/message/repository"
	"letsvida.com/guestsos/pkg/apperror"
)

type MessageService interface {
	SendMessage(ctx context.Context, senderID uuid.UUID, recipientID *uuid.UUID, content string, correlationID uuid.UUID) (*model.Message, error)
	GetConversation(ctx context.Context, userID uuid.UUID, limit, offset int) ([]model.Message, error)
	MarkAsRead(ctx context.Context, id, userID uuid.UUID) (*model.Message, error)
	UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error)
}

type messageService struct {
	repo      messageRepo.MessageRepository
	publisher *changefeed.Publisher
}

func NewMessageService(repo messageRepo.MessageRepository, publisher *changefeed.Publisher) MessageService {
	return &messageService{
		repo:      repo,
		publisher: publisher,
	}
}

// SendMessage persists a chat entry idempotently: a retried insert carrying
// the same client-generated correlation id returns the already-stored row
// instead of creating a duplicate. A partially-acknowledged first attempt is
// therefore safe to retry.
func (s *messageService) SendMessage(ctx context.Context, senderID uuid.UUID, recipientID *uuid.UUID, content string, correlationID uuid.UUID) (*model.Message, error) {
	if correlationID == uuid.Nil {
		return nil, apperror.ErrInvalidInput
	}

	if existing, err := s.repo.FindByCorrelationID(ctx, correlationID); err == nil {
		if existing.SenderID != senderID {
			// Correlation ids are per-client; a collision across senders is
			// a forged or garbage id.
			return nil, apperror.ErrForbidden
		}
		return existing, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	message := &model.Message{
		SenderID:      senderID,
		RecipientID:   recipientID,
		Content:       content,
		CorrelationID: correlationID,
	}

	if err := s.repo.Create(ctx, message); err != nil {
		// The unique index on correlation_id may have raced with a concurrent
		// retry of the same send; surface the stored row in that case.
		if existing, lookupErr := s.repo.FindByCorrelationID(ctx, correlationID); lookupErr == nil {
			return existing, nil
		}
		return nil, err
	}

	s.publisher.PublishMessage(ctx, changefeed.EventInsert, message)
	return message, nil
}

func (s *messageService) GetConversation(ctx context.Context, userID uuid.UUID, limit, offset int) ([]model.Message, error) {
	return s.repo.FindConversation(ctx, userID, limit, offset)
}

func (s *messageService) MarkAsRead(ctx context.Context, id, userID uuid.UUID) (*model.Message, error) {
	message, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	// Only a recipient may mark a message read; broadcast messages may be
	// read by anyone except the sender.
	if message.SenderID == userID {
		return nil, apperror.ErrForbidden
	}
	if message.RecipientID != nil && *message.RecipientID != userID {
		return nil, apperror.ErrForbidden
	}

	if message.IsRead {
		return message, nil
	}

	if err := s.repo.SetRead(ctx, id, true); err != nil {
		return nil, err
	}

	refreshed, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.publisher.PublishMessage(ctx, changefeed.EventUpdate, refreshed)
	return refreshed, nil
}

func (s *messageService) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.repo.CountUnread(ctx, userID)
}
