package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Message is a chat entry between a guest and the admin pool.
// RecipientID is nil for messages addressed to the general admin inbox.
type Message struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	SenderID      uuid.UUID  `gorm:"type:uuid;not null;index" json:"sender_id"`
	RecipientID   *uuid.UUID `gorm:"type:uuid;index" json:"recipient_id,omitempty"`
	Content       string     `gorm:"type:text;not null" json:"content"`
	CorrelationID uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex" json:"correlation_id"` // client-generated idempotency key
	IsRead        bool       `gorm:"default:false" json:"is_read"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	Sender *User `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
}

func (m *Message) BeforeCreate(tx *gorm.DB) (err error) {
	if m.ID == uuid.Nil {
		m.ID, err = uuid.NewV7()
	}
	return
}
