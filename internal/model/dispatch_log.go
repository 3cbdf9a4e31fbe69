package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DispatchLog records that a dispatch was initiated for an alert.
// There is no delivery-receipt contract with the external channel.
type DispatchLog struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	AlertID     uuid.UUID `gorm:"type:uuid;not null;index" json:"alert_id"`
	Channel     string    `gorm:"type:varchar(30);not null" json:"channel"` // 'whatsapp'
	Target      string    `gorm:"type:varchar(50);not null" json:"target"`
	Body        string    `gorm:"type:text;not null" json:"body"`
	InitiatedBy uuid.UUID `gorm:"type:uuid;not null" json:"initiated_by"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (d *DispatchLog) BeforeCreate(tx *gorm.DB) (err error) {
	if d.ID == uuid.Nil {
		d.ID, err = uuid.NewV7()
	}
	return
}
