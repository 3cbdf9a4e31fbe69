package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AlertStatus string

const (
	AlertStatusPending      AlertStatus = "pending"
	AlertStatusAcknowledged AlertStatus = "acknowledged"
	AlertStatusResolved     AlertStatus = "resolved"
	AlertStatusFalseAlarm   AlertStatus = "false_alarm"
)

// IsTerminal reports whether the status admits no further transitions short of
// an explicit admin reopen.
func (s AlertStatus) IsTerminal() bool {
	return s == AlertStatusResolved || s == AlertStatusFalseAlarm
}

type Alert struct {
	ID            uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	SubjectUserID uuid.UUID   `gorm:"type:uuid;not null;index" json:"subject_user_id"` // the guest in distress
	Latitude      *float64    `json:"latitude,omitempty"`
	Longitude     *float64    `json:"longitude,omitempty"`
	Status        AlertStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	Notes         *string     `gorm:"type:text" json:"notes,omitempty"`
	EvidenceURL   *string     `gorm:"type:text" json:"evidence_url,omitempty"`
	CreatedAt     time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
	ResolvedAt    *time.Time  `json:"resolved_at,omitempty"`

	Subject *User `gorm:"foreignKey:SubjectUserID" json:"subject,omitempty"`
}

func (a *Alert) BeforeCreate(tx *gorm.DB) (err error) {
	if a.ID == uuid.Nil {
		a.ID, err = uuid.NewV7()
	}
	return
}

// HasLocation reports whether both coordinates were captured. A lone
// coordinate is discarded at intake, so this is all-or-nothing.
func (a *Alert) HasLocation() bool {
	return a.Latitude != nil && a.Longitude != nil
}
