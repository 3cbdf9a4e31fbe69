// Package dispatch converts a confirmed alert into a human-actionable contact
// action on an external channel. Fire-and-forget: the system records that
// dispatch was initiated, never whether the message was delivered.
package dispatch

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"letsvida.com/guestsos/internal/model"
)

const ChannelWhatsApp = "whatsapp"

// Bridge builds outbound dispatch links and records initiation locally.
type Bridge struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewBridge(db *gorm.DB, logger *zap.Logger) *Bridge {
	return &Bridge{db: db, logger: logger}
}

// Result is what the caller hands to the external channel.
type Result struct {
	Link string `json:"link"`
	Body string `json:"body"`
}

// BuildBody renders the human-readable dispatch text. A missing location never
// blocks dispatch; the maps link is replaced by a fallback phrase.
func BuildBody(alert *model.Alert, subjectName string) string {
	if subjectName == "" {
		subjectName = "a guest"
	}

	if alert.HasLocation() {
		mapsLink := fmt.Sprintf("https://maps.google.com/?q=%s,%s",
			strconv.FormatFloat(*alert.Latitude, 'f', -1, 64),
			strconv.FormatFloat(*alert.Longitude, 'f', -1, 64))
		return fmt.Sprintf("EMERGENCY: SOS alert from %s. Location: %s", subjectName, mapsLink)
	}

	return fmt.Sprintf("EMERGENCY: SOS alert from %s. Location unavailable, check last known itinerary.", subjectName)
}

// BuildWhatsAppLink builds the wa.me deep link for a pre-formatted body.
// target is digits-only E.164 (no leading '+'), as wa.me expects.
func BuildWhatsAppLink(target, body string) string {
	return fmt.Sprintf("https://wa.me/%s?text=%s", target, url.QueryEscape(body))
}

// Dispatch builds the outbound action for alert and records a DispatchLog row.
// Failure to persist the log is logged and does not fail the dispatch: the
// contact action matters more than the audit row.
func (b *Bridge) Dispatch(ctx context.Context, alert *model.Alert, subjectName, target string, initiatedBy uuid.UUID) *Result {
	body := BuildBody(alert, subjectName)
	result := &Result{
		Link: BuildWhatsAppLink(target, body),
		Body: body,
	}

	entry := &model.DispatchLog{
		AlertID:     alert.ID,
		Channel:     ChannelWhatsApp,
		Target:      target,
		Body:        body,
		InitiatedBy: initiatedBy,
	}
	if err := b.db.WithContext(ctx).Create(entry).Error; err != nil {
		b.logger.Error("failed to record dispatch initiation",
			zap.String("alert_id", alert.ID.String()), zap.Error(err))
	}

	return result
}

// History returns the dispatch attempts recorded for an alert.
func (b *Bridge) History(ctx context.Context, alertID uuid.UUID) ([]model.DispatchLog, error) {
	var entries []model.DispatchLog
	err := b.db.WithContext(ctx).
		Where("alert_id = ?", alertID).
		Order("created_at desc").
		Find(&entries).Error
	return entries, err
}
