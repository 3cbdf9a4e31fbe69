// Package feedback decides which pushed events warrant a sensory cue on the
// client device. Cues are strictly best-effort: a session that cannot play
// audio or vibrate still receives every event, just without the directive.
package feedback

import (
	"github.com/google/uuid"
	"letsvida.com/guestsos/internal/model"
)

// Clip references understood by the client runtime.
const (
	ClipSOS     = "sos_siren"
	ClipInbox   = "inbox_chime"
	ClipMessage = "chat_pop"
)

// SOSVibration is a long urgent pattern; InboxVibration a short double tap.
// Values are millisecond on/off intervals, the common web/device convention.
var (
	SOSVibration   = []int{400, 150, 400, 150, 800}
	InboxVibration = []int{120, 80, 120}
)

// Cue is the sensory directive attached to a pushed frame.
type Cue struct {
	Sound     string `json:"sound,omitempty"`
	Vibration []int  `json:"vibration,omitempty"`
}

// Permissions mirrors what the client reported about its platform state.
// Either capability may be unavailable (audio blocked pending interaction,
// vibration unsupported); the affected part of the cue is simply omitted.
type Permissions struct {
	Sound     bool `json:"sound"`
	Vibration bool `json:"vibration"`
}

// Policy builds cues for one session.
type Policy struct {
	perms Permissions
}

func NewPolicy() *Policy {
	// Until the client reports otherwise, assume both capabilities.
	return &Policy{perms: Permissions{Sound: true, Vibration: true}}
}

// SetPermissions records the client's reported capability state.
func (p *Policy) SetPermissions(perms Permissions) {
	p.perms = perms
}

// ForAlert returns a cue for a newly arrived pending alert, nil otherwise.
// Status updates to an alert converge views silently.
func (p *Policy) ForAlert(alert *model.Alert, firstDelivery bool) *Cue {
	if !firstDelivery || alert.Status != model.AlertStatusPending {
		return nil
	}
	return p.build(ClipSOS, SOSVibration)
}

// ForNotification returns a cue for an unread notification addressed to the
// session user, nil otherwise.
func (p *Policy) ForNotification(n *model.Notification, sessionUserID uuid.UUID, firstDelivery bool) *Cue {
	if !firstDelivery || n.IsRead || n.UserID != sessionUserID {
		return nil
	}
	return p.build(ClipInbox, InboxVibration)
}

// ForMessage returns a cue for an unread message not sent by the session user.
func (p *Policy) ForMessage(m *model.Message, sessionUserID uuid.UUID, firstDelivery bool) *Cue {
	if !firstDelivery || m.IsRead || m.SenderID == sessionUserID {
		return nil
	}
	return p.build(ClipMessage, InboxVibration)
}

func (p *Policy) build(clip string, vibration []int) *Cue {
	cue := &Cue{}
	if p.perms.Sound {
		cue.Sound = clip
	}
	if p.perms.Vibration {
		cue.Vibration = vibration
	}
	if cue.Sound == "" && cue.Vibration == nil {
		return nil
	}
	return cue
}
