package feedback

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"letsvida.com/guestsos/internal/model"
)

func TestForAlertCuesOnlyFirstPendingDelivery(t *testing.T) {
	p := NewPolicy()
	alert := &model.Alert{ID: uuid.New(), Status: model.AlertStatusPending}

	cue := p.ForAlert(alert, true)
	require.NotNil(t, cue)
	assert.Equal(t, ClipSOS, cue.Sound)
	assert.Equal(t, SOSVibration, cue.Vibration)

	// Redelivery of the same version carries no cue.
	assert.Nil(t, p.ForAlert(alert, false))

	// Status updates converge silently.
	alert.Status = model.AlertStatusAcknowledged
	assert.Nil(t, p.ForAlert(alert, true))
}

func TestForNotificationCueRules(t *testing.T) {
	p := NewPolicy()
	me := uuid.New()

	unread := &model.Notification{ID: uuid.New(), UserID: me}
	require.NotNil(t, p.ForNotification(unread, me, true))
	assert.Nil(t, p.ForNotification(unread, me, false))

	someoneElses := &model.Notification{ID: uuid.New(), UserID: uuid.New()}
	assert.Nil(t, p.ForNotification(someoneElses, me, true))

	alreadyRead := &model.Notification{ID: uuid.New(), UserID: me, IsRead: true}
	assert.Nil(t, p.ForNotification(alreadyRead, me, true))
}

func TestForMessageCueRules(t *testing.T) {
	p := NewPolicy()
	me := uuid.New()

	incoming := &model.Message{ID: uuid.New(), SenderID: uuid.New()}
	cue := p.ForMessage(incoming, me, true)
	require.NotNil(t, cue)
	assert.Equal(t, ClipMessage, cue.Sound)

	// No cue for the echo of my own send.
	mine := &model.Message{ID: uuid.New(), SenderID: me}
	assert.Nil(t, p.ForMessage(mine, me, true))
}

func TestPermissionsPruneCueParts(t *testing.T) {
	p := NewPolicy()
	alert := &model.Alert{ID: uuid.New(), Status: model.AlertStatusPending}

	p.SetPermissions(Permissions{Sound: false, Vibration: true})
	cue := p.ForAlert(alert, true)
	require.NotNil(t, cue)
	assert.Empty(t, cue.Sound)
	assert.Equal(t, SOSVibration, cue.Vibration)

	p.SetPermissions(Permissions{Sound: true, Vibration: false})
	cue = p.ForAlert(alert, true)
	require.NotNil(t, cue)
	assert.Equal(t, ClipSOS, cue.Sound)
	assert.Nil(t, cue.Vibration)

	// Neither capability: the event still flows, just with no cue at all.
	p.SetPermissions(Permissions{})
	assert.Nil(t, p.ForAlert(alert, true))
}
