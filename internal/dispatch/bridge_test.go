package dispatch

import (
	"context"
	"net/url"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"letsvida.com/guestsos/internal/model"
)

func newBridge(t *testing.T) *Bridge {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.DispatchLog{}))

	return NewBridge(db, zap.NewNop())
}

func TestBuildBodyWithLocation(t *testing.T) {
	lat, lng := 9.64, -83.67
	alert := &model.Alert{ID: uuid.New(), Latitude: &lat, Longitude: &lng}

	body := BuildBody(alert, "maria")
	assert.Equal(t, "EMERGENCY: SOS alert from maria. Location: https://maps.google.com/?q=9.64,-83.67", body)
}

func TestBuildBodyWithoutLocation(t *testing.T) {
	alert := &model.Alert{ID: uuid.New()}

	body := BuildBody(alert, "")
	assert.Contains(t, body, "a guest")
	assert.Contains(t, body, "Location unavailable")
	assert.NotContains(t, body, "maps.google.com")
}

func TestBuildWhatsAppLink(t *testing.T) {
	link := BuildWhatsAppLink("50688881234", "EMERGENCY: SOS alert from maria")

	require.True(t, strings.HasPrefix(link, "https://wa.me/50688881234?text="))

	parsed, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "EMERGENCY: SOS alert from maria", parsed.Query().Get("text"))
}

func TestDispatchRecordsInitiation(t *testing.T) {
	bridge := newBridge(t)
	ctx := context.Background()

	lat, lng := 9.64, -83.67
	alert := &model.Alert{ID: uuid.New(), Latitude: &lat, Longitude: &lng}
	responder := uuid.New()

	result := bridge.Dispatch(ctx, alert, "maria", "50688881234", responder)
	require.NotNil(t, result)
	assert.Contains(t, result.Link, "wa.me/50688881234")
	assert.Contains(t, result.Body, "9.64,-83.67")

	// Second dispatch for the same alert appends, never replaces.
	bridge.Dispatch(ctx, alert, "maria", "50699990000", responder)

	history, err := bridge.History(ctx, alert.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	for _, entry := range history {
		assert.Equal(t, ChannelWhatsApp, entry.Channel)
		assert.Equal(t, alert.ID, entry.AlertID)
		assert.Equal(t, responder, entry.InitiatedBy)
	}
}
