// Package session holds the websocket gateway: one connection per client,
// per-session reconciler views fed by the snapshot stores and the change feed.
package session

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"letsvida.com/guestsos/internal/changefeed"
	alertService "letsvida.com/guestsos/internal/modules/alert/service"
	messageService "letsvida.com/guestsos/internal/modules/message/service"
	notificationService "letsvida.com/guestsos/internal/modules/notification/service"
	userRepo "letsvida.com/guestsos/internal/modules/user/repository"
	"letsvida.com/guestsos/pkg/response"
)

type Gateway struct {
	registry      *changefeed.Registry
	users         userRepo.UserRepository
	alerts        alertService.AlertService
	notifications notificationService.NotificationService
	messages      messageService.MessageService

	confirmWindow time.Duration
	snapshotLimit int

	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewGateway(
	registry *changefeed.Registry,
	users userRepo.UserRepository,
	alerts alertService.AlertService,
	notifications notificationService.NotificationService,
	messages messageService.MessageService,
	confirmWindow time.Duration,
	snapshotLimit int,
	logger *zap.Logger,
) *Gateway {
	return &Gateway{
		registry:      registry,
		users:         users,
		alerts:        alerts,
		notifications: notifications,
		messages:      messages,
		confirmWindow: confirmWindow,
		snapshotLimit: snapshotLimit,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: logger,
	}
}

// HandleStream upgrades the request and runs the session until the client
// disconnects. Each connection gets fresh views and fresh subscriptions; a
// reconnect is a brand-new session, so missed events are healed by the
// snapshot rather than replay.
func (g *Gateway) HandleStream(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	user, err := g.users.FindByID(c.Request.Context(), userID.String())
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	sess := newSession(g, user, conn)
	defer g.registry.CloseSession(sess.id)

	g.logger.Info("session opened",
		zap.String("session_id", sess.id),
		zap.String("user_id", user.ID.String()),
		zap.Strings("channels", sess.scopes()))

	sess.run(c.Request.Context())

	g.logger.Info("session closed", zap.String("session_id", sess.id))
}
