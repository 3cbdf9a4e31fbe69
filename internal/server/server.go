package server

import (
	"strings"
	"time"

	"letsvida.com/guestsos/internal/changefeed"
	"letsvida.com/guestsos/internal/config"
	"letsvida.com/guestsos/internal/dispatch"
	"letsvida.com/guestsos/internal/middleware"
	"letsvida.com/guestsos/internal/session"
	"letsvida.com/guestsos/pkg/storage"

	alertHttp "letsvida.com/guestsos/internal/modules/alert/delivery/http"
	alertRepo "letsvida.com/guestsos/internal/modules/alert/repository"
	alertService "letsvida.com/guestsos/internal/modules/alert/service"

	messageHttp "letsvida.com/guestsos/internal/modules/message/delivery/http"
	messageRepo "letsvida.com/guestsos/internal/modules/message/repository"
	messageService "letsvida.com/guestsos/internal/modules/message/service"

	notiHttp "letsvida.com/guestsos/internal/modules/notification/delivery/http"
	notifRepo "letsvida.com/guestsos/internal/modules/notification/repository"
	notifService "letsvida.com/guestsos/internal/modules/notification/service"

	searchHttp "letsvida.com/guestsos/internal/modules/search/delivery/http"
	searchService "letsvida.com/guestsos/internal/modules/search/service"

	userHttp "letsvida.com/guestsos/internal/modules/user/delivery/http"
	userRepo "letsvida.com/guestsos/internal/modules/user/repository"
	userService "letsvida.com/guestsos/internal/modules/user/service"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/meilisearch/meilisearch-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Server struct {
	engine      *gin.Engine
	db          *gorm.DB
	redisClient *redis.Client
	logger      *zap.Logger
}

func NewServer(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, logger *zap.Logger) (*Server, error) {
	users := userRepo.NewUserRepository(db)

	evidenceStorage, err := storage.NewCloudinaryStorage()
	if err != nil {
		return nil, err
	}

	meiliHost := cfg.MeiliSearchHost
	if !strings.HasPrefix(meiliHost, "http") {
		meiliHost = "http://" + meiliHost + ":7700"
	}
	meiliClient := meilisearch.New(meiliHost, meilisearch.WithAPIKey(cfg.MeiliMasterKey))
	searchSvc := searchService.NewAlertSearchService(meiliClient)
	searchHandler := searchHttp.NewSearchHandler(searchSvc)

	authSvc := userService.NewAuthService(users)
	authHandler := userHttp.NewAuthHandler(authSvc)

	publisher := changefeed.NewPublisher(redisClient, logger)
	registry := changefeed.NewRegistry(redisClient, logger)

	notificationRepository := notifRepo.NewNotificationRepository(db)
	notificationSvc := notifService.NewNotificationService(notificationRepository, publisher)
	notificationHandler := notiHttp.NewNotificationHandler(notificationSvc)

	messageRepository := messageRepo.NewMessageRepository(db)
	messageSvc := messageService.NewMessageService(messageRepository, publisher)
	messageHandler := messageHttp.NewMessageHandler(messageSvc)

	bridge := dispatch.NewBridge(db, logger)

	alertRepository := alertRepo.NewAlertRepository(db)
	alertSvc := alertService.NewAlertService(alertRepository, users, notificationSvc, publisher, searchSvc, evidenceStorage, logger)
	alertHandler := alertHttp.NewAlertHandler(alertSvc, bridge, cfg.DispatchPhone)

	gateway := session.NewGateway(registry, users, alertSvc, notificationSvc, messageSvc,
		cfg.ConfirmWindow, cfg.SnapshotLimit, logger)

	router := gin.New()
	setupCORS(router, cfg.AllowedOrigins)
	router.Use(gin.Recovery())
	router.Use(gin.Logger())

	authMiddleware := middleware.NewAuthMiddleware(users)

	api := router.Group("/api")

	// Public routes (no auth required)
	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
	}

	// Protected routes
	protected := api.Group("")
	protected.Use(authMiddleware.RequireAuth())
	{
		// Alert routes
		protected.POST("/alerts", alertHandler.CreateAlert)
		protected.GET("/alerts", authMiddleware.RequireResponder(), alertHandler.ListAlerts)
		protected.GET("/alerts/search", authMiddleware.RequireAdmin(), searchHandler.SearchAlerts)
		protected.GET("/alerts/:id", authMiddleware.RequireResponder(), alertHandler.GetAlert)
		protected.POST("/alerts/:id/acknowledge", authMiddleware.RequireResponder(), alertHandler.Acknowledge)
		protected.POST("/alerts/:id/resolve", authMiddleware.RequireResponder(), alertHandler.Resolve)
		protected.POST("/alerts/:id/false-alarm", authMiddleware.RequireResponder(), alertHandler.MarkFalseAlarm)
		protected.POST("/alerts/:id/reopen", authMiddleware.RequireAdmin(), alertHandler.Reopen)
		protected.POST("/alerts/:id/dispatch", authMiddleware.RequireResponder(), alertHandler.Dispatch)
		protected.POST("/alerts/:id/evidence", authMiddleware.RequireResponder(), alertHandler.AttachEvidence)

		// Notification routes
		protected.POST("/notifications", authMiddleware.RequireAdmin(), notificationHandler.CreateNotification)
		protected.GET("/notifications", notificationHandler.GetNotifications)
		protected.GET("/notifications/unread-count", notificationHandler.UnreadCount)
		protected.PUT("/notifications/:id/read", notificationHandler.MarkAsRead)
		protected.PUT("/notifications/:id/unread", notificationHandler.MarkAsUnread)
		protected.PUT("/notifications/read-all", notificationHandler.MarkAllAsRead)

		// Message routes
		protected.POST("/messages", messageHandler.SendMessage)
		protected.GET("/messages", messageHandler.GetConversation)
		protected.GET("/messages/unread-count", messageHandler.UnreadCount)
		protected.PUT("/messages/:id/read", messageHandler.MarkAsRead)

		// Live stream: snapshot + change feed over one websocket
		protected.GET("/stream", gateway.HandleStream)
	}

	return &Server{
		engine:      router,
		db:          db,
		redisClient: redisClient,
		logger:      logger,
	}, nil
}

func (s *Server) Run(addr string) error {
	return s.engine.Run(addr)
}

func setupCORS(router *gin.Engine, allowedOrigins string) {
	var origins []string
	if allowedOrigins != "" {
		origins = strings.Split(allowedOrigins, ",")
	} else {
		origins = []string{"http://localhost:3000"}
	}

	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
}
