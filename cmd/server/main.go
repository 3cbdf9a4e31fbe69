package main

import (
	"log"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"letsvida.com/guestsos/internal/config"
	"letsvida.com/guestsos/internal/model"
	"letsvida.com/guestsos/internal/server"
	"letsvida.com/guestsos/pkg/database"
	"letsvida.com/guestsos/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	zlog, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zlog.Sync()

	db := database.Connect()
	if err := migrate(db); err != nil {
		zlog.Fatal("migration failed", zap.Error(err))
	}
	if err := seedRoles(db); err != nil {
		zlog.Fatal("failed to seed roles", zap.Error(err))
	}
	if cfg.AppEnv == "development" {
		if err := seedAdminUser(db, zlog); err != nil {
			zlog.Fatal("failed to seed admin user", zap.Error(err))
		}
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisURL})

	srv, err := server.NewServer(cfg, db, redisClient, zlog)
	if err != nil {
		zlog.Fatal("failed to build server", zap.Error(err))
	}

	zlog.Info("listening", zap.String("port", cfg.Port), zap.String("env", cfg.AppEnv))
	if err := srv.Run(":" + cfg.Port); err != nil {
		zlog.Fatal("server exited", zap.Error(err))
	}
}

func migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.Role{},
		&model.User{},
		&model.Alert{},
		&model.Notification{},
		&model.Message{},
		&model.DispatchLog{},
	)
}

func seedRoles(db *gorm.DB) error {
	defaultRoles := []model.Role{
		{Name: "admin", Description: "Platform administrator"},
		{Name: "staff", Description: "On-site responder"},
		{Name: "guest", Description: "Hotel guest"},
		{Name: "tribe", Description: "Community member"},
	}

	for _, role := range defaultRoles {
		var count int64
		if err := db.Model(&model.Role{}).
			Where("name = ?", role.Name).
			Count(&count).Error; err != nil {
			return err
		}

		if count == 0 {
			if err := db.Create(&role).Error; err != nil {
				return err
			}
		}
	}

	return nil
}

func seedAdminUser(db *gorm.DB, zlog *zap.Logger) error {
	var adminRole model.Role
	if err := db.Where("name = ?", "admin").First(&adminRole).Error; err != nil {
		return err
	}

	var count int64
	if err := db.Model(&model.User{}).
		Where("email = ?", "admin@letsvida.com").
		Count(&count).Error; err != nil {
		return err
	}

	if count > 0 {
		zlog.Debug("admin user already exists, skipping seed")
		return nil
	}

	hashedPasswordBytes, err := bcrypt.GenerateFromPassword([]byte("admin123"), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	adminUser := model.User{
		Username:     "admin",
		Email:        "admin@letsvida.com",
		PasswordHash: string(hashedPasswordBytes),
		RoleID:       &adminRole.ID,
	}

	if err := db.Create(&adminUser).Error; err != nil {
		return err
	}

	zlog.Info("admin user seeded", zap.String("email", adminUser.Email))
	return nil
}
