package cmd

import (
	"context"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/rueidis"
	"gorm.io/gorm"

	"task-api.com/task-api/internal/auth"
	config "task-api.com/task-api/internal/configs"
	"task-api.com/task-api/internal/locks"
	"task-api.com/task-api/internal/logging"
)

// loadConfig reads .env when present, loads and validates the config and
// installs the configured logger.
func loadConfig() (config.Config, error) {
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}

	logging.Setup(cfg.Log.Level, cfg.Log.Format)
	if envErr != nil {
		slog.Debug(".env file not found, using environment variables")
	}

	return cfg, nil
}

func closeDatabase(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		slog.Warn("failed to close database", "error", err)
	}
}

func authOptions(cfg config.AuthConfig) auth.Options {
	return auth.Options{
		Issuer:     cfg.Issuer,
		Audience:   cfg.Audience,
		SigningKey: []byte(cfg.SigningKey),
		Leeway:     cfg.Leeway(),
	}
}

func newLocker(redisClient rueidis.Client, cfg config.RedisConfig) locks.Locker {
	if redisClient == nil {
		return locks.NewLocal()
	}
	return locks.NewRedisLocker(redisClient, cfg.KeyPrefix, time.Minute)
}

func withTimeout(parent context.Context, seconds int) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, time.Duration(seconds)*time.Second)
}
