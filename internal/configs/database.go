package config

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"task-api.com/task-api/internal/migrations"
	repository "task-api.com/task-api/internal/repositories"
)

// NewDatabaseClient opens the configured store and applies pending schema
// migrations before returning.
func NewDatabaseClient(ctx context.Context, cfg DatabaseConfig) (*gorm.DB, error) {
	db, err := OpenDatabase(cfg)
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("db handle: %w", err)
	}

	applied, err := migrations.Up(ctx, sqlDB, cfg.Driver)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	slog.Info("database schema up to date", "driver", cfg.Driver, "applied", applied)

	return db, nil
}

// OpenDatabase opens the store without touching its schema.
func OpenDatabase(cfg DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case migrations.DriverSQLite:
		dialector = repository.SQLiteDialector(cfg.DSN)
	case migrations.DriverPostgres:
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:  gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("db open failed: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("db handle: %w", err)
	}
	maxOpen := cfg.MaxOpenConns
	if cfg.Driver == migrations.DriverSQLite {
		// SQLite serializes writers; a single connection also keeps
		// in-memory databases alive for the life of the pool.
		maxOpen = 1
	} else {
		sqlDB.SetConnMaxLifetime(5 * time.Minute)
	}
	sqlDB.SetMaxOpenConns(maxOpen)

	return db, nil
}
