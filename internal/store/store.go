// Package store is the relational data store for profiles, recipes,
// favorites, preferences, provider settings and meal plans. It is built on
// gorm and runs against Postgres in production and SQLite locally and in
// tests. Every read returns recipe domain types so callers never depend on
// the table models.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Config selects and tunes the database.
type Config struct {
	// Driver is "postgres" or "sqlite".
	Driver string
	// DSN is a Postgres URL/DSN or a SQLite file path.
	DSN string
	// MaxOpenConns caps the pool (Postgres only; SQLite uses one connection).
	MaxOpenConns int
	// SlowThreshold logs queries slower than this at warn level.
	SlowThreshold time.Duration
}

// ConfigFromEnv reads DATABASE_URL (default "eatwhat.db"), DATABASE_DRIVER
// (inferred from the URL scheme when unset) and DATABASE_MAX_OPEN_CONNS
// (default 25).
func ConfigFromEnv() *Config {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		dsn = "eatwhat.db"
	}
	driver := os.Getenv("DATABASE_DRIVER")
	if driver == "" {
		driver = "sqlite"
		if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
			driver = "postgres"
		}
	}
	maxOpen := 25
	if v, err := strconv.Atoi(os.Getenv("DATABASE_MAX_OPEN_CONNS")); err == nil && v > 0 {
		maxOpen = v
	}
	return &Config{Driver: driver, DSN: dsn, MaxOpenConns: maxOpen, SlowThreshold: 500 * time.Millisecond}
}

// Store is the gorm-backed data store. It is safe for concurrent use.
type Store struct {
	db  *gorm.DB
	log *slog.Logger
}

// Open connects to the database described by cfg and migrates the schema.
func Open(cfg *Config, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("store: unknown driver %q, valid values: postgres, sqlite", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.New(slogWriter{log}, logger.Config{
			SlowThreshold:             cfg.SlowThreshold,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", cfg.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("store: pool: %w", err)
	}
	if cfg.Driver == "sqlite" {
		sqlDB.SetMaxOpenConns(1)
	} else if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxOpenConns)
		sqlDB.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.AutoMigrate(models...); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	log.Debug("store: connected", slog.String("driver", cfg.Driver))
	return &Store{db: db, log: log}, nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// slogWriter routes gorm's logger output into slog.
type slogWriter struct{ log *slog.Logger }

func (w slogWriter) Printf(format string, args ...any) {
	w.log.Warn("store: " + strings.TrimSpace(fmt.Sprintf(format, args...)))
}
