package config

import (
	"context"
	"fmt"
	"time"

	"supportbot/backend/pkg/logger"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Supported DB_DRIVER values
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const (
	connectAttempts = 5
	connectBackoff  = 2 * time.Second
)

// PostgresDSN renders the keyword/value connection string for the database section
func PostgresDSN(cfg *Config) string {
	d := cfg.Database
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s connect_timeout=%d",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode, int(d.Timeout.Seconds()),
	)
}

func dialector(cfg *Config) (gorm.Dialector, error) {
	switch cfg.Database.Driver {
	case "", DriverPostgres:
		return postgres.Open(PostgresDSN(cfg)), nil
	case DriverSQLite:
		return sqlite.Open(cfg.Database.SQLitePath), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

// NewDB opens the relational store and sizes its pool. Failed connection
// attempts back off linearly until ctx is done or the attempts run out.
func NewDB(ctx context.Context, cfg *Config, log *logger.Logger) (*gorm.DB, error) {
	level := gormlogger.Error
	if cfg.Server.Env == "development" {
		level = gormlogger.Warn
	}
	gormCfg := &gorm.Config{Logger: gormlogger.Default.LogMode(level)}

	var db *gorm.DB
	for attempt := 1; ; attempt++ {
		dial, err := dialector(cfg)
		if err != nil {
			return nil, err
		}
		db, err = gorm.Open(dial, gormCfg)
		if err == nil {
			break
		}
		if attempt == connectAttempts {
			return nil, fmt.Errorf("connect to %s after %d attempts: %w", dial.Name(), attempt, err)
		}

		wait := time.Duration(attempt) * connectBackoff
		log.Warn("Database not reachable, retrying",
			"driver", dial.Name(),
			"attempt", attempt,
			"retry_in", wait.String(),
			"error", err.Error(),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}

	if err := configurePool(db, cfg); err != nil {
		return nil, err
	}
	return db, nil
}

func configurePool(db *gorm.DB, cfg *Config) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get database handle: %w", err)
	}

	// sqlite serializes writers; in-memory databases exist per connection
	if cfg.Database.Driver == DriverSQLite {
		sqlDB.SetMaxOpenConns(1)
		return nil
	}

	maxConns := cfg.Database.MaxConns
	if maxConns <= 0 {
		maxConns = 10
	}
	sqlDB.SetMaxOpenConns(maxConns)
	sqlDB.SetMaxIdleConns(min(maxConns, 10))
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)
	return nil
}

// PingDB checks that the pool can reach the database
func PingDB(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get database handle: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}
