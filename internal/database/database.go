// package database provides postgresql connection management.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/diegod088/bot-bens11-sub000/internal/logger"
	"github.com/diegod088/bot-bens11-sub000/internal/retry"
)

// connectPolicy spaces start-up connection attempts while postgres boots.
var connectPolicy = retry.Policy{
	MaxAttempts: 5,
	BaseDelay:   time.Second,
	MaxDelay:    8 * time.Second,
	Multiplier:  2,
}

// DB wraps a postgresql connection pool and the GORM handle used for
// secondary session storage.
type DB struct {
	Pool *pgxpool.Pool
	GORM *gorm.DB
}

// New connects the pool and opens session storage. sessionDB, when set,
// keeps the secondary session in a standalone sqlite file instead of the
// main database.
func New(ctx context.Context, databaseURL, sessionDB string) (*DB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	log := logger.Component("database")
	err = retry.Do(ctx, connectPolicy, retry.AlwaysRetry, pool.Ping,
		retry.WithNotify(func(attempt int, err error, wait time.Duration) {
			log.Warn().Err(err).Int("attempt", attempt).Dur("wait", wait).Msg("database not ready, retrying")
		}),
	)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	gormDB, err := OpenSessionStore(databaseURL, sessionDB)
	if err != nil {
		pool.Close()
		return nil, err
	}

	return &DB{
		Pool: pool,
		GORM: gormDB,
	}, nil
}

// SessionDialector picks the GORM dialector for session storage.
func SessionDialector(databaseURL, sessionDB string) gorm.Dialector {
	if sessionDB != "" {
		return sqlite.Open(sessionDB)
	}
	return postgres.Open(databaseURL)
}

// OpenSessionStore opens the GORM handle gotgproto persists sessions through.
func OpenSessionStore(databaseURL, sessionDB string) (*gorm.DB, error) {
	gormDB, err := gorm.Open(SessionDialector(databaseURL, sessionDB), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	return gormDB, nil
}

// Close closes the pool and the session store.
func (db *DB) Close() {
	db.Pool.Close()
	if db.GORM != nil {
		if sqlDB, err := db.GORM.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}

// Ping checks if the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}
