// Package migrator applies the embedded schema migrations at start-up.
package migrator

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/diegod088/bot-bens11-sub000/internal/logger"
)

// ErrDirty means an earlier migration failed half way. It needs a manual
// fix and `migrate force` before the bot can start.
var ErrDirty = errors.New("database schema is dirty")

var errEmptyURL = errors.New("database URL is empty")

// Migrator runs the .sql files of one filesystem against postgres.
type Migrator struct {
	source fs.FS
	log    *logger.Logger
}

// NewWithFS creates a Migrator over source.
func NewWithFS(source fs.FS) (*Migrator, error) {
	if source == nil {
		return nil, errors.New("migrations filesystem is nil")
	}
	return &Migrator{source: source, log: logger.Component("migrator")}, nil
}

// Up applies pending migrations. Cancelling ctx stops after the migration
// in progress.
func (m *Migrator) Up(ctx context.Context, databaseURL string) error {
	mg, err := m.open(databaseURL)
	if err != nil {
		return err
	}
	defer m.close(mg)

	if v, dirty, err := mg.Version(); err == nil && dirty {
		return fmt.Errorf("%w at version %d", ErrDirty, v)
	}

	stop := context.AfterFunc(ctx, func() { mg.GracefulStop <- true })
	defer stop()

	switch err := mg.Up(); {
	case err == nil, errors.Is(err, migrate.ErrNoChange):
		return ctx.Err()
	default:
		return fmt.Errorf("apply migrations: %w", err)
	}
}

// Version reports the applied version; zero before the first migration.
func (m *Migrator) Version(ctx context.Context, databaseURL string) (uint, bool, error) {
	mg, err := m.open(databaseURL)
	if err != nil {
		return 0, false, err
	}
	defer m.close(mg)

	v, dirty, err := mg.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read schema version: %w", err)
	}
	return v, dirty, nil
}

func (m *Migrator) open(databaseURL string) (*migrate.Migrate, error) {
	if databaseURL == "" {
		return nil, errEmptyURL
	}
	src, err := iofs.New(m.source, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	mg, err := migrate.NewWithSourceInstance("iofs", src, pgx5URL(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("open migrations: %w", err)
	}
	mg.Log = migrateLog{m.log}
	return mg, nil
}

func (m *Migrator) close(mg *migrate.Migrate) {
	srcErr, dbErr := mg.Close()
	if err := errors.Join(srcErr, dbErr); err != nil {
		m.log.Warn().Err(err).Msg("migrator: close")
	}
}

// pgx5URL points postgres URLs at the driver registered by the pgx/v5
// import above.
func pgx5URL(databaseURL string) string {
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if rest, ok := strings.CutPrefix(databaseURL, scheme); ok {
			return "pgx5://" + rest
		}
	}
	return databaseURL
}

// migrateLog sends golang-migrate progress lines to the component logger.
type migrateLog struct {
	l *logger.Logger
}

func (g migrateLog) Printf(format string, v ...any) {
	g.l.Info().Msg(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (g migrateLog) Verbose() bool { return false }
