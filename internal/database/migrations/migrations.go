// Package migrations applies the embedded SQL schema with golang-migrate.
package migrations

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"

	"github.com/nikhil/doussel/internal/logger"
)

//go:embed postgres/*.sql mysql/*.sql
var files embed.FS

// Runner wraps a migrate instance bound to one database.
type Runner struct {
	m   *migrate.Migrate
	Log *logger.Logger
}

// NewRunner builds a Runner for db using the SQL tree matching its driver.
func NewRunner(db *sqlx.DB, log *logger.Logger) (*Runner, error) {
	driver := db.DriverName()
	dir, err := sourceDir(driver)
	if err != nil {
		return nil, err
	}

	src, err := iofs.New(files, dir)
	if err != nil {
		return nil, fmt.Errorf("load %s migrations: %w", driver, err)
	}

	var m *migrate.Migrate
	switch driver {
	case "postgres":
		target, err := migratepg.WithInstance(db.DB, &migratepg.Config{})
		if err != nil {
			return nil, fmt.Errorf("postgres migration driver: %w", err)
		}
		m, err = migrate.NewWithInstance("iofs", src, "postgres", target)
		if err != nil {
			return nil, err
		}
	case "mysql":
		target, err := migratemysql.WithInstance(db.DB, &migratemysql.Config{})
		if err != nil {
			return nil, fmt.Errorf("mysql migration driver: %w", err)
		}
		m, err = migrate.NewWithInstance("iofs", src, "mysql", target)
		if err != nil {
			return nil, err
		}
	}
	return &Runner{m: m, Log: log}, nil
}

func sourceDir(driver string) (string, error) {
	switch driver {
	case "postgres", "mysql":
		return driver, nil
	default:
		return "", fmt.Errorf("no migrations for driver %q", driver)
	}
}

// Up applies every pending migration.
func (r *Runner) Up() error {
	if err := r.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	r.logVersion("Migrations applied")
	return nil
}

// Down rolls back the given number of migrations.
func (r *Runner) Down(steps int) error {
	if steps <= 0 {
		steps = 1
	}
	if err := r.m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate down: %w", err)
	}
	r.logVersion("Migrations rolled back")
	return nil
}

// Version reports the current schema version.
func (r *Runner) Version() (uint, bool, error) {
	v, dirty, err := r.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

func (r *Runner) logVersion(msg string) {
	v, dirty, err := r.Version()
	if err != nil {
		r.Log.Warn("Could not read schema version", "error", err)
		return
	}
	r.Log.Info(msg, "version", v, "dirty", dirty)
}
