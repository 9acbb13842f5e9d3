package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/nikhil/doussel/internal/config"
	"github.com/nikhil/doussel/internal/logger"
)

// Open connects to the configured database and verifies the connection.
func Open(ctx context.Context, cfg *config.Config, log *logger.Logger) (*sqlx.DB, error) {
	dsn := cfg.DBDSN
	if cfg.DBDriver == "mysql" {
		dsn = mysqlDSN(dsn)
	}

	db, err := sqlx.Open(cfg.DBDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.DBDriver, err)
	}
	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database connection is not active: %w", err)
	}

	log.Info("Database connected successfully", "driver", cfg.DBDriver)
	return db, nil
}

// mysqlDSN makes sure time columns scan into time.Time and migration files
// with several statements are accepted.
func mysqlDSN(dsn string) string {
	for _, opt := range []string{"parseTime=true", "multiStatements=true"} {
		if strings.Contains(dsn, strings.Split(opt, "=")[0]+"=") {
			continue
		}
		if strings.Contains(dsn, "?") {
			dsn += "&" + opt
		} else {
			dsn += "?" + opt
		}
	}
	return dsn
}

// WithTx runs fn inside a transaction. The transaction is committed when fn
// returns nil and rolled back otherwise.
func WithTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() // ignored once committed

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// QueryMaps runs a query and returns every row as a column → value map.
// Byte slices are converted to strings.
func QueryMaps(ctx context.Context, db *sqlx.DB, query string, args ...interface{}) ([]map[string]interface{}, error) {
	rows, err := db.QueryxContext(ctx, db.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []map[string]interface{}
	for rows.Next() {
		row := make(map[string]interface{})
		if err := rows.MapScan(row); err != nil {
			return nil, err
		}
		for col, v := range row {
			if b, ok := v.([]byte); ok {
				row[col] = string(b)
			}
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// QueryMap is QueryMaps for a single row; sql.ErrNoRows when nothing matched.
func QueryMap(ctx context.Context, db *sqlx.DB, query string, args ...interface{}) (map[string]interface{}, error) {
	rows, err := QueryMaps(ctx, db, query, args...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, sql.ErrNoRows
	}
	return rows[0], nil
}

// Get runs a rebound single-row query against a DB or Tx.
func Get(ctx context.Context, q sqlx.ExtContext, dest interface{}, query string, args ...interface{}) error {
	return sqlx.GetContext(ctx, q, dest, q.Rebind(query), args...)
}

// Select runs a rebound multi-row query against a DB or Tx.
func Select(ctx context.Context, q sqlx.ExtContext, dest interface{}, query string, args ...interface{}) error {
	return sqlx.SelectContext(ctx, q, dest, q.Rebind(query), args...)
}

// Exec runs a rebound statement against a DB or Tx.
func Exec(ctx context.Context, q sqlx.ExtContext, query string, args ...interface{}) (sql.Result, error) {
	return q.ExecContext(ctx, q.Rebind(query), args...)
}

// In expands IN (?) clauses; the result still uses ? and goes through
// Get/Select/Exec like any other query.
func In(query string, args ...interface{}) (string, []interface{}, error) {
	return sqlx.In(query, args...)
}
