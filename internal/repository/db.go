package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/joseph-ayodele/invoice-extractor/internal/common"
)

// Dialect selects the placeholder style and engine for a DB handle.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

type Config struct {
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// DB is a database handle plus the dialect needed to rebind queries.
type DB struct {
	*sql.DB
	Dialect Dialect
	pool    *pgxpool.Pool // nil for sqlite
}

// OpenPostgres creates a pgx pool and wraps it as database/sql.
func OpenPostgres(ctx context.Context, cfg Config, logger *slog.Logger) (*DB, error) {
	logger.Info("connecting to database")
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		logger.Error("failed to parse database config", "error", err)
		return nil, err
	}

	pc.MaxConns = cfg.MaxConns
	pc.MinConns = cfg.MinConns
	pc.MaxConnLifetime = cfg.MaxConnLifetime
	pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	pc.ConnConfig.RuntimeParams["application_name"] = "invoice-extractor"
	if cfg.StatementTimeout > 0 {
		pc.ConnConfig.RuntimeParams["statement_timeout"] = cfg.StatementTimeout.String()
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return nil, err
	}

	logger.Info("successfully connected to database")
	return &DB{DB: stdlib.OpenDBFromPool(pool), Dialect: DialectPostgres, pool: pool}, nil
}

// OpenSQLite opens a local SQLite database. Used for single-user local mode
// and for store tests; the store SQL is identical on both engines.
func OpenSQLite(dsn string, logger *slog.Logger) (*DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		logger.Error("failed to open sqlite database", "error", err)
		return nil, err
	}
	// in-memory databases exist per connection; a single connection keeps
	// the schema visible everywhere
	db.SetMaxOpenConns(1)
	return &DB{DB: db, Dialect: DialectSQLite}, nil
}

// OpenFromConfig picks the engine from config (SQLite when a local path is
// set, Postgres otherwise) and applies the schema.
func OpenFromConfig(ctx context.Context, cfg common.DatabaseConfig, logger *slog.Logger) (*DB, error) {
	var (
		db  *DB
		err error
	)
	if cfg.SQLitePath != "" {
		db, err = OpenSQLite(cfg.SQLitePath, logger)
	} else {
		db, err = OpenPostgres(ctx, Config{
			DSN:              cfg.DSN,
			MaxConns:         cfg.MaxConns,
			MinConns:         cfg.MinConns,
			MaxConnLifetime:  cfg.MaxConnLifetime,
			MaxConnIdleTime:  cfg.MaxConnIdleTime,
			DialTimeout:      cfg.DialTimeout,
			StatementTimeout: cfg.StatementTimeout,
		}, logger)
	}
	if err != nil {
		return nil, err
	}
	if err := Migrate(ctx, db); err != nil {
		db.Close(logger)
		return nil, err
	}
	return db, nil
}

// Close closes the database connections gracefully.
func (d *DB) Close(logger *slog.Logger) {
	logger.Info("closing database connections")
	if err := d.DB.Close(); err != nil {
		logger.Error("failed to close database", "error", err)
	}
	if d.pool != nil {
		d.pool.Close()
	}
	logger.Info("database connections closed")
}

// HealthCheck pings the database to catch DSN issues early.
func (d *DB) HealthCheck(ctx context.Context, timeout time.Duration, logger *slog.Logger) error {
	logger.Debug("pinging database")
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := d.PingContext(ctx); err != nil {
		return err
	}
	logger.Debug("database ping successful")
	return nil
}

// rebind rewrites ?-placeholders to the engine's style. Queries in this
// package are written with ? and rebound for Postgres.
func (d *DB) rebind(query string) string {
	if d.Dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
