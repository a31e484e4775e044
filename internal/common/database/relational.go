package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"nlquery-agent/internal/common/config"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect captures the per-driver differences the pipeline cares about.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// SupportsReadOnlyTx reports whether BEGIN READ ONLY is honoured by the driver.
func (d Dialect) SupportsReadOnlyTx() bool {
	return d == DialectPostgres
}

// Name is used in prompts to tell the model which SQL flavour to write.
func (d Dialect) Name() string {
	if d == DialectSQLite {
		return "SQLite"
	}
	return "PostgreSQL"
}

// Placeholder returns the bind marker for the n-th argument, starting at 1.
func (d Dialect) Placeholder(n int) string {
	if d == DialectSQLite {
		return "?"
	}
	return fmt.Sprintf("$%d", n)
}

// DialectForDriver maps a database/sql driver name onto its dialect.
func DialectForDriver(driver string) Dialect {
	if driver == "sqlite" {
		return DialectSQLite
	}
	return DialectPostgres
}

// RelationalClient wraps a pooled *sql.DB for one of the supported drivers.
type RelationalClient struct {
	DB      *sql.DB
	Dialect Dialect
	Schema  string
}

func NewRelational(cfg config.RelationalConfig) (*RelationalClient, error) {
	db, err := sql.Open(cfg.Driver, cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", cfg.Driver, err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &RelationalClient{
		DB:      db,
		Dialect: DialectForDriver(cfg.Driver),
		Schema:  cfg.Schema,
	}, nil
}

// NewRelationalFromDB wraps an existing handle, mostly for tests.
func NewRelationalFromDB(db *sql.DB, dialect Dialect, schema string) *RelationalClient {
	return &RelationalClient{DB: db, Dialect: dialect, Schema: schema}
}

func (c *RelationalClient) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

func (c *RelationalClient) Close() error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}
