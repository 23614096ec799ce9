// Package postgres connects arcforge to PostgreSQL through pgx's
// database/sql adapter.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/koustreak/arcforge/internal/database"
	"github.com/koustreak/arcforge/internal/errs"
)

const defaultPort = 5432

// Backend is the PostgreSQL backend for database.NewManager.
var Backend = database.Backend{
	Dialect:  database.DialectPostgres,
	Open:     Open,
	MapError: mapError,
}

// Open parses the connection settings and returns a handle backed by pgx.
// The handle is not pinged here; the Manager does that.
func Open(_ context.Context, cfg *database.Config) (*sql.DB, error) {
	connCfg, err := pgx.ParseConfig(buildDSN(cfg))
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "invalid postgres config", err)
	}
	if cfg.ConnectTimeout > 0 {
		connCfg.ConnectTimeout = cfg.ConnectTimeout
	}
	return stdlib.OpenDB(*connCfg), nil
}

// buildDSN returns cfg.DSN when set, otherwise a keyword/value string built
// from the discrete fields.
func buildDSN(cfg *database.Config) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	port := cfg.Port
	if port == 0 {
		port = defaultPort
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, port, cfg.User, cfg.Password, cfg.Database, sslMode,
	)
}
