// Package sqlite connects arcforge to SQLite.
//
// Build modes:
//   - Default: pure Go modernc.org/sqlite, driver name "sqlite"
//   - CGO (-tags cgo_sqlite, CGO_ENABLED=1): mattn/go-sqlite3, driver name "sqlite3"
//
// Foreign key enforcement is switched on for every connection so ON DELETE
// policies behave as declared.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/koustreak/arcforge/internal/database"
	"github.com/koustreak/arcforge/internal/errs"
)

// Backend is the SQLite backend for database.NewManager.
var Backend = database.Backend{
	Dialect:  database.DialectSQLite,
	Open:     Open,
	MapError: mapError,
}

// DriverName returns the database/sql driver name compiled in.
func DriverName() string {
	return driverName
}

// DriverType returns "purego" or "cgo".
func DriverType() string {
	return driverType
}

// Open returns a handle on the file named by cfg.Database, or on a private
// in-memory database when that is empty or ":memory:". An in-memory database
// lives as long as its single connection, which the Manager keeps open.
func Open(_ context.Context, cfg *database.Config) (*sql.DB, error) {
	db, err := sql.Open(driverName, buildDSN(cfg))
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "failed to open sqlite", err)
	}
	return db, nil
}

func buildDSN(cfg *database.Config) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}
	path := cfg.Database
	if path == "" {
		path = ":memory:"
	}
	return path + "?" + foreignKeysParam
}

// mapError converts a SQLite driver error into an *errs.Error.
func mapError(err error, msg string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return errs.Wrap(errs.ErrKindNotFound, "record not found", err)
	}

	text := err.Error()
	switch code := primaryCode(err); {
	case code == codeConstraint || strings.Contains(text, "constraint failed"):
		if strings.Contains(text, "NOT NULL") || strings.Contains(text, "CHECK") {
			return errs.Wrap(errs.ErrKindInvalidInput, fmt.Sprintf("constraint violation: %s", text), err)
		}
		if strings.Contains(text, "FOREIGN KEY") {
			return errs.Wrap(errs.ErrKindConflict, "foreign key violation", err)
		}
		return errs.Wrap(errs.ErrKindConflict, "duplicate value", err)
	case code == codeCantOpen || code == codeNotADB:
		return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
	case code == codePerm || code == codeReadOnly || code == codeAuth:
		return errs.Wrap(errs.ErrKindPermissionDenied, msg, err)
	case code == codeBusy || code == codeLocked:
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	return errs.Wrap(errs.ErrKindQueryFailed, msg, err)
}

// SQLite primary result codes. Extended codes carry the primary code in
// their low byte.
const (
	codePerm       = 3
	codeBusy       = 5
	codeLocked     = 6
	codeReadOnly   = 8
	codeCantOpen   = 14
	codeConstraint = 19
	codeAuth       = 23
	codeNotADB     = 26
)
