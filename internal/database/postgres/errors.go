package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/koustreak/arcforge/internal/errs"
)

// PostgreSQL SQLSTATE codes arcforge distinguishes.
// Full list: https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	pgErrForeignKeyViolation = "23503"
	pgErrUniqueViolation     = "23505"
	pgErrNotNullViolation    = "23502"
	pgErrCheckViolation      = "23514"
	pgErrInsufficientPriv    = "42501"
	pgErrInvalidPassword     = "28P01"
	pgErrInvalidAuthSpec     = "28000"
)

// mapError converts a pgx error into an *errs.Error.
func mapError(err error, msg string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return errs.Wrap(errs.ErrKindNotFound, "record not found", err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgErrForeignKeyViolation:
			return errs.Wrap(errs.ErrKindConflict, fmt.Sprintf("foreign key violation: %s", pgErr.Message), err)
		case pgErr.Code == pgErrUniqueViolation:
			return errs.Wrap(errs.ErrKindConflict, fmt.Sprintf("duplicate value: %s", pgErr.Message), err)
		case pgErr.Code == pgErrNotNullViolation, pgErr.Code == pgErrCheckViolation:
			return errs.Wrap(errs.ErrKindInvalidInput, fmt.Sprintf("constraint violation: %s", pgErr.Message), err)
		case pgErr.Code == pgErrInsufficientPriv,
			pgErr.Code == pgErrInvalidPassword,
			pgErr.Code == pgErrInvalidAuthSpec:
			return errs.Wrap(errs.ErrKindPermissionDenied, fmt.Sprintf("%s: %s", msg, pgErr.Message), err)
		case strings.HasPrefix(pgErr.Code, "08"):
			return errs.Wrap(errs.ErrKindConnectionFailed, fmt.Sprintf("%s: %s", msg, pgErr.Message), err)
		default:
			return errs.Wrap(errs.ErrKindQueryFailed, fmt.Sprintf("%s: %s", msg, pgErr.Message), err)
		}
	}

	// Anything that never reached the server: TLS, network, DNS.
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
	}

	return errs.Wrap(errs.ErrKindQueryFailed, msg, err)
}
