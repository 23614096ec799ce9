package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	gomysql "github.com/go-sql-driver/mysql"

	"github.com/koustreak/arcforge/internal/errs"
)

// MySQL error numbers
// Full list: https://dev.mysql.com/doc/mysql-errors/8.0/en/server-error-reference.html
const (
	errDuplicateEntry  = 1062
	errNoReferencedRow = 1452
	errRowIsReferenced = 1451
	errBadNull         = 1048
	errBadFieldError   = 1054
	errNoSuchTable     = 1146
	errAccessDenied    = 1045
	errTableAccess     = 1142
	errConnRefused     = 2003
	errUnknownDatabase = 1049
)

// mapError converts a MySQL driver error into an *errs.Error.
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

	var mysqlErr *gomysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case errDuplicateEntry:
			return errs.Wrap(errs.ErrKindConflict, fmt.Sprintf("duplicate value: %s", mysqlErr.Message), err)
		case errNoReferencedRow, errRowIsReferenced:
			return errs.Wrap(errs.ErrKindConflict, fmt.Sprintf("foreign key violation: %s", mysqlErr.Message), err)
		case errBadNull:
			return errs.Wrap(errs.ErrKindInvalidInput, fmt.Sprintf("constraint violation: %s", mysqlErr.Message), err)
		case errAccessDenied, errTableAccess:
			return errs.Wrap(errs.ErrKindPermissionDenied, fmt.Sprintf("access denied: %s", mysqlErr.Message), err)
		case errConnRefused, errUnknownDatabase:
			return errs.Wrap(errs.ErrKindConnectionFailed, fmt.Sprintf("connection error: %s", mysqlErr.Message), err)
		case errBadFieldError, errNoSuchTable:
			return errs.Wrap(errs.ErrKindQueryFailed, fmt.Sprintf("invalid query: %s", mysqlErr.Message), err)
		default:
			return errs.Wrap(errs.ErrKindQueryFailed, fmt.Sprintf("%s: %s", msg, mysqlErr.Message), err)
		}
	}

	if errors.Is(err, gomysql.ErrInvalidConn) {
		return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
	}

	return errs.Wrap(errs.ErrKindQueryFailed, msg, err)
}
