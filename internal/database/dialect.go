package database

import (
	"fmt"
	"strings"
)

// Dialect controls the backend-specific pieces of generated SQL: placeholder
// style, identifier quoting, the auto-increment key type and a few syntax
// capabilities.
type Dialect int

const (
	// DialectPostgres uses $1, $2, … placeholders.
	DialectPostgres Dialect = iota

	// DialectMySQL uses ? placeholders and backtick quoting.
	DialectMySQL

	// DialectSQLite uses ? placeholders.
	DialectSQLite
)

func (d Dialect) String() string {
	switch d {
	case DialectMySQL:
		return "mysql"
	case DialectSQLite:
		return "sqlite"
	default:
		return "postgres"
	}
}

// Placeholder returns the positional parameter marker for the n-th (1-based)
// argument.
func (d Dialect) Placeholder(n int) string {
	if d == DialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// Quote wraps an identifier in the dialect's quote characters, doubling any
// embedded quote so reserved words and mixed-case names are safe.
func (d Dialect) Quote(name string) string {
	if d == DialectMySQL {
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Qualify renders table.column with both parts quoted.
func (d Dialect) Qualify(table, column string) string {
	return d.Quote(table) + "." + d.Quote(column)
}

// AutoIncrement is the storage type of an integer primary key the backend
// fills in on insert.
func (d Dialect) AutoIncrement() string {
	switch d {
	case DialectMySQL:
		return "INTEGER AUTO_INCREMENT"
	case DialectSQLite:
		// INTEGER PRIMARY KEY aliases the rowid.
		return "INTEGER"
	default:
		return "SERIAL"
	}
}

// UUIDType is the storage type used for UUID columns.
func (d Dialect) UUIDType() string {
	if d == DialectPostgres {
		return "UUID"
	}
	return "CHAR(36)"
}

// SupportsReturning reports whether INSERT … RETURNING is available. MySQL
// falls back to LastInsertId.
func (d Dialect) SupportsReturning() bool {
	return d != DialectMySQL
}

// SupportsILike reports whether ILIKE exists. Elsewhere LIKE is already
// case-insensitive for ASCII under the default collations.
func (d Dialect) SupportsILike() bool {
	return d == DialectPostgres
}

// DropCascade reports whether DROP TABLE accepts a trailing CASCADE.
func (d Dialect) DropCascade() bool {
	return d != DialectSQLite
}

// TableExistsQuery returns a statement taking the table name as its only
// argument and yielding a single boolean-ish column.
func (d Dialect) TableExistsQuery() string {
	switch d {
	case DialectMySQL:
		return `SELECT COUNT(*) > 0 FROM information_schema.tables
		WHERE table_schema = DATABASE() AND table_name = ?`
	case DialectSQLite:
		return `SELECT COUNT(*) > 0 FROM sqlite_master WHERE type = 'table' AND name = ?`
	default:
		return `SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = current_schema() AND table_name = $1
		)`
	}
}

// ListTablesQuery returns a statement without arguments yielding the name of
// every base table in the current schema, sorted.
func (d Dialect) ListTablesQuery() string {
	switch d {
	case DialectMySQL:
		return `SELECT table_name FROM information_schema.tables
		WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE'
		ORDER BY table_name`
	case DialectSQLite:
		return `SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name`
	default:
		return `SELECT table_name FROM information_schema.tables
		WHERE table_schema = current_schema() AND table_type = 'BASE TABLE'
		ORDER BY table_name`
	}
}
