package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/koustreak/arcforge/internal/database"
	"github.com/koustreak/arcforge/internal/errs"
)

// Kind is the storage type of a Field.
type Kind int

const (
	KindChar Kind = iota
	KindText
	KindInteger
	KindReal
	KindBoolean
	KindDate
	KindDateTime
	KindUUID
)

// Layouts accepted for date and datetime values.
const (
	DateLayout     = "2006-01-02"
	DateTimeLayout = "2006-01-02 15:04:05"
)

// Field describes one scalar column. Fields are built once when an entity is
// defined and never change afterwards.
type Field struct {
	name       string
	kind       Kind
	maxLength  int
	primaryKey bool
	unique     bool
	notNull    bool
	def        any
	rawDefault string
	refTable   string
	refColumn  string
}

// FieldOption configures a Field at construction.
type FieldOption func(*Field)

// PrimaryKey marks the field as the entity's identity. A primary key is
// always unique and never null.
func PrimaryKey() FieldOption { return func(f *Field) { f.primaryKey = true } }

// Unique adds a UNIQUE constraint.
func Unique() FieldOption { return func(f *Field) { f.unique = true } }

// NotNull forbids null values. Fields are nullable by default.
func NotNull() FieldOption { return func(f *Field) { f.notNull = true } }

// Default sets a literal default value, rendered as a SQL literal.
func Default(v any) FieldOption { return func(f *Field) { f.def = v } }

// RawDefault sets a default SQL expression emitted verbatim, e.g.
// "CURRENT_TIMESTAMP".
func RawDefault(expr string) FieldOption { return func(f *Field) { f.rawDefault = expr } }

// References adds a plain foreign key to table(column) without declaring a
// Relationship. The column is still recorded for join inference.
func References(table, column string) FieldOption {
	return func(f *Field) {
		f.refTable = table
		f.refColumn = column
	}
}

func newField(name string, kind Kind, opts []FieldOption) *Field {
	f := &Field{name: name, kind: kind}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Char is a VARCHAR(maxLength) column.
func Char(name string, maxLength int, opts ...FieldOption) *Field {
	f := newField(name, KindChar, opts)
	f.maxLength = maxLength
	return f
}

// Text is an unbounded text column.
func Text(name string, opts ...FieldOption) *Field { return newField(name, KindText, opts) }

// Integer is an INTEGER column. As a primary key it is filled in by the backend.
func Integer(name string, opts ...FieldOption) *Field { return newField(name, KindInteger, opts) }

// Real is a floating point column.
func Real(name string, opts ...FieldOption) *Field { return newField(name, KindReal, opts) }

// Boolean is a BOOLEAN column.
func Boolean(name string, opts ...FieldOption) *Field { return newField(name, KindBoolean, opts) }

// Date holds a calendar date written as YYYY-MM-DD.
func Date(name string, opts ...FieldOption) *Field { return newField(name, KindDate, opts) }

// DateTime holds a timestamp written as YYYY-MM-DD HH:MM:SS.
func DateTime(name string, opts ...FieldOption) *Field { return newField(name, KindDateTime, opts) }

// UUID holds a UUID in its canonical text form.
func UUID(name string, opts ...FieldOption) *Field { return newField(name, KindUUID, opts) }

func (f *Field) Name() string { return f.name }

func (f *Field) Kind() Kind { return f.kind }

func (f *Field) MaxLength() int { return f.maxLength }

func (f *Field) IsPrimaryKey() bool { return f.primaryKey }

// IsUnique reports whether the column is unique, which every primary key is.
func (f *Field) IsUnique() bool { return f.unique || f.primaryKey }

// IsNullable reports whether null is accepted, which no primary key allows.
func (f *Field) IsNullable() bool { return !f.notNull && !f.primaryKey }

// ForeignKey returns the referenced table and column, if any.
func (f *Field) ForeignKey() (table, column string, ok bool) {
	if f.refTable == "" {
		return "", "", false
	}
	col := f.refColumn
	if col == "" {
		col = "id"
	}
	return f.refTable, col, true
}

// autoIncrement reports whether the backend assigns this column's value.
func (f *Field) autoIncrement() bool {
	return f.primaryKey && f.kind == KindInteger
}

// TypeName is the portable name of the storage type, as reported in
// validation errors.
func (f *Field) TypeName() string {
	switch f.kind {
	case KindChar:
		return fmt.Sprintf("VARCHAR(%d)", f.maxLength)
	case KindText:
		return "TEXT"
	case KindInteger:
		return "INTEGER"
	case KindReal:
		return "REAL"
	case KindBoolean:
		return "BOOLEAN"
	case KindDate:
		return "DATE"
	case KindDateTime:
		return "TIMESTAMP"
	case KindUUID:
		return "UUID"
	default:
		return "UNKNOWN"
	}
}

// storageType is TypeName adjusted for the dialect.
func (f *Field) storageType(d database.Dialect) string {
	switch {
	case f.autoIncrement():
		return d.AutoIncrement()
	case f.kind == KindUUID:
		return d.UUIDType()
	case f.kind == KindReal && d == database.DialectPostgres:
		return "DOUBLE PRECISION"
	case f.kind == KindDateTime && d == database.DialectMySQL:
		return "DATETIME"
	}
	return f.TypeName()
}

// Definition renders the column definition without the column name:
// <type> [PRIMARY KEY] [UNIQUE] [NOT NULL] [DEFAULT v] [REFERENCES t(c)].
func (f *Field) Definition(d database.Dialect) string {
	return f.definition(d, true)
}

func (f *Field) definition(d database.Dialect, inlineRef bool) string {
	var b strings.Builder
	b.WriteString(f.storageType(d))
	if f.primaryKey {
		b.WriteString(" PRIMARY KEY")
	}
	if f.unique && !f.primaryKey {
		b.WriteString(" UNIQUE")
	}
	if f.notNull && !f.primaryKey {
		b.WriteString(" NOT NULL")
	}
	if f.rawDefault != "" {
		b.WriteString(" DEFAULT " + f.rawDefault)
	} else if f.def != nil {
		b.WriteString(" DEFAULT " + literal(f.def))
	}
	if table, col, ok := f.ForeignKey(); ok && inlineRef {
		fmt.Fprintf(&b, " REFERENCES %s(%s)", d.Quote(table), d.Quote(col))
	}
	return b.String()
}

func literal(v any) string {
	switch x := v.(type) {
	case string:
		return "'" + strings.ReplaceAll(x, "'", "''") + "'"
	case bool:
		if x {
			return "TRUE"
		}
		return "FALSE"
	case time.Time:
		return "'" + x.Format(DateTimeLayout) + "'"
	default:
		return fmt.Sprint(x)
	}
}

// Validate checks v against the field's contract.
func (f *Field) Validate(v any) error {
	_, err := f.Value(v)
	return err
}

// Value validates v and returns it in the form bound as a statement argument:
// integers widen to int64, floats to float64, dates and timestamps become
// their text layout, UUIDs their canonical string.
func (f *Field) Value(v any) (any, error) {
	if v == nil {
		if f.IsNullable() {
			return nil, nil
		}
		return nil, f.invalid("field cannot be null", v)
	}

	switch f.kind {
	case KindChar, KindText:
		s, ok := v.(string)
		if !ok {
			return nil, f.invalid("expected a string", v)
		}
		if f.kind == KindChar && f.maxLength > 0 && utf8.RuneCountInString(s) > f.maxLength {
			return nil, f.invalid(fmt.Sprintf("value exceeds max length %d", f.maxLength), v)
		}
		return s, nil

	case KindInteger:
		if n, ok := toInt64(v); ok {
			return n, nil
		}
		return nil, f.invalid("expected an integer", v)

	case KindReal:
		if x, ok := toFloat64(v); ok {
			return x, nil
		}
		return nil, f.invalid("expected a number", v)

	case KindBoolean:
		b, ok := v.(bool)
		if !ok {
			return nil, f.invalid("expected a boolean", v)
		}
		return b, nil

	case KindDate:
		return f.timeValue(v, DateLayout, "invalid date format, expected YYYY-MM-DD")

	case KindDateTime:
		return f.timeValue(v, DateTimeLayout, "invalid datetime format, expected YYYY-MM-DD HH:MM:SS")

	case KindUUID:
		switch x := v.(type) {
		case uuid.UUID:
			return x.String(), nil
		case string:
			id, err := uuid.Parse(x)
			if err != nil {
				return nil, f.invalid("invalid uuid", v)
			}
			return id.String(), nil
		}
		return nil, f.invalid("expected a uuid", v)
	}
	return nil, f.invalid("unsupported field type", v)
}

func (f *Field) timeValue(v any, layout, msg string) (any, error) {
	switch x := v.(type) {
	case time.Time:
		return x.Format(layout), nil
	case string:
		if _, err := time.Parse(layout, x); err != nil {
			return nil, f.invalid(msg, v)
		}
		return x, nil
	}
	return nil, f.invalid(msg, v)
}

func (f *Field) invalid(msg string, v any) error {
	return errs.Validation(fmt.Sprintf("%s: %s", f.name, msg), f.TypeName(), v)
}

// FromDB converts a value scanned from any backend into the same shape Value
// produces, so a saved entity reads back equal.
func (f *Field) FromDB(v any) any {
	if v == nil {
		return nil
	}
	if b, ok := v.([]byte); ok {
		v = string(b)
	}

	switch f.kind {
	case KindInteger:
		if n, ok := toInt64(v); ok {
			return n
		}
		if s, ok := v.(string); ok {
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				return n
			}
		}
	case KindReal:
		if x, ok := toFloat64(v); ok {
			return x
		}
		if n, ok := toInt64(v); ok {
			return float64(n)
		}
		if s, ok := v.(string); ok {
			if x, err := strconv.ParseFloat(s, 64); err == nil {
				return x
			}
		}
	case KindBoolean:
		switch x := v.(type) {
		case bool:
			return x
		case string:
			return x == "1" || strings.EqualFold(x, "true") || x == "t"
		}
		if n, ok := toInt64(v); ok {
			return n != 0
		}
	case KindDate:
		if t, ok := v.(time.Time); ok {
			return t.Format(DateLayout)
		}
	case KindDateTime:
		if t, ok := v.(time.Time); ok {
			return t.Format(DateTimeLayout)
		}
		if s, ok := v.(string); ok && len(s) > len(DateTimeLayout) {
			// Drivers returning RFC 3339 text.
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				return t.Format(DateTimeLayout)
			}
		}
	case KindUUID:
		if b, ok := v.([16]byte); ok {
			return uuid.UUID(b).String()
		}
	}
	return v
}

func toInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint64:
		if x > math.MaxInt64 {
			return 0, false
		}
		return int64(x), true
	case uint:
		if uint64(x) > math.MaxInt64 {
			return 0, false
		}
		return int64(x), true
	case json.Number:
		n, err := x.Int64()
		return n, err == nil
	}
	return 0, false
}

func toFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	}
	return 0, false
}
