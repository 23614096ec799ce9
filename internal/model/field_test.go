package model

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/arcforge/internal/database"
	"github.com/koustreak/arcforge/internal/errs"
)

func TestField_Definition(t *testing.T) {
	tests := []struct {
		name    string
		field   *Field
		dialect database.Dialect
		want    string
	}{
		{"serial key", Integer("id", PrimaryKey()), database.DialectPostgres, "SERIAL PRIMARY KEY"},
		{"sqlite key", Integer("id", PrimaryKey()), database.DialectSQLite, "INTEGER PRIMARY KEY"},
		{"mysql key", Integer("id", PrimaryKey()), database.DialectMySQL, "INTEGER AUTO_INCREMENT PRIMARY KEY"},
		{"char not null", Char("nome", 100, NotNull()), database.DialectPostgres, "VARCHAR(100) NOT NULL"},
		{"fixed order", Char("email", 50, NotNull(), Unique(), Default("x'y")), database.DialectPostgres,
			"VARCHAR(50) UNIQUE NOT NULL DEFAULT 'x''y'"},
		{"bool default", Boolean("ativo", Default(true)), database.DialectSQLite, "BOOLEAN DEFAULT TRUE"},
		{"raw default", DateTime("criado", RawDefault("CURRENT_TIMESTAMP")), database.DialectPostgres,
			"TIMESTAMP DEFAULT CURRENT_TIMESTAMP"},
		{"references", Integer("dono", References("usuario", "")), database.DialectPostgres,
			`INTEGER REFERENCES "usuario"("id")`},
		{"uuid mysql", UUID("ref"), database.DialectMySQL, "CHAR(36)"},
		{"real postgres", Real("preco"), database.DialectPostgres, "DOUBLE PRECISION"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.field.Definition(tt.dialect))
		})
	}
}

func TestField_PrimaryKeyInvariant(t *testing.T) {
	f := Integer("id", PrimaryKey())
	assert.True(t, f.IsUnique())
	assert.False(t, f.IsNullable())

	g := Integer("qtd")
	assert.False(t, g.IsUnique())
	assert.True(t, g.IsNullable())
}

func TestField_ValidateCharTooLong(t *testing.T) {
	err := Char("nome", 5).Validate("toolong")
	require.Error(t, err)

	var v *errs.ValidationError
	require.True(t, errors.As(err, &v))
	assert.Equal(t, "VARCHAR(5)", v.FieldType)
	assert.Equal(t, "toolong", v.Value)

	assert.NoError(t, Char("nome", 5).Validate("ação!"), "length counts characters, not bytes")
}

func TestField_Validate(t *testing.T) {
	tests := []struct {
		name  string
		field *Field
		value any
		ok    bool
	}{
		{"nullable nil", Char("c", 5), nil, true},
		{"not null nil", Char("c", 5, NotNull()), nil, false},
		{"primary key nil", Integer("id", PrimaryKey()), nil, false},
		{"char int", Char("c", 5), 3, false},
		{"text", Text("t"), "long text", true},
		{"integer", Integer("i"), int32(3), true},
		{"integer json number", Integer("i"), json.Number("7"), true},
		{"integer from float", Integer("i"), 3.5, false},
		{"integer from bool", Integer("i"), true, false},
		{"real", Real("r"), 1.5, true},
		{"real from int", Real("r"), 2, false},
		{"boolean", Boolean("b"), false, true},
		{"boolean string", Boolean("b"), "true", false},
		{"date", Date("d"), "2024-02-29", true},
		{"date bad format", Date("d"), "29/02/2024", false},
		{"date time value", Date("d"), time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), true},
		{"datetime", DateTime("dt"), "2024-01-02 10:11:12", true},
		{"datetime date only", DateTime("dt"), "2024-01-02", false},
		{"uuid", UUID("u"), uuid.NewString(), true},
		{"uuid bad", UUID("u"), "not-a-uuid", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.field.Validate(tt.value)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.True(t, errs.IsValidation(err), "got %v", err)
			}
		})
	}
}

func TestField_DateFormatMessage(t *testing.T) {
	err := Date("nascimento").Validate("02-01-2024")
	var v *errs.ValidationError
	require.True(t, errors.As(err, &v))
	assert.Contains(t, v.Message, "YYYY-MM-DD")
	assert.Equal(t, "DATE", v.FieldType)
}

func TestField_ValueNormalizes(t *testing.T) {
	v, err := Integer("i").Value(int16(4))
	require.NoError(t, err)
	assert.Equal(t, int64(4), v)

	v, err = Real("r").Value(float32(0.5))
	require.NoError(t, err)
	assert.Equal(t, float64(0.5), v)

	v, err = Date("d").Value(time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01", v)
}

func TestField_FromDB(t *testing.T) {
	assert.Equal(t, int64(5), Integer("i").FromDB([]byte("5")))
	assert.Equal(t, int64(5), Integer("i").FromDB(int32(5)))
	assert.Equal(t, 2.5, Real("r").FromDB("2.5"))
	assert.Equal(t, true, Boolean("b").FromDB(int64(1)))
	assert.Equal(t, false, Boolean("b").FromDB([]byte("0")))
	assert.Equal(t, "2024-01-02", Date("d").FromDB(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2024-01-02 03:04:05",
		DateTime("dt").FromDB(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)))
	assert.Equal(t, "2024-01-02 03:04:05", DateTime("dt").FromDB("2024-01-02T03:04:05Z"))

	id := uuid.New()
	assert.Equal(t, id.String(), UUID("u").FromDB([16]byte(id)))
	assert.Nil(t, Char("c", 3).FromDB(nil))
}
