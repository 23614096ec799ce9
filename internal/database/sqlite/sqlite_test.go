package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/arcforge/internal/database"
	"github.com/koustreak/arcforge/internal/errs"
)

func newManager(t *testing.T) *database.Manager {
	t.Helper()
	m := database.NewManager(database.DefaultConfig(database.DriverSQLite), Backend, nil)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func exec(t *testing.T, m *database.Manager, stmt string, args ...any) error {
	t.Helper()
	return m.WithCursor(context.Background(), func(c *database.Cursor) error {
		_, err := c.Exec(stmt, args...)
		return err
	})
}

func TestSQLite_ForeignKeysEnforced(t *testing.T) {
	m := newManager(t)

	require.NoError(t, exec(t, m, `CREATE TABLE "parent" ("id" INTEGER PRIMARY KEY)`))
	require.NoError(t, exec(t, m,
		`CREATE TABLE "child" ("id" INTEGER PRIMARY KEY, "parent_id" INTEGER REFERENCES "parent"("id") ON DELETE RESTRICT)`))
	require.NoError(t, exec(t, m, `INSERT INTO "parent" ("id") VALUES (1)`))
	require.NoError(t, exec(t, m, `INSERT INTO "child" ("parent_id") VALUES (1)`))

	err := exec(t, m, `DELETE FROM "parent" WHERE "id" = ?`, 1)
	assert.True(t, errs.IsConflict(err), "got %v", err)

	err = exec(t, m, `INSERT INTO "child" ("parent_id") VALUES (42)`)
	assert.True(t, errs.IsConflict(err), "got %v", err)
}

func TestSQLite_UniqueAndNotNull(t *testing.T) {
	m := newManager(t)

	require.NoError(t, exec(t, m, `CREATE TABLE "u" ("id" INTEGER PRIMARY KEY, "email" VARCHAR(50) UNIQUE NOT NULL)`))
	require.NoError(t, exec(t, m, `INSERT INTO "u" ("email") VALUES ('a@x')`))

	assert.True(t, errs.IsConflict(exec(t, m, `INSERT INTO "u" ("email") VALUES ('a@x')`)))
	assert.True(t, errs.IsInvalidInput(exec(t, m, `INSERT INTO "u" ("email") VALUES (NULL)`)))
}

func TestSQLite_InMemoryStateSurvivesStatements(t *testing.T) {
	m := newManager(t)

	require.NoError(t, exec(t, m, `CREATE TABLE "k" ("v" TEXT)`))
	require.NoError(t, exec(t, m, `INSERT INTO "k" ("v") VALUES ('kept')`))

	var got []map[string]any
	err := m.WithCursor(context.Background(), func(c *database.Cursor) error {
		rows, err := c.Query(`SELECT "v" FROM "k"`)
		if err != nil {
			return err
		}
		got, err = database.ScanMaps(rows)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{{"v": "kept"}}, got)
}

func TestSQLite_SyntaxErrorIsQueryFailed(t *testing.T) {
	m := newManager(t)
	err := exec(t, m, `SELEC nonsense`)
	assert.True(t, errs.IsQueryFailed(err))
	assert.Equal(t, database.StateRolledBack, m.State())
}

func TestBuildDSN(t *testing.T) {
	assert.Equal(t, ":memory:?"+foreignKeysParam, buildDSN(&database.Config{}))
	assert.Equal(t, "shop.db?"+foreignKeysParam, buildDSN(&database.Config{Database: "shop.db"}))
	assert.Equal(t, "file:x.db", buildDSN(&database.Config{DSN: "file:x.db"}))
}
