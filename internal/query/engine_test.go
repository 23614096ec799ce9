package query

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/arcforge/internal/database"
	"github.com/koustreak/arcforge/internal/errs"
)

func mockEngine(t *testing.T, d database.Dialect) (*Engine, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	backend := database.Backend{
		Dialect: d,
		Open: func(context.Context, *database.Config) (*sql.DB, error) {
			return db, nil
		},
	}
	mgr := database.NewManager(database.DefaultConfig(database.DriverPostgres), backend, nil)
	return NewEngine(mgr, nil), mock
}

func TestEngine_SaveReturning(t *testing.T) {
	s := newShop(t)
	eng, mock := mockEngine(t, database.DialectPostgres)
	p := s.pedido.MustNew(map[string]any{"total": 9.5, "cliente_id": 3})

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "tb_pedido" ("total", "cliente_id") VALUES ($1, $2) RETURNING "id"`).
		WithArgs(9.5, int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(11)))
	mock.ExpectCommit()

	require.NoError(t, eng.Save(context.Background(), p))
	assert.Equal(t, int64(11), p.ID())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEngine_SaveLastInsertID(t *testing.T) {
	s := newShop(t)
	eng, mock := mockEngine(t, database.DialectMySQL)
	v := s.vendedor.MustNew(map[string]any{"nome": "Bia"})

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `vendedor` (`nome`) VALUES (?)").
		WithArgs("Bia").
		WillReturnResult(sqlmock.NewResult(12, 1))
	mock.ExpectCommit()

	require.NoError(t, eng.Save(context.Background(), v))
	assert.Equal(t, int64(12), v.ID())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEngine_SaveValidatesFirst(t *testing.T) {
	s := newShop(t)
	eng, mock := mockEngine(t, database.DialectPostgres)

	err := eng.Save(context.Background(), s.cliente.MustNew(map[string]any{"email": "a@b"}))
	assert.True(t, errs.IsValidation(err))
	assert.NoError(t, mock.ExpectationsWereMet(), "no statement for an invalid entity")
}

func TestEngine_UpdateWithoutIDRunsNothing(t *testing.T) {
	s := newShop(t)
	eng, mock := mockEngine(t, database.DialectPostgres)

	err := eng.Update(context.Background(), s.pedido.MustNew(map[string]any{"total": 2.0}))
	assert.True(t, errs.IsMissingID(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEngine_UpdateNoRowIsNotFound(t *testing.T) {
	s := newShop(t)
	eng, mock := mockEngine(t, database.DialectPostgres)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "tb_pedido" SET "total" = $1 WHERE "id" = $2`).
		WithArgs(2.0, int64(99)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := eng.Update(context.Background(), s.pedido.MustNew(map[string]any{"id": 99, "total": 2.0}))
	assert.True(t, errs.IsNotFound(err), "got %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEngine_Delete(t *testing.T) {
	s := newShop(t)
	eng, mock := mockEngine(t, database.DialectPostgres)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "tb_pedido" WHERE "id" = $1`).
		WithArgs(int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	require.NoError(t, eng.Delete(context.Background(), s.pedido, s.pedido.MustNew(map[string]any{"id": 4})))

	err := eng.Delete(context.Background(), s.pedido, s.vendedor.MustNew(map[string]any{"id": 4}))
	assert.True(t, errs.IsTypeMismatch(err))

	err = eng.Delete(context.Background(), s.pedido, s.pedido.MustNew(nil))
	assert.True(t, errs.IsMissingID(err))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEngine_QueryCollapsesResults(t *testing.T) {
	s := newShop(t)
	eng, mock := mockEngine(t, database.DialectSQLite)
	const stmt = `SELECT "vendedor"."id" AS "vendedor.id", "vendedor"."nome" AS "vendedor.nome" FROM "vendedor"`
	cols := []string{"vendedor.id", "vendedor.nome"}

	mock.ExpectBegin()
	mock.ExpectQuery(stmt).WillReturnRows(sqlmock.NewRows(cols).AddRow(int64(1), "Bia"))
	mock.ExpectCommit()
	res, err := eng.Query(context.Background(), s.vendedor, Spec{})
	require.NoError(t, err)
	one, ok := res.Single()
	require.True(t, ok)
	assert.Equal(t, "Vendedor(id=1, nome=Bia)", one.String())
	_, ok = res.List()
	assert.False(t, ok)

	mock.ExpectBegin()
	mock.ExpectQuery(stmt).WillReturnRows(sqlmock.NewRows(cols))
	mock.ExpectCommit()
	res, err = eng.Query(context.Background(), s.vendedor, Spec{})
	require.NoError(t, err)
	list, ok := res.List()
	require.True(t, ok)
	assert.NotNil(t, list)
	assert.Empty(t, list)

	mock.ExpectBegin()
	mock.ExpectQuery(stmt).WillReturnRows(sqlmock.NewRows(cols).AddRow(int64(1), "Bia").AddRow(int64(2), "Caio"))
	mock.ExpectCommit()
	res, err = eng.Query(context.Background(), s.vendedor, Spec{})
	require.NoError(t, err)
	_, ok = res.Single()
	assert.False(t, ok)
	list, ok = res.List()
	require.True(t, ok)
	assert.Len(t, list, 2)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEngine_ReadMissingIsNil(t *testing.T) {
	s := newShop(t)
	eng, mock := mockEngine(t, database.DialectPostgres)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT " + pedidoColumns + ` FROM "tb_pedido"` + pedidoJoins + ` WHERE "tb_pedido"."id" = $1`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"tb_pedido.id"}))
	mock.ExpectCommit()

	got, err := eng.Read(context.Background(), s.pedido, 1)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = eng.Read(context.Background(), s.pedido, nil)
	assert.True(t, errs.IsMissingID(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEngine_QueryFailureRollsBack(t *testing.T) {
	s := newShop(t)
	eng, mock := mockEngine(t, database.DialectSQLite)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT "vendedor"."nome" AS "nome" FROM "vendedor"`).WillReturnError(errors.New("no such table: vendedor"))
	mock.ExpectRollback()

	_, err := eng.Query(context.Background(), s.vendedor, Spec{Select: []string{"nome"}})
	assert.True(t, errs.IsQueryFailed(err), "got %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEngine_TableExistsAndRawSQL(t *testing.T) {
	s := newShop(t)
	eng, mock := mockEngine(t, database.DialectPostgres)

	mock.ExpectBegin()
	mock.ExpectQuery(database.DialectPostgres.TableExistsQuery()).
		WithArgs("tb_pedido").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectCommit()
	ok, err := eng.TableExists(context.Background(), s.pedido)
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COUNT(*) AS n FROM "tb_pedido" WHERE "total" > $1`).
		WithArgs(1.0).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(int64(3)))
	mock.ExpectCommit()
	rows, err := eng.ExecuteSQL(context.Background(), `SELECT COUNT(*) AS n FROM "tb_pedido" WHERE "total" > $1`, 1.0)
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{{"n": int64(3)}}, rows)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEngine_CreateAndDeleteTable(t *testing.T) {
	s := newShop(t)
	eng, mock := mockEngine(t, database.DialectPostgres)

	mock.ExpectBegin()
	mock.ExpectExec(s.pedido.Schema(database.DialectPostgres)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	require.NoError(t, eng.CreateTable(context.Background(), s.pedido))

	mock.ExpectBegin()
	mock.ExpectExec(`DROP TABLE IF EXISTS "tb_pedido" CASCADE`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	require.NoError(t, eng.DeleteTable(context.Background(), s.pedido))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBuilder_AnnotateGroupHaving(t *testing.T) {
	s := newShop(t)
	eng, _ := mockEngine(t, database.DialectPostgres)

	stmt, err := eng.From(s.pedido).
		Annotate("qtd", Count()).
		Annotate("soma", Sum("total")).
		GroupBy("cliente_id").
		Having("qtd__gt", 1).
		OrderBy(F("soma").Desc()).
		Limit(5).
		ToSQL()
	require.NoError(t, err)

	assert.Equal(t, `SELECT "tb_pedido"."cliente_id" AS "cliente_id", COUNT(*) AS qtd, SUM("tb_pedido"."total") AS soma`+
		` FROM "tb_pedido"`+pedidoJoins+
		` GROUP BY "tb_pedido"."cliente_id" HAVING COUNT(*) > $1 ORDER BY "soma" DESC LIMIT $2`, stmt.SQL)
	assert.Equal(t, []any{1, 5}, stmt.Args)
}

func TestBuilder_Errors(t *testing.T) {
	s := newShop(t)
	eng, _ := mockEngine(t, database.DialectPostgres)

	_, err := eng.From(s.pedido).Annotate("bad alias", Count()).ToSQL()
	assert.True(t, errs.IsInvalidInput(err))

	_, err = eng.From(s.pedido).Annotate("m", Max("desconto")).ToSQL()
	assert.True(t, errs.IsUnknownField(err))

	_, err = eng.From(s.pedido).OrderBy(42).ToSQL()
	assert.True(t, errs.IsInvalidInput(err))
}
