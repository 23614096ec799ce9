package query

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/arcforge/internal/database"
	"github.com/koustreak/arcforge/internal/errs"
	"github.com/koustreak/arcforge/internal/model"
)

type shop struct {
	cliente  *model.Meta
	vendedor *model.Meta
	pedido   *model.Meta
}

func newShop(t *testing.T) shop {
	t.Helper()
	reg := model.NewRegistry()
	cliente := reg.MustDefine("Cliente", "tb_cliente",
		model.Integer("id", model.PrimaryKey()),
		model.Char("nome", 100, model.NotNull()),
		model.Char("email", 100, model.Unique()),
	)
	vendedor := reg.MustDefine("Vendedor", "",
		model.Char("nome", 50),
	)
	pedido := reg.MustDefine("Pedido", "tb_pedido",
		model.Integer("id", model.PrimaryKey()),
		model.Real("total"),
		model.ManyToOne("cliente", cliente, model.WithOnDelete(model.Cascade)),
		model.ManyToOne("vendedor", vendedor, model.WithOnDelete(model.Restrict)),
	)
	return shop{cliente: cliente, vendedor: vendedor, pedido: pedido}
}

const pedidoColumns = `"tb_pedido"."id" AS "tb_pedido.id", ` +
	`"tb_pedido"."total" AS "tb_pedido.total", ` +
	`"tb_pedido"."cliente_id" AS "tb_pedido.cliente_id", ` +
	`"tb_pedido"."vendedor_id" AS "tb_pedido.vendedor_id", ` +
	`"tb_cliente"."id" AS "tb_cliente.id", ` +
	`"tb_cliente"."nome" AS "tb_cliente.nome", ` +
	`"tb_cliente"."email" AS "tb_cliente.email", ` +
	`"vendedor"."id" AS "vendedor.id", ` +
	`"vendedor"."nome" AS "vendedor.nome"`

const pedidoJoins = ` LEFT JOIN "tb_cliente" ON "tb_pedido"."cliente_id" = "tb_cliente"."id"` +
	` LEFT JOIN "vendedor" ON "tb_pedido"."vendedor_id" = "vendedor"."id"`

func TestBuildSelect_JoinsAndQualifiedFilter(t *testing.T) {
	s := newShop(t)

	stmt, err := BuildSelect(database.DialectPostgres, s.pedido, Spec{
		Where: []Filter{{Key: "vendedor.nome", Value: "Bia"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "SELECT "+pedidoColumns+` FROM "tb_pedido"`+pedidoJoins+
		` WHERE "vendedor"."nome" = $1`, stmt.SQL)
	assert.Equal(t, 2, strings.Count(stmt.SQL, " JOIN "))
	assert.Equal(t, []any{"Bia"}, stmt.Args)
}

func TestBuildSelect_NoJoinsWithoutRelationships(t *testing.T) {
	s := newShop(t)

	stmt, err := BuildSelect(database.DialectSQLite, s.vendedor, Spec{})
	require.NoError(t, err)
	assert.Equal(t, `SELECT "vendedor"."id" AS "vendedor.id", "vendedor"."nome" AS "vendedor.nome" FROM "vendedor"`, stmt.SQL)
	assert.Empty(t, stmt.Args)
}

func TestBuildSelect_Operators(t *testing.T) {
	s := newShop(t)

	tests := []struct {
		name    string
		dialect database.Dialect
		filter  Filter
		where   string
		args    []any
	}{
		{"default eq", database.DialectPostgres, Filter{"total", 10.0}, `"tb_pedido"."total" = $1`, []any{10.0}},
		{"gt coerces text", database.DialectPostgres, Filter{"total__gt", "9.5"}, `"tb_pedido"."total" > $1`, []any{9.5}},
		{"lte", database.DialectSQLite, Filter{"id__lte", 3}, `"tb_pedido"."id" <= ?`, []any{int64(3)}},
		{"ne", database.DialectPostgres, Filter{"id__ne", 3}, `"tb_pedido"."id" <> $1`, []any{int64(3)}},
		{"like wraps", database.DialectPostgres, Filter{"cliente.nome__like", "Ana"}, `"tb_cliente"."nome" LIKE $1`, []any{"%Ana%"}},
		{"like keeps pattern", database.DialectPostgres, Filter{"tb_cliente.nome__like", "An%"}, `"tb_cliente"."nome" LIKE $1`, []any{"An%"}},
		{"ilike on postgres", database.DialectPostgres, Filter{"cliente.email__ilike", "X"}, `"tb_cliente"."email" ILIKE $1`, []any{"%X%"}},
		{"ilike elsewhere", database.DialectSQLite, Filter{"cliente.email__ilike", "X"}, `"tb_cliente"."email" LIKE ?`, []any{"%X%"}},
		{"in list", database.DialectPostgres, Filter{"id__in", "1, 2"}, `"tb_pedido"."id" IN ($1, $2)`, []any{int64(1), int64(2)}},
		{"isnull", database.DialectPostgres, Filter{"cliente_id__isnull", true}, `"tb_pedido"."cliente_id" IS NULL`, nil},
		{"not null", database.DialectPostgres, Filter{"cliente_id__isnull", "false"}, `"tb_pedido"."cliente_id" IS NOT NULL`, nil},
		{"eq nil", database.DialectPostgres, Filter{"vendedor_id", nil}, `"tb_pedido"."vendedor_id" IS NULL`, nil},
		{"relationship column", database.DialectPostgres, Filter{"cliente_id", "7"}, `"tb_pedido"."cliente_id" = $1`, []any{int64(7)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmt, err := BuildSelect(tt.dialect, s.pedido, Spec{Select: []string{"id"}, Where: []Filter{tt.filter}})
			require.NoError(t, err)
			_, where, ok := strings.Cut(stmt.SQL, " WHERE ")
			require.True(t, ok, stmt.SQL)
			assert.Equal(t, tt.where, where)
			assert.Equal(t, tt.args, stmt.Args)
		})
	}
}

func TestBuildSelect_Rejects(t *testing.T) {
	s := newShop(t)

	tests := []struct {
		name string
		spec Spec
		is   func(error) bool
	}{
		{"unknown operator", Spec{Where: []Filter{{"total__between", 1}}}, errs.IsInvalidInput},
		{"unknown field", Spec{Where: []Filter{{"desconto", 1}}}, errs.IsUnknownField},
		{"unknown related field", Spec{Where: []Filter{{"cliente.cpf", 1}}}, errs.IsUnknownField},
		{"table not joined", Spec{Where: []Filter{{"produto.nome", 1}}}, errs.IsInvalidInput},
		{"bad identifier", Spec{Where: []Filter{{`id"; DROP TABLE x`, 1}}}, errs.IsInvalidInput},
		{"bad expression", Spec{Select: []string{"COUNT(*); DROP TABLE x"}}, errs.IsInvalidInput},
		{"subquery in select", Spec{Select: []string{"id", "(SELECT email FROM tb_cliente LIMIT 1) AS leak"}}, errs.IsInvalidInput},
		{"subquery in aggregate", Spec{Select: []string{"MAX((SELECT email FROM tb_cliente)) AS m"}}, errs.IsInvalidInput},
		{"subquery in order by", Spec{OrderBy: []string{"(SELECT nome FROM vendedor LIMIT 1) DESC"}}, errs.IsInvalidInput},
		{"subquery in group by", Spec{GroupBy: []string{"(SELECT nome FROM vendedor)"}}, errs.IsInvalidInput},
		{"arbitrary function", Spec{Select: []string{"UPPER(nome) AS n"}}, errs.IsInvalidInput},
		{"like in having", Spec{Having: []Filter{{"total__like", "x"}}}, errs.IsInvalidInput},
		{"empty in", Spec{Where: []Filter{{"id__in", ""}}}, errs.IsInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildSelect(database.DialectPostgres, s.pedido, tt.spec)
			require.Error(t, err)
			assert.True(t, tt.is(err), "got %v", err)
		})
	}
}

func TestBuildSelect_AcceptsAggregateExpressions(t *testing.T) {
	s := newShop(t)

	for _, expr := range []string{
		"COUNT(*)",
		"count(*) AS n",
		"SUM(total) AS soma",
		`AVG("tb_pedido"."total") AS media`,
		"COUNT(DISTINCT cliente_id) AS clientes",
		"MAX( `tb_pedido`.`total` )",
	} {
		_, err := BuildSelect(database.DialectPostgres, s.pedido, Spec{Select: []string{expr}})
		assert.NoError(t, err, expr)
	}
}

func TestBuildSelect_HavingUsesAliasExpression(t *testing.T) {
	s := newShop(t)

	stmt, err := BuildSelect(database.DialectPostgres, s.pedido, Spec{
		Select:  []string{"cliente_id", "COUNT(*) AS total"},
		GroupBy: []string{"cliente_id"},
		Having:  []Filter{{Key: "total__gt", Value: 1}},
	})
	require.NoError(t, err)

	assert.Equal(t, `SELECT "tb_pedido"."cliente_id" AS "cliente_id", COUNT(*) AS total FROM "tb_pedido"`+pedidoJoins+
		` GROUP BY "tb_pedido"."cliente_id" HAVING COUNT(*) > $1`, stmt.SQL)
	assert.NotContains(t, stmt.SQL, "HAVING total")
	assert.Equal(t, []any{1}, stmt.Args)
}

func TestBuildSelect_OrderLimitOffset(t *testing.T) {
	s := newShop(t)

	stmt, err := BuildSelect(database.DialectPostgres, s.pedido, Spec{
		Select:  []string{"id", "cliente.nome"},
		Where:   []Filter{{Key: "total__gte", Value: 5.0}},
		OrderBy: []string{"cliente.nome", "id DESC", "-total"},
		Limit:   10,
		Offset:  20,
	})
	require.NoError(t, err)

	assert.Equal(t, `SELECT "tb_pedido"."id" AS "id", "tb_cliente"."nome" AS "tb_cliente.nome" FROM "tb_pedido"`+pedidoJoins+
		` WHERE "tb_pedido"."total" >= $1`+
		` ORDER BY "tb_cliente"."nome", "tb_pedido"."id" DESC, "tb_pedido"."total" DESC LIMIT $2 OFFSET $3`, stmt.SQL)
	assert.Equal(t, []any{5.0, 10, 20}, stmt.Args)
}

func TestBuildSelect_OffsetWithoutLimit(t *testing.T) {
	s := newShop(t)

	stmt, err := BuildSelect(database.DialectSQLite, s.vendedor, Spec{Select: []string{"nome"}, Offset: 5})
	require.NoError(t, err)
	assert.Equal(t, `SELECT "vendedor"."nome" AS "nome" FROM "vendedor" LIMIT ? OFFSET ?`, stmt.SQL)
	assert.Equal(t, []any{maxLimit, 5}, stmt.Args)

	stmt, err = BuildSelect(database.DialectPostgres, s.vendedor, Spec{Select: []string{"nome"}, Offset: 5})
	require.NoError(t, err)
	assert.Equal(t, `SELECT "vendedor"."nome" AS "nome" FROM "vendedor" OFFSET $1`, stmt.SQL)
}

func TestBuildSelect_MySQLQuoting(t *testing.T) {
	s := newShop(t)

	stmt, err := BuildSelect(database.DialectMySQL, s.vendedor, Spec{
		Select: []string{"nome"},
		Where:  []Filter{{Key: "nome", Value: "Bia"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "SELECT `vendedor`.`nome` AS `nome` FROM `vendedor` WHERE `vendedor`.`nome` = ?", stmt.SQL)
}

func TestBuildInsert(t *testing.T) {
	s := newShop(t)
	p := s.pedido.MustNew(map[string]any{"total": 9.5, "cliente_id": 3})

	stmt, err := BuildInsert(database.DialectPostgres, p)
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "tb_pedido" ("total", "cliente_id") VALUES ($1, $2) RETURNING "id"`, stmt.SQL)
	assert.Equal(t, []any{9.5, int64(3)}, stmt.Args)

	stmt, err = BuildInsert(database.DialectMySQL, p)
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO `tb_pedido` (`total`, `cliente_id`) VALUES (?, ?)", stmt.SQL)

	empty := s.vendedor.MustNew(nil)
	stmt, err = BuildInsert(database.DialectSQLite, empty)
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "vendedor" DEFAULT VALUES RETURNING "id"`, stmt.SQL)

	stmt, err = BuildInsert(database.DialectMySQL, empty)
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO `vendedor` () VALUES ()", stmt.SQL)
}

func TestBuildUpdate(t *testing.T) {
	s := newShop(t)

	p := s.pedido.MustNew(map[string]any{"id": 4, "total": 1.5})
	stmt, ok, err := BuildUpdate(database.DialectPostgres, p)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `UPDATE "tb_pedido" SET "total" = $1 WHERE "id" = $2`, stmt.SQL)
	assert.Equal(t, []any{1.5, int64(4)}, stmt.Args)

	_, _, err = BuildUpdate(database.DialectPostgres, s.pedido.MustNew(map[string]any{"total": 1.5}))
	assert.True(t, errs.IsMissingID(err))

	_, ok, err = BuildUpdate(database.DialectPostgres, s.pedido.MustNew(map[string]any{"id": 4}))
	require.NoError(t, err)
	assert.False(t, ok, "nothing to set")
}

func TestBuildDelete(t *testing.T) {
	s := newShop(t)

	stmt, err := BuildDelete(database.DialectPostgres, s.pedido, "5")
	require.NoError(t, err)
	assert.Equal(t, `DELETE FROM "tb_pedido" WHERE "id" = $1`, stmt.SQL)
	assert.Equal(t, []any{int64(5)}, stmt.Args)

	_, err = BuildDelete(database.DialectPostgres, s.pedido, nil)
	assert.True(t, errs.IsMissingID(err))
}
