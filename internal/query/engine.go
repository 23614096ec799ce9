// Package query builds and executes statements for registered entities.
//
// The Engine turns entity metadata into DDL, translates the filter
// mini-language into parameterized SELECTs with inferred joins, runs
// mutations, and maps result rows back into entities. Every statement goes
// through a database.Manager cursor, so each call commits or rolls back on
// its own.
//
// Usage:
//
//	eng := query.NewEngine(mgr, log)
//	res, err := eng.Query(ctx, pedido, query.Spec{
//	    Where: query.Filters(map[string]any{"tb_cliente.nome__like": "Ana"}),
//	})
//	if one, ok := res.Single(); ok {
//	    fmt.Println(one)
//	}
package query

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/koustreak/arcforge/internal/database"
	"github.com/koustreak/arcforge/internal/errs"
	"github.com/koustreak/arcforge/internal/logger"
	"github.com/koustreak/arcforge/internal/model"
)

// Engine executes generated statements on one connection manager.
type Engine struct {
	mgr *database.Manager
	log *logger.Logger
}

// NewEngine returns an engine issuing statements through mgr.
func NewEngine(mgr *database.Manager, log *logger.Logger) *Engine {
	return &Engine{mgr: mgr, log: logger.OrNop(log).Component("query")}
}

// Dialect returns the dialect statements are generated for.
func (e *Engine) Dialect() database.Dialect { return e.mgr.Dialect() }

var _ model.Reader = (*Engine)(nil)

// TableExists reports whether the entity's table is present.
func (e *Engine) TableExists(ctx context.Context, meta *model.Meta) (bool, error) {
	return e.tableExists(ctx, meta.Table())
}

func (e *Engine) tableExists(ctx context.Context, table string) (bool, error) {
	var exists bool
	err := e.mgr.WithCursor(ctx, func(c *database.Cursor) error {
		var v any
		if err := c.QueryRow(e.Dialect().TableExistsQuery(), table).Scan(&v); err != nil {
			return err
		}
		exists = truthyValue(v)
		return nil
	})
	return exists, err
}

// truthyValue reads the boolean-ish column of TableExistsQuery, which is a
// bool on postgres and an integer elsewhere.
func truthyValue(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case int64:
		return x != 0
	case []byte:
		return string(x) == "1" || string(x) == "t" || string(x) == "true"
	case string:
		return x == "1" || x == "t" || x == "true"
	}
	return false
}

// ListTables returns the base tables of the current schema.
func (e *Engine) ListTables(ctx context.Context) ([]string, error) {
	var tables []string
	err := e.mgr.WithCursor(ctx, func(c *database.Cursor) error {
		rows, err := c.Query(e.Dialect().ListTablesQuery())
		if err != nil {
			return err
		}
		_, values, err := database.ScanAll(rows)
		if err != nil {
			return err
		}
		tables = make([]string, 0, len(values))
		for _, row := range values {
			tables = append(tables, fmt.Sprint(row[0]))
		}
		return nil
	})
	return tables, err
}

// CreateTable creates the entity's table and any many-to-many link tables.
func (e *Engine) CreateTable(ctx context.Context, meta *model.Meta) error {
	d := e.Dialect()
	stmts := append([]string{meta.Schema(d)}, meta.LinkSchemas(d)...)
	err := e.mgr.WithCursor(ctx, func(c *database.Cursor) error {
		for _, s := range stmts {
			if _, err := c.Exec(s); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	e.log.InfoWith("table created", map[string]any{"entity": meta.Name(), "table": meta.Table()})
	return nil
}

// DeleteTable drops the entity's link tables and then its own table.
func (e *Engine) DeleteTable(ctx context.Context, meta *model.Meta) error {
	d := e.Dialect()
	var stmts []string
	for _, t := range meta.LinkTables() {
		stmts = append(stmts, "DROP TABLE IF EXISTS "+d.Quote(t))
	}
	stmts = append(stmts, meta.DropSchema(d))

	err := e.mgr.WithCursor(ctx, func(c *database.Cursor) error {
		for _, s := range stmts {
			if _, err := c.Exec(s); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	e.log.InfoWith("table dropped", map[string]any{"entity": meta.Name(), "table": meta.Table()})
	return nil
}

// Save inserts the entity and assigns the generated key to it. A UUID key
// left empty is generated here.
func (e *Engine) Save(ctx context.Context, ent *model.Entity) error {
	meta := ent.Meta()
	pk := meta.PrimaryKey()
	if pk.Kind() == model.KindUUID && ent.ID() == nil {
		ent.SetID(uuid.NewString())
	}
	if err := ent.ValidateInsert(); err != nil {
		return err
	}
	stmt, err := BuildInsert(e.Dialect(), ent)
	if err != nil {
		return err
	}

	var id any
	err = e.mgr.WithCursor(ctx, func(c *database.Cursor) error {
		if e.Dialect().SupportsReturning() {
			return c.QueryRow(stmt.SQL, stmt.Args...).Scan(&id)
		}
		res, err := c.Exec(stmt.SQL, stmt.Args...)
		if err != nil {
			return err
		}
		if ent.ID() != nil {
			id = ent.ID()
			return nil
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return err
	}
	ent.SetID(id)
	e.log.InfoWith("entity saved", map[string]any{"entity": meta.Name(), "id": ent.ID()})
	return nil
}

// Update writes every assigned non-key column of the entity, matched by its
// key. It fails with a missing_id error before touching the database when
// the key is unset, and with not_found when no row has that key.
func (e *Engine) Update(ctx context.Context, ent *model.Entity) error {
	meta := ent.Meta()
	if ent.ID() == nil {
		return errs.Newf(errs.ErrKindMissingID, "cannot update %s without %s", meta.Name(), meta.PrimaryKey().Name())
	}
	if err := ent.Validate(); err != nil {
		return err
	}
	stmt, ok, err := BuildUpdate(e.Dialect(), ent)
	if err != nil || !ok {
		return err
	}
	if err := e.execAffecting(ctx, stmt, meta, ent.ID()); err != nil {
		return err
	}
	e.log.InfoWith("entity updated", map[string]any{"entity": meta.Name(), "id": ent.ID()})
	return nil
}

// Delete removes one row. target is either an entity of meta or a bare key.
func (e *Engine) Delete(ctx context.Context, meta *model.Meta, target any) error {
	id := target
	if ent, ok := target.(*model.Entity); ok {
		if !ent.Is(meta) {
			return errs.Newf(errs.ErrKindTypeMismatch, "expected a %s entity, got %s", meta.Name(), ent.Meta().Name())
		}
		id = ent.ID()
	}
	stmt, err := BuildDelete(e.Dialect(), meta, id)
	if err != nil {
		return err
	}
	if err := e.execAffecting(ctx, stmt, meta, id); err != nil {
		return err
	}
	e.log.InfoWith("entity deleted", map[string]any{"entity": meta.Name(), "id": id})
	return nil
}

func (e *Engine) execAffecting(ctx context.Context, stmt Statement, meta *model.Meta, id any) error {
	return e.mgr.WithCursor(ctx, func(c *database.Cursor) error {
		res, err := c.Exec(stmt.SQL, stmt.Args...)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return errs.Newf(errs.ErrKindNotFound, "%s %v not found", meta.Name(), id)
		}
		return nil
	})
}

// Read loads the entity with the given key, with its many-to-one and
// one-to-one relations attached from the join. It returns nil, nil when no
// row matches.
func (e *Engine) Read(ctx context.Context, meta *model.Meta, id any) (*model.Entity, error) {
	if id == nil {
		return nil, errs.Newf(errs.ErrKindMissingID, "cannot read %s without %s", meta.Name(), meta.PrimaryKey().Name())
	}
	res, err := e.Query(ctx, meta, Spec{
		Where: []Filter{{Key: meta.Table() + "." + meta.PrimaryKey().Name(), Value: id}},
	})
	if err != nil {
		return nil, err
	}
	if res.Len() == 0 {
		return nil, nil
	}
	return res.All()[0], nil
}

// FindAll returns every row ordered by primary key.
func (e *Engine) FindAll(ctx context.Context, meta *model.Meta) (*Result, error) {
	return e.Query(ctx, meta, Spec{OrderBy: []string{meta.PrimaryKey().Name()}})
}

// Query runs the SELECT described by spec and maps every row.
func (e *Engine) Query(ctx context.Context, meta *model.Meta, spec Spec) (*Result, error) {
	stmt, err := BuildSelect(e.Dialect(), meta, spec)
	if err != nil {
		return nil, err
	}

	var rows []*model.Entity
	err = e.mgr.WithCursor(ctx, func(c *database.Cursor) error {
		r, err := c.Query(stmt.SQL, stmt.Args...)
		if err != nil {
			return err
		}
		columns, values, err := database.ScanAll(r)
		if err != nil {
			return err
		}
		rows = make([]*model.Entity, 0, len(values))
		for _, v := range values {
			ent, err := MapRow(meta, columns, v)
			if err != nil {
				return err
			}
			rows = append(rows, ent)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return newResult(rows), nil
}

// ExecuteSQL runs a raw statement and returns its rows as plain maps. The
// statement text is passed through as is; values belong in args.
func (e *Engine) ExecuteSQL(ctx context.Context, sql string, args ...any) ([]map[string]any, error) {
	var out []map[string]any
	err := e.mgr.WithCursor(ctx, func(c *database.Cursor) error {
		rows, err := c.Query(sql, args...)
		if err != nil {
			return err
		}
		out, err = database.ScanMaps(rows)
		return err
	})
	return out, err
}
