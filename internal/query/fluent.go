package query

import (
	"context"
	"fmt"

	"github.com/koustreak/arcforge/internal/errs"
	"github.com/koustreak/arcforge/internal/model"
)

// Aggregate is an SQL aggregate over one field, rendered as FUNC(field).
type Aggregate struct {
	fn    string
	field string
}

// Count counts rows, or non-NULL values of field when one is given.
func Count(field ...string) Aggregate {
	f := "*"
	if len(field) > 0 && field[0] != "" {
		f = field[0]
	}
	return Aggregate{fn: "COUNT", field: f}
}

func Sum(field string) Aggregate { return Aggregate{fn: "SUM", field: field} }
func Avg(field string) Aggregate { return Aggregate{fn: "AVG", field: field} }
func Min(field string) Aggregate { return Aggregate{fn: "MIN", field: field} }
func Max(field string) Aggregate { return Aggregate{fn: "MAX", field: field} }

// expr renders the call. A bare field is qualified with the base table so
// joined tables with the same column name do not make it ambiguous.
func (a Aggregate) expr(b *builder) (string, error) {
	if a.field == "*" {
		return a.fn + "(*)", nil
	}
	table, col, _, err := b.column(a.field)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s(%s)", a.fn, b.d.Qualify(table, col)), nil
}

// Ordering is a field with a direction for OrderBy.
type Ordering struct {
	field string
	desc  bool
}

// F names a field for ordering.
func F(field string) Ordering { return Ordering{field: field} }

func (o Ordering) Asc() Ordering  { return Ordering{field: o.field} }
func (o Ordering) Desc() Ordering { return Ordering{field: o.field, desc: true} }

func (o Ordering) String() string {
	if o.desc {
		return o.field + " DESC"
	}
	return o.field + " ASC"
}

type annotation struct {
	alias string
	agg   Aggregate
}

// Builder assembles a query step by step:
//
//	res, err := eng.From(pedido).
//	    Annotate("pedidos", query.Count()).
//	    GroupBy("cliente_id").
//	    Having("pedidos__gt", 1).
//	    OrderBy(query.F("pedidos").Desc()).
//	    Execute(ctx)
//
// The first error met is kept and returned by ToSQL or Execute.
type Builder struct {
	eng         *Engine
	meta        *model.Meta
	spec        Spec
	annotations []annotation
	err         error
}

// From starts a builder over meta.
func (e *Engine) From(meta *model.Meta) *Builder {
	return &Builder{eng: e, meta: meta}
}

// Filter adds WHERE conditions from a map, in key order.
func (q *Builder) Filter(conds map[string]any) *Builder {
	q.spec.Where = append(q.spec.Where, Filters(conds)...)
	return q
}

// Where adds one WHERE condition.
func (q *Builder) Where(key string, value any) *Builder {
	q.spec.Where = append(q.spec.Where, Filter{Key: key, Value: value})
	return q
}

// Select restricts the selected columns or expressions.
func (q *Builder) Select(items ...string) *Builder {
	q.spec.Select = append(q.spec.Select, items...)
	return q
}

// Annotate adds agg to the select list under alias.
func (q *Builder) Annotate(alias string, agg Aggregate) *Builder {
	if q.err == nil {
		q.err = validateIdentifier(alias)
	}
	q.annotations = append(q.annotations, annotation{alias: alias, agg: agg})
	return q
}

func (q *Builder) GroupBy(fields ...string) *Builder {
	q.spec.GroupBy = append(q.spec.GroupBy, fields...)
	return q
}

// Having adds a HAVING condition; key may name an annotation alias.
func (q *Builder) Having(key string, value any) *Builder {
	q.spec.Having = append(q.spec.Having, Filter{Key: key, Value: value})
	return q
}

// OrderBy takes field names (optionally with ASC or DESC) or Orderings.
func (q *Builder) OrderBy(items ...any) *Builder {
	for _, it := range items {
		switch x := it.(type) {
		case string:
			q.spec.OrderBy = append(q.spec.OrderBy, x)
		case Ordering:
			q.spec.OrderBy = append(q.spec.OrderBy, x.String())
		default:
			if q.err == nil {
				q.err = errs.Newf(errs.ErrKindInvalidInput, "order by: unsupported %T", it)
			}
		}
	}
	return q
}

func (q *Builder) Limit(n int) *Builder {
	q.spec.Limit = n
	return q
}

func (q *Builder) Offset(n int) *Builder {
	q.spec.Offset = n
	return q
}

// Spec resolves annotations into the select list and returns the result.
// Without an explicit select, annotating selects the grouped fields plus
// the annotations.
func (q *Builder) Spec() (Spec, error) {
	if q.err != nil {
		return Spec{}, q.err
	}
	spec := q.spec
	if len(q.annotations) == 0 {
		return spec, nil
	}

	b := newBuilder(q.eng.Dialect(), q.meta)
	sel := append([]string(nil), spec.Select...)
	if len(sel) == 0 {
		sel = append(sel, spec.GroupBy...)
	}
	for _, a := range q.annotations {
		expr, err := a.agg.expr(b)
		if err != nil {
			return Spec{}, err
		}
		sel = append(sel, expr+" AS "+a.alias)
	}
	spec.Select = sel
	return spec, nil
}

// ToSQL renders the statement without running it.
func (q *Builder) ToSQL() (Statement, error) {
	spec, err := q.Spec()
	if err != nil {
		return Statement{}, err
	}
	return BuildSelect(q.eng.Dialect(), q.meta, spec)
}

// Execute runs the query.
func (q *Builder) Execute(ctx context.Context) (*Result, error) {
	spec, err := q.Spec()
	if err != nil {
		return nil, err
	}
	return q.eng.Query(ctx, q.meta, spec)
}
