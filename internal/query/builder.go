package query

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/koustreak/arcforge/internal/database"
	"github.com/koustreak/arcforge/internal/errs"
	"github.com/koustreak/arcforge/internal/model"
)

// Statement is generated SQL with its positional arguments.
type Statement struct {
	SQL  string
	Args []any
}

// Operators of the filter mini-language, by suffix.
var validOps = map[string]string{
	"eq":     "=",
	"ne":     "<>",
	"gt":     ">",
	"lt":     "<",
	"gte":    ">=",
	"lte":    "<=",
	"like":   "LIKE",
	"ilike":  "ILIKE",
	"in":     "IN",
	"isnull": "IS NULL",
}

// HAVING compares aggregates, so pattern and set operators are not offered.
var havingOps = map[string]bool{"eq": true, "ne": true, "gt": true, "lt": true, "gte": true, "lte": true}

var (
	identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	// Expressions pass through unquoted, so only a single aggregate call
	// over * or a column, with an optional alias, is accepted.
	exprRe = regexp.MustCompile(`(?i)^(COUNT|SUM|AVG|MIN|MAX)\(\s*(\*|(DISTINCT\s+)?` +
		exprPart + `(\.` + exprPart + `)?)\s*\)(\s+AS\s+` + exprPart + `)?$`)
	asRe = regexp.MustCompile(`(?i)^(.*\S)\s+AS\s+([A-Za-z_][A-Za-z0-9_]*)$`)
)

// exprPart is a bare, double-quoted or backquoted identifier.
const exprPart = "([A-Za-z_][A-Za-z0-9_]*|\"[A-Za-z_][A-Za-z0-9_]*\"|`[A-Za-z_][A-Za-z0-9_]*`)"

func validateIdentifier(name string) error {
	if !identRe.MatchString(name) {
		return errs.Newf(errs.ErrKindInvalidInput, "invalid identifier %q", name)
	}
	return nil
}

func validateExpression(expr string) error {
	if !exprRe.MatchString(expr) {
		return errs.Newf(errs.ErrKindInvalidInput, "invalid expression %q", expr)
	}
	return nil
}

// isExpression reports whether s is passed through rather than qualified.
func isExpression(s string) bool {
	return strings.ContainsAny(s, "( ")
}

// join is one inferred JOIN, produced by the record that introduced it.
type join struct {
	record model.Record
}

// inferJoins walks the entity's relationship records once, in declaration
// order, adding a join for every referenced table not yet joined. Only one
// level is followed: the related entity's own relationships are not.
func inferJoins(meta *model.Meta) []join {
	joined := map[string]bool{meta.Table(): true}
	var out []join
	for _, rec := range meta.Records() {
		if joined[rec.RefTable] {
			continue
		}
		joined[rec.RefTable] = true
		out = append(out, join{record: rec})
	}
	return out
}

// builder accumulates placeholders and arguments for one statement.
type builder struct {
	d       database.Dialect
	meta    *model.Meta
	joins   []join
	tables  map[string]*model.Meta // joined table -> its entity, nil if unregistered
	rels    map[string]string      // relationship name -> joined table
	aliases map[string]string      // lower-case select alias -> expression
	args    []any
}

func newBuilder(d database.Dialect, meta *model.Meta) *builder {
	b := &builder{
		d:       d,
		meta:    meta,
		joins:   inferJoins(meta),
		tables:  map[string]*model.Meta{meta.Table(): meta},
		rels:    make(map[string]string),
		aliases: make(map[string]string),
	}
	for _, j := range b.joins {
		b.tables[j.record.RefTable] = j.record.Target
		if j.record.Attr != "" {
			b.rels[j.record.Attr] = j.record.RefTable
		}
	}
	return b
}

func (b *builder) bind(v any) string {
	b.args = append(b.args, v)
	return b.d.Placeholder(len(b.args))
}

// column resolves "field" or "table.field" to its table, column and the
// entity owning it, which is nil for tables reached through a plain
// foreign key.
func (b *builder) column(ref string) (table, col string, owner *model.Meta, err error) {
	table, col = b.meta.Table(), ref
	if t, c, ok := strings.Cut(ref, "."); ok {
		table, col = t, c
		if rt, isRel := b.rels[t]; isRel {
			table = rt
		}
	}
	if err := validateIdentifier(table); err != nil {
		return "", "", nil, err
	}
	if err := validateIdentifier(col); err != nil {
		return "", "", nil, err
	}
	owner, joined := b.tables[table]
	if !joined {
		return "", "", nil, errs.Newf(errs.ErrKindInvalidInput, "table %q is not part of the query on %s", table, b.meta.Name())
	}
	if owner != nil && !owner.HasColumn(col) {
		return "", "", nil, errs.Newf(errs.ErrKindUnknownField, "field %q does not exist on %s", col, owner.Name())
	}
	return table, col, owner, nil
}

// splitOp separates a trailing __op suffix; without one the operator is eq.
func splitOp(key string, allowed func(string) bool) (field, op string, err error) {
	i := strings.LastIndex(key, "__")
	if i < 0 {
		return key, "eq", nil
	}
	field, op = key[:i], strings.ToLower(key[i+2:])
	if _, known := validOps[op]; !known || !allowed(op) {
		return "", "", errs.Newf(errs.ErrKindInvalidInput, "unsupported operator %q in %q", op, key)
	}
	return field, op, nil
}

func (b *builder) where(filters []Filter) (string, error) {
	clauses := make([]string, 0, len(filters))
	for _, f := range filters {
		field, op, err := splitOp(f.Key, func(string) bool { return true })
		if err != nil {
			return "", err
		}
		table, col, owner, err := b.column(field)
		if err != nil {
			return "", err
		}
		lhs := b.d.Qualify(table, col)
		clause, err := b.condition(lhs, op, f.Value, fieldOf(owner, col))
		if err != nil {
			return "", err
		}
		clauses = append(clauses, clause)
	}
	return strings.Join(clauses, " AND "), nil
}

// fieldOf returns the declared field behind col, following relationship
// columns to the key they reference.
func fieldOf(owner *model.Meta, col string) *model.Field {
	if owner == nil {
		return nil
	}
	if f := owner.Field(col); f != nil {
		return f
	}
	for _, r := range owner.Relationships() {
		if r.Column() == col {
			if f := r.Target().Field(r.RefColumn()); f != nil {
				return f
			}
			return r.Target().PrimaryKey()
		}
	}
	return nil
}

func (b *builder) condition(lhs, op string, v any, f *model.Field) (string, error) {
	switch op {
	case "like", "ilike":
		sqlOp := validOps[op]
		if op == "ilike" && !b.d.SupportsILike() {
			sqlOp = "LIKE"
		}
		return fmt.Sprintf("%s %s %s", lhs, sqlOp, b.bind(likePattern(v))), nil

	case "isnull":
		want, err := truthy(v)
		if err != nil {
			return "", err
		}
		if want {
			return lhs + " IS NULL", nil
		}
		return lhs + " IS NOT NULL", nil

	case "in":
		items := listValues(v)
		if len(items) == 0 {
			return "", errs.Newf(errs.ErrKindInvalidInput, "empty list for IN on %s", lhs)
		}
		phs := make([]string, len(items))
		for i, item := range items {
			phs[i] = b.bind(coerce(f, item))
		}
		return fmt.Sprintf("%s IN (%s)", lhs, strings.Join(phs, ", ")), nil
	}

	if v == nil && (op == "eq" || op == "ne") {
		if op == "eq" {
			return lhs + " IS NULL", nil
		}
		return lhs + " IS NOT NULL", nil
	}
	return fmt.Sprintf("%s %s %s", lhs, validOps[op], b.bind(coerce(f, v))), nil
}

// likePattern wraps the value in % wildcards unless it already has one.
func likePattern(v any) string {
	s := fmt.Sprint(v)
	if strings.Contains(s, "%") {
		return s
	}
	return "%" + s + "%"
}

func truthy(v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		b, err := strconv.ParseBool(x)
		if err != nil {
			return false, errs.Newf(errs.ErrKindInvalidInput, "isnull expects true or false, got %q", x)
		}
		return b, nil
	}
	return false, errs.Newf(errs.ErrKindInvalidInput, "isnull expects a boolean, got %T", v)
}

func listValues(v any) []any {
	switch x := v.(type) {
	case []any:
		return x
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out
	case []int:
		out := make([]any, len(x))
		for i, n := range x {
			out[i] = n
		}
		return out
	case []int64:
		out := make([]any, len(x))
		for i, n := range x {
			out[i] = n
		}
		return out
	case string:
		parts := strings.Split(x, ",")
		out := make([]any, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return []any{v}
}

// coerce converts text arriving from URLs or forms into the field's type.
// Anything that does not parse is bound unchanged.
func coerce(f *model.Field, v any) any {
	if f == nil {
		return v
	}
	s, isString := v.(string)
	if !isString {
		if out, err := f.Value(v); err == nil && out != nil {
			return out
		}
		return v
	}
	switch f.Kind() {
	case model.KindInteger:
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
	case model.KindReal:
		if x, err := strconv.ParseFloat(s, 64); err == nil {
			return x
		}
	case model.KindBoolean:
		if x, err := strconv.ParseBool(s); err == nil {
			return x
		}
	}
	return v
}

// selectList renders the select items and records "expr AS alias" pairs
// for HAVING substitution. With no items every column of the base and
// joined entities is selected, aliased "table.column" for the row mapper.
func (b *builder) selectList(items []string) (string, error) {
	if len(items) == 0 {
		var cols []string
		for _, c := range b.meta.Columns() {
			cols = append(cols, b.qualifiedAs(b.meta.Table(), c))
		}
		for _, j := range b.joins {
			if j.record.Target == nil {
				continue
			}
			for _, c := range j.record.Target.Columns() {
				cols = append(cols, b.qualifiedAs(j.record.RefTable, c))
			}
		}
		return strings.Join(cols, ", "), nil
	}

	out := make([]string, 0, len(items))
	for _, raw := range items {
		item := strings.TrimSpace(raw)
		if m := asRe.FindStringSubmatch(item); m != nil {
			b.aliases[strings.ToLower(m[2])] = m[1]
		}
		switch {
		case item == "*":
			out = append(out, b.d.Quote(b.meta.Table())+".*")
		case isExpression(item):
			if err := validateExpression(item); err != nil {
				return "", err
			}
			out = append(out, item)
		default:
			table, col, _, err := b.column(item)
			if err != nil {
				return "", err
			}
			alias := col
			if strings.Contains(item, ".") {
				alias = table + "." + col
			}
			out = append(out, b.d.Qualify(table, col)+" AS "+b.d.Quote(alias))
		}
	}
	return strings.Join(out, ", "), nil
}

func (b *builder) qualifiedAs(table, col string) string {
	return b.d.Qualify(table, col) + " AS " + b.d.Quote(table+"."+col)
}

// groupBy qualifies bare and dotted names; expressions pass through.
func (b *builder) groupBy(items []string) (string, error) {
	out := make([]string, 0, len(items))
	for _, raw := range items {
		item := strings.TrimSpace(raw)
		if isExpression(item) {
			if err := validateExpression(item); err != nil {
				return "", err
			}
			out = append(out, item)
			continue
		}
		table, col, _, err := b.column(item)
		if err != nil {
			return "", err
		}
		out = append(out, b.d.Qualify(table, col))
	}
	return strings.Join(out, ", "), nil
}

// orderBy accepts an optional trailing ASC or DESC, or a leading "-" for
// descending. Select aliases are referenced by name.
func (b *builder) orderBy(items []string) (string, error) {
	out := make([]string, 0, len(items))
	for _, raw := range items {
		item := strings.TrimSpace(raw)
		dir := ""
		if strings.HasPrefix(item, "-") {
			item, dir = item[1:], " DESC"
		}
		if i := strings.LastIndex(item, " "); i >= 0 {
			switch strings.ToUpper(item[i+1:]) {
			case "ASC":
				item, dir = strings.TrimSpace(item[:i]), " ASC"
			case "DESC":
				item, dir = strings.TrimSpace(item[:i]), " DESC"
			}
		}

		switch {
		case isExpression(item):
			if err := validateExpression(item); err != nil {
				return "", err
			}
			out = append(out, item+dir)
		case b.isAlias(item):
			out = append(out, b.d.Quote(item)+dir)
		default:
			table, col, _, err := b.column(item)
			if err != nil {
				return "", err
			}
			out = append(out, b.d.Qualify(table, col)+dir)
		}
	}
	return strings.Join(out, ", "), nil
}

func (b *builder) isAlias(name string) bool {
	_, ok := b.aliases[strings.ToLower(name)]
	return ok && !b.meta.HasColumn(name)
}

// having rewrites a select alias to the expression it names, since HAVING
// cannot reference select aliases on most backends.
func (b *builder) having(filters []Filter) (string, error) {
	clauses := make([]string, 0, len(filters))
	for _, f := range filters {
		field, op, err := splitOp(f.Key, func(op string) bool { return havingOps[op] })
		if err != nil {
			return "", err
		}

		var lhs string
		if expr, ok := b.aliases[strings.ToLower(field)]; ok {
			lhs = expr
		} else if isExpression(field) {
			if err := validateExpression(field); err != nil {
				return "", err
			}
			lhs = field
		} else {
			table, col, _, err := b.column(field)
			if err != nil {
				return "", err
			}
			lhs = b.d.Qualify(table, col)
		}

		v := f.Value
		if s, ok := v.(string); ok {
			if n, err := strconv.ParseFloat(s, 64); err == nil {
				v = n
				if i, err := strconv.ParseInt(s, 10, 64); err == nil {
					v = i
				}
			}
		}
		clauses = append(clauses, fmt.Sprintf("%s %s %s", lhs, validOps[op], b.bind(v)))
	}
	return strings.Join(clauses, " AND "), nil
}

// BuildSelect renders the SELECT for spec on meta, with joins inferred from
// the entity's relationship records.
func BuildSelect(d database.Dialect, meta *model.Meta, spec Spec) (Statement, error) {
	b := newBuilder(d, meta)

	cols, err := b.selectList(spec.Select)
	if err != nil {
		return Statement{}, err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s", cols, d.Quote(meta.Table()))
	for _, j := range b.joins {
		rec := j.record
		fmt.Fprintf(&sb, " LEFT JOIN %s ON %s = %s",
			d.Quote(rec.RefTable),
			d.Qualify(meta.Table(), rec.FieldName),
			d.Qualify(rec.RefTable, rec.RefField))
	}

	if len(spec.Where) > 0 {
		w, err := b.where(spec.Where)
		if err != nil {
			return Statement{}, err
		}
		sb.WriteString(" WHERE " + w)
	}
	if len(spec.GroupBy) > 0 {
		g, err := b.groupBy(spec.GroupBy)
		if err != nil {
			return Statement{}, err
		}
		sb.WriteString(" GROUP BY " + g)
	}
	if len(spec.Having) > 0 {
		h, err := b.having(spec.Having)
		if err != nil {
			return Statement{}, err
		}
		sb.WriteString(" HAVING " + h)
	}
	if len(spec.OrderBy) > 0 {
		o, err := b.orderBy(spec.OrderBy)
		if err != nil {
			return Statement{}, err
		}
		sb.WriteString(" ORDER BY " + o)
	}
	if spec.Limit > 0 {
		sb.WriteString(" LIMIT " + b.bind(spec.Limit))
	}
	if spec.Offset > 0 {
		if spec.Limit == 0 && d != database.DialectPostgres {
			// MySQL and SQLite only accept OFFSET after a LIMIT.
			sb.WriteString(" LIMIT " + b.bind(maxLimit))
		}
		sb.WriteString(" OFFSET " + b.bind(spec.Offset))
	}

	return Statement{SQL: sb.String(), Args: b.args}, nil
}

const maxLimit = int64(1<<63 - 1)

// BuildInsert renders an INSERT of the entity's assigned columns. The
// auto-increment key is left to the backend unless the entity carries one.
func BuildInsert(d database.Dialect, e *model.Entity) (Statement, error) {
	meta := e.Meta()
	pk := meta.PrimaryKey()

	var cols []string
	for _, c := range e.Present() {
		if c == pk.Name() && e.ID() == nil {
			continue
		}
		cols = append(cols, c)
	}
	args, err := e.Args(cols)
	if err != nil {
		return Statement{}, err
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO " + d.Quote(meta.Table()))
	switch {
	case len(cols) > 0:
		quoted := make([]string, len(cols))
		phs := make([]string, len(cols))
		for i, c := range cols {
			quoted[i] = d.Quote(c)
			phs[i] = d.Placeholder(i + 1)
		}
		fmt.Fprintf(&sb, " (%s) VALUES (%s)", strings.Join(quoted, ", "), strings.Join(phs, ", "))
	case d == database.DialectMySQL:
		sb.WriteString(" () VALUES ()")
	default:
		sb.WriteString(" DEFAULT VALUES")
	}
	if d.SupportsReturning() {
		sb.WriteString(" RETURNING " + d.Quote(pk.Name()))
	}
	return Statement{SQL: sb.String(), Args: args}, nil
}

// BuildUpdate renders an UPDATE setting every assigned column except the
// key, matched by the key. ok is false when there is nothing to set.
func BuildUpdate(d database.Dialect, e *model.Entity) (stmt Statement, ok bool, err error) {
	meta := e.Meta()
	pk := meta.PrimaryKey()
	if e.ID() == nil {
		return Statement{}, false, errs.Newf(errs.ErrKindMissingID, "cannot update %s without %s", meta.Name(), pk.Name())
	}

	var cols []string
	for _, c := range e.Present() {
		if c != pk.Name() {
			cols = append(cols, c)
		}
	}
	if len(cols) == 0 {
		return Statement{}, false, nil
	}
	args, err := e.Args(cols)
	if err != nil {
		return Statement{}, false, err
	}
	id, err := pk.Value(e.ID())
	if err != nil {
		return Statement{}, false, err
	}

	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = d.Quote(c) + " = " + d.Placeholder(i+1)
	}
	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
		d.Quote(meta.Table()), strings.Join(sets, ", "), d.Quote(pk.Name()), d.Placeholder(len(cols)+1))
	return Statement{SQL: sql, Args: append(args, id)}, true, nil
}

// BuildDelete renders a DELETE by primary key.
func BuildDelete(d database.Dialect, meta *model.Meta, id any) (Statement, error) {
	pk := meta.PrimaryKey()
	if id == nil {
		return Statement{}, errs.Newf(errs.ErrKindMissingID, "cannot delete %s without %s", meta.Name(), pk.Name())
	}
	v, err := pk.Value(coerce(pk, id))
	if err != nil {
		return Statement{}, err
	}
	sql := fmt.Sprintf("DELETE FROM %s WHERE %s = %s", d.Quote(meta.Table()), d.Quote(pk.Name()), d.Placeholder(1))
	return Statement{SQL: sql, Args: []any{v}}, nil
}
