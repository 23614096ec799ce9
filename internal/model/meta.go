// Package model holds entity metadata: typed fields, relationships, the
// per-entity record built once at registration, and entity instances.
package model

import (
	"fmt"
	"strings"
	"sync"

	"github.com/koustreak/arcforge/internal/database"
	"github.com/koustreak/arcforge/internal/errs"
)

// Attribute is either a *Field or a *Relationship.
type Attribute interface {
	attrName() string
}

func (f *Field) attrName() string { return f.name }

func (r *Relationship) attrName() string { return r.name }

// Record is the join metadata for one foreign-key column: the column on the
// declaring table, and the table and column it references. Attr and Target
// are set only for Relationship-backed records.
type Record struct {
	Attr      string
	FieldName string
	RefTable  string
	RefField  string
	Target    *Meta
	Unique    bool
}

type column struct {
	name  string
	field *Field
	rel   *Relationship
}

// Meta is the immutable description of one entity type. It is produced by
// Registry.Define and only read afterwards, so it is safe to share.
type Meta struct {
	name    string
	table   string
	columns []column
	fields  map[string]*Field
	rels    map[string]*Relationship
	relCols map[string]*Relationship
	records []Record
	pk      *Field
}

func newMeta(name, table string, attrs []Attribute) (*Meta, error) {
	if name == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "entity name is required")
	}
	if table == "" {
		table = strings.ToLower(name)
	}
	m := &Meta{
		name:    name,
		table:   table,
		fields:  make(map[string]*Field),
		rels:    make(map[string]*Relationship),
		relCols: make(map[string]*Relationship),
	}

	seen := make(map[string]bool)
	claim := func(n string) error {
		if n == "" {
			return errs.Newf(errs.ErrKindInvalidInput, "%s: attribute with empty name", name)
		}
		if seen[n] {
			return errs.Newf(errs.ErrKindInvalidInput, "%s: duplicate attribute %q", name, n)
		}
		seen[n] = true
		return nil
	}

	for _, a := range attrs {
		switch x := a.(type) {
		case *Field:
			if err := claim(x.name); err != nil {
				return nil, err
			}
			if x.primaryKey {
				if m.pk != nil {
					return nil, errs.Newf(errs.ErrKindInvalidInput, "%s: more than one primary key", name)
				}
				m.pk = x
			}
			m.fields[x.name] = x
			m.columns = append(m.columns, column{name: x.name, field: x})
			if table, col, ok := x.ForeignKey(); ok {
				m.records = append(m.records, Record{
					FieldName: x.name,
					RefTable:  table,
					RefField:  col,
					Unique:    x.IsUnique(),
				})
			}
		case *Relationship:
			if x.target == nil {
				return nil, errs.Newf(errs.ErrKindInvalidInput, "%s.%s: relationship without target", name, x.name)
			}
			if err := claim(x.name); err != nil {
				return nil, err
			}
			if err := claim(x.Column()); err != nil {
				return nil, err
			}
			m.rels[x.name] = x
			m.relCols[x.Column()] = x
			m.columns = append(m.columns, column{name: x.Column(), rel: x})
			m.records = append(m.records, Record{
				Attr:      x.name,
				FieldName: x.Column(),
				RefTable:  x.target.table,
				RefField:  x.refColumn,
				Target:    x.target,
				Unique:    x.Unique(),
			})
		default:
			return nil, errs.Newf(errs.ErrKindInvalidInput, "%s: unsupported attribute %T", name, a)
		}
	}

	if m.pk == nil {
		if seen["id"] {
			return nil, errs.Newf(errs.ErrKindInvalidInput, "%s: attribute \"id\" is not a primary key and no other primary key is declared", name)
		}
		m.pk = Integer("id", PrimaryKey())
		m.fields["id"] = m.pk
		m.columns = append([]column{{name: "id", field: m.pk}}, m.columns...)
	}
	return m, nil
}

// Name is the entity type name, e.g. "Cliente".
func (m *Meta) Name() string { return m.name }

// Table is the backing table name.
func (m *Meta) Table() string { return m.table }

// PrimaryKey returns the identity field. An entity declared without one gets
// an auto-increment integer "id".
func (m *Meta) PrimaryKey() *Field { return m.pk }

// Field returns the named field or nil.
func (m *Meta) Field(name string) *Field { return m.fields[name] }

// Relationship returns the named relationship or nil.
func (m *Meta) Relationship(name string) *Relationship { return m.rels[name] }

// Columns lists storage columns in declaration order.
func (m *Meta) Columns() []string {
	out := make([]string, len(m.columns))
	for i, c := range m.columns {
		out[i] = c.name
	}
	return out
}

// Fields lists scalar fields in declaration order.
func (m *Meta) Fields() []*Field {
	var out []*Field
	for _, c := range m.columns {
		if c.field != nil {
			out = append(out, c.field)
		}
	}
	return out
}

// Relationships lists relationships in declaration order.
func (m *Meta) Relationships() []*Relationship {
	var out []*Relationship
	for _, c := range m.columns {
		if c.rel != nil {
			out = append(out, c.rel)
		}
	}
	return out
}

// Records returns the foreign-key records used for join inference. The
// slice is a copy.
func (m *Meta) Records() []Record {
	return append([]Record(nil), m.records...)
}

// HasColumn reports whether name is a storage column of the entity.
func (m *Meta) HasColumn(name string) bool {
	if _, ok := m.fields[name]; ok {
		return true
	}
	_, ok := m.relCols[name]
	return ok
}

// ColumnDefinitions renders "<col> <definition>, ..." in declaration order.
// MySQL ignores inline REFERENCES, so there the foreign keys follow the
// columns as table constraints.
func (m *Meta) ColumnDefinitions(d database.Dialect) string {
	defs := make([]string, 0, len(m.columns))
	var constraints []string
	for _, c := range m.columns {
		switch {
		case d != database.DialectMySQL && c.field != nil:
			defs = append(defs, d.Quote(c.name)+" "+c.field.Definition(d))
		case d != database.DialectMySQL:
			defs = append(defs, d.Quote(c.name)+" "+c.rel.Definition(d))
		case c.field != nil:
			defs = append(defs, d.Quote(c.name)+" "+c.field.definition(d, false))
			if table, col, ok := c.field.ForeignKey(); ok {
				constraints = append(constraints, fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s(%s)",
					d.Quote(c.name), d.Quote(table), d.Quote(col)))
			}
		default:
			def := c.rel.columnType(d)
			if c.rel.Unique() {
				def += " UNIQUE"
			}
			defs = append(defs, d.Quote(c.name)+" "+def)
			constraints = append(constraints, fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s(%s) ON DELETE %s",
				d.Quote(c.name), d.Quote(c.rel.target.table), d.Quote(c.rel.refColumn), c.rel.onDelete))
		}
	}
	return strings.Join(append(defs, constraints...), ", ")
}

// Schema renders the CREATE TABLE statement. It only reads the record built
// at registration.
func (m *Meta) Schema(d database.Dialect) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", d.Quote(m.table), m.ColumnDefinitions(d))
}

// DropSchema renders the DROP TABLE statement.
func (m *Meta) DropSchema(d database.Dialect) string {
	stmt := "DROP TABLE IF EXISTS " + d.Quote(m.table)
	if d.DropCascade() {
		stmt += " CASCADE"
	}
	return stmt
}

// LinkTable returns the name of the link table backing a many-to-many
// relationship: <table>_<target table>.
func (m *Meta) LinkTable(r *Relationship) string {
	return m.table + "_" + r.target.table
}

// LinkColumns names the two key columns of the link table:
// <table>_id for the declaring side and <target table>_id for the target.
func (m *Meta) LinkColumns(r *Relationship) (left, right string) {
	return m.table + "_id", r.target.table + "_id"
}

// LinkSchemas renders one CREATE TABLE statement per many-to-many
// relationship. Link rows go away with either side.
func (m *Meta) LinkSchemas(d database.Dialect) []string {
	var out []string
	for _, r := range m.Relationships() {
		if r.kind != ManyToManyRel {
			continue
		}
		left, right := m.LinkColumns(r)
		leftType := "INTEGER"
		if !m.pk.autoIncrement() {
			leftType = m.pk.storageType(d)
		}
		out = append(out, fmt.Sprintf(
			"CREATE TABLE IF NOT EXISTS %s (%s %s REFERENCES %s(%s) ON DELETE CASCADE, %s %s REFERENCES %s(%s) ON DELETE CASCADE, PRIMARY KEY (%s, %s))",
			d.Quote(m.LinkTable(r)),
			d.Quote(left), leftType, d.Quote(m.table), d.Quote(m.pk.name),
			d.Quote(right), r.columnType(d), d.Quote(r.target.table), d.Quote(r.refColumn),
			d.Quote(left), d.Quote(right),
		))
	}
	return out
}

// LinkTables lists the link table names, in the order of LinkSchemas.
func (m *Meta) LinkTables() []string {
	var out []string
	for _, r := range m.Relationships() {
		if r.kind == ManyToManyRel {
			out = append(out, m.LinkTable(r))
		}
	}
	return out
}

// Registry is the side table of declared entity types. Define them in
// dependency order: a relationship needs its target's *Meta, so targets are
// always registered first and Entities is already safe for bulk creation.
type Registry struct {
	mu      sync.RWMutex
	byName  map[string]*Meta
	byTable map[string]*Meta
	order   []*Meta
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName:  make(map[string]*Meta),
		byTable: make(map[string]*Meta),
	}
}

// Define registers an entity type. table may be empty, in which case the
// lower-cased name is used.
func (r *Registry) Define(name, table string, attrs ...Attribute) (*Meta, error) {
	m, err := newMeta(name, table, attrs)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byName[m.name]; dup {
		return nil, errs.Newf(errs.ErrKindConflict, "entity %q already defined", m.name)
	}
	if _, dup := r.byTable[m.table]; dup {
		return nil, errs.Newf(errs.ErrKindConflict, "table %q already used by another entity", m.table)
	}
	r.byName[m.name] = m
	r.byTable[m.table] = m
	r.order = append(r.order, m)
	return m, nil
}

// MustDefine is Define for package-level declarations; it panics on error.
func (r *Registry) MustDefine(name, table string, attrs ...Attribute) *Meta {
	m, err := r.Define(name, table, attrs...)
	if err != nil {
		panic(err)
	}
	return m
}

// Lookup finds an entity by name, case-insensitively.
func (r *Registry) Lookup(name string) (*Meta, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if m, ok := r.byName[name]; ok {
		return m, true
	}
	for n, m := range r.byName {
		if strings.EqualFold(n, name) {
			return m, true
		}
	}
	return nil, false
}

// LookupTable finds an entity by table name.
func (r *Registry) LookupTable(table string) (*Meta, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byTable[table]
	return m, ok
}

// Entities returns every registered entity, referenced entities first.
// Drop tables in the reverse order.
func (r *Registry) Entities() []*Meta {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Meta(nil), r.order...)
}
