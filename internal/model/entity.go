package model

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/koustreak/arcforge/internal/errs"
)

// Reader loads one entity by primary key. The query engine implements it;
// relationship resolution goes through it so entities never hold a
// connection.
type Reader interface {
	Read(ctx context.Context, meta *Meta, id any) (*Entity, error)
}

// Entity is one row of an entity type: a bag of column values plus a cache
// of related entities that have been attached or resolved.
type Entity struct {
	meta    *Meta
	values  map[string]any
	related map[string]*Entity
}

// New builds an instance from attribute values. Every key must name a field,
// a relationship, or a relationship's <name>_id column. A relationship given
// an *Entity is reduced to <name>_id and the entity is cached. Values are not
// validated here; persistence calls do that.
func (m *Meta) New(attrs map[string]any) (*Entity, error) {
	e := m.empty()

	// Sorted so the first reported error is deterministic.
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if err := e.Set(k, attrs[k]); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// MustNew is New for literals in tests and examples; it panics on error.
func (m *Meta) MustNew(attrs map[string]any) *Entity {
	e, err := m.New(attrs)
	if err != nil {
		panic(err)
	}
	return e
}

func (m *Meta) empty() *Entity {
	return &Entity{
		meta:    m,
		values:  make(map[string]any),
		related: make(map[string]*Entity),
	}
}

// Load builds an instance from stored column values, converting each
// declared column from its driver representation. Columns the entity does
// not declare, such as aggregate aliases, are kept as they are.
func (m *Meta) Load(row map[string]any) *Entity {
	e := m.empty()
	for k, v := range row {
		e.values[k] = m.fromDB(k, v)
	}
	return e
}

func (m *Meta) fromDB(col string, v any) any {
	if f := m.fields[col]; f != nil {
		return f.FromDB(v)
	}
	if r := m.relCols[col]; r != nil {
		return r.refField().FromDB(v)
	}
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// Meta returns the entity's type.
func (e *Entity) Meta() *Meta { return e.meta }

// Is reports whether e is an instance of m.
func (e *Entity) Is(m *Meta) bool { return e != nil && e.meta == m }

// Set assigns one attribute following the rules of New.
func (e *Entity) Set(name string, v any) error {
	m := e.meta
	if m.HasColumn(name) {
		e.values[name] = v
		if r := m.relCols[name]; r != nil {
			if cached, ok := e.related[r.name]; ok && !sameID(cached.values[r.refColumn], v) {
				delete(e.related, r.name)
			}
		}
		return nil
	}
	if r := m.rels[name]; r != nil {
		switch x := v.(type) {
		case nil:
			return e.SetRelationship(name, nil)
		case *Entity:
			return e.SetRelationship(name, x)
		default:
			return errs.Newf(errs.ErrKindTypeMismatch,
				"%s.%s expects a %s entity, got %T (set %s to assign an id)", m.name, name, r.target.name, v, r.Column())
		}
	}
	return errs.Newf(errs.ErrKindUnknownField, "field %q does not exist on %s", name, m.name)
}

// Get returns a column value, or the cached related entity when name is a
// relationship. The second result reports whether anything was set.
func (e *Entity) Get(name string) (any, bool) {
	if _, ok := e.meta.rels[name]; ok {
		r, ok := e.related[name]
		return r, ok
	}
	v, ok := e.values[name]
	return v, ok
}

// Has reports whether the column has been assigned, even to nil.
func (e *Entity) Has(name string) bool {
	_, ok := e.values[name]
	return ok
}

// ID returns the primary key value, or nil.
func (e *Entity) ID() any {
	return e.values[e.meta.pk.name]
}

// SetID assigns the primary key, converting driver values to the field's
// canonical shape.
func (e *Entity) SetID(id any) {
	e.values[e.meta.pk.name] = e.meta.pk.FromDB(id)
}

// Present lists the declared columns that hold a value, in declaration order.
func (e *Entity) Present() []string {
	var out []string
	for _, c := range e.meta.columns {
		if _, ok := e.values[c.name]; ok {
			out = append(out, c.name)
		}
	}
	return out
}

// Validate checks every assigned column against its field contract.
func (e *Entity) Validate() error {
	for _, c := range e.meta.columns {
		v, ok := e.values[c.name]
		if !ok {
			continue
		}
		if err := e.meta.validateColumn(c, v); err != nil {
			return err
		}
	}
	return nil
}

// ValidateInsert is Validate plus a check that every NOT NULL column without
// a default has a value. The auto-increment key is exempt.
func (e *Entity) ValidateInsert() error {
	if err := e.Validate(); err != nil {
		return err
	}
	for _, f := range e.meta.Fields() {
		if f.autoIncrement() || f.IsNullable() || f.def != nil || f.rawDefault != "" {
			continue
		}
		if v, ok := e.values[f.name]; !ok || v == nil {
			return f.invalid("field cannot be null", nil)
		}
	}
	return nil
}

func (m *Meta) validateColumn(c column, v any) error {
	if c.field != nil {
		return c.field.Validate(v)
	}
	if v == nil {
		return nil
	}
	ref := c.rel.refField()
	if _, err := ref.Value(v); err != nil {
		return errs.Validation(fmt.Sprintf("%s: invalid reference to %s", c.name, c.rel.target.name), ref.TypeName(), v)
	}
	return nil
}

// Args returns the bound values for cols, converted for the driver.
// Callers validate first.
func (e *Entity) Args(cols []string) ([]any, error) {
	args := make([]any, 0, len(cols))
	for _, name := range cols {
		v := e.values[name]
		var (
			out any
			err error
		)
		switch {
		case e.meta.fields[name] != nil:
			out, err = e.meta.fields[name].Value(v)
		case e.meta.relCols[name] != nil && v != nil:
			out, err = e.meta.relCols[name].refField().Value(v)
		default:
			out = v
		}
		if err != nil {
			return nil, err
		}
		args = append(args, out)
	}
	return args, nil
}

// SetRelationship attaches related to the named relationship, storing both
// the entity and its id. A nil entity clears both.
func (e *Entity) SetRelationship(name string, related *Entity) error {
	r := e.meta.rels[name]
	if r == nil {
		return errs.Newf(errs.ErrKindUnknownField, "relationship %q does not exist on %s", name, e.meta.name)
	}
	if related == nil {
		e.values[r.Column()] = nil
		delete(e.related, name)
		return nil
	}
	if !related.Is(r.target) {
		return errs.Newf(errs.ErrKindTypeMismatch,
			"%s.%s expects a %s entity, got %s", e.meta.name, name, r.target.name, related.meta.name)
	}
	e.values[r.Column()] = related.values[r.refColumn]
	e.related[name] = related
	return nil
}

// ResolveRelationship returns the related entity, fetching it through reader
// on first access and caching it. It returns nil when <name>_id is unset or
// no row matches.
func (e *Entity) ResolveRelationship(ctx context.Context, name string, reader Reader) (*Entity, error) {
	r := e.meta.rels[name]
	if r == nil {
		return nil, errs.Newf(errs.ErrKindUnknownField, "relationship %q does not exist on %s", name, e.meta.name)
	}
	if cached, ok := e.related[name]; ok {
		return cached, nil
	}
	id := e.values[r.Column()]
	if id == nil {
		return nil, nil
	}
	related, err := reader.Read(ctx, r.target, id)
	if err != nil {
		return nil, err
	}
	if related != nil {
		e.related[name] = related
	}
	return related, nil
}

// Related returns the cached related entity without fetching.
func (e *Entity) Related(name string) (*Entity, bool) {
	r, ok := e.related[name]
	return r, ok
}

// ToMap dumps every assigned value, declared or not, as a flat map.
func (e *Entity) ToMap() map[string]any {
	out := make(map[string]any, len(e.values))
	for k, v := range e.values {
		out[k] = v
	}
	return out
}

// MarshalJSON writes the flat dump with any cached related entities nested
// under their relationship names.
func (e *Entity) MarshalJSON() ([]byte, error) {
	out := e.ToMap()
	for name, r := range e.related {
		out[name] = r
	}
	return json.Marshal(out)
}

// String renders Name(col=value, ...) with declared columns first.
func (e *Entity) String() string {
	parts := make([]string, 0, len(e.values))
	seen := make(map[string]bool, len(e.values))
	for _, c := range e.meta.columns {
		if v, ok := e.values[c.name]; ok {
			parts = append(parts, fmt.Sprintf("%s=%v", c.name, v))
			seen[c.name] = true
		}
	}
	var extra []string
	for k := range e.values {
		if !seen[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		parts = append(parts, fmt.Sprintf("%s=%v", k, e.values[k]))
	}
	return e.meta.name + "(" + strings.Join(parts, ", ") + ")"
}

func sameID(a, b any) bool {
	if x, ok := toInt64(a); ok {
		y, ok := toInt64(b)
		return ok && x == y
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}
