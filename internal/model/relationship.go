package model

import (
	"fmt"
	"strings"

	"github.com/koustreak/arcforge/internal/database"
	"github.com/koustreak/arcforge/internal/errs"
)

// RelKind distinguishes the three association shapes.
type RelKind int

const (
	ManyToOneRel RelKind = iota
	OneToOneRel
	ManyToManyRel
)

func (k RelKind) String() string {
	switch k {
	case OneToOneRel:
		return "OneToOne"
	case ManyToManyRel:
		return "ManyToMany"
	default:
		return "ManyToOne"
	}
}

// OnDelete is the referential action applied when the referenced row goes away.
type OnDelete string

const (
	Cascade    OnDelete = "CASCADE"
	Restrict   OnDelete = "RESTRICT"
	SetNull    OnDelete = "SET NULL"
	NoAction   OnDelete = "NO ACTION"
	SetDefault OnDelete = "SET DEFAULT"
)

// ParseOnDelete accepts the policy in any case, with a space or underscore
// between words.
func ParseOnDelete(s string) (OnDelete, error) {
	norm := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "_", " "))
	switch OnDelete(norm) {
	case Cascade, Restrict, SetNull, NoAction, SetDefault:
		return OnDelete(norm), nil
	case "":
		return Cascade, nil
	}
	return "", errs.Newf(errs.ErrKindInvalidInput, "unknown on_delete policy %q", s)
}

// Relationship is a foreign-key association from the declaring entity to
// Target. Its storage column is always <name>_id.
type Relationship struct {
	name      string
	kind      RelKind
	target    *Meta
	refColumn string
	onDelete  OnDelete
}

// RelOption configures a Relationship at construction.
type RelOption func(*Relationship)

// WithOnDelete sets the referential action. The default is CASCADE.
func WithOnDelete(p OnDelete) RelOption { return func(r *Relationship) { r.onDelete = p } }

// RefColumn points the foreign key at a column other than the target's
// primary key.
func RefColumn(col string) RelOption { return func(r *Relationship) { r.refColumn = col } }

func newRelationship(name string, kind RelKind, target *Meta, opts []RelOption) *Relationship {
	r := &Relationship{name: name, kind: kind, target: target, onDelete: Cascade}
	for _, opt := range opts {
		opt(r)
	}
	if r.refColumn == "" && target != nil {
		r.refColumn = target.PrimaryKey().Name()
	}
	return r
}

// ManyToOne declares that many rows of the declaring entity point at one
// row of target.
func ManyToOne(name string, target *Meta, opts ...RelOption) *Relationship {
	return newRelationship(name, ManyToOneRel, target, opts)
}

// OneToOne is ManyToOne with a uniqueness constraint on the column.
func OneToOne(name string, target *Meta, opts ...RelOption) *Relationship {
	return newRelationship(name, OneToOneRel, target, opts)
}

// ManyToMany stores the <name>_id column like the other kinds and also gets
// a link table when the declaring table is created.
func ManyToMany(name string, target *Meta, opts ...RelOption) *Relationship {
	return newRelationship(name, ManyToManyRel, target, opts)
}

func (r *Relationship) Name() string { return r.name }

func (r *Relationship) Kind() RelKind { return r.kind }

func (r *Relationship) Target() *Meta { return r.target }

func (r *Relationship) RefColumn() string { return r.refColumn }

func (r *Relationship) OnDelete() OnDelete { return r.onDelete }

// Column is the storage column, <name>_id.
func (r *Relationship) Column() string { return r.name + "_id" }

// Unique reports whether the column carries a uniqueness constraint.
func (r *Relationship) Unique() bool { return r.kind == OneToOneRel }

// refField is the target field the foreign key points at.
func (r *Relationship) refField() *Field {
	if f := r.target.Field(r.refColumn); f != nil {
		return f
	}
	return r.target.PrimaryKey()
}

// columnType is the storage type of the referencing column. It matches the
// referenced column with auto-increment stripped.
func (r *Relationship) columnType(d database.Dialect) string {
	ref := r.refField()
	if ref.autoIncrement() {
		return "INTEGER"
	}
	return ref.storageType(d)
}

// Definition renders <type> REFERENCES ref(col) ON DELETE <policy> [UNIQUE].
func (r *Relationship) Definition(d database.Dialect) string {
	def := fmt.Sprintf("%s REFERENCES %s(%s) ON DELETE %s",
		r.columnType(d), d.Quote(r.target.Table()), d.Quote(r.refColumn), r.onDelete)
	if r.Unique() {
		def += " UNIQUE"
	}
	return def
}
