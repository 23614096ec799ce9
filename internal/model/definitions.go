package model

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/koustreak/arcforge/internal/errs"
)

// Definitions is the YAML form of a set of entity declarations:
//
//	entities:
//	  - name: Cliente
//	    table: tb_cliente
//	    fields:
//	      - {name: id, type: integer, primary_key: true}
//	      - {name: nome, type: char, max_length: 100, not_null: true}
//	  - name: Pedido
//	    fields:
//	      - {name: total, type: real}
//	    relationships:
//	      - {name: cliente, kind: many_to_one, target: Cliente, on_delete: restrict}
//
// Entities are registered in file order, so targets come first.
type Definitions struct {
	Entities []EntityDef `yaml:"entities"`
}

type EntityDef struct {
	Name          string            `yaml:"name"`
	Table         string            `yaml:"table"`
	Fields        []FieldDef        `yaml:"fields"`
	Relationships []RelationshipDef `yaml:"relationships"`
}

type FieldDef struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	MaxLength  int    `yaml:"max_length"`
	PrimaryKey bool   `yaml:"primary_key"`
	Unique     bool   `yaml:"unique"`
	NotNull    bool   `yaml:"not_null"`
	Default    any    `yaml:"default"`
	RawDefault string `yaml:"raw_default"`
	References *struct {
		Table  string `yaml:"table"`
		Column string `yaml:"column"`
	} `yaml:"references"`
}

type RelationshipDef struct {
	Name      string `yaml:"name"`
	Kind      string `yaml:"kind"`
	Target    string `yaml:"target"`
	OnDelete  string `yaml:"on_delete"`
	RefColumn string `yaml:"ref_column"`
}

// LoadDefinitionsFile reads path and registers its entities.
func LoadDefinitionsFile(path string, reg *Registry) ([]*Meta, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadDefinitions(f, reg)
}

// LoadDefinitions decodes YAML declarations from r and registers each
// entity in reg. It stops at the first invalid entity.
func LoadDefinitions(r io.Reader, reg *Registry) ([]*Meta, error) {
	var defs Definitions
	if err := yaml.NewDecoder(r).Decode(&defs); err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "decode definitions", err)
	}

	metas := make([]*Meta, 0, len(defs.Entities))
	for _, ed := range defs.Entities {
		attrs := make([]Attribute, 0, len(ed.Fields)+len(ed.Relationships))
		for _, fd := range ed.Fields {
			f, err := fd.build()
			if err != nil {
				return nil, fmt.Errorf("%s: %w", ed.Name, err)
			}
			attrs = append(attrs, f)
		}
		for _, rd := range ed.Relationships {
			rel, err := rd.build(reg)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", ed.Name, err)
			}
			attrs = append(attrs, rel)
		}
		m, err := reg.Define(ed.Name, ed.Table, attrs...)
		if err != nil {
			return nil, err
		}
		metas = append(metas, m)
	}
	return metas, nil
}

func (fd FieldDef) build() (*Field, error) {
	var opts []FieldOption
	if fd.PrimaryKey {
		opts = append(opts, PrimaryKey())
	}
	if fd.Unique {
		opts = append(opts, Unique())
	}
	if fd.NotNull {
		opts = append(opts, NotNull())
	}
	if fd.Default != nil {
		opts = append(opts, Default(fd.Default))
	}
	if fd.RawDefault != "" {
		opts = append(opts, RawDefault(fd.RawDefault))
	}
	if fd.References != nil {
		opts = append(opts, References(fd.References.Table, fd.References.Column))
	}

	switch strings.ToLower(fd.Type) {
	case "char", "varchar", "string":
		if fd.MaxLength <= 0 {
			return nil, errs.Newf(errs.ErrKindInvalidInput, "field %q: char needs max_length", fd.Name)
		}
		return Char(fd.Name, fd.MaxLength, opts...), nil
	case "text":
		return Text(fd.Name, opts...), nil
	case "integer", "int":
		return Integer(fd.Name, opts...), nil
	case "real", "float", "decimal":
		return Real(fd.Name, opts...), nil
	case "boolean", "bool":
		return Boolean(fd.Name, opts...), nil
	case "date":
		return Date(fd.Name, opts...), nil
	case "datetime", "timestamp":
		return DateTime(fd.Name, opts...), nil
	case "uuid":
		return UUID(fd.Name, opts...), nil
	}
	return nil, errs.Newf(errs.ErrKindInvalidInput, "field %q: unknown type %q", fd.Name, fd.Type)
}

func (rd RelationshipDef) build(reg *Registry) (*Relationship, error) {
	target, ok := reg.Lookup(rd.Target)
	if !ok {
		return nil, errs.Newf(errs.ErrKindInvalidInput, "relationship %q: unknown target %q (declare it first)", rd.Name, rd.Target)
	}
	policy, err := ParseOnDelete(rd.OnDelete)
	if err != nil {
		return nil, fmt.Errorf("relationship %q: %w", rd.Name, err)
	}
	opts := []RelOption{WithOnDelete(policy)}
	if rd.RefColumn != "" {
		opts = append(opts, RefColumn(rd.RefColumn))
	}

	switch strings.ToLower(strings.ReplaceAll(rd.Kind, "_", "")) {
	case "", "manytoone":
		return ManyToOne(rd.Name, target, opts...), nil
	case "onetoone":
		return OneToOne(rd.Name, target, opts...), nil
	case "manytomany":
		return ManyToMany(rd.Name, target, opts...), nil
	}
	return nil, errs.Newf(errs.ErrKindInvalidInput, "relationship %q: unknown kind %q", rd.Name, rd.Kind)
}
