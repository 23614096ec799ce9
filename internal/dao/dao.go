// Package dao binds one entity type to shorthand CRUD operations.
//
// A DAO checks that every instance it is handed belongs to its entity type
// before delegating to the query engine, and makes sure the backing table
// exists when it is created.
//
// Usage:
//
//	pedidos, err := dao.New(ctx, eng, pedido)
//	p := pedido.MustNew(map[string]any{"total": 10.5, "cliente": ana})
//	if err := pedidos.Save(ctx, p); err != nil { ... }
//	res, err := pedidos.FindAll(ctx)
package dao

import (
	"context"

	"github.com/koustreak/arcforge/internal/errs"
	"github.com/koustreak/arcforge/internal/model"
	"github.com/koustreak/arcforge/internal/query"
)

// DAO is the per-entity facade over the query engine.
type DAO struct {
	eng  *query.Engine
	meta *model.Meta
}

// New returns a DAO for meta, creating the table if it does not exist yet.
func New(ctx context.Context, eng *query.Engine, meta *model.Meta) (*DAO, error) {
	d := &DAO{eng: eng, meta: meta}
	exists, err := d.TableExists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := d.CreateTable(ctx); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Meta returns the bound entity type.
func (d *DAO) Meta() *model.Meta { return d.meta }

// New builds an unsaved instance of the bound entity type.
func (d *DAO) New(attrs map[string]any) (*model.Entity, error) {
	return d.meta.New(attrs)
}

func (d *DAO) CreateTable(ctx context.Context) error {
	return d.eng.CreateTable(ctx, d.meta)
}

func (d *DAO) DeleteTable(ctx context.Context) error {
	return d.eng.DeleteTable(ctx, d.meta)
}

func (d *DAO) TableExists(ctx context.Context) (bool, error) {
	return d.eng.TableExists(ctx, d.meta)
}

// Save inserts e and assigns its generated key.
func (d *DAO) Save(ctx context.Context, e *model.Entity) error {
	if err := d.check(e); err != nil {
		return err
	}
	return d.eng.Save(ctx, e)
}

// Update writes e back by key.
func (d *DAO) Update(ctx context.Context, e *model.Entity) error {
	if err := d.check(e); err != nil {
		return err
	}
	return d.eng.Update(ctx, e)
}

// Delete removes the row for an instance or a bare key.
func (d *DAO) Delete(ctx context.Context, target any) error {
	if e, ok := target.(*model.Entity); ok {
		if err := d.check(e); err != nil {
			return err
		}
	}
	return d.eng.Delete(ctx, d.meta, target)
}

// Read loads one instance by key; nil when no row matches.
func (d *DAO) Read(ctx context.Context, id any) (*model.Entity, error) {
	return d.eng.Read(ctx, d.meta, id)
}

// FindAll is a query without filters, ordered by key. Like every query it
// yields a single instance when exactly one row exists; see query.Result.
func (d *DAO) FindAll(ctx context.Context) (*query.Result, error) {
	return d.eng.FindAll(ctx, d.meta)
}

// Query runs spec against the bound entity type.
func (d *DAO) Query(ctx context.Context, spec query.Spec) (*query.Result, error) {
	return d.eng.Query(ctx, d.meta, spec)
}

// Filter parses mini-language parameters and runs the resulting query.
func (d *DAO) Filter(ctx context.Context, params map[string]any) (*query.Result, error) {
	spec, err := query.ParseParams(params)
	if err != nil {
		return nil, err
	}
	return d.Query(ctx, spec)
}

// Link adds many-to-many pairs between e and targets.
func (d *DAO) Link(ctx context.Context, e *model.Entity, name string, targets ...*model.Entity) error {
	if err := d.check(e); err != nil {
		return err
	}
	return d.eng.Link(ctx, e, name, targets...)
}

// Unlink removes pairs between e and targets, or all of e's pairs.
func (d *DAO) Unlink(ctx context.Context, e *model.Entity, name string, targets ...*model.Entity) error {
	if err := d.check(e); err != nil {
		return err
	}
	return d.eng.Unlink(ctx, e, name, targets...)
}

// Linked lists the targets linked to e.
func (d *DAO) Linked(ctx context.Context, e *model.Entity, name string) ([]*model.Entity, error) {
	if err := d.check(e); err != nil {
		return nil, err
	}
	return d.eng.Linked(ctx, e, name)
}

// From starts a fluent query on the bound entity type.
func (d *DAO) From() *query.Builder {
	return d.eng.From(d.meta)
}

func (d *DAO) check(e *model.Entity) error {
	if e == nil {
		return errs.Newf(errs.ErrKindInvalidInput, "nil %s", d.meta.Name())
	}
	if !e.Is(d.meta) {
		return errs.Newf(errs.ErrKindTypeMismatch, "expected a %s entity, got %s", d.meta.Name(), e.Meta().Name())
	}
	return nil
}
