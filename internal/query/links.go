package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/koustreak/arcforge/internal/database"
	"github.com/koustreak/arcforge/internal/errs"
	"github.com/koustreak/arcforge/internal/model"
)

// manyToMany resolves name to a many-to-many relationship of owner's entity.
// The owner must already have a key.
func manyToMany(owner *model.Entity, name string) (*model.Relationship, error) {
	if owner == nil {
		return nil, errs.New(errs.ErrKindInvalidInput, "nil owner")
	}
	meta := owner.Meta()
	r := meta.Relationship(name)
	if r == nil {
		return nil, errs.Newf(errs.ErrKindUnknownField, "relationship %q does not exist on %s", name, meta.Name())
	}
	if r.Kind() != model.ManyToManyRel {
		return nil, errs.Newf(errs.ErrKindInvalidInput, "%s.%s is %s, not ManyToMany", meta.Name(), name, r.Kind())
	}
	if owner.ID() == nil {
		return nil, errs.Newf(errs.ErrKindMissingID, "cannot link %s without %s", meta.Name(), meta.PrimaryKey().Name())
	}
	return r, nil
}

// linkKeys returns the referenced column value of every target.
func linkKeys(r *model.Relationship, targets []*model.Entity) ([]any, error) {
	keys := make([]any, 0, len(targets))
	for _, t := range targets {
		if t == nil {
			return nil, errs.Newf(errs.ErrKindInvalidInput, "nil %s", r.Target().Name())
		}
		if !t.Is(r.Target()) {
			return nil, errs.Newf(errs.ErrKindTypeMismatch, "%s expects a %s entity, got %s", r.Name(), r.Target().Name(), t.Meta().Name())
		}
		k, _ := t.Get(r.RefColumn())
		if k == nil {
			return nil, errs.Newf(errs.ErrKindMissingID, "cannot link an unsaved %s", r.Target().Name())
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// BuildLink renders the INSERT adding one owner-target pair to the link table.
func BuildLink(d database.Dialect, meta *model.Meta, r *model.Relationship) string {
	left, right := meta.LinkColumns(r)
	return fmt.Sprintf("INSERT INTO %s (%s, %s) VALUES (%s, %s)",
		d.Quote(meta.LinkTable(r)), d.Quote(left), d.Quote(right), d.Placeholder(1), d.Placeholder(2))
}

// BuildUnlink renders the DELETE for the owner's pairs. With pair set it
// matches one target; otherwise every link of the owner.
func BuildUnlink(d database.Dialect, meta *model.Meta, r *model.Relationship, pair bool) string {
	left, right := meta.LinkColumns(r)
	stmt := fmt.Sprintf("DELETE FROM %s WHERE %s = %s", d.Quote(meta.LinkTable(r)), d.Quote(left), d.Placeholder(1))
	if pair {
		stmt += fmt.Sprintf(" AND %s = %s", d.Quote(right), d.Placeholder(2))
	}
	return stmt
}

// BuildLinked renders the SELECT of the target rows linked to one owner,
// ordered by the target's key. Columns are labelled "table.column" so
// MapRow can rebuild the targets.
func BuildLinked(d database.Dialect, meta *model.Meta, r *model.Relationship) string {
	target := r.Target()
	link := meta.LinkTable(r)
	left, right := meta.LinkColumns(r)

	cols := make([]string, 0, len(target.Columns()))
	for _, c := range target.Columns() {
		cols = append(cols, d.Qualify(target.Table(), c)+" AS "+d.Quote(target.Table()+"."+c))
	}
	return fmt.Sprintf("SELECT %s FROM %s JOIN %s ON %s = %s WHERE %s = %s ORDER BY %s",
		strings.Join(cols, ", "),
		d.Quote(target.Table()),
		d.Quote(link),
		d.Qualify(link, right), d.Qualify(target.Table(), r.RefColumn()),
		d.Qualify(link, left), d.Placeholder(1),
		d.Qualify(target.Table(), target.PrimaryKey().Name()))
}

// Link adds a row to the relationship's link table for each target. All
// pairs are written in one transaction; a pair already present fails with
// a conflict error and nothing is written.
func (e *Engine) Link(ctx context.Context, owner *model.Entity, name string, targets ...*model.Entity) error {
	r, err := manyToMany(owner, name)
	if err != nil {
		return err
	}
	keys, err := linkKeys(r, targets)
	if err != nil {
		return err
	}
	stmt := BuildLink(e.Dialect(), owner.Meta(), r)
	err = e.mgr.WithCursor(ctx, func(c *database.Cursor) error {
		for _, k := range keys {
			if _, err := c.Exec(stmt, owner.ID(), k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	e.log.InfoWith("entities linked", map[string]any{"entity": owner.Meta().Name(), "id": owner.ID(), "relationship": name, "count": len(keys)})
	return nil
}

// Unlink removes the pairs for the given targets, or every pair of the
// owner when no target is given. Missing pairs are not an error.
func (e *Engine) Unlink(ctx context.Context, owner *model.Entity, name string, targets ...*model.Entity) error {
	r, err := manyToMany(owner, name)
	if err != nil {
		return err
	}
	keys, err := linkKeys(r, targets)
	if err != nil {
		return err
	}
	d := e.Dialect()
	return e.mgr.WithCursor(ctx, func(c *database.Cursor) error {
		if len(keys) == 0 {
			_, err := c.Exec(BuildUnlink(d, owner.Meta(), r, false), owner.ID())
			return err
		}
		stmt := BuildUnlink(d, owner.Meta(), r, true)
		for _, k := range keys {
			if _, err := c.Exec(stmt, owner.ID(), k); err != nil {
				return err
			}
		}
		return nil
	})
}

// Linked returns the target entities linked to owner through the link
// table. Unlike Query, the result is always a list.
func (e *Engine) Linked(ctx context.Context, owner *model.Entity, name string) ([]*model.Entity, error) {
	r, err := manyToMany(owner, name)
	if err != nil {
		return nil, err
	}
	stmt := BuildLinked(e.Dialect(), owner.Meta(), r)

	out := []*model.Entity{}
	err = e.mgr.WithCursor(ctx, func(c *database.Cursor) error {
		rows, err := c.Query(stmt, owner.ID())
		if err != nil {
			return err
		}
		columns, values, err := database.ScanAll(rows)
		if err != nil {
			return err
		}
		for _, v := range values {
			t, err := MapRow(r.Target(), columns, v)
			if err != nil {
				return err
			}
			out = append(out, t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
