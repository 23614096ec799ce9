package query

import (
	"strings"

	"github.com/koustreak/arcforge/internal/model"
)

// MapRow turns one result row into an entity of meta. Columns labelled
// "table.column" are grouped per table; unlabelled columns and those of the
// base table go to the entity itself. Each joined table whose entity is
// known and whose columns are not all NULL becomes the related entity of
// the relationship that introduced the join.
func MapRow(meta *model.Meta, columns []string, values []any) (*model.Entity, error) {
	bags := map[string]map[string]any{}
	primary := map[string]any{}

	for i, name := range columns {
		table, col, qualified := strings.Cut(name, ".")
		if !qualified || table == meta.Table() {
			if !qualified {
				col = name
			}
			primary[col] = values[i]
			continue
		}
		bag := bags[table]
		if bag == nil {
			bag = map[string]any{}
			bags[table] = bag
		}
		bag[col] = values[i]
	}

	e := meta.Load(primary)
	for _, j := range inferJoins(meta) {
		rec := j.record
		bag := bags[rec.RefTable]
		if rec.Target == nil || rec.Attr == "" || allNil(bag) {
			continue
		}
		if err := e.SetRelationship(rec.Attr, rec.Target.Load(bag)); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func allNil(bag map[string]any) bool {
	for _, v := range bag {
		if v != nil {
			return false
		}
	}
	return true
}
