package query

import (
	"encoding/json"

	"github.com/koustreak/arcforge/internal/model"
)

// Result holds the entities returned by a query. Callers that want the
// collapsed shape ask for it explicitly: Single when exactly one row came
// back, List otherwise.
type Result struct {
	rows []*model.Entity
}

func newResult(rows []*model.Entity) *Result {
	return &Result{rows: rows}
}

// Len returns the number of rows.
func (r *Result) Len() int { return len(r.rows) }

// All returns every row, whatever the count.
func (r *Result) All() []*model.Entity { return r.rows }

// Single returns the only row. ok is false unless exactly one row matched.
func (r *Result) Single() (*model.Entity, bool) {
	if len(r.rows) != 1 {
		return nil, false
	}
	return r.rows[0], true
}

// List returns the rows when there are zero or several. ok is false when
// exactly one row matched, in which case Single applies.
func (r *Result) List() ([]*model.Entity, bool) {
	if len(r.rows) == 1 {
		return nil, false
	}
	if r.rows == nil {
		return []*model.Entity{}, true
	}
	return r.rows, true
}

// Value is the collapsed form: the entity itself for one row, a slice
// (possibly empty) otherwise.
func (r *Result) Value() any {
	if e, ok := r.Single(); ok {
		return e
	}
	list, _ := r.List()
	return list
}

// MarshalJSON encodes the collapsed form.
func (r *Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Value())
}
