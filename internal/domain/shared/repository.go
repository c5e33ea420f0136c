package shared

import (
	"context"

	"github.com/google/uuid"
)

// RecordStore is the row-level capability every component persists through.
// It offers no multi-row atomicity: each call commits on its own.
//
// Implementations return *DomainError values of kind NotFound, Duplicate or
// Persistence so callers can branch with errors.Is.
type RecordStore[T any] interface {
	// Get returns the row with the given id or a NotFound error
	Get(ctx context.Context, id uuid.UUID) (*T, error)

	// Find returns every row matching the filter, oldest first
	Find(ctx context.Context, filter RowFilter) ([]T, error)

	// Insert persists a new row; uniqueness violations come back as Duplicate
	Insert(ctx context.Context, row *T) (*T, error)

	// Update writes the given columns of one row and returns the row as stored
	Update(ctx context.Context, id uuid.UUID, fields Fields) (*T, error)

	// Delete removes one row or reports NotFound
	Delete(ctx context.Context, id uuid.UUID) error
}

// Fields is a column -> value assignment for Update
type Fields map[string]any

// FilterOp is a comparison supported by RecordStore.Find
type FilterOp string

const (
	// OpEq is exact equality
	OpEq FilterOp = "eq"
	// OpEqFold is case-insensitive string equality
	OpEqFold FilterOp = "eq_fold"
	// OpContains matches array columns holding the value
	OpContains FilterOp = "contains"
)

// Condition is a single column predicate
type Condition struct {
	Field string
	Op    FilterOp
	Value any
}

// RowFilter is a conjunction of conditions. The zero value matches every row.
type RowFilter struct {
	Conditions []Condition
	Limit      int
	// OrderBy and OrderDir are checked against the store's sortable columns;
	// rows come back oldest first when OrderBy is empty or not sortable.
	OrderBy  string
	OrderDir string
}

// Where starts a filter with an equality condition
func Where(field string, value any) RowFilter {
	return RowFilter{}.Eq(field, value)
}

// Eq adds an equality condition
func (f RowFilter) Eq(field string, value any) RowFilter {
	return f.with(Condition{Field: field, Op: OpEq, Value: value})
}

// EqFold adds a case-insensitive equality condition
func (f RowFilter) EqFold(field, value string) RowFilter {
	return f.with(Condition{Field: field, Op: OpEqFold, Value: value})
}

// Contains adds an array-contains condition
func (f RowFilter) Contains(field, value string) RowFilter {
	return f.with(Condition{Field: field, Op: OpContains, Value: value})
}

// WithLimit caps the number of returned rows
func (f RowFilter) WithLimit(limit int) RowFilter {
	f.Limit = limit
	return f
}

// SortBy orders the result by field, "asc" or "desc"
func (f RowFilter) SortBy(field, dir string) RowFilter {
	f.OrderBy = field
	f.OrderDir = dir
	return f
}

func (f RowFilter) with(c Condition) RowFilter {
	conds := make([]Condition, 0, len(f.Conditions)+1)
	conds = append(conds, f.Conditions...)
	f.Conditions = append(conds, c)
	return f
}
