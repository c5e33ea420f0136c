package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/erp/crm/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormRecordStore implements shared.RecordStore over a single GORM model.
// Every call is an independent statement; nothing runs in a transaction.
type GormRecordStore[T any] struct {
	db         *gorm.DB
	entity     string
	sortFields map[string]bool
	// foldKeys maps a name column to the column holding its shared.FoldKey
	foldKeys map[string]string
}

// NewGormRecordStore creates a store for T. entity names the row kind in
// error messages ("client", "tag", ...).
func NewGormRecordStore[T any](db *gorm.DB, entity string) *GormRecordStore[T] {
	return &GormRecordStore[T]{db: db, entity: entity, sortFields: CommonSortFields}
}

// WithSortFields sets the columns Find may order by
func (s *GormRecordStore[T]) WithSortFields(fields map[string]bool) *GormRecordStore[T] {
	s.sortFields = fields
	return s
}

// WithFoldKey declares keyColumn as the folded copy of column. EqFold on
// column compares against keyColumn, and updates of column rewrite it.
// Columns without a fold key fall back to SQL LOWER, which only folds ASCII
// on sqlite.
func (s *GormRecordStore[T]) WithFoldKey(column, keyColumn string) *GormRecordStore[T] {
	if s.foldKeys == nil {
		s.foldKeys = make(map[string]string)
	}
	s.foldKeys[column] = keyColumn
	return s
}

var _ shared.RecordStore[struct{}] = (*GormRecordStore[struct{}])(nil)

// Get returns the row with the given id
func (s *GormRecordStore[T]) Get(ctx context.Context, id uuid.UUID) (*T, error) {
	var row T
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, s.translate(err, "get")
	}
	return &row, nil
}

// Find returns rows matching filter, oldest first unless the filter sorts
// by a whitelisted column
func (s *GormRecordStore[T]) Find(ctx context.Context, filter shared.RowFilter) ([]T, error) {
	query := s.db.WithContext(ctx).Model(new(T))
	for _, cond := range filter.Conditions {
		expr, err := s.conditionExpr(cond)
		if err != nil {
			return nil, err
		}
		query = query.Where(expr)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	rows := make([]T, 0)
	if err := query.Order(s.orderClause(filter)).Find(&rows).Error; err != nil {
		return nil, s.translate(err, "find")
	}
	return rows, nil
}

// Insert persists row
func (s *GormRecordStore[T]) Insert(ctx context.Context, row *T) (*T, error) {
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, s.translate(err, "insert")
	}
	return row, nil
}

// Update writes fields on the row with id and returns the stored row
func (s *GormRecordStore[T]) Update(ctx context.Context, id uuid.UUID, fields shared.Fields) (*T, error) {
	if len(fields) == 0 {
		return s.Get(ctx, id)
	}

	values := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		values[k] = v
		if key, ok := s.foldKeys[k]; ok {
			name, isString := v.(string)
			if !isString {
				return nil, shared.NewValidationError("INVALID_FIELD", fmt.Sprintf("%s must be a string", k))
			}
			values[key] = shared.FoldKey(name)
		}
	}
	values["updated_at"] = time.Now()

	result := s.db.WithContext(ctx).Model(new(T)).Where("id = ?", id).Updates(values)
	if result.Error != nil {
		return nil, s.translate(result.Error, "update")
	}
	if result.RowsAffected == 0 {
		return nil, shared.NewNotFoundError(fmt.Sprintf("%s %s not found", s.entity, id))
	}
	return s.Get(ctx, id)
}

// Delete removes the row with id
func (s *GormRecordStore[T]) Delete(ctx context.Context, id uuid.UUID) error {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(new(T))
	if result.Error != nil {
		return s.translate(result.Error, "delete")
	}
	if result.RowsAffected == 0 {
		return shared.NewNotFoundError(fmt.Sprintf("%s %s not found", s.entity, id))
	}
	return nil
}

func (s *GormRecordStore[T]) orderClause(filter shared.RowFilter) clause.OrderBy {
	field := ValidateSortField(filter.OrderBy, s.sortFields, "")
	if field == "" {
		return clause.OrderBy{Columns: []clause.OrderByColumn{{Column: clause.Column{Name: "created_at"}}}}
	}
	columns := []clause.OrderByColumn{{
		Column: clause.Column{Name: field},
		Desc:   ValidateSortOrder(filter.OrderDir) == "DESC",
	}}
	if field != "created_at" {
		// ties keep insertion order
		columns = append(columns, clause.OrderByColumn{Column: clause.Column{Name: "created_at"}})
	}
	return clause.OrderBy{Columns: columns}
}

func (s *GormRecordStore[T]) conditionExpr(cond shared.Condition) (clause.Expression, error) {
	column := clause.Column{Name: cond.Field}

	switch cond.Op {
	case shared.OpEq, "":
		return clause.Eq{Column: column, Value: cond.Value}, nil
	case shared.OpEqFold:
		if key, ok := s.foldKeys[cond.Field]; ok {
			value, _ := cond.Value.(string)
			return clause.Eq{Column: clause.Column{Name: key}, Value: shared.FoldKey(value)}, nil
		}
		return clause.Expr{SQL: "LOWER(?) = LOWER(?)", Vars: []any{column, cond.Value}}, nil
	case shared.OpContains:
		return s.containsExpr(column, cond.Value)
	default:
		return nil, shared.NewValidationError("INVALID_FILTER", fmt.Sprintf("unsupported filter operator %q", cond.Op))
	}
}

// containsExpr matches JSON array columns holding value
func (s *GormRecordStore[T]) containsExpr(column clause.Column, value any) (clause.Expression, error) {
	switch s.db.Dialector.Name() {
	case "sqlite":
		return clause.Expr{
			SQL:  "EXISTS (SELECT 1 FROM json_each(?) WHERE json_each.value = ?)",
			Vars: []any{column, value},
		}, nil
	case "postgres":
		needle, err := json.Marshal([]any{value})
		if err != nil {
			return nil, shared.NewValidationError("INVALID_FILTER", "contains value is not JSON encodable")
		}
		return clause.Expr{SQL: "? @> ?::jsonb", Vars: []any{column, string(needle)}}, nil
	default:
		return nil, shared.NewValidationError("INVALID_FILTER",
			fmt.Sprintf("contains filter not supported on %s", s.db.Dialector.Name()))
	}
}

func (s *GormRecordStore[T]) translate(err error, op string) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return shared.NewNotFoundError(fmt.Sprintf("%s not found", s.entity))
	case isUniqueViolation(err):
		dup := shared.NewDuplicateError("", fmt.Sprintf("%s already exists", s.entity))
		dup.Cause = err
		return dup
	default:
		return shared.NewPersistenceError(fmt.Sprintf("failed to %s %s", op, s.entity), err)
	}
}

// isUniqueViolation recognises unique-constraint failures from every driver
// we run on, translated or not.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "duplicate key")
}
