package repository

import (
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

var ErrUnknownCollection = errors.New("unknown collection")

// allowedColumns maps queryable collections to their filterable
// columns. Table and column names cannot be bound as SQL parameters,
// so anything not listed here is rejected before query building.
var allowedColumns = map[string]map[string]bool{
	"users": {
		"id":        true,
		"email":     true,
		"name":      true,
		"social_id": true,
		"provider":  true,
	},
	"sessions": {
		"id":            true,
		"user_id":       true,
		"refresh_token": true,
	},
}

// LookupRepository answers generic existence queries, used by the
// exist validation rule for uniqueness-style checks.
type LookupRepository interface {
	ExistsWhere(collection, field string, value any, scope ...Filter) (bool, error)
}

type Filter struct {
	Field string
	Value any
}

type lookupRepository struct {
	db *sqlx.DB
}

func NewLookupRepository(db *sqlx.DB) LookupRepository {
	return &lookupRepository{db: db}
}

func (r *lookupRepository) ExistsWhere(collection, field string, value any, scope ...Filter) (bool, error) {
	columns, ok := allowedColumns[collection]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}
	if !columns[field] {
		return false, fmt.Errorf("%w: %s.%s", ErrUnknownCollection, collection, field)
	}

	query := fmt.Sprintf(`SELECT COUNT(1) FROM %s WHERE %s = $1`, collection, field)
	args := []any{value}

	for i, f := range scope {
		if !columns[f.Field] {
			return false, fmt.Errorf("%w: %s.%s", ErrUnknownCollection, collection, f.Field)
		}
		query += fmt.Sprintf(" AND %s = $%d", f.Field, i+2)
		args = append(args, f.Value)
	}

	var count int
	err := r.db.Get(&count, query, args...)
	if err != nil {
		return false, err
	}

	return count > 0, nil
}
