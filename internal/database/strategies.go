package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// ErrSchemaMismatch marks an error caused by the database having a different table or column
// shape than the query expected.
var ErrSchemaMismatch = errors.New("schema mismatch")

// Postgres error codes that indicate the query targets a shape the database does not have.
var schemaMismatchCodes = map[pq.ErrorCode]bool{
	"42703": true, // undefined_column
	"42P01": true, // undefined_table
	"42883": true, // undefined_function
}

// IsSchemaMismatch reports whether err came from querying a table/column shape that does not exist.
func IsSchemaMismatch(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrSchemaMismatch) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return schemaMismatchCodes[pqErr.Code]
	}
	return false
}

// Strategy is one way of running a query against a particular schema shape.
type Strategy[T any] struct {
	Name string
	Run  func(ctx context.Context) (T, error)
}

// FirstSuccessful runs strategies in order and returns the first result that does not fail with a
// schema mismatch, along with the name of the strategy that produced it. Any other error stops
// the search immediately.
func FirstSuccessful[T any](ctx context.Context, strategies ...Strategy[T]) (T, string, error) {
	var zero T
	var lastErr error
	for _, s := range strategies {
		if err := ctx.Err(); err != nil {
			return zero, "", err
		}
		out, err := s.Run(ctx)
		if err == nil {
			return out, s.Name, nil
		}
		if !IsSchemaMismatch(err) {
			return zero, s.Name, fmt.Errorf("%s: %w", s.Name, err)
		}
		lastErr = fmt.Errorf("%s: %w", s.Name, err)
	}
	if lastErr == nil {
		return zero, "", fmt.Errorf("no query strategies supplied")
	}
	return zero, "", fmt.Errorf("all query strategies failed: %w", lastErr)
}
