package dataset

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"strings"
)

// Store is the persistence contract shared by every dataset and backend.
//
// When Authorized is false every method is a no-op returning the zero value
// (false, nil, empty iteration).
type Store[R any] interface {
	// Authorized reports whether the store is enabled.
	Authorized() bool

	// Exists reports whether a record with the same key is stored.
	Exists(ctx context.Context, r R) (bool, error)

	// Get returns the stored record sharing the key of r.
	Get(ctx context.Context, r R) (R, bool, error)

	// Update stores r, replacing the record with the same key.
	// With ignoreIfExist, an existing record is kept untouched.
	Update(ctx context.Context, r R, ignoreIfExist bool) error

	// Remove deletes the record sharing the key of r.
	Remove(ctx context.Context, r R) error

	// Content iterates over every stored record.
	Content(ctx context.Context) iter.Seq2[R, error]

	// Find iterates over the records whose columns equal the filter values.
	Find(ctx context.Context, f Filter) iter.Seq2[R, error]

	// RemoveWhere deletes every record for which match returns true and
	// returns how many were deleted.
	RemoveWhere(ctx context.Context, match func(R) bool) (int, error)

	// Close releases the resources owned by the store.
	Close() error
}

// Filter selects records by column equality.
type Filter map[string]string

// columns returns the filter columns in a stable order.
func (f Filter) columns() []string {
	cols := make([]string, 0, len(f))
	for c := range f {
		cols = append(cols, c)
	}
	slices.Sort(cols)
	return cols
}

// Schema describes how a record type is laid out on disk.
// Columns is the CSV column order and the SQL column list.
type Schema[R any] struct {
	// Name is the dataset name used in logs.
	Name string

	// File is the CSV file name.
	File string

	// Table is the SQL table name.
	Table string

	Columns []string

	// Key lists the comparison columns, a subset of Columns.
	Key []string

	Encode func(R) ([]string, error)
	Decode func([]string) (R, error)
}

// index returns the position of column c.
func (s *Schema[R]) index(c string) int {
	return slices.Index(s.Columns, c)
}

// keyOf builds the comparison key of an encoded row.
func (s *Schema[R]) keyOf(row []string) string {
	parts := make([]string, len(s.Key))
	for i, k := range s.Key {
		parts[i] = row[s.index(k)]
	}
	return strings.Join(parts, "\x00")
}

// keyValues returns the key column values of an encoded row.
func (s *Schema[R]) keyValues(row []string) []any {
	values := make([]any, len(s.Key))
	for i, k := range s.Key {
		values[i] = row[s.index(k)]
	}
	return values
}

// matches reports whether an encoded row satisfies f.
func (s *Schema[R]) matches(row []string, f Filter) bool {
	for c, v := range f {
		if row[s.index(c)] != v {
			return false
		}
	}
	return true
}

// validate checks that every filter column exists.
func (s *Schema[R]) validate(f Filter) error {
	for c := range f {
		if s.index(c) < 0 {
			return fmt.Errorf("%w: %s.%s", ErrUnknownColumn, s.Name, c)
		}
	}
	return nil
}

// decode wraps Decode with the row context.
func (s *Schema[R]) decode(row []string) (R, error) {
	if len(row) != len(s.Columns) {
		var zero R
		return zero, fmt.Errorf("%w: %s: expected %d columns, got %d", ErrMalformedRow, s.Name, len(s.Columns), len(row))
	}
	r, err := s.Decode(row)
	if err != nil {
		var zero R
		return zero, fmt.Errorf("%w: %s: %w", ErrMalformedRow, s.Name, err)
	}
	return r, nil
}

// empty is the iteration returned by unauthorized stores.
func empty[R any]() iter.Seq2[R, error] {
	return func(func(R, error) bool) {}
}

// failed is an iteration yielding a single error.
func failed[R any](err error) iter.Seq2[R, error] {
	return func(yield func(R, error) bool) {
		var zero R
		yield(zero, err)
	}
}

// Collect drains an iteration into a slice, stopping at the first error.
func Collect[R any](seq iter.Seq2[R, error]) ([]R, error) {
	var out []R
	for r, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, r)
	}
	return out, nil
}
