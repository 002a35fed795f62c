package dataset

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"strings"
)

// SQLStore keeps a dataset in one table of a shared database.
// The table and its unique key are created if absent.
type SQLStore[R any] struct {
	db         *sql.DB
	dialect    Dialect
	schema     Schema[R]
	authorized bool

	selectCols string
	whereKey   string
	insertSQL  string
	upsertSQL  string
}

// NewSQLStore creates the dataset table if needed and returns the store.
// An unauthorized store never touches the database.
func NewSQLStore[R any](ctx context.Context, db *sql.DB, dialect Dialect, schema Schema[R], authorized bool) (*SQLStore[R], error) {
	s := &SQLStore[R]{
		db:         db,
		dialect:    dialect,
		schema:     schema,
		authorized: authorized,
		selectCols: strings.Join(schema.Columns, ", "),
		insertSQL:  insertPrefix(dialect, schema.Table, schema.Columns),
		upsertSQL:  dialect.Upsert(schema.Table, schema.Columns, schema.Key),
	}
	s.whereKey = s.where(schema.Key, 1)

	if !authorized {
		return s, nil
	}

	if err := s.createTable(ctx); err != nil {
		return nil, fmt.Errorf("failed to create %s table: %w", schema.Table, err)
	}
	return s, nil
}

// createTable creates the table with a unique constraint on the key columns.
func (s *SQLStore[R]) createTable(ctx context.Context) error {
	defs := make([]string, 0, len(s.schema.Columns)+1)
	for _, c := range s.schema.Columns {
		colType := "TEXT"
		if s.isKey(c) {
			colType = s.dialect.KeyType()
		}
		defs = append(defs, fmt.Sprintf("%s %s NOT NULL", c, colType))
	}
	defs = append(defs, fmt.Sprintf("UNIQUE (%s)", strings.Join(s.schema.Key, ", ")))

	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", s.schema.Table, strings.Join(defs, ",\n\t"))
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *SQLStore[R]) isKey(column string) bool {
	for _, k := range s.schema.Key {
		if k == column {
			return true
		}
	}
	return false
}

// where renders "a = ? AND b = ?" with placeholders numbered from from.
func (s *SQLStore[R]) where(columns []string, from int) string {
	parts := make([]string, len(columns))
	for i, c := range columns {
		parts[i] = fmt.Sprintf("%s = %s", c, s.dialect.Placeholder(from+i))
	}
	return strings.Join(parts, " AND ")
}

// Authorized implements Store.
func (s *SQLStore[R]) Authorized() bool {
	return s.authorized
}

// Exists implements Store.
func (s *SQLStore[R]) Exists(ctx context.Context, r R) (bool, error) {
	_, ok, err := s.Get(ctx, r)
	return ok, err
}

// Get implements Store.
func (s *SQLStore[R]) Get(ctx context.Context, r R) (R, bool, error) {
	var zero R
	if !s.authorized {
		return zero, false, nil
	}

	row, err := s.schema.Encode(r)
	if err != nil {
		return zero, false, err
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s", s.selectCols, s.schema.Table, s.whereKey)
	values := make([]string, len(s.schema.Columns))
	dest := make([]any, len(values))
	for i := range values {
		dest[i] = &values[i]
	}

	err = s.db.QueryRowContext(ctx, query, s.schema.keyValues(row)...).Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, fmt.Errorf("failed to query %s: %w", s.schema.Table, err)
	}

	found, err := s.schema.decode(values)
	if err != nil {
		return zero, false, err
	}
	return found, true, nil
}

// Update implements Store. With ignoreIfExist it is a plain INSERT whose
// duplicate key error is swallowed; otherwise a dialect upsert.
func (s *SQLStore[R]) Update(ctx context.Context, r R, ignoreIfExist bool) error {
	if !s.authorized {
		return nil
	}

	row, err := s.schema.Encode(r)
	if err != nil {
		return err
	}
	args := make([]any, len(row))
	for i, v := range row {
		args[i] = v
	}

	if ignoreIfExist {
		_, err = s.db.ExecContext(ctx, s.insertSQL, args...)
		if err != nil && s.dialect.IsDuplicate(err) {
			return nil
		}
	} else {
		_, err = s.db.ExecContext(ctx, s.upsertSQL, args...)
	}
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", s.schema.Table, err)
	}
	return nil
}

// Remove implements Store.
func (s *SQLStore[R]) Remove(ctx context.Context, r R) error {
	if !s.authorized {
		return nil
	}

	row, err := s.schema.Encode(r)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE %s", s.schema.Table, s.whereKey)
	if _, err := s.db.ExecContext(ctx, query, s.schema.keyValues(row)...); err != nil {
		return fmt.Errorf("failed to delete from %s: %w", s.schema.Table, err)
	}
	return nil
}

// Content implements Store.
func (s *SQLStore[R]) Content(ctx context.Context) iter.Seq2[R, error] {
	return s.Find(ctx, nil)
}

// Find implements Store. The rows are read eagerly so that callers may use
// the store while iterating, even on single-connection databases.
func (s *SQLStore[R]) Find(ctx context.Context, f Filter) iter.Seq2[R, error] {
	if !s.authorized {
		return empty[R]()
	}
	if err := s.schema.validate(f); err != nil {
		return failed[R](err)
	}

	rows, err := s.query(ctx, f)
	if err != nil {
		return failed[R](err)
	}

	return func(yield func(R, error) bool) {
		for _, row := range rows {
			r, err := s.schema.decode(row)
			if !yield(r, err) {
				return
			}
		}
	}
}

func (s *SQLStore[R]) query(ctx context.Context, f Filter) ([][]string, error) {
	query := fmt.Sprintf("SELECT %s FROM %s", s.selectCols, s.schema.Table)
	cols := f.columns()
	args := make([]any, len(cols))
	for i, c := range cols {
		args[i] = f[c]
	}
	if len(cols) > 0 {
		query += " WHERE " + s.where(cols, 1)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", s.schema.Table, err)
	}
	defer rows.Close()

	var out [][]string
	for rows.Next() {
		values := make([]string, len(s.schema.Columns))
		dest := make([]any, len(values))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", s.schema.Table, err)
		}
		out = append(out, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s: %w", s.schema.Table, err)
	}
	return out, nil
}

// RemoveWhere implements Store. Matching rows are deleted by key in one
// transaction.
func (s *SQLStore[R]) RemoveWhere(ctx context.Context, match func(R) bool) (int, error) {
	if !s.authorized {
		return 0, nil
	}

	rows, err := s.query(ctx, nil)
	if err != nil {
		return 0, err
	}

	var doomed [][]any
	for _, row := range rows {
		r, err := s.schema.decode(row)
		if err != nil {
			return 0, err
		}
		if match(r) {
			doomed = append(doomed, s.schema.keyValues(row))
		}
	}
	if len(doomed) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	query := fmt.Sprintf("DELETE FROM %s WHERE %s", s.schema.Table, s.whereKey)
	for _, key := range doomed {
		if _, err := tx.ExecContext(ctx, query, key...); err != nil {
			return 0, fmt.Errorf("failed to delete from %s: %w", s.schema.Table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}
	return len(doomed), nil
}

// Close implements Store. The shared database is closed by its owner.
func (s *SQLStore[R]) Close() error {
	return nil
}
