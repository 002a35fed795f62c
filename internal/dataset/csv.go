package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// CSVStore keeps a dataset in a header-less CSV file.
//
// The file is read once into an in-memory index on first use. Updates are
// appended, so a key may appear several times on disk; the last row wins on
// load. Removals rewrite the file without the removed rows.
type CSVStore[R any] struct {
	schema     Schema[R]
	path       string
	authorized bool
	logger     *slog.Logger

	mu      sync.RWMutex
	loaded  bool
	loadErr error
	rows    map[string][]string
	order   []string

	file   *os.File
	writer *csv.Writer
}

// CSVOption configures a CSVStore.
type CSVOption func(*csvOptions)

type csvOptions struct {
	logger *slog.Logger
}

// WithCSVLogger sets a custom logger.
func WithCSVLogger(logger *slog.Logger) CSVOption {
	return func(o *csvOptions) {
		o.logger = logger
	}
}

// NewCSVStore creates a store backed by <dir>/<schema.File>.
// Nothing touches the disk before the first call.
func NewCSVStore[R any](dir string, schema Schema[R], authorized bool, opts ...CSVOption) *CSVStore[R] {
	o := csvOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	return &CSVStore[R]{
		schema:     schema,
		path:       filepath.Join(dir, schema.File),
		authorized: authorized,
		logger:     o.logger,
	}
}

// Path returns the CSV file location.
func (s *CSVStore[R]) Path() string {
	return s.path
}

// Authorized implements Store.
func (s *CSVStore[R]) Authorized() bool {
	return s.authorized
}

// Exists implements Store.
func (s *CSVStore[R]) Exists(ctx context.Context, r R) (bool, error) {
	_, ok, err := s.Get(ctx, r)
	return ok, err
}

// Get implements Store.
func (s *CSVStore[R]) Get(_ context.Context, r R) (R, bool, error) {
	var zero R
	if !s.authorized {
		return zero, false, nil
	}

	row, err := s.schema.Encode(r)
	if err != nil {
		return zero, false, err
	}
	if err := s.load(); err != nil {
		return zero, false, err
	}

	s.mu.RLock()
	stored, ok := s.rows[s.schema.keyOf(row)]
	s.mu.RUnlock()
	if !ok {
		return zero, false, nil
	}

	found, err := s.schema.decode(stored)
	if err != nil {
		return zero, false, err
	}
	return found, true, nil
}

// Update implements Store.
func (s *CSVStore[R]) Update(_ context.Context, r R, ignoreIfExist bool) error {
	if !s.authorized {
		return nil
	}

	row, err := s.schema.Encode(r)
	if err != nil {
		return err
	}
	if err := s.load(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := s.schema.keyOf(row)
	if _, ok := s.rows[key]; ok {
		if ignoreIfExist {
			return nil
		}
	} else {
		s.order = append(s.order, key)
	}
	s.rows[key] = row

	return s.appendRow(row)
}

// Remove implements Store.
func (s *CSVStore[R]) Remove(_ context.Context, r R) error {
	if !s.authorized {
		return nil
	}

	row, err := s.schema.Encode(r)
	if err != nil {
		return err
	}
	if err := s.load(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := s.schema.keyOf(row)
	if _, ok := s.rows[key]; !ok {
		return nil
	}
	delete(s.rows, key)
	return s.compact()
}

// Content implements Store. It iterates over a snapshot taken at call time.
func (s *CSVStore[R]) Content(ctx context.Context) iter.Seq2[R, error] {
	return s.Find(ctx, nil)
}

// Find implements Store.
func (s *CSVStore[R]) Find(ctx context.Context, f Filter) iter.Seq2[R, error] {
	if !s.authorized {
		return empty[R]()
	}
	if err := s.schema.validate(f); err != nil {
		return failed[R](err)
	}
	if err := s.load(); err != nil {
		return failed[R](err)
	}

	snapshot := s.snapshot(f)

	return func(yield func(R, error) bool) {
		for _, row := range snapshot {
			if err := ctx.Err(); err != nil {
				var zero R
				yield(zero, err)
				return
			}
			r, err := s.schema.decode(row)
			if !yield(r, err) {
				return
			}
		}
	}
}

// RemoveWhere implements Store.
func (s *CSVStore[R]) RemoveWhere(_ context.Context, match func(R) bool) (int, error) {
	if !s.authorized {
		return 0, nil
	}
	if err := s.load(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, row := range s.rows {
		r, err := s.schema.decode(row)
		if err != nil {
			return removed, err
		}
		if match(r) {
			delete(s.rows, key)
			removed++
		}
	}

	if removed == 0 {
		return 0, nil
	}
	return removed, s.compact()
}

// Close implements Store.
func (s *CSVStore[R]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeFile()
}

// snapshot copies the rows matching f in insertion order.
func (s *CSVStore[R]) snapshot(f Filter) [][]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([][]string, 0, len(s.rows))
	for _, key := range s.order {
		row, ok := s.rows[key]
		if !ok || !s.schema.matches(row, f) {
			continue
		}
		out = append(out, row)
	}
	return out
}

// load reads the file into memory once. A missing file is an empty dataset.
func (s *CSVStore[R]) load() error {
	s.mu.RLock()
	loaded, loadErr := s.loaded, s.loadErr
	s.mu.RUnlock()
	if loaded {
		return loadErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return s.loadErr
	}

	s.loaded = true
	s.rows = make(map[string][]string)
	s.loadErr = s.readFile()
	return s.loadErr
}

func (s *CSVStore[R]) readFile() error {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open %s dataset: %w", s.schema.Name, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = false

	line := 0
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			s.logger.Warn("skipping unreadable dataset row",
				"dataset", s.schema.Name,
				"line", line,
				"error", err,
			)
			continue
		}
		if _, err := s.schema.decode(row); err != nil {
			s.logger.Warn("skipping malformed dataset row",
				"dataset", s.schema.Name,
				"line", line,
				"error", err,
			)
			continue
		}

		key := s.schema.keyOf(row)
		if _, ok := s.rows[key]; !ok {
			s.order = append(s.order, key)
		}
		s.rows[key] = row
	}

	return nil
}

// appendRow writes one row at the end of the file. Caller holds mu.
func (s *CSVStore[R]) appendRow(row []string) error {
	if s.writer == nil {
		if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
			return fmt.Errorf("failed to create dataset directory: %w", err)
		}
		f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return fmt.Errorf("failed to open %s dataset: %w", s.schema.Name, err)
		}
		s.file = f
		s.writer = csv.NewWriter(f)
	}

	if err := s.writer.Write(row); err != nil {
		return fmt.Errorf("failed to write %s dataset: %w", s.schema.Name, err)
	}
	s.writer.Flush()
	return s.writer.Error()
}

// compact rewrites the file with the live rows only. Caller holds mu.
func (s *CSVStore[R]) compact() error {
	if err := s.closeFile(); err != nil {
		return err
	}

	live := s.order[:0]
	for _, key := range s.order {
		if _, ok := s.rows[key]; ok {
			live = append(live, key)
		}
	}
	s.order = live

	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("failed to create dataset directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), "."+s.schema.File+".*")
	if err != nil {
		return fmt.Errorf("failed to compact %s dataset: %w", s.schema.Name, err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // already renamed on success

	w := csv.NewWriter(tmp)
	for _, key := range s.order {
		if err := w.Write(s.rows[key]); err != nil {
			_ = tmp.Close()
			return fmt.Errorf("failed to compact %s dataset: %w", s.schema.Name, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to compact %s dataset: %w", s.schema.Name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to compact %s dataset: %w", s.schema.Name, err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to compact %s dataset: %w", s.schema.Name, err)
	}
	return nil
}

// closeFile flushes and closes the append handle. Caller holds mu.
func (s *CSVStore[R]) closeFile() error {
	if s.file == nil {
		return nil
	}
	s.writer.Flush()
	werr := s.writer.Error()
	cerr := s.file.Close()
	s.file = nil
	s.writer = nil
	return errors.Join(werr, cerr)
}
