package dataset

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
)

// Options selects the backend and the enabled datasets.
type Options struct {
	Backend Backend

	// DSN is the database connection string. Optional for sqlite.
	DSN string

	// DataDir holds the CSV files and the default SQLite database.
	DataDir string

	Continue bool
	Inactive bool
	Whois    bool

	// Results enables the per-test results table. SQL backends only.
	Results bool

	Logger *slog.Logger
}

// Datasets groups the datasets of a run, all on the same backend.
type Datasets struct {
	Continue *ContinueDataset
	Inactive *InactiveDataset
	Whois    *WhoisDataset
	Results  *ResultLog

	Backend Backend
	db      *sql.DB
	closers []func() error
}

// Open builds every dataset on the configured backend.
func Open(ctx context.Context, opts Options) (*Datasets, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Backend == "" {
		opts.Backend = BackendCSV
	}

	if !opts.Backend.IsSQL() {
		return openCSV(opts), nil
	}
	return openSQL(ctx, opts)
}

func openCSV(opts Options) *Datasets {
	logger := WithCSVLogger(opts.Logger)
	cont := NewCSVStore(opts.DataDir, ContinueSchema, opts.Continue, logger)
	inactive := NewCSVStore(opts.DataDir, InactiveSchema, opts.Inactive, logger)
	whois := NewCSVStore(opts.DataDir, WhoisSchema, opts.Whois, logger)

	if opts.Results {
		opts.Logger.Warn("results table requires a SQL backend, ignoring", "backend", opts.Backend)
	}

	return &Datasets{
		Continue: NewContinueDataset(cont),
		Inactive: NewInactiveDataset(inactive),
		Whois:    NewWhoisDataset(whois),
		Results:  &ResultLog{},
		Backend:  BackendCSV,
		closers:  []func() error{cont.Close, inactive.Close, whois.Close},
	}
}

func openSQL(ctx context.Context, opts Options) (*Datasets, error) {
	db, dialect, err := OpenDB(ctx, opts.Backend, opts.DSN, opts.DataDir)
	if err != nil {
		return nil, err
	}

	d, err := newSQLDatasets(ctx, db, dialect, opts)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	d.Backend = opts.Backend
	return d, nil
}

// NewSQLDatasets builds the datasets on an already open database. The
// database is closed by Datasets.Close.
func NewSQLDatasets(ctx context.Context, db *sql.DB, dialect Dialect, opts Options) (*Datasets, error) {
	d, err := newSQLDatasets(ctx, db, dialect, opts)
	if err != nil {
		return nil, err
	}
	d.Backend = Backend(dialect.Name())
	return d, nil
}

func newSQLDatasets(ctx context.Context, db *sql.DB, dialect Dialect, opts Options) (*Datasets, error) {
	cont, err := NewSQLStore(ctx, db, dialect, ContinueSchema, opts.Continue)
	if err != nil {
		return nil, err
	}
	inactive, err := NewSQLStore(ctx, db, dialect, InactiveSchema, opts.Inactive)
	if err != nil {
		return nil, err
	}
	whois, err := NewSQLStore(ctx, db, dialect, WhoisSchema, opts.Whois)
	if err != nil {
		return nil, err
	}
	results, err := NewResultLog(ctx, db, dialect, opts.Results)
	if err != nil {
		return nil, err
	}

	return &Datasets{
		Continue: NewContinueDataset(cont),
		Inactive: NewInactiveDataset(inactive),
		Whois:    NewWhoisDataset(whois),
		Results:  results,
		db:       db,
	}, nil
}

// Close releases the stores and the shared database.
func (d *Datasets) Close() error {
	var errs []error
	for _, c := range d.closers {
		errs = append(errs, c())
	}
	if d.db != nil {
		if err := d.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Disabled returns datasets that store nothing. Used for single subjects
// tested without persistence.
func Disabled() *Datasets {
	return &Datasets{
		Continue: NewContinueDataset(NewCSVStore("", ContinueSchema, false)),
		Inactive: NewInactiveDataset(NewCSVStore("", InactiveSchema, false)),
		Whois:    NewWhoisDataset(NewCSVStore("", WhoisSchema, false)),
		Results:  &ResultLog{},
		Backend:  BackendCSV,
	}
}
