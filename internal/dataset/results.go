package dataset

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/funilrys/PyFunceble-sub002/internal/model"
)

// ResultsTable receives one row per tested subject and session.
const ResultsTable = "funceble_results"

var resultColumns = []string{
	"session_id", "source", "tested", "status", "status_source",
	"expiration_date", "http_status_code", "test_completed", "tested_at",
}

// ResultLog appends test results to a SQL table. A disabled log, or one
// without a database, drops everything.
type ResultLog struct {
	db      *sql.DB
	dialect Dialect
	enabled bool
	insert  string
}

// NewResultLog creates the results table if needed.
func NewResultLog(ctx context.Context, db *sql.DB, dialect Dialect, enabled bool) (*ResultLog, error) {
	l := &ResultLog{db: db, dialect: dialect, enabled: enabled && db != nil}
	if !l.enabled {
		return l, nil
	}
	l.insert = insertPrefix(dialect, ResultsTable, resultColumns)

	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id %s,
	session_id %s NOT NULL,
	source TEXT NOT NULL,
	tested TEXT NOT NULL,
	status TEXT NOT NULL,
	status_source TEXT NOT NULL,
	expiration_date TEXT NOT NULL,
	http_status_code INTEGER NOT NULL,
	test_completed INTEGER NOT NULL,
	tested_at TEXT NOT NULL
)`, ResultsTable, dialect.AutoIncrement(), dialect.KeyType())

	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return nil, fmt.Errorf("failed to create %s table: %w", ResultsTable, err)
	}
	return l, nil
}

// Enabled reports whether results are recorded.
func (l *ResultLog) Enabled() bool {
	return l != nil && l.enabled
}

// Record stores the outcome of one test. Outcomes without a result are skipped.
func (l *ResultLog) Record(ctx context.Context, o *model.Outcome) error {
	if !l.Enabled() || o == nil || o.Result == nil {
		return nil
	}

	expiration := ""
	if o.Result.HasExpirationDate() {
		expiration = o.Result.ExpirationDate.UTC().Format(model.WhoisDateLayout)
	}

	_, err := l.db.ExecContext(ctx, l.insert,
		o.Request.SessionID,
		o.Request.Source,
		o.Result.IDNASubject,
		string(o.Result.Status),
		o.Result.StatusSource,
		expiration,
		o.Result.HTTPStatusCode,
		1,
		formatTime(o.Result.TestedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to record result: %w", err)
	}
	return nil
}

// Count returns the number of recorded rows of a session.
func (l *ResultLog) Count(ctx context.Context, sessionID string) (int, error) {
	if !l.Enabled() {
		return 0, nil
	}
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE session_id = %s", ResultsTable, l.dialect.Placeholder(1))
	var n int
	if err := l.db.QueryRowContext(ctx, query, sessionID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count results: %w", err)
	}
	return n, nil
}
