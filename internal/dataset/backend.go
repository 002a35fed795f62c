package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	"github.com/jackc/pgx/v5/pgconn"
	_ "modernc.org/sqlite" // SQLite driver
)

// Backend names a storage family.
type Backend string

const (
	BackendCSV        Backend = "csv"
	BackendSQLite     Backend = "sqlite"
	BackendMariaDB    Backend = "mariadb"
	BackendMySQL      Backend = "mysql"
	BackendPostgreSQL Backend = "postgresql"
)

// Backends lists every supported backend.
var Backends = []Backend{BackendCSV, BackendSQLite, BackendMariaDB, BackendMySQL, BackendPostgreSQL}

// ParseBackend parses a backend name case-insensitively.
func ParseBackend(s string) (Backend, error) {
	b := Backend(strings.ToLower(strings.TrimSpace(s)))
	switch b {
	case "postgres":
		return BackendPostgreSQL, nil
	case BackendCSV, BackendSQLite, BackendMariaDB, BackendMySQL, BackendPostgreSQL:
		return b, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownBackend, s)
	}
}

// IsSQL reports whether the backend stores datasets in a database.
func (b Backend) IsSQL() bool {
	return b != BackendCSV
}

// SQLiteFile is the database file name used by the sqlite backend.
const SQLiteFile = "funceble.db"

// OpenDB opens the shared database of a SQL backend and checks it is
// reachable. For sqlite, an empty dsn places the database under dataDir.
func OpenDB(ctx context.Context, backend Backend, dsn, dataDir string) (*sql.DB, Dialect, error) {
	dialect, err := DialectFor(backend)
	if err != nil {
		return nil, nil, err
	}

	var db *sql.DB
	switch backend {
	case BackendSQLite:
		db, err = openSQLite(ctx, dsn, dataDir)
	case BackendMariaDB, BackendMySQL:
		db, err = openMySQL(dsn)
	case BackendPostgreSQL:
		db, err = openPostgres(dsn)
	}
	if err != nil {
		return nil, nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to reach %s database: %w", backend, err)
	}
	return db, dialect, nil
}

func openSQLite(ctx context.Context, dsn, dataDir string) (*sql.DB, error) {
	if dsn == "" {
		if err := os.MkdirAll(dataDir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = filepath.Join(dataDir, SQLiteFile) + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	return db, nil
}

func openMySQL(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%w: mysql", ErrMissingDSN)
	}

	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid mysql dsn: %w", err)
	}
	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := sql.OpenDB(connector)
	db.SetConnMaxLifetime(3 * time.Minute)
	db.SetMaxIdleConns(10)
	return db, nil
}

func openPostgres(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%w: postgresql", ErrMissingDSN)
	}
	if _, err := pgconn.ParseConfig(dsn); err != nil {
		return nil, fmt.Errorf("invalid postgresql dsn: %w", err)
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetConnMaxLifetime(time.Hour)
	return db, nil
}
