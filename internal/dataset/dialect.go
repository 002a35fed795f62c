package dataset

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Dialect hides the SQL differences between the supported databases.
type Dialect interface {
	// Name returns the backend name.
	Name() string

	// Placeholder returns the n-th (1-based) bind parameter.
	Placeholder(n int) string

	// KeyType is the column type of comparison columns.
	KeyType() string

	// AutoIncrement is the definition of a surrogate primary key column.
	AutoIncrement() string

	// Upsert returns an INSERT that replaces the row on key conflict.
	Upsert(table string, columns, key []string) string

	// IsDuplicate reports whether err is a unique constraint violation.
	IsDuplicate(err error) bool
}

// DialectFor returns the dialect of a SQL backend.
func DialectFor(b Backend) (Dialect, error) {
	switch b {
	case BackendSQLite:
		return sqliteDialect{}, nil
	case BackendMariaDB, BackendMySQL:
		return mysqlDialect{}, nil
	case BackendPostgreSQL:
		return postgresDialect{}, nil
	default:
		return nil, fmt.Errorf("%w: %q is not a SQL backend", ErrUnknownBackend, b)
	}
}

// placeholders returns n question-mark or numbered placeholders starting at from.
func placeholders(d Dialect, from, n int) []string {
	out := make([]string, n)
	for i := range n {
		out[i] = d.Placeholder(from + i)
	}
	return out
}

// insertPrefix is the plain INSERT shared by every dialect.
func insertPrefix(d Dialect, table string, columns []string) string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(columns, ", "), strings.Join(placeholders(d, 1, len(columns)), ", "))
}

// nonKey returns the columns not part of key.
func nonKey(columns, key []string) []string {
	var out []string
	for _, c := range columns {
		isKey := false
		for _, k := range key {
			if c == k {
				isKey = true
				break
			}
		}
		if !isKey {
			out = append(out, c)
		}
	}
	return out
}

type sqliteDialect struct{}

func (sqliteDialect) Name() string           { return string(BackendSQLite) }
func (sqliteDialect) Placeholder(int) string { return "?" }
func (sqliteDialect) KeyType() string        { return "TEXT" }
func (sqliteDialect) AutoIncrement() string  { return "INTEGER PRIMARY KEY AUTOINCREMENT" }

func (d sqliteDialect) Upsert(table string, columns, key []string) string {
	return insertPrefix(d, table, columns) + onConflict(key, nonKey(columns, key), "excluded")
}

func (sqliteDialect) IsDuplicate(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

// mysqlDialect serves both MariaDB and MySQL.
type mysqlDialect struct{}

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

func (mysqlDialect) Name() string           { return string(BackendMySQL) }
func (mysqlDialect) Placeholder(int) string { return "?" }

// KeyType keeps three key columns under the 3072 byte index limit of utf8mb4.
func (mysqlDialect) KeyType() string { return "VARCHAR(255)" }

func (mysqlDialect) AutoIncrement() string { return "BIGINT AUTO_INCREMENT PRIMARY KEY" }

func (d mysqlDialect) Upsert(table string, columns, key []string) string {
	updates := nonKey(columns, key)
	if len(updates) == 0 {
		updates = key[:1]
	}
	sets := make([]string, len(updates))
	for i, c := range updates {
		sets[i] = fmt.Sprintf("%s = VALUES(%s)", c, c)
	}
	return insertPrefix(d, table, columns) + " ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
}

func (mysqlDialect) IsDuplicate(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry
}

type postgresDialect struct{}

// postgresUniqueViolation is SQLSTATE unique_violation.
const postgresUniqueViolation = "23505"

func (postgresDialect) Name() string             { return string(BackendPostgreSQL) }
func (postgresDialect) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }
func (postgresDialect) KeyType() string          { return "TEXT" }
func (postgresDialect) AutoIncrement() string    { return "BIGSERIAL PRIMARY KEY" }

func (d postgresDialect) Upsert(table string, columns, key []string) string {
	return insertPrefix(d, table, columns) + onConflict(key, nonKey(columns, key), "EXCLUDED")
}

func (postgresDialect) IsDuplicate(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == postgresUniqueViolation
}

// onConflict renders the ON CONFLICT clause of SQLite and PostgreSQL.
func onConflict(key, updates []string, excluded string) string {
	clause := " ON CONFLICT (" + strings.Join(key, ", ") + ")"
	if len(updates) == 0 {
		return clause + " DO NOTHING"
	}
	sets := make([]string, len(updates))
	for i, c := range updates {
		sets[i] = fmt.Sprintf("%s = %s.%s", c, excluded, c)
	}
	return clause + " DO UPDATE SET " + strings.Join(sets, ", ")
}
