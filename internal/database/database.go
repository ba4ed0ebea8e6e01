package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bryan-buckman/readless/internal/model"
	sqlbuilder "github.com/huandu/go-sqlbuilder"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLStore implements Store on top of database/sql. The SQL dialect is
// chosen by the go-sqlbuilder flavor the store was opened with.
type SQLStore struct {
	conn     *sql.DB
	flavor   sqlbuilder.Flavor
	dbType   string
	isUnique func(error) bool
}

// Ensure SQLStore implements Store interface.
var _ Store = (*SQLStore)(nil)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// NewSQLite opens or creates an SQLite database at the given path and
// applies pending migrations.
func NewSQLite(path string) (*SQLStore, error) {
	conn, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// SQLite only supports one writer at a time.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(time.Hour)

	if _, err := runMigrations(conn, "sqlite"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLStore{
		conn:     conn,
		flavor:   sqlbuilder.SQLite,
		dbType:   "SQLite",
		isUnique: sqliteUniqueViolation,
	}, nil
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.conn.Close()
}

// DatabaseType returns the database backend name.
func (s *SQLStore) DatabaseType() string {
	return s.dbType
}

func sqliteUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		return strings.Contains(se.Error(), "UNIQUE constraint failed")
	}
	return false
}

// withTx runs fn inside a transaction, committing only when fn succeeds.
func (s *SQLStore) withTx(fn func(tx *sql.Tx) error) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *SQLStore) lookupID(q queryer, table, column string, value any) (int64, error) {
	sb := s.flavor.NewSelectBuilder()
	sb.Select("id").From(table).Where(sb.Equal(column, value))
	query, args := sb.Build()

	var id int64
	err := q.QueryRow(query, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to look up %s id: %w", table, err)
	}
	return id, nil
}

func (s *SQLStore) feedID(q queryer, url string) (int64, error) {
	return s.lookupID(q, "feeds", "url", url)
}

func (s *SQLStore) categoryID(q queryer, name string) (int64, error) {
	return s.lookupID(q, "categories", "name", name)
}

func unixOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func timeFromUnix(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}

func rowsAffected(res sql.Result) int64 {
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return n
}

// scanFeed reads the columns selected by feedColumns.
func scanFeed(scan func(dest ...any) error) (model.Feed, error) {
	var (
		f           model.Feed
		lastUpdated sql.NullTime
	)
	if err := scan(&f.ID, &f.URL, &f.Title, &lastUpdated, &f.Enabled); err != nil {
		return f, err
	}
	if lastUpdated.Valid {
		f.LastUpdated = lastUpdated.Time.UTC()
	} else {
		f.LastUpdated = model.Epoch
	}
	return f, nil
}

var feedColumns = []string{"id", "url", "title", "last_updated", "enabled"}
