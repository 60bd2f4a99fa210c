// Package storage provides the relational video store used by the analytical agent.
package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/spherical-ai/trendscope/internal/domain"
)

// Supported database/sql driver names.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Common errors
var (
	ErrNotFound = errors.New("record not found")
	ErrReadOnly = errors.New("store is read-only")
)

// Options configures Open.
type Options struct {
	// Path is a SQLite file path or a postgres:// URL.
	Path         string
	Table        string
	MaxOpenConns int
	// ReadOnly opens SQLite with mode=ro and runs Postgres queries in READ ONLY transactions.
	ReadOnly bool
}

// Store is a database/sql handle over the videos table.
type Store struct {
	db       *sql.DB
	driver   string
	table    string
	readOnly bool
}

// Result holds the rows of a query together with their column order.
type Result struct {
	Columns []string
	Rows    []domain.Row
}

// DriverFor picks the driver from the path: postgres URLs use lib/pq, anything else is a SQLite file.
func DriverFor(path string) string {
	if strings.HasPrefix(path, "postgres://") || strings.HasPrefix(path, "postgresql://") {
		return DriverPostgres
	}
	return DriverSQLite
}

func sqliteDSN(path string, readOnly bool) string {
	dsn := path
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	if readOnly {
		return dsn + sep + "mode=ro&_busy_timeout=5000"
	}
	return dsn + sep + "_busy_timeout=5000"
}

// Open connects to the store described by opts and verifies the connection.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("store path is required")
	}
	if opts.Table == "" {
		opts.Table = DefaultTable
	}

	drv := DriverFor(opts.Path)
	dsn := opts.Path
	if drv == DriverSQLite {
		dsn = sqliteDSN(opts.Path, opts.ReadOnly)
	}

	db, err := sql.Open(drv, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Set connection pool settings
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{db: db, driver: drv, table: opts.Table, readOnly: opts.ReadOnly}, nil
}

// Driver returns the database/sql driver name.
func (s *Store) Driver() string { return s.driver }

// Table returns the videos table name.
func (s *Store) Table() string { return s.table }

// ReadOnly reports whether the handle rejects writes.
func (s *Store) ReadOnly() bool { return s.readOnly }

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Query runs a read statement and materializes every row. On Postgres the
// statement executes inside a READ ONLY transaction.
func (s *Store) Query(ctx context.Context, query string, args ...any) (*Result, error) {
	if s.driver == DriverPostgres {
		tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
		if err != nil {
			return nil, fmt.Errorf("begin read-only transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		rows, err := tx.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("query: %w", err)
		}
		return collect(rows)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	return collect(rows)
}

func collect(rows *sql.Rows) (*Result, error) {
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	result := &Result{Columns: cols, Rows: []domain.Row{}}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make(domain.Row, len(cols))
		for i, col := range cols {
			row[col] = normalizeValue(values[i])
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return result, nil
}

func normalizeValue(v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	default:
		return x
	}
}

// IsTransient reports whether err is worth retrying: a dropped connection,
// a busy or locked SQLite database, or a Postgres connection/serialization failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code == sqlite3.ErrBusy || liteErr.Code == sqlite3.ErrLocked
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08", "40", "53", "57":
			return true
		}
	}
	return false
}
