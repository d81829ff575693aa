package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// dbtx is the subset of database/sql methods shared by *sql.DB and
// *sql.Conn. The row helpers in this package operate on it so the same
// code serves both the store's read path and the transaction's write path.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// timeFormat is the canonical stored representation for timestamps.
const timeFormat = time.RFC3339Nano

// dbTime converts a time for storage. Times are stored as UTC RFC3339
// strings so ordering comparisons work lexically in SQL.
func dbTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

// dbTimePtr converts an optional time for storage.
func dbTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return dbTime(*t)
}

// parseTime parses a stored timestamp, tolerating the SQLite
// CURRENT_TIMESTAMP format for rows created outside Go code.
func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(timeFormat, s); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02 15:04:05", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("unparseable timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// scanTime converts a scanned nullable string into a time.
func scanTime(ns sql.NullString) (time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return time.Time{}, nil
	}
	return parseTime(ns.String)
}

// scanTimePtr converts a scanned nullable string into an optional time.
func scanTimePtr(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
