package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dgreene/pulse/pkg/observability"
)

// Executor runs a parameterized analytical query under an enforced
// statement timeout and returns an ordered sequence of rows.
type Executor interface {
	Execute(ctx context.Context, query string, args []interface{}, timeout time.Duration) ([]Row, error)
}

// SQLExecutor implements Executor on a PostgreSQL connection pool.
// Every query runs in its own transaction so SET LOCAL scopes the
// statement timeout to that query alone.
type SQLExecutor struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewSQLExecutor creates an executor on the given pool
func NewSQLExecutor(db *sql.DB, logger *observability.Logger) *SQLExecutor {
	return &SQLExecutor{db: db, logger: logger}
}

// Execute runs query with bound args. The timeout is enforced twice:
// server-side via statement_timeout and client-side via the context
// deadline, so a hung connection cannot outlive the contract either.
func (e *SQLExecutor) Execute(ctx context.Context, query string, args []interface{}, timeout time.Duration) ([]Row, error) {
	if timeout <= 0 {
		return nil, fmt.Errorf("executor timeout must be positive, got %s", timeout)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	// The timeout value comes from the catalog, never from callers.
	setTimeout := fmt.Sprintf("SET LOCAL statement_timeout = '%dms'", timeout.Milliseconds())
	if _, err := tx.ExecContext(ctx, setTimeout); err != nil {
		return nil, fmt.Errorf("set statement timeout: %w", err)
	}

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query execution: %w", err)
	}
	defer rows.Close()

	result, err := scanRows(rows)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return result, nil
}

// scanRows maps every row to column-name keyed values, preserving
// result order.
func scanRows(rows *sql.Rows) ([]Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	result := make([]Row, 0)
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		row := make(Row, len(cols))
		for i, col := range cols {
			row[col] = normalizeValue(values[i])
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return result, nil
}

// normalizeValue converts driver byte slices to strings. lib/pq returns
// NUMERIC columns as []byte; keeping them as strings preserves decimal
// precision through JSON serialization (decimal-to-string-to-decimal).
func normalizeValue(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
