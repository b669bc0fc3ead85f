package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// ErrUnknownOperation indicates an operation name outside the catalog
// allowlist. Callers map it to a "not found" class failure.
var ErrUnknownOperation = errors.New("unknown analytics operation")

// ErrRefreshInProgress indicates a refresh cycle is already running.
var ErrRefreshInProgress = errors.New("refresh already in progress")

// ValidationError reports an out-of-range or malformed parameter.
// Raised before any cache lookup or query execution.
type ValidationError struct {
	Param  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid parameter %q: %s", e.Param, e.Reason)
}

// QueryTimeoutError reports an analytical query that exceeded its
// statement timeout. The operation failed; partial rows are never
// returned.
type QueryTimeoutError struct {
	Operation string
	Timeout   time.Duration
	Err       error
}

func (e *QueryTimeoutError) Error() string {
	return fmt.Sprintf("query %q exceeded %s timeout: %v", e.Operation, e.Timeout, e.Err)
}

func (e *QueryTimeoutError) Unwrap() error {
	return e.Err
}

// IsValidationError reports whether err is a parameter validation failure
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsQueryTimeout reports whether err is a statement timeout failure
func IsQueryTimeout(err error) bool {
	var qe *QueryTimeoutError
	return errors.As(err, &qe)
}

// pqQueryCanceled is the Postgres error code raised when
// statement_timeout cancels a query.
const pqQueryCanceled = "57014"

// isTimeoutCause reports whether a raw executor error was caused by the
// statement timeout or the context deadline.
func isTimeoutCause(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == pqQueryCanceled {
		return true
	}
	return false
}
