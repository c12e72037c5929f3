package engine

import (
	"errors"
	"fmt"

	"github.com/dylanpieper/batchGPT/provider"
)

// ValidationError reports malformed run input. It is raised before any
// provider call and never enters the retry path.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ExhaustionError is the terminal failure of a run: one batch failed every
// attempt in the retry budget. The checkpoint store records the batch as
// interrupted before this error is returned.
type ExhaustionError struct {
	Batch    int
	Total    int
	Attempts int
	Cause    error
}

func (e *ExhaustionError) Error() string {
	return fmt.Sprintf("batch %d of %d failed after %d attempts: %v", e.Batch, e.Total, e.Attempts, e.Cause)
}

func (e *ExhaustionError) Unwrap() error {
	return e.Cause
}

// retryable reports whether a batch failure may be reissued. Upstream API
// failures and empty completions are retried; everything else is fatal for
// the run immediately.
func retryable(err error) bool {
	var provErr *provider.Error
	if errors.As(err, &provErr) {
		return true
	}
	var emptyErr *provider.EmptyCompletionError
	return errors.As(err, &emptyErr)
}
