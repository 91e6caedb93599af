package retry

import (
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/vidgate/internal/infra/rpc/classify"
)

// ErrNilOperation is returned when Execute is called without an operation.
var ErrNilOperation = errors.New("retry: nil operation")

// AggregateError is the terminal failure once the retry budget is spent.
// It reports as a classify.RawError so the aggregate classifies the same
// way as its last error.
type AggregateError struct {
	Operation     string
	Attempts      int
	TotalDuration time.Duration
	Errors        []error
	LastError     error
	Status        int
}

func (e *AggregateError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts in %v: %v",
		e.Operation, e.Attempts, e.TotalDuration.Round(time.Millisecond), e.LastError)
}

func (e *AggregateError) Unwrap() error { return e.LastError }

// StatusCode returns the status code of the last error, or 0.
func (e *AggregateError) StatusCode() int { return e.Status }

// Code returns the error code of the last error, or "".
func (e *AggregateError) Code() string { return classify.Inspect(e.LastError).Code() }

// Message returns the last error's message.
func (e *AggregateError) Message() string {
	if e.LastError == nil {
		return ""
	}
	return e.LastError.Error()
}
