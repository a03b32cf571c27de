package submit

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrNilSource is returned when no data source is provided.
	ErrNilSource = errors.New("data source is nil")

	// errPermanent marks attempts that must not be retried.
	errPermanent = errors.New("permanent submission failure")
)

// ExportError indicates that the experiment data could not be exported.
// No request is sent when it occurs.
type ExportError struct {
	Err error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("failed to export experiment data: %v", e.Err)
}

// Cause returns the underlying export failure.
func (e *ExportError) Cause() error { return e.Err }

// Unwrap returns the underlying export failure.
func (e *ExportError) Unwrap() error { return e.Err }

// TransmitError indicates that the submission was not accepted by the
// receiving endpoint, either because it could not be reached (StatusCode
// is 0) or because it answered with a non-2xx status.
type TransmitError struct {
	Message    string
	StatusCode int
	Err        error
}

func (e *TransmitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("%s (status code: %d)", e.Message, e.StatusCode)
}

// Cause returns the underlying transport failure, if any.
func (e *TransmitError) Cause() error { return e.Err }

// Unwrap returns the underlying transport failure, if any.
func (e *TransmitError) Unwrap() error { return e.Err }

// Temporary returns whether a later attempt may succeed.
func (e *TransmitError) Temporary() bool {
	return e.StatusCode == 0 || e.StatusCode >= 500 || e.StatusCode == 429
}
