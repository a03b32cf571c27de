package payload

import (
	"regexp"

	"github.com/pkg/errors"

	"github.com/CrumpLab/vertical/pkg/trial"
)

const (
	// DefaultFilename is the destination name used when none is configured.
	DefaultFilename = "xprmntr_local_name"

	// DefaultPath is the route submissions are posted to, relative to the
	// origin of the experiment.
	DefaultPath = "submit"
)

var (
	ErrInvalidFilename = errors.New("filename must be 1-128 characters of [A-Za-z0-9_.-] and not start with '.'")

	filenamePattern = regexp.MustCompile(`^[A-Za-z0-9_-][A-Za-z0-9_.-]{0,127}$`)
)

// Request is the body of a submission.
type Request struct {
	// Filename identifies the destination of the export.
	Filename string `json:"filename"`
	// Filedata is the flat, comma delimited export of the experiment data.
	Filedata string `json:"filedata"`
}

// NewRequest snapshots the current export of src into a Request.
func NewRequest(filename string, src trial.Exporter) (*Request, error) {
	data, err := src.CSV()
	if err != nil {
		return nil, err
	}

	return &Request{
		Filename: filename,
		Filedata: data,
	}, nil
}

// Validate checks that the request can be safely stored.
func (r *Request) Validate() error {
	return ValidateFilename(r.Filename)
}

// ValidateFilename returns ErrInvalidFilename if name cannot be used as a
// destination name.
func ValidateFilename(name string) error {
	if !filenamePattern.MatchString(name) {
		return ErrInvalidFilename
	}
	return nil
}
