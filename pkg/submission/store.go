package submission

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrExists   = errors.New("submission already exists")
	ErrNotFound = errors.New("submission not found")
)

// Record is a submission accepted by the receiver.
type Record struct {
	ID         string
	Filename   string
	Data       string
	ReceivedAt time.Time
}

// Clone returns a copy of the record.
func (r *Record) Clone() *Record {
	c := *r
	return &c
}

type Store interface {
	// Put stores a submission record.
	//
	// Returns ErrExists if a record with the same ID already exists.
	Put(ctx context.Context, r *Record) error

	// Get gets a submission record by its ID.
	//
	// Returns ErrNotFound if it could not be found.
	Get(ctx context.Context, id string) (*Record, error)

	// List returns all records submitted under filename, ordered by
	// the time they were received.
	//
	// An empty slice is returned if there are none.
	List(ctx context.Context, filename string) ([]*Record, error)
}
