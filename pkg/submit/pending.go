package submit

import (
	"context"

	"github.com/CrumpLab/vertical/pkg/submit/payload"
)

// Pending is the completion handle of a submission started by SaveLocally.
//
// Ignoring it keeps the submission fire-and-forget. It is safe for
// concurrent use.
type Pending struct {
	done    chan struct{}
	receipt *payload.Receipt
	err     error
}

func newPending() *Pending {
	return &Pending{done: make(chan struct{})}
}

func (p *Pending) complete(receipt *payload.Receipt, err error) {
	p.receipt = receipt
	p.err = err
	close(p.done)
}

// Done returns a channel that is closed once the submission has completed.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Err returns the outcome of the submission, or nil if it has not completed
// yet or completed successfully.
func (p *Pending) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// Wait blocks until the submission completes or ctx is done.
//
// A ctx that expires first does not cancel the submission; it only stops
// the wait.
func (p *Pending) Wait(ctx context.Context) (*payload.Receipt, error) {
	select {
	case <-p.done:
		return p.receipt, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
