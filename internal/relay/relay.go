// Package relay bridges a background sensor producer and the frame-driven
// consumer.
//
// The wire is an unbounded FIFO: Send appends and returns immediately, so the
// producer never waits on the consumer's frame rate. The consumer pulls every
// pending message once per frame and folds it into three latest-value slots
// (status, error, sample). Older messages of the same kind are superseded,
// never surfaced individually.
package relay

import (
	"errors"
	"sync"
)

// ErrClosed is returned by Send after Close, and reported to the consumer
// (Latest.Closed) once the producer side has gone away.
var ErrClosed = errors.New("relay closed")

// Relay is the shared mailbox. The zero value is not usable; use New.
type Relay struct {
	mu     sync.Mutex
	queue  []Message
	closed bool

	// wake has capacity 1; a pending token means "queue may be non-empty".
	wake chan struct{}
}

// New creates an empty, open relay.
func New() *Relay {
	return &Relay{
		wake: make(chan struct{}, 1),
	}
}

// Send enqueues m. It never blocks on the consumer.
func (r *Relay) Send(m Message) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	r.queue = append(r.queue, m)
	r.mu.Unlock()

	r.signal()
	return nil
}

// Close marks the producer side finished. Messages already queued are still
// delivered. Close is idempotent.
func (r *Relay) Close() {
	r.mu.Lock()
	already := r.closed
	r.closed = true
	r.mu.Unlock()

	if !already {
		r.signal()
	}
}

// Wake returns a channel that receives a token whenever new messages (or the
// close) are pending. Frame-driven consumers can ignore it.
func (r *Relay) Wake() <-chan struct{} {
	return r.wake
}

func (r *Relay) signal() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// take swaps out everything pending, in emission order.
func (r *Relay) take() (batch []Message, closed bool) {
	r.mu.Lock()
	batch = r.queue
	r.queue = nil
	closed = r.closed
	r.mu.Unlock()
	return batch, closed
}

// Inbox is the consumer end. It owns the latest-value slots; it is not safe
// for concurrent use and belongs to the frame loop.
type Inbox struct {
	relay  *Relay
	latest Latest
}

// NewInbox attaches a consumer to r.
func NewInbox(r *Relay) *Inbox {
	return &Inbox{relay: r}
}

// DrainLatest pulls every pending message and returns the folded slots.
// It never blocks; with nothing pending it returns the previous slots with
// Fresh cleared.
func (in *Inbox) DrainLatest() Latest {
	batch, closed := in.relay.take()

	l := in.latest
	l.Fresh = false
	for _, m := range batch {
		l = l.Fold(m)
	}
	// Queue was swapped out under the same lock that observed closed, so
	// nothing can follow the close.
	if closed {
		l.Closed = true
	}

	in.latest = l
	return l
}

// Latest returns the slots as of the last drain without pulling.
func (in *Inbox) Latest() Latest {
	return in.latest
}
