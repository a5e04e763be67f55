// Package chanx provides an unbounded multi-producer, single-consumer mailbox
// used between the driver tasks.
//
// Sends never block: a task that pushes a command to a peer never waits on the
// peer's progress. Once the receiving side is closed, every send reports
// ErrDisconnected and the value is dropped.
package chanx

import (
	"context"
	"errors"
	"sync"
)

// ErrDisconnected is returned by Send when the receiving task has closed its
// end, and by Recv when the mailbox is closed and empty.
var ErrDisconnected = errors.New("chanx: receiver disconnected")

type queue[T any] struct {
	notify chan struct{}

	mu     sync.Mutex
	closed bool
	buf    []T
}

// Sender is a cheap, copyable handle for pushing values into a mailbox. The
// zero Sender is permanently disconnected.
type Sender[T any] struct {
	q *queue[T]
}

// Receiver is the single consuming end of a mailbox.
type Receiver[T any] struct {
	q *queue[T]
}

// Unbounded creates a new mailbox and returns both ends.
func Unbounded[T any]() (Sender[T], Receiver[T]) {
	q := &queue[T]{notify: make(chan struct{}, 1)}
	return Sender[T]{q: q}, Receiver[T]{q: q}
}

// Send appends v to the mailbox.
func (s Sender[T]) Send(v T) error {
	if s.q == nil {
		return ErrDisconnected
	}
	s.q.mu.Lock()
	if s.q.closed {
		s.q.mu.Unlock()
		return ErrDisconnected
	}
	s.q.buf = append(s.q.buf, v)
	s.q.mu.Unlock()
	select {
	case s.q.notify <- struct{}{}:
	default:
	}
	return nil
}

// Clone returns another handle to the same mailbox.
func (s Sender[T]) Clone() Sender[T] {
	return Sender[T]{q: s.q}
}

// IsDisconnected reports whether sends to this handle are dropped.
func (s Sender[T]) IsDisconnected() bool {
	if s.q == nil {
		return true
	}
	s.q.mu.Lock()
	defer s.q.mu.Unlock()
	return s.q.closed
}

// SameChannel reports whether both handles feed the same mailbox.
func (s Sender[T]) SameChannel(other Sender[T]) bool {
	return s.q != nil && s.q == other.q
}

// Notify returns a channel that receives a token whenever new values may be
// available. Callers must drain with TryRecv after each token.
func (r Receiver[T]) Notify() <-chan struct{} {
	return r.q.notify
}

// TryRecv pops the oldest value without waiting.
func (r Receiver[T]) TryRecv() (T, bool) {
	r.q.mu.Lock()
	defer r.q.mu.Unlock()
	var zero T
	if len(r.q.buf) == 0 {
		return zero, false
	}
	v := r.q.buf[0]
	r.q.buf[0] = zero
	r.q.buf = r.q.buf[1:]
	return v, true
}

// Recv waits for the oldest value. It returns ErrDisconnected once the mailbox
// is closed and drained, or the context error if ctx ends first.
func (r Receiver[T]) Recv(ctx context.Context) (T, error) {
	for {
		if v, ok := r.TryRecv(); ok {
			return v, nil
		}
		r.q.mu.Lock()
		closed := r.q.closed
		r.q.mu.Unlock()
		if closed {
			var zero T
			return zero, ErrDisconnected
		}
		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-r.q.notify:
		}
	}
}

// Len returns the number of queued values.
func (r Receiver[T]) Len() int {
	r.q.mu.Lock()
	defer r.q.mu.Unlock()
	return len(r.q.buf)
}

// Close disconnects every sender and discards queued values.
func (r Receiver[T]) Close() {
	r.q.mu.Lock()
	r.q.closed = true
	r.q.buf = nil
	r.q.mu.Unlock()
	select {
	case r.q.notify <- struct{}{}:
	default:
	}
}
