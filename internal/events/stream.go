package events

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

var (
	ErrClosed = errors.New("event stream closed")
)

// Stream is the append-only, push-style event sequence of a single operation.
// The producing goroutine calls Emit and finally Close; one consumer ranges
// over Events. A closed stream cannot be reopened: a new operation needs a new
// Stream.
//
// Emit blocks until the consumer has taken the event (or the buffer has room),
// which is what paces the deletion to the transport's flush rate. Once the
// consumer context is done the stream detaches: further events still reach
// the observers but are no longer offered to the consumer, and the producer
// keeps going.
type Stream struct {
	id        string
	target    string
	ch        chan Event
	observers []Observer

	seq      int
	closed   bool
	detached atomic.Bool
	last     atomic.Int64
}

// NewStream creates a stream for operation id on target. buffer is the
// number of events that may be queued ahead of the consumer; 0 makes every
// Emit a hand-off.
func NewStream(id, target string, buffer int, observers ...Observer) *Stream {
	if buffer < 0 {
		buffer = 0
	}
	return &Stream{
		id:        id,
		target:    target,
		ch:        make(chan Event, buffer),
		observers: observers,
	}
}

// ID returns the operation id the stream belongs to
func (s *Stream) ID() string {
	return s.id
}

// Events returns the consumer side of the stream. The channel is closed after
// the last event.
func (s *Stream) Events() <-chan Event {
	return s.ch
}

// Emit appends e to the sequence. ctx represents the consumer's presence.
func (s *Stream) Emit(ctx context.Context, e Event) error {
	if s.closed {
		return ErrClosed
	}

	s.seq++
	s.last.Store(int64(e.Progress))
	env := Envelope{
		OperationID: s.id,
		Target:      s.target,
		Seq:         s.seq,
		Time:        time.Now(),
		Event:       e,
	}
	for _, o := range s.observers {
		o.Observe(env)
	}

	if s.detached.Load() {
		return nil
	}

	select {
	case s.ch <- e:
	case <-ctx.Done():
		s.detached.Store(true)
	}
	return nil
}

// Close ends the sequence. It is safe to call more than once.
func (s *Stream) Close() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// Detached reports whether the consumer went away before the stream ended
func (s *Stream) Detached() bool {
	return s.detached.Load()
}

// Emitted returns how many events have been appended so far
func (s *Stream) Emitted() int {
	return s.seq
}

// LastProgress returns the progress value of the most recent event
func (s *Stream) LastProgress() int {
	return int(s.last.Load())
}
