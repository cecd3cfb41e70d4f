package events

import (
	"bytes"
	"encoding/json"
	"time"
)

// Kind classifies an event for the consumer
type Kind string

const (
	KindInfo    Kind = "info"
	KindDel     Kind = "del"
	KindSkip    Kind = "skip"
	KindError   Kind = "error"
	KindSuccess Kind = "success"
	KindEnd     Kind = "end"
)

// Event is one immutable entry of an operation's event sequence.
// The JSON form is the wire payload: exactly kind, message and progress.
type Event struct {
	Kind     Kind   `json:"kind"`
	Message  string `json:"message"`
	Progress int    `json:"progress"`
}

// Terminal reports whether the consumer should stop listening after e
func (e Event) Terminal() bool {
	return e.Kind == KindEnd
}

// Encode renders e as a single-line JSON document without HTML escaping,
// so paths containing <, > or & reach the consumer verbatim.
func (e Event) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(e); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Envelope is an event as seen by observers: tagged with the operation it
// belongs to and its position in that operation's sequence.
type Envelope struct {
	OperationID string    `json:"operation_id"`
	Target      string    `json:"target"`
	Seq         int       `json:"seq"`
	Time        time.Time `json:"time"`
	Event       Event     `json:"event"`
}

// Observer receives every emitted event synchronously, in emission order.
// Implementations must not block for long: they run on the deletion goroutine.
type Observer interface {
	Observe(env Envelope)
}

// ObserverFunc adapts a function to the Observer interface
type ObserverFunc func(env Envelope)

func (f ObserverFunc) Observe(env Envelope) {
	f(env)
}
