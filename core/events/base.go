package events

import "time"

type Kind string

// Event is a typed notification produced by the engine for its consumers.
type Event interface {
	Kind() Kind
	Timestamp() time.Time
}

type Base struct {
	kind      Kind
	timestamp time.Time
}

func NewBase(kind Kind) Base {
	return Base{kind: kind, timestamp: time.Now()}
}

// NewBaseAt is NewBase with an explicit timestamp, for callers driven by an
// injected clock.
func NewBaseAt(kind Kind, timestamp time.Time) Base {
	return Base{kind: kind, timestamp: timestamp}
}

func (b Base) Kind() Kind {
	return b.kind
}

func (b Base) Timestamp() time.Time {
	return b.timestamp
}
