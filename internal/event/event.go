package event

import (
	"time"
)

type Type string

const (
	TypeMemberAdded      Type = "member_added"
	TypeMemberRemoved    Type = "member_removed"
	TypeRequested        Type = "requested"
	TypeRequestCompleted Type = "request_completed"
)

// Event is an observational notification emitted by the governance
// engine. Events never influence engine behavior; sinks may log,
// forward, or record them.
type Event struct {
	Type      Type              `json:"type"`
	Action    string            `json:"action,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
	Principal string            `json:"principal,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Sink consumes events. Sinks must not block the call that emitted the
// event; a sink error is a sink problem, never an engine problem.
type Sink interface {
	Emit(ev Event) error
}

// Func adapts a plain function to the Sink interface.
type Func func(ev Event) error

func (f Func) Emit(ev Event) error {
	return f(ev)
}

// Discard drops every event.
var Discard Sink = Func(func(Event) error { return nil })
