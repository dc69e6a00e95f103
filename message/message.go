// Package message defines the wire structures exchanged between client and
// server, plus the server-resident record tracking a non-blocking call.
//
// Every exchange is one CallMessage answered by one ResultEnvelope. The
// envelope is a strict either/or: a value or an error record, never both.
package message

import (
	"time"

	"github.com/google/uuid"
)

// Predicates select the server-side handling of a CallMessage.
// An empty predicate is an immediate blocking dispatch.
const (
	PredicateCall = ""
	PredicatePut  = "put" // submit a non-blocking request
	PredicateGet  = "get" // poll a previously submitted request by id
)

// CallMessage identifies one invocation: a method name, an ordered argument
// sequence, and string-keyed keyword arguments. Immutable once constructed;
// created by the relay, consumed by the dispatcher.
//
// ID and DueTime are only set for predicate "put" (both) and "get" (ID).
type CallMessage struct {
	Predicate string         `msgpack:"predicate,omitempty" json:"predicate,omitempty"`
	ID        string         `msgpack:"id,omitempty" json:"id,omitempty"`
	DueTime   time.Time      `msgpack:"due_time,omitempty" json:"due_time,omitempty"`
	Method    string         `msgpack:"method" json:"method"`
	Args      []any          `msgpack:"args" json:"args"`
	Kwargs    map[string]any `msgpack:"kwargs" json:"kwargs"`
}

// ErrorRecord is the wire form of a failure. ClassName carries the type
// name of the original error for optional re-typing on the client;
// Traceback is the human-readable stack text assembled server-side, empty
// for synthesized transport/protocol conditions.
type ErrorRecord struct {
	Message   string `msgpack:"message" json:"message"`
	ClassName string `msgpack:"class_name" json:"class_name"`
	Traceback string `msgpack:"traceback" json:"traceback"`
}

// ResultEnvelope is the reply to a CallMessage.
//
// Ready is false only in the non-blocking protocol: the acknowledgment of a
// "put" and the not-ready marker answering a premature "get". When Ready is
// true, exactly one branch is populated: Err == nil means Ret is the return
// value (which may itself be nil).
type ResultEnvelope struct {
	Ready bool         `msgpack:"ready" json:"ready"`
	Ret   any          `msgpack:"ret" json:"ret"`
	Err   *ErrorRecord `msgpack:"err" json:"err"`
}

// OK builds a ready value envelope.
func OK(ret any) *ResultEnvelope {
	return &ResultEnvelope{Ready: true, Ret: ret}
}

// Fail builds a ready error envelope.
func Fail(rec *ErrorRecord) *ResultEnvelope {
	return &ResultEnvelope{Ready: true, Err: rec}
}

// NotReady builds the empty marker used for put-acknowledgments and
// pending polls.
func NotReady() *ResultEnvelope {
	return &ResultEnvelope{}
}

// Valid reports whether the envelope respects the either/or invariant.
// A consumer observing both branches populated is facing a protocol
// violation.
func (e *ResultEnvelope) Valid() bool {
	if !e.Ready {
		return e.Ret == nil && e.Err == nil
	}
	return e.Ret == nil || e.Err == nil
}

// Async request status. Exactly one background worker transitions a request
// from pending to done; poll handlers only observe.
const (
	StatusPending = 0
	StatusDone    = 1
)

// AsyncRequest tracks one submitted non-blocking call until it is collected
// or evicted. DueTime is fixed at submission and never extended: the
// janitor deletes the entry once it passes, regardless of status, so a
// client that never polls leaks nothing past that deadline.
type AsyncRequest struct {
	ID      uuid.UUID
	Method  string
	Args    []any
	Kwargs  map[string]any
	DueTime time.Time
	Status  int
	Ret     any
	Err     *ErrorRecord
	Logged  bool // completion already reported to the logging hooks
}
