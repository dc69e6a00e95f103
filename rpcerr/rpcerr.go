// Package rpcerr defines the error taxonomy of the relayrpc transport.
//
// Transport-layer conditions (NoSocketError, TimeoutError, ProtocolError)
// are client-local: they never involve the callee and carry no traceback,
// since a stack trace is meaningless across a failed transport. Callee
// failures cross the wire as a RemoteError carrying the message, the
// original type name, and the server-captured trace text.
package rpcerr

import "fmt"

// Timeout phases. A TimeoutError names the call phase whose deadline
// expired, so callers can tell a stalled send from a silent server.
const (
	PhaseSend       = "send"
	PhaseReadHeader = "read_header"
	PhaseReadBody   = "read_body"
	PhaseNb         = "nb"
)

// NoSocketError means the connection to the server could not be opened.
type NoSocketError struct {
	Msg   string
	Cause error
}

func (e *NoSocketError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("no socket: %s: %v", e.Msg, e.Cause)
	}
	return "no socket: " + e.Msg
}

func (e *NoSocketError) Unwrap() error { return e.Cause }

// TimeoutError means a deadline expired during the named call phase.
type TimeoutError struct {
	Phase string
	Msg   string
}

func (e *TimeoutError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("timeout at %s: %s", e.Phase, e.Msg)
	}
	return "timeout at " + e.Phase
}

// Timeout satisfies the net.Error convention.
func (e *TimeoutError) Timeout() bool { return true }

// ProtocolError means the peer violated the frame protocol: a short read,
// a zero-length frame, or a malformed payload.
type ProtocolError struct {
	Msg   string
	Cause error
}

func (e *ProtocolError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("protocol error: %s: %v", e.Msg, e.Cause)
	}
	return "protocol error: " + e.Msg
}

func (e *ProtocolError) Unwrap() error { return e.Cause }

// RemoteError is a callee failure rehydrated on the client. The concrete
// error type never crosses the wire; only the message text, the declared
// type name, and the server-captured trace survive.
type RemoteError struct {
	Message   string
	ClassName string
	Traceback string
}

func (e *RemoteError) Error() string {
	if e.ClassName != "" {
		return e.ClassName + ": " + e.Message
	}
	return e.Message
}
