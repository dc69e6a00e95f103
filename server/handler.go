package server

import (
	"context"
	"fmt"
	"net"
	"reflect"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"relayrpc/codec"
	"relayrpc/message"
	"relayrpc/protocol"
)

// handleConn runs one exchange: read a framed request, dispatch it, write
// the framed reply, close. A malformed request gets a synthesized error
// envelope and ends the exchange — the connection is not assumed reusable.
func (svr *Server) handleConn(conn net.Conn) {
	svr.wg.Add(1)
	defer svr.wg.Done()
	defer conn.Close()

	body, err := protocol.ReadFrame(conn)
	if err != nil {
		svr.sendEnvelope(conn, readErrorEnvelope(err))
		return
	}

	c := codec.GetCodec(svr.CodecType)
	var msg message.CallMessage
	if err := c.Decode(body, &msg); err != nil {
		svr.sendEnvelope(conn, readErrorEnvelope(err))
		return
	}

	switch msg.Predicate {
	case message.PredicateCall, "call":
		svr.handleCall(conn, &msg)
	case message.PredicatePut:
		svr.handlePut(conn, &msg)
	case message.PredicateGet:
		svr.handleGet(conn, &msg)
	default:
		svr.sendEnvelope(conn, message.Fail(&message.ErrorRecord{
			Message:   "protocol_error",
			ClassName: "ProtocolError",
		}))
	}
}

// handleCall is the immediate blocking dispatch: invoke, reply, then fire
// the logging hooks.
func (svr *Server) handleCall(conn net.Conn, msg *message.CallMessage) {
	env := svr.handler(context.Background(), msg)
	svr.sendEnvelope(conn, env)
	if env.Err != nil {
		svr.logException(msg.Method, msg.Args, msg.Kwargs, env.Err)
	} else {
		svr.logCall(msg.Method, msg.Args, msg.Kwargs, env.Ret)
	}
}

// handlePut stores a new async request, spawns its background worker, and
// acknowledges with an empty marker without waiting for completion.
func (svr *Server) handlePut(conn net.Conn, msg *message.CallMessage) {
	id, err := uuid.Parse(msg.ID)
	if err != nil {
		svr.sendEnvelope(conn, message.Fail(&message.ErrorRecord{
			Message:   "protocol_error",
			ClassName: "ProtocolError",
		}))
		return
	}
	req := &message.AsyncRequest{
		ID:      id,
		Method:  msg.Method,
		Args:    msg.Args,
		Kwargs:  msg.Kwargs,
		DueTime: msg.DueTime,
		Status:  message.StatusPending,
	}
	svr.store.put(req)
	// The worker is decoupled from this connection: the submitter may be
	// long gone when it finishes.
	go svr.runAsync(req)
	svr.sendEnvelope(conn, message.NotReady())
}

// runAsync executes one submitted request to completion and writes its
// result into the shared store entry. Exactly one worker per request
// transitions its status.
func (svr *Server) runAsync(req *message.AsyncRequest) {
	env := svr.handler(context.Background(), &message.CallMessage{
		Method: req.Method,
		Args:   req.Args,
		Kwargs: req.Kwargs,
	})
	svr.store.complete(req.ID, env.Ret, env.Err)
}

// handleGet answers a poll: the stored result when done, the not-ready
// marker while pending. An unknown id is fatal to this exchange — no reply
// is sent and the peer's poll attempt fails.
func (svr *Server) handleGet(conn net.Conn, msg *message.CallMessage) {
	id, err := uuid.Parse(msg.ID)
	if err != nil {
		svr.sendEnvelope(conn, message.Fail(&message.ErrorRecord{
			Message:   "protocol_error",
			ClassName: "ProtocolError",
		}))
		return
	}
	env, req, firstDone, err := svr.store.fetch(id)
	if err != nil {
		svr.Logger.WithError(err).Warn("poll for unknown request")
		return
	}
	svr.sendEnvelope(conn, env)
	if firstDone {
		if env.Err != nil {
			svr.logException(req.Method, req.Args, req.Kwargs, env.Err)
		} else {
			svr.logCall(req.Method, req.Args, req.Kwargs, env.Ret)
		}
	}
}

// dispatch resolves the method on the callee (built-ins as fallback) and
// invokes it, capturing the return value or the failure into an envelope.
// A panicking callee becomes an error record, never a dead worker.
func (svr *Server) dispatch(ctx context.Context, msg *message.CallMessage) (env *message.ResultEnvelope) {
	fn := svr.lookupMethod(msg.Method)
	if fn == nil {
		return message.Fail(&message.ErrorRecord{
			Message:   fmt.Sprintf("unknown method %q", msg.Method),
			ClassName: "UnknownMethodError",
			Traceback: string(debug.Stack()),
		})
	}

	defer func() {
		if r := recover(); r != nil {
			env = message.Fail(&message.ErrorRecord{
				Message:   fmt.Sprintf("panic: %v", r),
				ClassName: "PanicError",
				Traceback: string(debug.Stack()),
			})
		}
	}()

	ret, err := fn(msg.Args, msg.Kwargs)
	if err != nil {
		return message.Fail(&message.ErrorRecord{
			Message:   err.Error(),
			ClassName: classNameOf(err),
			Traceback: tracebackOf(err),
		})
	}
	return message.OK(ret)
}

func (svr *Server) lookupMethod(name string) methodFunc {
	if svr.callee != nil {
		if fn := svr.callee.lookup(name); fn != nil {
			return fn
		}
	}
	switch name {
	case "connected", "Connected":
		return func([]any, map[string]any) (any, error) {
			return true, nil
		}
	case "shutdown", "Shutdown":
		return func(args []any, kwargs map[string]any) (any, error) {
			delay := 100 * time.Millisecond
			if v, ok := kwargs["delay"]; ok {
				if secs, ok := asFloat(v); ok {
					delay = time.Duration(secs * float64(time.Second))
				}
			}
			svr.Shutdown(delay)
			return nil, nil
		}
	}
	return nil
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// classNameOf names the original error type for the wire, so the client can
// declare it without the concrete type crossing over.
func classNameOf(err error) string {
	return strings.TrimPrefix(reflect.TypeOf(err).String(), "*")
}

// tracebackOf assembles the trace text attached to a callee failure.
// Errors built with github.com/pkg/errors format their raise-site stack via
// %+v; anything else gets the dispatch-site stack.
func tracebackOf(err error) string {
	if _, ok := err.(fmt.Formatter); ok {
		return fmt.Sprintf("%+v", err)
	}
	return string(debug.Stack())
}

// sendEnvelope frames and writes a reply. A write failure against an
// already-closed peer is swallowed: the caller abandoned the exchange.
func (svr *Server) sendEnvelope(conn net.Conn, env *message.ResultEnvelope) {
	c := codec.GetCodec(svr.CodecType)
	body, err := c.Encode(env)
	if err != nil {
		svr.Logger.WithError(err).Error("encode reply")
		return
	}
	if err := protocol.WriteFrame(conn, body); err != nil {
		svr.Logger.WithError(err).Debug("reply write failed, peer gone")
	}
}

func readErrorEnvelope(err error) *message.ResultEnvelope {
	return message.Fail(&message.ErrorRecord{
		Message:   "read_error: " + err.Error(),
		ClassName: "ProtocolError",
	})
}

// logCall reports one successful dispatch to the call sink as a bounded
// summary. The reserved health-check method is never logged.
func (svr *Server) logCall(method string, args []any, kwargs map[string]any, ret any) {
	if svr.CallLogFunc == nil || method == "connected" || method == "Connected" {
		return
	}
	svr.CallLogFunc(summaryLine(method, args, kwargs, ret))
}

func (svr *Server) logException(method string, args []any, kwargs map[string]any, rec *message.ErrorRecord) {
	if svr.ExceptionLogFunc == nil {
		return
	}
	svr.ExceptionLogFunc(summaryLine(method, args, kwargs, rec.ClassName+": "+rec.Message))
}

// summaryLine formats "method(args=..., kwargs=...) -> outcome" with the
// prefix capped at 60 characters and the whole line at 120.
func summaryLine(method string, args []any, kwargs map[string]any, outcome any) string {
	prefix := fmt.Sprintf("%s(args=%v, kwargs=%v)", method, args, kwargs)
	if len(prefix) > 60 {
		prefix = prefix[:60] + "...)"
	}
	suffix := fmt.Sprintf(" -> %v", outcome)
	if room := 120 - len(prefix); len(suffix) > room {
		if room < 0 {
			room = 0
		}
		suffix = suffix[:room]
	}
	return prefix + suffix
}
