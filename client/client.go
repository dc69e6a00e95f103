// Package client implements the calling side of relayrpc: a Client holding
// immutable per-call configuration and a relay factory producing the
// blocking and non-blocking call variants.
//
// Every call opens a fresh connection — a complete
// connect/send/receive/close cycle — so calls may be issued concurrently
// from multiple goroutines against the same Client; each gets its own
// socket and its own resolved timeout budget.
package client

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"relayrpc/codec"
	"relayrpc/message"
	"relayrpc/rpcerr"
)

// Invoker is one remote method ready to be called. The two variants —
// blocking and non-blocking — are produced by Relay and NbRelay.
type Invoker interface {
	Invoke(args []any, kwargs map[string]any, opts *CallOptions) (any, error)
}

// Client is the handle to one remote server. Fields are read-only once
// calls are being issued; zero values inherit the built-in defaults.
type Client struct {
	// Address is a TCP host:port or a filesystem path for a local-domain
	// socket.
	Address string

	CallTimeout          time.Duration
	SocketConnectTimeout time.Duration
	SocketSendTimeout    time.Duration
	SocketRecvTimeout    time.Duration
	ReadHeaderTick       time.Duration
	NbFetchTimeout       time.Duration
	NbFetchTick          time.Duration

	// NologMethods suppresses call logging for the named methods.
	NologMethods []string

	// CodecType selects the payload serialization format; must match the
	// server's.
	CodecType codec.CodecType

	// CallLogFunc and ExceptionLogFunc are the optional logging hooks.
	// The client formats a bounded summary and passes it on; nil disables.
	CallLogFunc      func(string)
	ExceptionLogFunc func(string)
}

func NewClient(address string) *Client {
	return &Client{Address: address}
}

// Relay returns the blocking variant of the named remote method.
func (c *Client) Relay(method string) Invoker {
	return &relay{client: c, method: method}
}

// NbRelay returns the non-blocking (submit-then-poll) variant.
func (c *Client) NbRelay(method string) Invoker {
	return &nbRelay{relay{client: c, method: method}}
}

// Call performs one synchronous remote call.
func (c *Client) Call(method string, args []any, kwargs map[string]any, opts *CallOptions) (any, error) {
	return c.Relay(method).Invoke(args, kwargs, opts)
}

// NbCall performs one non-blocking remote call, returning once the remote
// result has been collected by polling.
func (c *Client) NbCall(method string, args []any, kwargs map[string]any, opts *CallOptions) (any, error) {
	return c.NbRelay(method).Invoke(args, kwargs, opts)
}

// Connected probes the server with the reserved health-check method. Any
// failure means "not connected"; nothing is ever logged for the probe.
func (c *Client) Connected(timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = 100 * time.Millisecond
	}
	_, err := c.Relay("connected").Invoke(nil, nil, &CallOptions{CallTimeout: timeout})
	return err == nil
}

// Shutdown asks the server to stop, then waits a short grace period so the
// server is down upon return.
func (c *Client) Shutdown(opts *CallOptions) error {
	_, err := c.Call("shutdown", nil, nil, opts)
	time.Sleep(200 * time.Millisecond)
	return err
}

// unwrap turns a round-trip outcome into the caller-visible result, routing
// it through the logging hooks on the way.
func (c *Client) unwrap(method string, args []any, kwargs map[string]any, env *message.ResultEnvelope, err error, nolog bool) (any, error) {
	if err != nil {
		c.handleException(method, args, kwargs, err)
		return nil, err
	}
	if env.Err != nil {
		rerr := &rpcerr.RemoteError{
			Message:   env.Err.Message,
			ClassName: env.Err.ClassName,
			Traceback: env.Err.Traceback,
		}
		c.handleException(method, args, kwargs, rerr)
		return nil, rerr
	}
	c.logCall(method, env.Ret, nolog)
	return env.Ret, nil
}

// handleException feeds a failure to the exception hook. Only errors
// carrying a traceback are reported: transport errors have none, and the
// health-check probe treats any failure as "not connected" rather than
// logging it. A caller-initiated interruption bypasses logging entirely.
func (c *Client) handleException(method string, args []any, kwargs map[string]any, err error) {
	if errors.Is(err, context.Canceled) || c.ExceptionLogFunc == nil || method == "connected" {
		return
	}
	tb := tracebackText(err)
	if tb == "" {
		return
	}
	header := fmt.Sprintf("Client: %s(args=%v, kwargs=%v)", method, args, kwargs)
	if len(header) > 60 {
		header = header[:60]
	}
	c.ExceptionLogFunc(header + "\n" + tb)
}

// tracebackText extracts the trace attached to an error. Transport-layer
// conditions carry none — a trace is meaningless across a failed
// transport.
func tracebackText(err error) string {
	switch e := err.(type) {
	case *rpcerr.RemoteError:
		return e.Traceback
	case *rpcerr.TimeoutError, *rpcerr.NoSocketError, *rpcerr.ProtocolError:
		return ""
	default:
		// Local failure (e.g. payload encoding): report it with its own
		// formatting.
		return fmt.Sprintf("%+v", err)
	}
}

func (c *Client) logCall(method string, ret any, nolog bool) {
	if c.CallLogFunc == nil || nolog || method == "connected" {
		return
	}
	if slices.Contains(c.NologMethods, method) {
		return
	}
	repr := fmt.Sprintf("%v", ret)
	if len(repr) > 60 {
		repr = repr[:60]
	}
	c.CallLogFunc(fmt.Sprintf("    %s -> %s", method, repr))
}
