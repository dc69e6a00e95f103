// Package server implements the relayrpc server: a connection acceptor over
// TCP or a local-domain socket, a per-connection handler dispatching calls
// on a user-supplied callee, and the request store serving the non-blocking
// call protocol.
//
// Exchange pipeline:
//
//	Accept conn → handleConn (one exchange per connection)
//	  → ReadFrame → Codec.Decode → predicate branch
//	    → call: middleware chain → callee method → write envelope
//	    → put:  store insert → background worker → empty ack
//	    → get:  store lookup → done result | not-ready marker
package server

import (
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"relayrpc/codec"
	"relayrpc/middleware"
	"relayrpc/protocol"
)

// DefaultRequestCleanInterval is how often the janitor sweeps expired
// non-blocking requests out of the store.
const DefaultRequestCleanInterval = 60 * time.Second

const shutdownGrace = 3 * time.Second

// Server serves remote calls against a registered callee.
//
// Configuration fields may be set between NewServer and Start. The
// zero value of each picks the documented default.
type Server struct {
	// Address is a TCP host:port or a filesystem path for a local-domain
	// socket; the transport family is inferred from its shape.
	Address string

	// Synchronous selects the serial accept-and-serve model: the accept
	// loop and the handler run interleaved on one goroutine, so a slow
	// handler stalls acceptance. Appropriate only when every exposed
	// method returns quickly. Default is one goroutine per connection.
	Synchronous bool

	// RequestCleanInterval is the janitor sweep period.
	RequestCleanInterval time.Duration

	// CodecType selects the payload serialization format.
	CodecType codec.CodecType

	// Logger receives the server's own diagnostics (accept errors, janitor
	// sweeps, dropped replies). Defaults to the logrus standard logger.
	Logger logrus.FieldLogger

	// CallLogFunc and ExceptionLogFunc are the optional logging hooks. The
	// server formats a bounded-length summary per completed dispatch and
	// passes it to the sink; nil disables. The reserved health-check
	// method is always excluded.
	CallLogFunc      func(string)
	ExceptionLogFunc func(string)

	callee      *service
	middlewares []middleware.Middleware
	handler     middleware.HandlerFunc
	store       *requestStore

	listener net.Listener
	wg       sync.WaitGroup
	shutdown atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewServer creates a server for the given address. Register a callee with
// RegisterCallee before Start; without one only the built-in methods
// (connected, shutdown) are dispatchable.
func NewServer(address string) *Server {
	return &Server{
		Address:              address,
		RequestCleanInterval: DefaultRequestCleanInterval,
		Logger:               logrus.StandardLogger(),
		store:                newRequestStore(),
		stopCh:               make(chan struct{}),
	}
}

// RegisterCallee registers the object whose named methods incoming calls
// invoke. Exported methods with the canonical signature become
// dispatchable; callee methods shadow the built-ins.
func (svr *Server) RegisterCallee(rcvr any) error {
	svc, err := newService(rcvr)
	if err != nil {
		return err
	}
	svr.callee = svc
	return nil
}

// Use registers a middleware. Middlewares wrap every dispatch, blocking and
// background, in the order they are added.
func (svr *Server) Use(mw middleware.Middleware) {
	svr.middlewares = append(svr.middlewares, mw)
}

// Start binds the listening socket and blocks running the accept loop until
// Shutdown. A stale local-domain socket file is removed before binding.
func (svr *Server) Start() error {
	network := protocol.Network(svr.Address)
	if network == "unix" {
		if _, err := os.Stat(svr.Address); err == nil {
			if err := os.Remove(svr.Address); err != nil {
				return errors.Wrap(err, "remove stale socket file")
			}
		}
	}

	listener, err := net.Listen(network, svr.Address)
	if err != nil {
		return errors.Wrapf(err, "listen %s %s", network, svr.Address)
	}
	svr.listener = listener

	// Build the dispatch chain once at startup, not per request.
	svr.handler = middleware.Chain(svr.middlewares...)(svr.dispatch)

	go svr.cleanTimedOutRequests()

	for {
		conn, err := listener.Accept()
		if err != nil {
			// During shutdown listener.Close() makes Accept fail; the
			// flag distinguishes intentional close from a real error.
			if svr.shutdown.Load() {
				return nil
			}
			return errors.Wrap(err, "accept")
		}
		if svr.Synchronous {
			svr.handleConn(conn)
		} else {
			go svr.handleConn(conn)
		}
	}
}

// Shutdown stops the server after a grace delay, so an in-flight reply to
// the call that requested the shutdown can still land.
func (svr *Server) Shutdown(delay time.Duration) {
	go func() {
		time.Sleep(delay)
		svr.ShutdownSync()
	}()
}

// ShutdownSync stops accepting, closes the listening socket, waits briefly
// for in-flight exchanges, and removes the local-domain socket file.
func (svr *Server) ShutdownSync() {
	// Flag first: if the listener closed before the flag was set, Start
	// would report the Accept failure as a real error.
	svr.shutdown.Store(true)
	svr.stopOnce.Do(func() { close(svr.stopCh) })
	if svr.listener != nil {
		svr.listener.Close()
	}

	done := make(chan struct{})
	go func() {
		svr.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownGrace):
		svr.Logger.Warn("shutdown: in-flight exchanges still running")
	}

	if protocol.Network(svr.Address) == "unix" {
		if _, err := os.Stat(svr.Address); err == nil {
			os.Remove(svr.Address)
		}
	}
}

// Addr returns the bound listener address, or the configured address before
// Start. Useful with "127.0.0.1:0" listeners in tests.
func (svr *Server) Addr() string {
	if svr.listener != nil {
		return svr.listener.Addr().String()
	}
	return svr.Address
}

// cleanTimedOutRequests is the janitor: once per RequestCleanInterval it
// evicts every stored request whose due time has passed, independent of
// status.
func (svr *Server) cleanTimedOutRequests() {
	interval := svr.RequestCleanInterval
	if interval <= 0 {
		interval = DefaultRequestCleanInterval
	}
	for {
		select {
		case <-svr.stopCh:
			return
		case <-time.After(interval):
		}
		if n := svr.store.sweep(time.Now()); n > 0 {
			svr.Logger.WithField("evicted", n).Debug("janitor sweep")
		}
	}
}
