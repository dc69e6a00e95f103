package client

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"

	"relayrpc/codec"
	"relayrpc/message"
	"relayrpc/protocol"
	"relayrpc/rpcerr"
)

// relay performs one synchronous remote call: a complete
// connect/send/receive/close cycle on a fresh connection. No pooling —
// simplicity over throughput.
type relay struct {
	client *Client
	method string
}

// Invoke sends the call and blocks for its result within the resolved
// timeout budget. Remote failures come back as *rpcerr.RemoteError;
// transport failures as NoSocketError, TimeoutError, or ProtocolError.
func (r *relay) Invoke(args []any, kwargs map[string]any, opts *CallOptions) (any, error) {
	budget := r.client.resolveBudget(opts)
	env, err := r.makeCall(&message.CallMessage{
		Method: r.method,
		Args:   args,
		Kwargs: kwargs,
	}, budget)
	return r.client.unwrap(r.method, args, kwargs, env, err, nolog(opts))
}

// makeCall runs one round trip. The connection is closed on every exit
// path, success or failure.
func (r *relay) makeCall(msg *message.CallMessage, b Budget) (*message.ResultEnvelope, error) {
	due := time.Now().Add(b.Call)

	c := codec.GetCodec(r.client.CodecType)
	payload, err := c.Encode(msg)
	if err != nil {
		return nil, err
	}

	conn, err := net.DialTimeout(protocol.Network(r.client.Address), r.client.Address, b.Connect)
	if err != nil {
		return nil, &rpcerr.NoSocketError{Msg: r.errorMsg("connect"), Cause: err}
	}
	defer conn.Close()

	conn.SetWriteDeadline(time.Now().Add(b.Send))
	if err := protocol.WriteFrame(conn, payload); err != nil {
		return nil, &rpcerr.TimeoutError{Phase: rpcerr.PhaseSend, Msg: r.errorMsg("send")}
	}

	nbytes, err := r.readHeader(conn, b, due)
	if err != nil {
		return nil, err
	}

	// The body deadline is never less than the minimum recv timeout, so
	// the last read attempt always gets a fair minimal window even when
	// the overall budget is nearly exhausted.
	bodyTimeout := time.Until(due)
	if bodyTimeout < b.Recv {
		bodyTimeout = b.Recv
	}
	conn.SetReadDeadline(time.Now().Add(bodyTimeout))
	body, err := protocol.ReadBody(conn, nbytes)
	if err != nil {
		return nil, &rpcerr.TimeoutError{Phase: rpcerr.PhaseReadBody, Msg: r.errorMsg("read_body")}
	}

	var env message.ResultEnvelope
	if err := c.Decode(body, &env); err != nil {
		return nil, &rpcerr.ProtocolError{Msg: r.errorMsg("decode"), Cause: err}
	}
	if !env.Valid() {
		return nil, &rpcerr.ProtocolError{Msg: r.errorMsg("envelope carries both value and error")}
	}
	return &env, nil
}

// readHeader reads the 4-byte length header under its own sub-protocol.
//
// When the overall budget fits inside the socket receive timeout a single
// bounded attempt is made. Otherwise the relay polls: short read attempts
// spaced by the header tick until the header arrives or the overall
// deadline passes. This keeps a connection to a slow or irregular server
// alive within a long call budget without holding one huge socket-level
// timeout that would mask true failures. Partial header bytes survive
// between attempts.
func (r *relay) readHeader(conn net.Conn, b Budget, due time.Time) (uint32, error) {
	var header [protocol.HeaderSize]byte
	got := 0

	if b.Call <= b.Recv {
		conn.SetReadDeadline(time.Now().Add(b.Recv))
		if _, err := io.ReadFull(conn, header[:]); err != nil {
			return 0, &rpcerr.TimeoutError{Phase: rpcerr.PhaseReadHeader, Msg: r.errorMsg("read_header")}
		}
	} else {
		done := false
		for time.Now().Before(due) {
			conn.SetReadDeadline(time.Now().Add(b.Recv))
			n, err := io.ReadFull(conn, header[got:])
			got += n
			if err == nil && got == protocol.HeaderSize {
				done = true
				break
			}
			time.Sleep(b.HeaderTick)
		}
		if !done {
			return 0, &rpcerr.TimeoutError{Phase: rpcerr.PhaseReadHeader, Msg: r.errorMsg("read_header")}
		}
	}

	nbytes := binary.BigEndian.Uint32(header[:])
	if nbytes == 0 {
		return 0, &rpcerr.ProtocolError{Msg: r.errorMsg("zero-length frame")}
	}
	return nbytes, nil
}

func (r *relay) errorMsg(prefix string) string {
	return fmt.Sprintf("%s Client.%s()", prefix, r.method)
}

func nolog(opts *CallOptions) bool {
	return opts != nil && opts.Nolog
}
