// Package protocol implements the length-prefixed frame format shared by
// every relayrpc message.
//
// It solves TCP's sticky packet problem with a 4-byte big-endian length
// header followed by exactly that many payload bytes. The receiver reads the
// header first to learn the body length, then reads exactly that many bytes.
//
// Frame format:
//
//	0         4
//	┌─────────┬───────────────┐
//	│ bodyLen │    body ...   │
//	│ uint32  │ bodyLen bytes │
//	└─────────┴───────────────┘
//
// A declared body length of zero is a protocol error: a well-formed peer
// never sends an empty payload, so a zero header unambiguously signals a
// broken exchange without dropping the connection mid-frame.
package protocol

import (
	"encoding/binary"
	"io"
	"strings"

	"relayrpc/rpcerr"
)

// HeaderSize is the fixed length of the frame header in bytes.
const HeaderSize = 4

// WriteFrame writes one complete frame (header + body) to w.
// The caller must serialize writes if multiple goroutines share the same
// writer, otherwise frames will interleave and corrupt the stream.
func WriteFrame(w io.Writer, body []byte) error {
	if len(body) == 0 {
		return &rpcerr.ProtocolError{Msg: "refusing to write zero-length frame"}
	}
	header := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(header, uint32(len(body)))
	if _, err := w.Write(header); err != nil {
		return err
	}
	if _, err := w.Write(body); err != nil {
		return err
	}
	return nil
}

// ReadFrame reads one complete frame from r and returns the body.
//
// io.ReadFull keeps consuming until the declared byte count is satisfied or
// the peer closes; the Go runtime retries interrupted low-level reads
// transparently. A short read (peer closed early) and a declared length of
// zero are both protocol errors, distinct from a read deadline expiring on
// the underlying connection.
func ReadFrame(r io.Reader) ([]byte, error) {
	n, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}
	return ReadBody(r, n)
}

// ReadHeader reads the 4-byte length header and validates it.
func ReadHeader(r io.Reader) (uint32, error) {
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		if isShortRead(err) {
			return 0, &rpcerr.ProtocolError{Msg: "short read on frame header", Cause: err}
		}
		return 0, err
	}
	return ParseHeader(header)
}

// ParseHeader decodes a previously read header buffer.
func ParseHeader(header []byte) (uint32, error) {
	n := binary.BigEndian.Uint32(header)
	if n == 0 {
		return 0, &rpcerr.ProtocolError{Msg: "zero-length frame"}
	}
	return n, nil
}

// ReadBody reads exactly n payload bytes.
func ReadBody(r io.Reader, n uint32) ([]byte, error) {
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		if isShortRead(err) {
			return nil, &rpcerr.ProtocolError{Msg: "short read on frame body", Cause: err}
		}
		return nil, err
	}
	return body, nil
}

// isShortRead reports whether err means the peer closed before delivering
// the declared byte count, as opposed to a timeout or another socket error.
func isShortRead(err error) bool {
	return err == io.EOF || err == io.ErrUnexpectedEOF
}

// Network infers the transport family from the shape of an address:
// a filesystem path (contains a separator, or carries no port) selects a
// local-domain stream socket, anything else is TCP host:port.
func Network(address string) string {
	if strings.Contains(address, "/") || !strings.Contains(address, ":") {
		return "unix"
	}
	return "tcp"
}
