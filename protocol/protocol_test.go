package protocol

import (
	"bytes"
	"errors"
	"testing"

	"relayrpc/rpcerr"
)

func TestWriteReadFrame(t *testing.T) {
	var buf bytes.Buffer
	body := []byte("hello world")

	if err := WriteFrame(&buf, body); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}
	if buf.Len() != HeaderSize+len(body) {
		t.Fatalf("frame length mismatch: got %d, want %d", buf.Len(), HeaderSize+len(body))
	}

	decoded, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	if !bytes.Equal(decoded, body) {
		t.Errorf("body mismatch: got %q, want %q", decoded, body)
	}
}

func TestWriteZeroLengthFrame(t *testing.T) {
	var buf bytes.Buffer
	err := WriteFrame(&buf, nil)
	if err == nil {
		t.Fatal("expected error writing zero-length frame")
	}
	var perr *rpcerr.ProtocolError
	if !errors.As(err, &perr) {
		t.Errorf("expected ProtocolError, got %T: %v", err, err)
	}
}

func TestReadZeroLengthFrame(t *testing.T) {
	// A header declaring zero bytes is a protocol error, not an empty body.
	buf := bytes.NewBuffer([]byte{0, 0, 0, 0})
	_, err := ReadFrame(buf)
	if err == nil {
		t.Fatal("expected error for zero-length frame")
	}
	var perr *rpcerr.ProtocolError
	if !errors.As(err, &perr) {
		t.Errorf("expected ProtocolError, got %T: %v", err, err)
	}
}

func TestShortBodyIsProtocolError(t *testing.T) {
	// Header declares 10 bytes but the peer closes after 4.
	buf := bytes.NewBuffer([]byte{0, 0, 0, 10, 'a', 'b', 'c', 'd'})
	_, err := ReadFrame(buf)
	if err == nil {
		t.Fatal("expected error for short body")
	}
	var perr *rpcerr.ProtocolError
	if !errors.As(err, &perr) {
		t.Errorf("expected ProtocolError, got %T: %v", err, err)
	}
}

func TestShortHeaderIsProtocolError(t *testing.T) {
	buf := bytes.NewBuffer([]byte{0, 0})
	_, err := ReadHeader(buf)
	var perr *rpcerr.ProtocolError
	if !errors.As(err, &perr) {
		t.Errorf("expected ProtocolError, got %T: %v", err, err)
	}
}

func TestLargeFrame(t *testing.T) {
	body := make([]byte, 1024*1024)
	for i := range body {
		body[i] = byte(i % 256)
	}
	var buf bytes.Buffer
	if err := WriteFrame(&buf, body); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}
	decoded, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	if !bytes.Equal(decoded, body) {
		t.Error("large body mismatch")
	}
}

func TestNetwork(t *testing.T) {
	cases := map[string]string{
		"127.0.0.1:8080":  "tcp",
		"localhost:19090": "tcp",
		"/tmp/relay.sock": "unix",
		"./relay.sock":    "unix",
		"relay.sock":      "unix",
	}
	for addr, want := range cases {
		if got := Network(addr); got != want {
			t.Errorf("Network(%q) = %q, want %q", addr, got, want)
		}
	}
}
