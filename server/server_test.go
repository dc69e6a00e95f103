package server

import (
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"relayrpc/codec"
	"relayrpc/message"
	"relayrpc/protocol"
)

type greeter struct{}

func (g *greeter) Greet(args []any, kwargs map[string]any) (any, error) {
	name, _ := args[0].(string)
	return "hello " + name, nil
}

func (g *greeter) Nap(args []any, kwargs map[string]any) (any, error) {
	time.Sleep(150 * time.Millisecond)
	return "rested", nil
}

func startTestServer(t *testing.T, mutate func(*Server)) (*Server, string) {
	t.Helper()
	addr := filepath.Join(t.TempDir(), "relay.sock")
	svr := NewServer(addr)
	svr.Logger = logrus.New()
	if err := svr.RegisterCallee(&greeter{}); err != nil {
		t.Fatalf("RegisterCallee failed: %v", err)
	}
	if mutate != nil {
		mutate(svr)
	}
	go svr.Start()
	t.Cleanup(svr.ShutdownSync)
	waitForSocket(t, addr)
	return svr, addr
}

func waitForSocket(t *testing.T, addr string) {
	t.Helper()
	for i := 0; i < 100; i++ {
		conn, err := net.Dial("unix", addr)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("server never came up")
}

// roundTrip runs one raw exchange: frame the call, read the framed reply.
func roundTrip(t *testing.T, addr string, msg *message.CallMessage) *message.ResultEnvelope {
	t.Helper()
	conn, err := net.Dial("unix", addr)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	c := codec.GetCodec(codec.CodecTypeMsgpack)
	payload, err := c.Encode(msg)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if err := protocol.WriteFrame(conn, payload); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	body, err := protocol.ReadFrame(conn)
	if err != nil {
		t.Fatalf("read reply failed: %v", err)
	}
	var env message.ResultEnvelope
	if err := c.Decode(body, &env); err != nil {
		t.Fatalf("decode reply failed: %v", err)
	}
	if !env.Valid() {
		t.Fatalf("envelope violates the either/or invariant: %+v", env)
	}
	return &env
}

func TestBlockingDispatch(t *testing.T) {
	_, addr := startTestServer(t, nil)

	env := roundTrip(t, addr, &message.CallMessage{Method: "greet", Args: []any{"world"}})
	if !env.Ready || env.Err != nil {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	if env.Ret != "hello world" {
		t.Errorf("got %v, want 'hello world'", env.Ret)
	}
}

func TestUnknownMethod(t *testing.T) {
	_, addr := startTestServer(t, nil)

	env := roundTrip(t, addr, &message.CallMessage{Method: "nope"})
	if env.Err == nil {
		t.Fatal("expected an error envelope")
	}
	if env.Err.ClassName != "UnknownMethodError" {
		t.Errorf("unexpected class: %q", env.Err.ClassName)
	}
	if env.Err.Traceback == "" {
		t.Error("callee-side failures must carry a trace")
	}
}

func TestBuiltinConnected(t *testing.T) {
	_, addr := startTestServer(t, nil)

	env := roundTrip(t, addr, &message.CallMessage{Method: "connected"})
	if env.Err != nil || env.Ret != true {
		t.Fatalf("health check should return true: %+v", env)
	}
}

func TestZeroLengthFrameGetsErrorReply(t *testing.T) {
	_, addr := startTestServer(t, nil)

	conn, err := net.Dial("unix", addr)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte{0, 0, 0, 0}); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	body, err := protocol.ReadFrame(conn)
	if err != nil {
		t.Fatalf("expected a synthesized error reply, got %v", err)
	}
	var env message.ResultEnvelope
	c := codec.GetCodec(codec.CodecTypeMsgpack)
	if err := c.Decode(body, &env); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if env.Err == nil || env.Err.ClassName != "ProtocolError" {
		t.Fatalf("expected a protocol-error envelope: %+v", env)
	}
}

func TestPutGetLifecycle(t *testing.T) {
	svr, addr := startTestServer(t, nil)

	id := uuid.New().String()
	ack := roundTrip(t, addr, &message.CallMessage{
		Predicate: message.PredicatePut,
		ID:        id,
		DueTime:   time.Now().Add(time.Minute),
		Method:    "nap",
	})
	if ack.Ready {
		t.Fatal("put must be acknowledged with the empty marker")
	}
	if svr.store.len() != 1 {
		t.Fatalf("expected 1 stored request, got %d", svr.store.len())
	}

	// Poll until the background worker finishes.
	deadline := time.Now().Add(2 * time.Second)
	for {
		env := roundTrip(t, addr, &message.CallMessage{Predicate: message.PredicateGet, ID: id})
		if env.Ready {
			if env.Ret != "rested" || env.Err != nil {
				t.Fatalf("unexpected result: %+v", env)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("background worker never completed")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestGetUnknownIDEndsExchangeWithoutReply(t *testing.T) {
	_, addr := startTestServer(t, nil)

	conn, err := net.Dial("unix", addr)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	c := codec.GetCodec(codec.CodecTypeMsgpack)
	payload, _ := c.Encode(&message.CallMessage{
		Predicate: message.PredicateGet,
		ID:        uuid.New().String(),
	})
	if err := protocol.WriteFrame(conn, payload); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(time.Second))
	if _, err := protocol.ReadFrame(conn); err == nil {
		t.Fatal("unknown id must end the exchange without a reply")
	}
}

func TestJanitorEvictsExpiredRequests(t *testing.T) {
	svr, addr := startTestServer(t, func(s *Server) {
		s.RequestCleanInterval = 50 * time.Millisecond
	})

	id := uuid.New().String()
	roundTrip(t, addr, &message.CallMessage{
		Predicate: message.PredicatePut,
		ID:        id,
		DueTime:   time.Now().Add(150 * time.Millisecond),
		Method:    "greet",
		Args:      []any{"ghost"},
	})

	deadline := time.Now().Add(2 * time.Second)
	for svr.store.len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("janitor never evicted the expired request")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestSynchronousModel(t *testing.T) {
	_, addr := startTestServer(t, func(s *Server) {
		s.Synchronous = true
	})

	for i := 0; i < 3; i++ {
		env := roundTrip(t, addr, &message.CallMessage{Method: "greet", Args: []any{"serial"}})
		if env.Err != nil || env.Ret != "hello serial" {
			t.Fatalf("serial call %d failed: %+v", i, env)
		}
	}
}

func TestShutdownRemovesSocketFile(t *testing.T) {
	svr, addr := startTestServer(t, nil)
	svr.ShutdownSync()

	if _, err := net.Dial("unix", addr); err == nil {
		t.Error("server should be down after ShutdownSync")
	}
}
