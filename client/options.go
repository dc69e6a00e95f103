package client

import "time"

// Built-in timeout defaults. Resolution precedence for every knob is
// per-call option → client-level default → built-in default.
const (
	DefaultCallTimeout          = 86400 * time.Second
	DefaultSocketConnectTimeout = 10 * time.Second
	DefaultSocketSendTimeout    = 10 * time.Second
	DefaultSocketRecvTimeout    = 100 * time.Millisecond
	DefaultReadHeaderTick       = 10 * time.Millisecond
	DefaultNbFetchTimeout       = 5 * time.Second
	DefaultNbFetchTick          = time.Second
)

// CallOptions override the client-level configuration for one call. Zero
// values inherit.
type CallOptions struct {
	CallTimeout          time.Duration
	SocketConnectTimeout time.Duration
	SocketSendTimeout    time.Duration
	SocketRecvTimeout    time.Duration
	ReadHeaderTick       time.Duration
	NbFetchTimeout       time.Duration
	NbFetchTick          time.Duration

	// Nolog suppresses the call-logging hook for this call only.
	Nolog bool
}

// Budget is the resolved per-call timeout set. Each socket-level timeout is
// clamped to never exceed the overall call budget, so the strict ordering
// Call ≥ Connect, Send, Recv always holds.
type Budget struct {
	Call       time.Duration
	Connect    time.Duration
	Send       time.Duration
	Recv       time.Duration
	HeaderTick time.Duration
}

func (c *Client) resolveBudget(opts *CallOptions) Budget {
	if opts == nil {
		opts = &CallOptions{}
	}
	call := pick(opts.CallTimeout, c.CallTimeout, DefaultCallTimeout)
	return Budget{
		Call:       call,
		Connect:    clamp(pick(opts.SocketConnectTimeout, c.SocketConnectTimeout, DefaultSocketConnectTimeout), call),
		Send:       clamp(pick(opts.SocketSendTimeout, c.SocketSendTimeout, DefaultSocketSendTimeout), call),
		Recv:       clamp(pick(opts.SocketRecvTimeout, c.SocketRecvTimeout, DefaultSocketRecvTimeout), call),
		HeaderTick: pick(opts.ReadHeaderTick, c.ReadHeaderTick, DefaultReadHeaderTick),
	}
}

func (c *Client) resolveNbFetch(opts *CallOptions) (timeout, tick time.Duration) {
	if opts == nil {
		opts = &CallOptions{}
	}
	timeout = pick(opts.NbFetchTimeout, c.NbFetchTimeout, DefaultNbFetchTimeout)
	tick = pick(opts.NbFetchTick, c.NbFetchTick, DefaultNbFetchTick)
	return timeout, tick
}

func pick(values ...time.Duration) time.Duration {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

func clamp(v, limit time.Duration) time.Duration {
	if v > limit {
		return limit
	}
	return v
}
