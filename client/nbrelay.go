package client

import (
	"time"

	"github.com/google/uuid"

	"relayrpc/message"
	"relayrpc/rpcerr"
)

// nbRelay emulates an asynchronous call over the synchronous transport by
// splitting one logical call into two kinds of round trips: a "put"
// submission, then "get" polls until the result is ready. The caller
// reclaims the connection immediately after each round trip, at the cost of
// a server-side request store and a poll loop here.
type nbRelay struct {
	relay
}

// Invoke submits the call and polls for its result.
//
// The submission and each poll are independent bounded calls whose per-trip
// budget is the nb-fetch timeout; the poll loop as a whole is bounded by
// the nb-fetch timeout too. The overall call timeout only feeds the
// server-side due time, after which the request is evicted whether or not
// it was ever collected.
func (r *nbRelay) Invoke(args []any, kwargs map[string]any, opts *CallOptions) (any, error) {
	budget := r.client.resolveBudget(opts)
	fetchTimeout, fetchTick := r.client.resolveNbFetch(opts)
	general := budget.Call
	budget.Call = fetchTimeout

	id := uuid.New().String()
	due := time.Now().Add(general + maxDuration(10*time.Second, 2*fetchTick))

	// Submission failure surfaces immediately; no polling occurs.
	_, err := r.makeCall(&message.CallMessage{
		Predicate: message.PredicatePut,
		ID:        id,
		DueTime:   due,
		Method:    r.method,
		Args:      args,
		Kwargs:    kwargs,
	}, budget)
	if err != nil {
		return r.client.unwrap(r.method, args, kwargs, nil, err, nolog(opts))
	}

	poll := &message.CallMessage{
		Predicate: message.PredicateGet,
		ID:        id,
	}
	deadline := time.Now().Add(fetchTimeout)
	var env *message.ResultEnvelope
	for time.Now().Before(deadline) {
		out, err := r.makeCall(poll, budget)
		// Cooperative pacing, applied after every attempt including a
		// successful one.
		time.Sleep(fetchTick)
		if err != nil {
			continue // broken poll attempts are swallowed and retried
		}
		if out.Ready {
			env = out
			break
		}
	}
	if env == nil {
		err := &rpcerr.TimeoutError{Phase: rpcerr.PhaseNb, Msg: r.errorMsg("nb")}
		return r.client.unwrap(r.method, args, kwargs, nil, err, nolog(opts))
	}

	return r.client.unwrap(r.method, args, kwargs, env, nil, nolog(opts))
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
