package server

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"relayrpc/message"
)

// requestStore holds in-flight non-blocking requests keyed by id. It is the
// only state shared across server workers; all mutations are single-field
// and last-writer-wins on distinct requests, so a map-level mutex suffices.
type requestStore struct {
	mu   sync.Mutex
	reqs map[uuid.UUID]*message.AsyncRequest
}

func newRequestStore() *requestStore {
	return &requestStore{reqs: make(map[uuid.UUID]*message.AsyncRequest)}
}

func (st *requestStore) put(req *message.AsyncRequest) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.reqs[req.ID] = req
}

// complete records the result of the background worker and marks the
// request done. A request already evicted by the janitor is dropped: the
// client can no longer collect it.
func (st *requestStore) complete(id uuid.UUID, ret any, rec *message.ErrorRecord) {
	st.mu.Lock()
	defer st.mu.Unlock()
	req, ok := st.reqs[id]
	if !ok {
		return
	}
	req.Ret = ret
	req.Err = rec
	req.Status = message.StatusDone
}

// fetch answers a "get" poll. An unknown id is an error, never a silent
// default. firstDone is true exactly once per completed request, on the
// first delivery of its done result, so logging hooks fire once.
func (st *requestStore) fetch(id uuid.UUID) (env *message.ResultEnvelope, req *message.AsyncRequest, firstDone bool, err error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	req, ok := st.reqs[id]
	if !ok {
		return nil, nil, false, errors.Errorf("unknown request id %s", id)
	}
	if req.Status != message.StatusDone {
		return message.NotReady(), req, false, nil
	}
	if req.Err != nil {
		env = message.Fail(req.Err)
	} else {
		env = message.OK(req.Ret)
	}
	firstDone = !req.Logged
	req.Logged = true
	return env, req, firstDone, nil
}

// sweep evicts every request whose due time has passed, regardless of
// status, and returns how many were removed. Guarantees bounded memory even
// if a client never polls for its result.
func (st *requestStore) sweep(now time.Time) int {
	st.mu.Lock()
	defer st.mu.Unlock()
	evicted := 0
	for id, req := range st.reqs {
		if now.After(req.DueTime) {
			delete(st.reqs, id)
			evicted++
		}
	}
	return evicted
}

func (st *requestStore) len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.reqs)
}
