package bridge

import (
	"context"
	"sync"
)

// sessions tracks, per client, the in-flight route request and the last
// delivered result. A new request cancels the previous one for the same client.
type sessions struct {
	mu      sync.Mutex
	seq     uint64
	running map[string]*inflight
	last    map[string]RouteResult
	wg      sync.WaitGroup
}

type inflight struct {
	id         uint64
	cancel     context.CancelFunc
	superseded bool
}

func newSessions() *sessions {
	return &sessions{
		running: make(map[string]*inflight),
		last:    make(map[string]RouteResult),
	}
}

// begin registers a request for client, cancelling any older one. finish
// must be called exactly once; it stores res as the client's last result
// when the request was not superseded and reports whether it was.
func (s *sessions) begin(parent context.Context, client string) (ctx context.Context, finish func(res *RouteResult) (superseded bool), prevCancelled bool) {
	ctx, cancel := context.WithCancel(parent)

	s.mu.Lock()
	s.seq++
	cur := &inflight{id: s.seq, cancel: cancel}
	if prev, ok := s.running[client]; ok {
		prev.superseded = true
		prev.cancel()
		prevCancelled = true
	}
	s.running[client] = cur
	s.wg.Add(1)
	s.mu.Unlock()

	finish = func(res *RouteResult) bool {
		defer s.wg.Done()
		defer cancel()

		s.mu.Lock()
		defer s.mu.Unlock()
		if r, ok := s.running[client]; ok && r.id == cur.id {
			delete(s.running, client)
		}
		if cur.superseded {
			return true
		}
		if res != nil {
			s.last[client] = *res
		}
		return false
	}
	return ctx, finish, prevCancelled
}

func (s *sessions) lastResult(client string) (RouteResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.last[client]
	return r, ok
}

// clear forgets the client's last result and cancels its in-flight request.
func (s *sessions) clear(client string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.last, client)
	if r, ok := s.running[client]; ok {
		r.superseded = true
		r.cancel()
		delete(s.running, client)
	}
}

// stop cancels every in-flight request and waits for them to finish.
func (s *sessions) stop() {
	s.mu.Lock()
	for _, r := range s.running {
		r.cancel()
	}
	s.mu.Unlock()
	s.wg.Wait()
}
