package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mediarun/pipeline-runtime/pkg/rterr"
	"github.com/mediarun/pipeline-runtime/pkg/runtimedata"
)

// Port identifies one node's input or output queue.
type Port struct {
	NodeID string
	Name   string // "input" or a named output port
}

// Router owns every node input/output queue for exactly one session. Its
// session ID is baked into every queue lookup, so a payload can never be
// routed into another session's queue by construction, not by a runtime
// check (spec §4.3 "Isolation").
type Router struct {
	sessionID string
	capacity  int
	deadline  time.Duration

	mu     sync.RWMutex
	queues map[Port]*Queue
}

// NewRouter constructs a Router for one session with the given per-queue
// capacity and back-pressure deadline.
func NewRouter(sessionID string, capacity int, deadline time.Duration) *Router {
	return &Router{sessionID: sessionID, capacity: capacity, deadline: deadline, queues: make(map[Port]*Queue)}
}

// SessionID returns the session this router is scoped to.
func (r *Router) SessionID() string { return r.sessionID }

// Ensure returns the queue for a port, creating it if necessary.
func (r *Router) Ensure(port Port) *Queue {
	r.mu.Lock()
	defer r.mu.Unlock()
	if q, ok := r.queues[port]; ok {
		return q
	}
	q := NewQueue(r.capacity)
	r.queues[port] = q
	return q
}

// Route delivers payload to port's queue, applying back-pressure.
// sessionID must match this router's own session ID; any mismatch is a
// KindCrossSessionRouting error — this check exists purely as a
// belt-and-braces assertion since the channel-naming and port-keying
// design make cross-session delivery structurally impossible upstream.
func (r *Router) Route(ctx context.Context, sessionID string, port Port, payload runtimedata.RuntimeData) error {
	if sessionID != r.sessionID {
		return rterr.New(KindCrossSessionRouting, fmt.Sprintf("payload tagged %q routed at router for session %q", sessionID, r.sessionID))
	}
	q := r.Ensure(port)
	return q.Push(ctx, payload, r.deadline)
}

// Receive dequeues the next payload for port.
func (r *Router) Receive(ctx context.Context, port Port) (runtimedata.RuntimeData, bool) {
	q := r.Ensure(port)
	return q.Pop(ctx)
}

// CloseAll closes every queue owned by this router, used when the owning
// session transitions to Closed.
func (r *Router) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, q := range r.queues {
		q.Close()
	}
}

// QueueDepths returns a snapshot of current queue depths, for stats/debug
// surfaces (ambient observability, spec §7.1 AMBIENT).
func (r *Router) QueueDepths() map[Port]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	depths := make(map[Port]int, len(r.queues))
	for port, q := range r.queues {
		depths[port] = q.Len()
	}
	return depths
}
