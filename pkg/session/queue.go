// Package session implements per-session state and the Session Router:
// fan-in from the transport into node input queues, fan-out from node
// outputs back toward the transport and downstream nodes, with strict
// session isolation (spec §3.3, §4.3).
package session

import (
	"context"
	"time"

	"github.com/mediarun/pipeline-runtime/pkg/rterr"
	"github.com/mediarun/pipeline-runtime/pkg/runtimedata"
)

// Kind errors for the session subsystem (spec §7 "Session" taxonomy).
const (
	KindSessionNotFound      rterr.Kind = "session.not_found"
	KindSessionCreateFailed  rterr.Kind = "session.create_failed"
	KindCrossSessionRouting  rterr.Kind = "session.cross_session_routing"
	KindQueueFull            rterr.Kind = "session.queue_full"
	KindSessionClosed        rterr.Kind = "session.closed"
)

// Queue is a bounded, ordered FIFO of RuntimeData payloads for one
// (session, node, port). Push applies back-pressure by blocking up to a
// deadline before failing, rather than growing without bound (spec §4.3
// contract).
type Queue struct {
	ch chan runtimedata.RuntimeData
}

// NewQueue constructs a bounded queue of the given capacity.
func NewQueue(capacity int) *Queue {
	return &Queue{ch: make(chan runtimedata.RuntimeData, capacity)}
}

// Push enqueues payload, blocking the caller for up to deadline if the
// queue is full.
func (q *Queue) Push(ctx context.Context, payload runtimedata.RuntimeData, deadline time.Duration) error {
	timer := time.NewTimer(deadline)
	defer timer.Stop()

	select {
	case q.ch <- payload:
		return nil
	default:
	}

	select {
	case q.ch <- payload:
		return nil
	case <-timer.C:
		return rterr.New(KindQueueFull, "queue full past deadline").WithSuggestion("increase queue capacity or slow the producer")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pop dequeues the next payload, blocking until one is available, the
// queue is closed, or ctx is cancelled.
func (q *Queue) Pop(ctx context.Context) (runtimedata.RuntimeData, bool) {
	select {
	case payload, ok := <-q.ch:
		return payload, ok
	case <-ctx.Done():
		return runtimedata.RuntimeData{}, false
	}
}

// Close closes the underlying channel; further Push calls will panic, so
// callers must stop producing before closing. Session.Close calls
// Router.CloseAll only after moving the session to Closed; Router.Route
// itself does not check the session state.
func (q *Queue) Close() { close(q.ch) }

// Len reports the number of payloads currently buffered.
func (q *Queue) Len() int { return len(q.ch) }
