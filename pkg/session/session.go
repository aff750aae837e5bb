package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mediarun/pipeline-runtime/pkg/rterr"
)

// State is the session lifecycle state (spec §3.3, §4.3 state machine).
type State int32

const (
	StateInitializing State = iota
	StateActive
	StatePaused
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateActive:
		return "active"
	case StatePaused:
		return "paused"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

var validTransitions = map[State][]State{
	StateInitializing: {StateActive, StateClosed},
	StateActive:       {StatePaused, StateClosed},
	StatePaused:       {StateActive, StateClosed},
	StateClosed:       {},
}

// Session owns a session identifier, its router, and the set of worker
// node IDs spawned for this session (spec §3.3).
type Session struct {
	ID     string
	Router *Router

	mu         sync.Mutex
	state      State
	workerIDs  map[string]struct{}
	closeGrace time.Duration
}

// New creates a session with a globally unique ID used to namespace every
// IPC channel name (spec §3.3: "no two sessions share channels").
func New(queueCapacity int, queueDeadline, closeGrace time.Duration) *Session {
	id := uuid.NewString()
	return &Session{
		ID:         id,
		Router:     NewRouter(id, queueCapacity, queueDeadline),
		state:      StateInitializing,
		workerIDs:  make(map[string]struct{}),
		closeGrace: closeGrace,
	}
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// transition validates and applies a state change.
func (s *Session) transition(to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, allowed := range validTransitions[s.state] {
		if allowed == to {
			s.state = to
			return nil
		}
	}
	return rterr.New(KindSessionCreateFailed, fmt.Sprintf("invalid session transition %s -> %s", s.state, to))
}

// Activate moves the session from Initializing to Active.
func (s *Session) Activate() error { return s.transition(StateActive) }

// Pause moves an Active session to Paused.
func (s *Session) Pause() error { return s.transition(StatePaused) }

// Resume moves a Paused session back to Active.
func (s *Session) Resume() error { return s.transition(StateActive) }

// RegisterWorker records a worker node ID as belonging to this session.
func (s *Session) RegisterWorker(nodeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workerIDs[nodeID] = struct{}{}
}

// WorkerIDs returns a snapshot of this session's worker node IDs.
func (s *Session) WorkerIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.workerIDs))
	for id := range s.workerIDs {
		ids = append(ids, id)
	}
	return ids
}

// Close transitions the session to Closed and closes every queue; callers
// refuse further input through RejectIfClosed. Payloads already queued stay
// readable through Receive until each queue is empty, after which Receive
// reports ok=false. Close returns once the queues are closed, or at the
// grace deadline or ctx cancellation if either comes first; it does not
// wait for consumers to read the queued payloads.
func (s *Session) Close(ctx context.Context) error {
	if err := s.transition(StateClosed); err != nil {
		return err
	}

	drained := make(chan struct{})
	go func() {
		s.Router.CloseAll()
		close(drained)
	}()

	select {
	case <-drained:
	case <-time.After(s.closeGrace):
	case <-ctx.Done():
	}
	return nil
}

// RejectIfClosed returns a KindSessionClosed error if the session is no
// longer accepting input.
func (s *Session) RejectIfClosed() error {
	if s.State() == StateClosed {
		return rterr.New(KindSessionClosed, fmt.Sprintf("session %s is closed", s.ID))
	}
	return nil
}
