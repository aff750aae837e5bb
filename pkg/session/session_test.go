package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mediarun/pipeline-runtime/pkg/runtimedata"
	"github.com/mediarun/pipeline-runtime/pkg/session"
)

func TestSessionStateMachineTransitions(t *testing.T) {
	s := session.New(8, 10*time.Millisecond, 100*time.Millisecond)
	require.Equal(t, session.StateInitializing, s.State())

	require.NoError(t, s.Activate())
	require.Equal(t, session.StateActive, s.State())

	require.NoError(t, s.Pause())
	require.NoError(t, s.Resume())

	require.NoError(t, s.Close(context.Background()))
	require.Equal(t, session.StateClosed, s.State())

	require.Error(t, s.Activate())
}

func TestRouterOrderPreservation(t *testing.T) {
	s := session.New(16, 10*time.Millisecond, 100*time.Millisecond)
	port := session.Port{NodeID: "n1", Name: "input"}

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Router.Route(ctx, s.ID, port, runtimedata.NewText(string(rune('a'+i)))))
	}

	for i := 0; i < 5; i++ {
		payload, ok := s.Router.Receive(ctx, port)
		require.True(t, ok)
		require.Equal(t, string(rune('a'+i)), payload.Text)
	}
}

func TestRouterRejectsCrossSessionRouting(t *testing.T) {
	s := session.New(4, 10*time.Millisecond, 100*time.Millisecond)
	port := session.Port{NodeID: "n1", Name: "input"}

	err := s.Router.Route(context.Background(), "some-other-session", port, runtimedata.NewText("x"))
	require.Error(t, err)
}

func TestQueueBackpressureFailsPastDeadline(t *testing.T) {
	q := session.NewQueue(1)
	ctx := context.Background()

	require.NoError(t, q.Push(ctx, runtimedata.NewText("a"), 10*time.Millisecond))
	err := q.Push(ctx, runtimedata.NewText("b"), 10*time.Millisecond)
	require.Error(t, err)
}

func TestIsolationAcrossTwoSessions(t *testing.T) {
	a := session.New(16, 10*time.Millisecond, 100*time.Millisecond)
	b := session.New(16, 10*time.Millisecond, 100*time.Millisecond)
	port := session.Port{NodeID: "shared-name", Name: "input"}

	ctx := context.Background()
	require.NoError(t, a.Router.Route(ctx, a.ID, port, runtimedata.NewText("from-a")))

	// b's router never saw anything routed to it; its queue for the same
	// port name must be empty, proving the two sessions' queues are
	// disjoint despite sharing a port name.
	require.Equal(t, 0, b.Router.Ensure(port).Len())
	require.Equal(t, 1, a.Router.Ensure(port).Len())
}
