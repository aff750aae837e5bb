package signaling

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// fakeServerStream is a minimal grpc.ServerStream for exercising dispatch
// without a real network connection.
type fakeServerStream struct {
	sent []any
}

func (f *fakeServerStream) SetHeader(metadata.MD) error  { return nil }
func (f *fakeServerStream) SendHeader(metadata.MD) error { return nil }
func (f *fakeServerStream) SetTrailer(metadata.MD)       {}
func (f *fakeServerStream) Context() context.Context     { return context.Background() }
func (f *fakeServerStream) SendMsg(m any) error           { f.sent = append(f.sent, m); return nil }
func (f *fakeServerStream) RecvMsg(m any) error           { return nil }

func newTestGRPCServer() *GRPCServer {
	s := &GRPCServer{streams: make(map[string]grpc.ServerStream)}
	s.handler = NewRegistry(s.push)
	return s
}

func TestGRPCDispatchAnnounceRegistersStream(t *testing.T) {
	s := newTestGRPCServer()
	var peerID string
	stream := &fakeServerStream{}

	resp := s.dispatch(&peerID, stream, Request{
		JSONRPC: "2.0",
		Method:  "announce",
		ID:      1,
		Params:  map[string]any{"peer_id": "alice", "capabilities": []any{"video"}},
	})

	require.Nil(t, resp.Error)
	assert.Equal(t, "alice", peerID)
	s.mu.RLock()
	_, ok := s.streams["alice"]
	s.mu.RUnlock()
	assert.True(t, ok)
}

func TestGRPCDispatchOfferAnswerDisconnectICE(t *testing.T) {
	s := newTestGRPCServer()
	var alice, bob string
	aliceStream := &fakeServerStream{}
	bobStream := &fakeServerStream{}

	s.dispatch(&alice, aliceStream, Request{Method: "announce", JSONRPC: "2.0", Params: map[string]any{"peer_id": "alice"}})
	s.dispatch(&bob, bobStream, Request{Method: "announce", JSONRPC: "2.0", Params: map[string]any{"peer_id": "bob"}})

	resp := s.dispatch(&alice, aliceStream, Request{
		JSONRPC: "2.0",
		Method:  "offer",
		ID:      2,
		Params:  map[string]any{"from": "alice", "to": "bob", "sdp": "v=0...", "request_id": "req-1"},
	})
	require.Nil(t, resp.Error)
	require.NotEmpty(t, bobStream.sent)

	resp = s.dispatch(&bob, bobStream, Request{
		JSONRPC: "2.0",
		Method:  "answer",
		ID:      3,
		Params:  map[string]any{"from": "bob", "to": "alice", "sdp": "v=0 answer", "request_id": "req-1"},
	})
	require.Nil(t, resp.Error)

	resp = s.dispatch(&alice, aliceStream, Request{
		JSONRPC: "2.0",
		Method:  "ice_candidate",
		ID:      4,
		Params:  map[string]any{"from": "alice", "to": "bob", "candidate": "candidate:1 ..."},
	})
	require.Nil(t, resp.Error)

	resp = s.dispatch(&alice, aliceStream, Request{
		JSONRPC: "2.0",
		Method:  "disconnect",
		ID:      5,
		Params:  map[string]any{"from": "alice", "to": "bob", "reason": "user_requested"},
	})
	require.Nil(t, resp.Error)
}

func TestGRPCDispatchUnknownMethod(t *testing.T) {
	s := newTestGRPCServer()
	var peerID string
	resp := s.dispatch(&peerID, &fakeServerStream{}, Request{JSONRPC: "2.0", Method: "bogus", ID: 1})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeMethodNotFound, resp.Error.Code)
}

func TestGRPCDispatchInvalidOfferParamsType(t *testing.T) {
	s := newTestGRPCServer()
	var peerID string
	resp := s.dispatch(&peerID, &fakeServerStream{}, Request{
		JSONRPC: "2.0",
		Method:  "offer",
		ID:      1,
		Params:  "not-an-object",
	})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidParams, resp.Error.Code)
}
