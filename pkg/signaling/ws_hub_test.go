package signaling

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub() *Hub {
	return NewHub(zerolog.Nop())
}

func TestHubDispatchAnnounceRegistersClient(t *testing.T) {
	h := newTestHub()
	c := &wsClient{send: make(chan Response, 4), hub: h}

	resp := h.dispatch(c, Request{
		JSONRPC: "2.0",
		Method:  "announce",
		ID:      1,
		Params:  map[string]any{"peer_id": "alice", "capabilities": []any{"video"}},
	})

	require.Nil(t, resp.Error)
	assert.Equal(t, "alice", c.peerID)
	h.mu.RLock()
	_, ok := h.clients["alice"]
	h.mu.RUnlock()
	assert.True(t, ok)
}

func TestHubDispatchRejectsMissingMethod(t *testing.T) {
	h := newTestHub()
	c := &wsClient{send: make(chan Response, 4), hub: h}

	resp := h.dispatch(c, Request{JSONRPC: "2.0", ID: 1})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidRequest, resp.Error.Code)
}

func TestHubDispatchUnknownMethodReturnsMethodNotFound(t *testing.T) {
	h := newTestHub()
	c := &wsClient{send: make(chan Response, 4), hub: h}

	resp := h.dispatch(c, Request{JSONRPC: "2.0", Method: "bogus", ID: 1})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeMethodNotFound, resp.Error.Code)
}

func TestHubDispatchOfferForwardsToAnnouncedTarget(t *testing.T) {
	h := newTestHub()
	alice := &wsClient{send: make(chan Response, 4), hub: h}
	bob := &wsClient{send: make(chan Response, 4), hub: h}

	h.dispatch(alice, Request{Method: "announce", JSONRPC: "2.0", Params: map[string]any{"peer_id": "alice"}})
	h.dispatch(bob, Request{Method: "announce", JSONRPC: "2.0", Params: map[string]any{"peer_id": "bob"}})

	resp := h.dispatch(alice, Request{
		JSONRPC: "2.0",
		Method:  "offer",
		ID:      2,
		Params:  map[string]any{"from": "alice", "to": "bob", "sdp": "v=0...", "request_id": "req-1"},
	})
	require.Nil(t, resp.Error)

	select {
	case pushed := <-bob.send:
		assert.Equal(t, "offer", pushed.Method)
	default:
		t.Fatal("expected offer notification pushed to bob")
	}
}

func TestHubDispatchOfferToUnannouncedPeerFails(t *testing.T) {
	h := newTestHub()
	alice := &wsClient{send: make(chan Response, 4), hub: h}
	h.dispatch(alice, Request{Method: "announce", JSONRPC: "2.0", Params: map[string]any{"peer_id": "alice"}})

	resp := h.dispatch(alice, Request{
		JSONRPC: "2.0",
		Method:  "offer",
		ID:      2,
		Params:  map[string]any{"from": "alice", "to": "ghost", "sdp": "v=0...", "request_id": "req-1"},
	})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeOfferInvalid, resp.Error.Code)
}

func TestHubDispatchListPeers(t *testing.T) {
	h := newTestHub()
	c := &wsClient{send: make(chan Response, 4), hub: h}
	h.dispatch(c, Request{Method: "announce", JSONRPC: "2.0", Params: map[string]any{"peer_id": "alice"}})

	resp := h.dispatch(c, Request{JSONRPC: "2.0", Method: "list_peers", ID: 3})
	require.Nil(t, resp.Error)
	peers, ok := resp.Result.([]ListPeersResult)
	require.True(t, ok)
	require.Len(t, peers, 1)
	assert.Equal(t, "alice", peers[0].PeerID)
}
