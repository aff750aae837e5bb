package signaling_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediarun/pipeline-runtime/pkg/signaling"
)

type notification struct {
	peerID string
	method string
	params any
}

func newTestRegistry() (*signaling.Registry, *[]notification) {
	var log []notification
	r := signaling.NewRegistry(func(peerID, method string, params any) {
		log = append(log, notification{peerID, method, params})
	})
	return r, &log
}

func TestRegistryAnnounceNotifiesOtherPeers(t *testing.T) {
	r, log := newTestRegistry()

	_, err := r.Announce("alice", []string{"video"}, nil)
	require.NoError(t, err)
	assert.Empty(t, *log)

	result, err := r.Announce("bob", []string{"audio"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Status)
	assert.Equal(t, "bob", result.PeerID)

	require.Len(t, *log, 1)
	assert.Equal(t, "alice", (*log)[0].peerID)
	assert.Equal(t, "peer.announced", (*log)[0].method)
}

func TestRegistryOfferRequiresAnnouncedTarget(t *testing.T) {
	r, _ := newTestRegistry()
	_, err := r.Announce("alice", nil, nil)
	require.NoError(t, err)

	err = r.Offer(signaling.OfferParams{From: "alice", To: "bob", SDP: "v=0...", RequestID: "req-1"})
	assert.Error(t, err)
}

func TestRegistryOfferRejectsEmptySDP(t *testing.T) {
	r, _ := newTestRegistry()
	require.NoError(t, mustAnnounce(r, "alice"))
	require.NoError(t, mustAnnounce(r, "bob"))

	err := r.Offer(signaling.OfferParams{From: "alice", To: "bob", SDP: "", RequestID: "req-1"})
	assert.Error(t, err)
}

func TestRegistryOfferThenAnswerRoundTrips(t *testing.T) {
	r, log := newTestRegistry()
	require.NoError(t, mustAnnounce(r, "alice"))
	require.NoError(t, mustAnnounce(r, "bob"))

	err := r.Offer(signaling.OfferParams{From: "alice", To: "bob", SDP: "offer-sdp", RequestID: "req-1"})
	require.NoError(t, err)
	require.Len(t, *log, 1)
	assert.Equal(t, "offer", (*log)[0].method)

	err = r.Answer(signaling.OfferParams{From: "bob", To: "alice", SDP: "answer-sdp", RequestID: "req-1"})
	require.NoError(t, err)
	require.Len(t, *log, 2)
	assert.Equal(t, "answer", (*log)[1].method)
}

func TestRegistryAnswerWithoutMatchingOfferFails(t *testing.T) {
	r, _ := newTestRegistry()
	require.NoError(t, mustAnnounce(r, "alice"))

	err := r.Answer(signaling.OfferParams{From: "alice", To: "bob", SDP: "answer-sdp", RequestID: "missing"})
	assert.Error(t, err)
}

func TestRegistryAnswerMayOnlyBeUsedOnce(t *testing.T) {
	r, _ := newTestRegistry()
	require.NoError(t, mustAnnounce(r, "alice"))
	require.NoError(t, mustAnnounce(r, "bob"))
	require.NoError(t, r.Offer(signaling.OfferParams{From: "alice", To: "bob", SDP: "offer-sdp", RequestID: "req-1"}))
	require.NoError(t, r.Answer(signaling.OfferParams{From: "bob", To: "alice", SDP: "answer-sdp", RequestID: "req-1"}))

	err := r.Answer(signaling.OfferParams{From: "bob", To: "alice", SDP: "answer-sdp", RequestID: "req-1"})
	assert.Error(t, err)
}

func TestRegistryICECandidateRequiresAnnouncedTarget(t *testing.T) {
	r, _ := newTestRegistry()
	require.NoError(t, mustAnnounce(r, "alice"))

	err := r.ICECandidate(signaling.ICECandidateParams{From: "alice", To: "bob", Candidate: "candidate:1 ..."})
	assert.Error(t, err)
}

func TestRegistryICECandidateRejectsEmptyCandidate(t *testing.T) {
	r, _ := newTestRegistry()
	require.NoError(t, mustAnnounce(r, "alice"))
	require.NoError(t, mustAnnounce(r, "bob"))

	err := r.ICECandidate(signaling.ICECandidateParams{From: "alice", To: "bob", Candidate: ""})
	assert.Error(t, err)
}

func TestRegistryDisconnectRemovesPeerAndNotifiesTarget(t *testing.T) {
	r, log := newTestRegistry()
	require.NoError(t, mustAnnounce(r, "alice"))
	require.NoError(t, mustAnnounce(r, "bob"))
	*log = nil

	err := r.Disconnect(signaling.DisconnectParams{From: "alice", To: "bob", Reason: signaling.ReasonUserRequested})
	require.NoError(t, err)
	require.Len(t, *log, 1)
	assert.Equal(t, "disconnect", (*log)[0].method)

	err = r.Offer(signaling.OfferParams{From: "bob", To: "alice", SDP: "x", RequestID: "req-2"})
	assert.Error(t, err, "alice should no longer be an announced peer after disconnect")
}

func TestRegistryListPeersReflectsAnnouncedState(t *testing.T) {
	r, _ := newTestRegistry()
	require.NoError(t, mustAnnounce(r, "alice"))

	peers := r.ListPeers()
	require.Len(t, peers, 1)
	assert.Equal(t, "alice", peers[0].PeerID)
}

func mustAnnounce(r *signaling.Registry, peerID string) error {
	_, err := r.Announce(peerID, nil, nil)
	return err
}
