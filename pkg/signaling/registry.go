package signaling

import (
	"sync"
	"time"

	"github.com/mediarun/pipeline-runtime/pkg/rterr"
)

// offerTimeout bounds how long an outstanding offer waits for its answer
// (spec §4.7 "Offer awaits answer for ≤ 30 s").
const offerTimeout = 30 * time.Second

// peerRecord tracks one announced peer's capabilities.
type peerRecord struct {
	capabilities []string
	announcedAt  time.Time
}

// pendingOffer tracks an outstanding offer awaiting its matching answer.
type pendingOffer struct {
	from, to string
	sentAt   time.Time
}

// Registry is the default in-memory Handler implementation: peer
// presence plus outstanding-offer tracking, with no persistence (spec §6.6
// "the pipeline/transport itself keeps no durable state").
type Registry struct {
	mu      sync.Mutex
	peers   map[string]*peerRecord
	pending map[string]*pendingOffer // keyed by request_id
	notify  func(peerID string, method string, params any)
}

// NewRegistry constructs a Registry. notify is called to push a
// server-initiated notification (peer.announced, forwarded offer/answer,
// ice candidate, disconnect) to one peer's transport connection.
func NewRegistry(notify func(peerID, method string, params any)) *Registry {
	return &Registry{
		peers:   make(map[string]*peerRecord),
		pending: make(map[string]*pendingOffer),
		notify:  notify,
	}
}

func (r *Registry) Announce(peerID string, capabilities []string, userData any) (AnnounceResult, error) {
	r.mu.Lock()
	r.peers[peerID] = &peerRecord{capabilities: capabilities, announcedAt: time.Now()}
	others := make([]string, 0, len(r.peers))
	for id := range r.peers {
		if id != peerID {
			others = append(others, id)
		}
	}
	r.mu.Unlock()

	for _, id := range others {
		r.notify(id, "peer.announced", PeerAnnouncedNotification{PeerID: peerID, Capabilities: capabilities})
	}

	return AnnounceResult{Status: "ok", ServerTime: time.Now().Unix(), PeerID: peerID}, nil
}

func (r *Registry) requirePeer(peerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.peers[peerID]; !ok {
		return rterr.New(KindPeerNotFound, "peer "+peerID+" is not announced")
	}
	return nil
}

func (r *Registry) Offer(p OfferParams) error {
	if p.SDP == "" {
		return rterr.New(KindOfferInvalid, "offer sdp must not be empty")
	}
	if err := r.requirePeer(p.To); err != nil {
		return err
	}
	r.mu.Lock()
	r.pending[p.RequestID] = &pendingOffer{from: p.From, to: p.To, sentAt: time.Now()}
	r.mu.Unlock()

	r.notify(p.To, "offer", p)
	return nil
}

func (r *Registry) Answer(p OfferParams) error {
	if p.SDP == "" {
		return rterr.New(KindAnswerInvalid, "answer sdp must not be empty")
	}
	r.mu.Lock()
	pending, ok := r.pending[p.RequestID]
	if ok {
		delete(r.pending, p.RequestID)
	}
	r.mu.Unlock()

	if !ok {
		return rterr.New(KindAnswerInvalid, "answer request_id does not match an outstanding offer")
	}
	if time.Since(pending.sentAt) > offerTimeout {
		return rterr.New(KindAnswerInvalid, "answer arrived after the offer timeout")
	}

	r.notify(p.To, "answer", p)
	return nil
}

func (r *Registry) ICECandidate(p ICECandidateParams) error {
	if p.Candidate == "" {
		return rterr.New(KindICEInvalid, "candidate must not be empty")
	}
	if err := r.requirePeer(p.To); err != nil {
		return err
	}
	r.notify(p.To, "ice_candidate", p)
	return nil
}

func (r *Registry) Disconnect(p DisconnectParams) error {
	r.mu.Lock()
	delete(r.peers, p.From)
	r.mu.Unlock()

	if p.To != "" {
		r.notify(p.To, "disconnect", p)
	}
	return nil
}

func (r *Registry) ListPeers() []ListPeersResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ListPeersResult, 0, len(r.peers))
	for id, rec := range r.peers {
		out = append(out, ListPeersResult{PeerID: id, ConnectionState: "connected", Capabilities: rec.capabilities})
	}
	return out
}
