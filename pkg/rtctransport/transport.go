// Package rtctransport implements the N-peer WebRTC mesh transport: one
// RTC peer connection per connected peer, codec negotiation, adaptive
// bitrate, and per-peer synchronization (spec §3.5, §4.6, §6.1).
package rtctransport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/mediarun/pipeline-runtime/pkg/rterr"
)

// TransportConfig holds the `configure(options)` surface (spec §6.1).
type TransportConfig struct {
	MaxPeers               int
	AdaptiveBitrateEnabled bool
	TargetBitrateKbps      uint32
	MinBitrateKbps         uint32
	MaxVideoResolution     string // "480p" | "720p" | "1080p"
	VideoFramerateFPS      int
	AudioBitrateKbps       uint32
	JitterBufferSize       time.Duration
	ICETimeoutSecs         int
	RTCPIntervalMs         int
}

// DefaultTransportConfig matches spec §5/§6.1's documented defaults and
// ranges.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		MaxPeers:               10,
		AdaptiveBitrateEnabled: true,
		TargetBitrateKbps:      2000,
		MinBitrateKbps:         150,
		MaxVideoResolution:     "720p",
		VideoFramerateFPS:      30,
		AudioBitrateKbps:       DefaultAudioKbps,
		JitterBufferSize:       100 * time.Millisecond,
		ICETimeoutSecs:         30,
		RTCPIntervalMs:         5000,
	}
}

// Validate enforces the ranges spec §6.1 documents for `configure`.
func (c TransportConfig) Validate() error {
	if c.TargetBitrateKbps < 16 || c.TargetBitrateKbps > 50_000 {
		return rterr.New(KindPeerConnectFailed, "target_bitrate_kbps out of range [16, 50000]")
	}
	switch c.MaxVideoResolution {
	case "480p", "720p", "1080p":
	default:
		return rterr.New(KindPeerConnectFailed, fmt.Sprintf("unsupported max_video_resolution %q", c.MaxVideoResolution))
	}
	if c.VideoFramerateFPS < 10 || c.VideoFramerateFPS > 60 {
		return rterr.New(KindPeerConnectFailed, "video_framerate_fps out of range [10, 60]")
	}
	if c.JitterBufferSize < 50*time.Millisecond || c.JitterBufferSize > 200*time.Millisecond {
		return rterr.New(KindPeerConnectFailed, "jitter_buffer_size_ms out of range [50, 200]")
	}
	if c.RTCPIntervalMs < 1000 || c.RTCPIntervalMs > 10_000 {
		return rterr.New(KindPeerConnectFailed, "rtcp_interval_ms out of range [1000, 10000]")
	}
	return nil
}

// BroadcastResult aggregates the outcome of a broadcast send (spec §4.6
// "Broadcasting").
type BroadcastResult struct {
	Total       int
	Sent        int
	Failed      int
	FailedPeers []string
}

// PeerInfo is the `list_peers` external shape (spec §6.1).
type PeerInfo struct {
	PeerID          string
	ConnectionState ConnectionState
	Capabilities    Capabilities
	Metrics         Metrics
	AudioSyncState  string
	VideoSyncState  string
}

// Transport owns the mesh of connected peers (spec §6.1 "Transport public API").
type Transport struct {
	log zerolog.Logger
	api *webrtc.API

	mu     sync.RWMutex
	cfg    TransportConfig
	peers  map[string]*Peer
	ctx    context.Context
	cancel context.CancelFunc
}

// NewTransport constructs a Transport with the given config (spec §6.1
// "new(config)").
func NewTransport(cfg TransportConfig, log zerolog.Logger) (*Transport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	engine, err := newMediaEngine()
	if err != nil {
		return nil, err
	}
	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(engine, registry); err != nil {
		return nil, err
	}
	return &Transport{
		log:   log,
		api:   webrtc.NewAPI(webrtc.WithMediaEngine(engine), webrtc.WithInterceptorRegistry(registry)),
		cfg:   cfg,
		peers: make(map[string]*Peer),
	}, nil
}

// Start begins background operation. The transport itself is passive
// until peers connect, so this only establishes the root context.
func (t *Transport) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ctx, t.cancel = context.WithCancel(ctx)
}

// Configure updates the transport's runtime options (spec §6.1
// "configure(options)").
func (t *Transport) Configure(cfg TransportConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cfg = cfg
	return nil
}

// ConnectPeer registers a new peer connection with the given
// capabilities, enforcing the configured peer limit (spec §5 "Peers per
// transport: configurable, hard default 10").
func (t *Transport) ConnectPeer(peerID string, caps Capabilities) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.peers[peerID]; exists {
		return peerID, nil
	}
	if len(t.peers) >= t.cfg.MaxPeers {
		return "", rterr.New(KindPeerLimitExceeded, fmt.Sprintf("peer limit of %d reached", t.cfg.MaxPeers))
	}
	if t.ctx == nil {
		t.ctx, t.cancel = context.WithCancel(context.Background())
	}

	p, err := newPeer(t.ctx, peerID, t.api, caps, t.cfg, t.log)
	if err != nil {
		return "", err
	}
	t.peers[peerID] = p
	return peerID, nil
}

// DisconnectPeer tears a peer down and removes it from the mesh.
func (t *Transport) DisconnectPeer(peerID string) error {
	t.mu.Lock()
	p, ok := t.peers[peerID]
	if ok {
		delete(t.peers, peerID)
	}
	t.mu.Unlock()

	if !ok {
		return rterr.New(KindPeerNotFound, fmt.Sprintf("peer %q not connected", peerID))
	}
	return p.Close()
}

// ListPeers returns a snapshot of every connected peer's state.
func (t *Transport) ListPeers() []PeerInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()

	infos := make([]PeerInfo, 0, len(t.peers))
	for id, p := range t.peers {
		infos = append(infos, PeerInfo{
			PeerID:          id,
			ConnectionState: p.State(),
			Capabilities:    p.Capabilities(),
			Metrics:         p.Metrics(),
			AudioSyncState:  p.AudioSync.State().String(),
			VideoSyncState:  p.VideoSync.State().String(),
		})
	}
	return infos
}

func (t *Transport) peer(peerID string) (*Peer, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.peers[peerID]
	if !ok {
		return nil, rterr.New(KindPeerNotFound, fmt.Sprintf("peer %q not connected", peerID))
	}
	return p, nil
}

// SendToPeer routes an already-encoded media or data payload to one
// peer (spec §6.1 "Data: send_to_peer").
func (t *Transport) SendToPeer(peerID string, payload []byte, isVideo, isData bool) error {
	p, err := t.peer(peerID)
	if err != nil {
		return err
	}
	switch {
	case isData:
		return p.SendData(payload)
	case isVideo:
		return p.SendVideo(payload)
	default:
		return p.SendAudio(payload)
	}
}

// Broadcast sends payload to every connected peer concurrently. One
// peer's failure never blocks delivery to the others (spec §4.6
// "Broadcasting").
func (t *Transport) Broadcast(payload []byte, isVideo, isData bool) BroadcastResult {
	t.mu.RLock()
	peers := make([]*Peer, 0, len(t.peers))
	ids := make([]string, 0, len(t.peers))
	for id, p := range t.peers {
		peers = append(peers, p)
		ids = append(ids, id)
	}
	t.mu.RUnlock()

	result := BroadcastResult{Total: len(peers)}
	if len(peers) == 0 {
		return result
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for i, p := range peers {
		wg.Add(1)
		go func(id string, p *Peer) {
			defer wg.Done()
			var err error
			switch {
			case isData:
				err = p.SendData(payload)
			case isVideo:
				err = p.SendVideo(payload)
			default:
				err = p.SendAudio(payload)
			}
			mu.Lock()
			if err != nil {
				result.Failed++
				result.FailedPeers = append(result.FailedPeers, id)
			} else {
				result.Sent++
			}
			mu.Unlock()
		}(ids[i], p)
	}
	wg.Wait()
	return result
}

// Shutdown tears down every peer within the spec's bound (≤5s, spec §5).
func (t *Transport) Shutdown() error {
	t.mu.Lock()
	peers := make([]*Peer, 0, len(t.peers))
	for _, p := range t.peers {
		peers = append(peers, p)
	}
	t.peers = make(map[string]*Peer)
	cancel := t.cancel
	t.mu.Unlock()

	done := make(chan struct{})
	go func() {
		var wg sync.WaitGroup
		for _, p := range peers {
			wg.Add(1)
			go func(p *Peer) {
				defer wg.Done()
				_ = p.Close()
			}(p)
		}
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
	}
	if cancel != nil {
		cancel()
	}
	return nil
}
