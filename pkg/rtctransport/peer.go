package rtctransport

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/mediarun/pipeline-runtime/pkg/rterr"
	"github.com/mediarun/pipeline-runtime/pkg/syncmanager"
)

// Kind errors for the transport subsystem (spec §7 "Transport" taxonomy).
const (
	KindPeerConnectFailed rterr.Kind = "transport.peer_connect_failed"
	KindSendBufferFull    rterr.Kind = "transport.send_buffer_full"
	KindPeerNotFound      rterr.Kind = "transport.peer_not_found"
	KindPeerLimitExceeded rterr.Kind = "transport.peer_limit_exceeded"
	KindDataChannelTooBig rterr.Kind = "transport.data_channel_message_too_large"
)

// ConnectionState mirrors a peer's negotiation/connectivity state (spec §3.5).
type ConnectionState int32

const (
	ConnStateNew ConnectionState = iota
	ConnStateConnecting
	ConnStateConnected
	ConnStateFailed
	ConnStateClosed
)

func (s ConnectionState) String() string {
	switch s {
	case ConnStateNew:
		return "new"
	case ConnStateConnecting:
		return "connecting"
	case ConnStateConnected:
		return "connected"
	case ConnStateFailed:
		return "failed"
	case ConnStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Capabilities is the set of media kinds a peer negotiated.
type Capabilities struct {
	Audio bool
	Video bool
	Data  bool
}

// Metrics carries the connection-quality snapshot spec §3.5 requires per
// peer.
type Metrics struct {
	LatencyMs  float64
	LossPct    float64
	JitterMs   float64
	BitrateBps uint32
}

// DataChannelMaxBytes is the hard cap on a single data channel message
// (spec §4.6 "up to 16 MB").
const DataChannelMaxBytes = 16 * 1024 * 1024

// Peer owns one RTC peer connection, its tracks, optional data channel,
// and per-media-kind synchronization managers (spec §3.5, §4.6).
type Peer struct {
	ID  string
	log zerolog.Logger

	pc          *webrtc.PeerConnection
	videoTrack  *webrtc.TrackLocalStaticRTP
	audioTrack  *webrtc.TrackLocalStaticRTP
	videoSender *webrtc.RTPSender
	audioSender *webrtc.RTPSender
	dataChannel *webrtc.DataChannel

	caps Capabilities

	pacer   *pacer
	bitrate *bitrateController

	AudioSync *syncmanager.Manager
	VideoSync *syncmanager.Manager

	state atomic.Int32

	seqMu       sync.Mutex
	videoSeq    uint16
	audioSeq    uint16
	videoTSBase uint32
	audioTSBase uint32

	metricsMu sync.RWMutex
	metrics   Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// newPeer constructs a Peer, negotiating only the tracks its capabilities
// request, and wires RTCP feedback into its sync managers and adaptive
// bitrate controller.
func newPeer(parent context.Context, id string, api *webrtc.API, caps Capabilities, cfg TransportConfig, log zerolog.Logger) (*Peer, error) {
	ctx, cancel := context.WithCancel(parent)

	pcConfig := webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}},
	}
	pc, err := api.NewPeerConnection(pcConfig)
	if err != nil {
		cancel()
		return nil, rterr.Wrap(KindPeerConnectFailed, "create peer connection", err)
	}

	p := &Peer{
		ID:        id,
		log:       log.With().Str("peer_id", id).Logger(),
		pc:        pc,
		caps:      caps,
		AudioSync: syncmanager.New(syncmanager.KindAudio, cfg.JitterBufferSize, 64),
		VideoSync: syncmanager.New(syncmanager.KindVideo, cfg.JitterBufferSize, 64),
		ctx:       ctx,
		cancel:    cancel,
	}
	p.videoSeq = uint16(time.Now().UnixNano() & 0xffff)
	p.audioSeq = uint16((time.Now().UnixNano() >> 16) & 0xffff)

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		p.state.Store(int32(mapConnectionState(s)))
		p.log.Info().Str("state", s.String()).Msg("peer connection state changed")
	})

	if caps.Video {
		track, err := webrtc.NewTrackLocalStaticRTP(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP9, ClockRate: VideoClockRateHz},
			fmt.Sprintf("%s-video", id), id)
		if err != nil {
			cancel()
			return nil, rterr.Wrap(KindPeerConnectFailed, "create video track", err)
		}
		sender, err := pc.AddTrack(track)
		if err != nil {
			cancel()
			return nil, rterr.Wrap(KindPeerConnectFailed, "add video track", err)
		}
		p.videoTrack, p.videoSender = track, sender
	}

	if caps.Audio {
		track, err := webrtc.NewTrackLocalStaticRTP(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: AudioClockRateHz, Channels: 2},
			fmt.Sprintf("%s-audio", id), id)
		if err != nil {
			cancel()
			return nil, rterr.Wrap(KindPeerConnectFailed, "create audio track", err)
		}
		sender, err := pc.AddTrack(track)
		if err != nil {
			cancel()
			return nil, rterr.Wrap(KindPeerConnectFailed, "add audio track", err)
		}
		p.audioTrack, p.audioSender = track, sender
	}

	if caps.Data {
		ordered := true
		dc, err := pc.CreateDataChannel(fmt.Sprintf("%s-data", id), &webrtc.DataChannelInit{Ordered: &ordered})
		if err != nil {
			cancel()
			return nil, rterr.Wrap(KindPeerConnectFailed, "create data channel", err)
		}
		p.dataChannel = dc
	}

	p.bitrate = newBitrateController(cfg.TargetBitrateKbps, cfg.MinBitrateKbps, cfg.AdaptiveBitrateEnabled)
	p.pacer = newPacer(ctx, p.log, p.writeVideoRTP, p.writeAudioRTP)
	p.pacer.start()
	p.startRTCPReaders()

	return p, nil
}

func mapConnectionState(s webrtc.PeerConnectionState) ConnectionState {
	switch s {
	case webrtc.PeerConnectionStateNew:
		return ConnStateNew
	case webrtc.PeerConnectionStateConnecting:
		return ConnStateConnecting
	case webrtc.PeerConnectionStateConnected:
		return ConnStateConnected
	case webrtc.PeerConnectionStateFailed:
		return ConnStateFailed
	case webrtc.PeerConnectionStateClosed, webrtc.PeerConnectionStateDisconnected:
		return ConnStateClosed
	default:
		return ConnStateNew
	}
}

// State returns the peer's current connection state.
func (p *Peer) State() ConnectionState { return ConnectionState(p.state.Load()) }

// Capabilities returns the peer's negotiated media capabilities.
func (p *Peer) Capabilities() Capabilities { return p.caps }

// Metrics returns a snapshot of the peer's connection-quality metrics.
func (p *Peer) Metrics() Metrics {
	p.metricsMu.RLock()
	defer p.metricsMu.RUnlock()
	return p.metrics
}

// SendVideo enqueues an already-encoded VP9/H.264 sample for paced
// transmission, assigning the next RTP sequence and clock-correct
// timestamp (spec §4.6 "Sending").
func (p *Peer) SendVideo(data []byte) error {
	if p.videoTrack == nil {
		return rterr.New(KindPeerConnectFailed, "peer did not negotiate video")
	}
	ts := p.nextVideoTimestamp()
	if !p.pacer.enqueueVideo(data, ts) {
		return rterr.New(KindSendBufferFull, "video send buffer full past deadline")
	}
	return nil
}

// SendAudio is the audio analogue of SendVideo.
func (p *Peer) SendAudio(data []byte) error {
	if p.audioTrack == nil {
		return rterr.New(KindPeerConnectFailed, "peer did not negotiate audio")
	}
	ts := p.nextAudioTimestamp()
	if !p.pacer.enqueueAudio(data, ts) {
		return rterr.New(KindSendBufferFull, "audio send buffer full past deadline")
	}
	return nil
}

// SendData writes to the peer's data channel, rejecting oversized
// messages (spec §4.6 "Data channel").
func (p *Peer) SendData(payload []byte) error {
	if p.dataChannel == nil {
		return rterr.New(KindPeerConnectFailed, "peer did not negotiate a data channel")
	}
	if len(payload) > DataChannelMaxBytes {
		return rterr.New(KindDataChannelTooBig, "data channel payload exceeds 16MB")
	}
	return p.dataChannel.Send(payload)
}

func (p *Peer) nextVideoTimestamp() uint32 {
	p.seqMu.Lock()
	defer p.seqMu.Unlock()
	p.videoTSBase += VideoClockRateHz / 30 // nominal 30fps increment
	return p.videoTSBase
}

func (p *Peer) nextAudioTimestamp() uint32 {
	p.seqMu.Lock()
	defer p.seqMu.Unlock()
	p.audioTSBase += OpusFrameSamples
	return p.audioTSBase
}

func (p *Peer) writeVideoRTP(data []byte, ts uint32) error {
	p.seqMu.Lock()
	seq := p.videoSeq
	p.videoSeq++
	p.seqMu.Unlock()

	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			SequenceNumber: seq,
			Timestamp:      ts,
			Marker:         true,
		},
		Payload: data,
	}
	if err := p.videoTrack.WriteRTP(pkt); err != nil {
		if err == io.ErrClosedPipe {
			return nil
		}
		return err
	}
	return nil
}

func (p *Peer) writeAudioRTP(data []byte, ts uint32) error {
	p.seqMu.Lock()
	seq := p.audioSeq
	p.audioSeq++
	p.seqMu.Unlock()

	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			SequenceNumber: seq,
			Timestamp:      ts,
			Marker:         true,
		},
		Payload: data,
	}
	if err := p.audioTrack.WriteRTP(pkt); err != nil {
		if err == io.ErrClosedPipe {
			return nil
		}
		return err
	}
	return nil
}

func (p *Peer) startRTCPReaders() {
	if p.videoSender != nil {
		p.wg.Add(1)
		go p.readRTCP(p.videoSender, true)
	}
	if p.audioSender != nil {
		p.wg.Add(1)
		go p.readRTCP(p.audioSender, false)
	}
}

// readRTCP drains RTCP feedback for one sender, feeding loss fraction
// into the adaptive bitrate controller and Sender-Report timing into the
// peer's sync managers.
func (p *Peer) readRTCP(sender *webrtc.RTPSender, isVideo bool) {
	defer p.wg.Done()
	for {
		packets, _, err := sender.ReadRTCP()
		if err != nil {
			select {
			case <-p.ctx.Done():
				return
			default:
				if err == io.EOF || err == io.ErrClosedPipe {
					return
				}
				p.log.Warn().Err(err).Msg("rtcp read error")
				return
			}
		}

		for _, pkt := range packets {
			switch rr := pkt.(type) {
			case *rtcp.ReceiverReport:
				for _, rep := range rr.Reports {
					lossPct := float64(rep.FractionLost) / 256.0 * 100.0
					p.metricsMu.Lock()
					p.metrics.LossPct = lossPct
					p.metricsMu.Unlock()
					if isVideo && p.bitrate != nil {
						p.bitrate.onLoss(lossPct)
					}
				}
			case *rtcp.SenderReport:
				if rr.NTPTime == 0 {
					p.log.Warn().Bool("video", isVideo).Msg("rejecting sender report with ntp=0")
					continue
				}
				ntpUs := ntpToMicros(rr.NTPTime)
				var err error
				if isVideo {
					err = p.VideoSync.OnSenderReport(ntpUs, rr.RTPTime)
				} else {
					err = p.AudioSync.OnSenderReport(ntpUs, rr.RTPTime)
				}
				if err != nil {
					p.log.Warn().Err(err).Bool("video", isVideo).Msg("rejecting sender report")
				}
			}
		}
	}
}

// ntpToMicros converts an RFC 3550 NTP 64-bit fixed point timestamp to
// microseconds since the NTP epoch.
func ntpToMicros(ntp uint64) int64 {
	seconds := ntp >> 32
	frac := ntp & 0xffffffff
	return int64(seconds)*1_000_000 + int64(frac)*1_000_000/(1<<32)
}

// Close tears the peer connection down within the spec's bound (≤2s,
// spec §5 "Cancellation & timeouts").
func (p *Peer) Close() error {
	p.state.Store(int32(ConnStateClosed))
	if p.pacer != nil {
		p.pacer.stop()
	}
	p.cancel()

	done := make(chan struct{})
	go func() { p.wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
	}

	if p.pc != nil {
		return p.pc.Close()
	}
	return nil
}
