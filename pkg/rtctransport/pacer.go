package rtctransport

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// pacedSample is one encoded media sample awaiting paced transmission.
type pacedSample struct {
	data      []byte
	timestamp uint32 // RTP clock-rate timestamp, not wall clock
	isVideo   bool
}

// pacer absorbs bursty writes in bounded per-kind queues and drains each
// queue to one peer, one instance per connected peer (spec §4.6
// "Sending"). Samples are written as soon as they are dequeued; the pacer
// applies no send-rate limit of its own.
// Adapted from a leaky-bucket pacer that smoothed a single outbound
// destination into one that fans out per-peer alongside the N-peer mesh.
type pacer struct {
	log zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	videoChan chan pacedSample
	audioChan chan pacedSample

	writeVideo func(data []byte, timestamp uint32) error
	writeAudio func(data []byte, timestamp uint32) error

	statsMu          sync.Mutex
	videoSent        uint64
	audioSent        uint64
	videoBufferDrops uint64
	audioBufferDrops uint64
}

const (
	pacerQueueDepth    = 100 // spec §5 "RTP per-peer send buffer: ~100 packets"
	videoSendDeadline  = 30 * time.Millisecond
	audioSendDeadline  = 10 * time.Millisecond
)

func newPacer(ctx context.Context, log zerolog.Logger, writeVideo, writeAudio func([]byte, uint32) error) *pacer {
	ctx, cancel := context.WithCancel(ctx)
	return &pacer{
		log:        log.With().Str("component", "pacer").Logger(),
		ctx:        ctx,
		cancel:     cancel,
		videoChan:  make(chan pacedSample, pacerQueueDepth),
		audioChan:  make(chan pacedSample, pacerQueueDepth),
		writeVideo: writeVideo,
		writeAudio: writeAudio,
	}
}

func (p *pacer) start() {
	p.wg.Add(2)
	go p.drainLoop(p.videoChan, p.writeVideo, true)
	go p.drainLoop(p.audioChan, p.writeAudio, false)
}

func (p *pacer) stop() {
	p.cancel()
	p.wg.Wait()
}

func (p *pacer) drainLoop(ch chan pacedSample, write func([]byte, uint32) error, isVideo bool) {
	defer p.wg.Done()
	for {
		select {
		case s := <-ch:
			if err := write(s.data, s.timestamp); err != nil {
				p.log.Warn().Err(err).Bool("video", isVideo).Msg("pacer write failed")
				continue
			}
			p.statsMu.Lock()
			if isVideo {
				p.videoSent++
			} else {
				p.audioSent++
			}
			p.statsMu.Unlock()
		case <-p.ctx.Done():
			return
		}
	}
}

// enqueueVideo queues a video sample, failing with ok=false if the send
// buffer stays full past the video deadline (spec §4.6 "Backpressure").
func (p *pacer) enqueueVideo(data []byte, ts uint32) bool {
	return p.enqueue(p.videoChan, pacedSample{data: data, timestamp: ts, isVideo: true}, videoSendDeadline, true)
}

// enqueueAudio is the audio analogue of enqueueVideo, with a tighter
// deadline (spec §4.6).
func (p *pacer) enqueueAudio(data []byte, ts uint32) bool {
	return p.enqueue(p.audioChan, pacedSample{data: data, timestamp: ts}, audioSendDeadline, false)
}

func (p *pacer) enqueue(ch chan pacedSample, s pacedSample, deadline time.Duration, isVideo bool) bool {
	select {
	case ch <- s:
		return true
	default:
	}

	timer := time.NewTimer(deadline)
	defer timer.Stop()
	select {
	case ch <- s:
		return true
	case <-timer.C:
		p.statsMu.Lock()
		if isVideo {
			p.videoBufferDrops++
		} else {
			p.audioBufferDrops++
		}
		p.statsMu.Unlock()
		return false
	case <-p.ctx.Done():
		return false
	}
}
