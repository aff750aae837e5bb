package ipcchannel

import (
	"container/heap"
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mediarun/pipeline-runtime/pkg/ipcchannel/shm"
	"github.com/mediarun/pipeline-runtime/pkg/rterr"
)

// MediaKind distinguishes the default back-pressure deadline applied to a
// SendData command (spec §4.1: 30 ms audio, 100 ms video by default).
type MediaKind int

const (
	MediaKindVideo MediaKind = iota
	MediaKindAudio
	MediaKindOther
)

func defaultDeadline(kind MediaKind) time.Duration {
	switch kind {
	case MediaKindAudio:
		return 30 * time.Millisecond
	case MediaKindVideo:
		return 100 * time.Millisecond
	default:
		return 100 * time.Millisecond
	}
}

// commandType mirrors the three commands of the spec's command contract.
type commandType int

const (
	cmdSendData commandType = iota
	cmdRequestReceive
	cmdShutdown
)

// priority: audio sends are serviced before video/other, matching the
// tighter audio back-pressure deadline.
func (c commandType) basePriority(kind MediaKind) int {
	if c == cmdSendData && kind == MediaKindAudio {
		return 0
	}
	return 1
}

type commandTicket struct {
	cmd       commandType
	payload   []byte
	deadline  time.Time
	response  chan commandResult
	timestamp time.Time
	priority  int
	index     int
}

type commandResult struct {
	payload []byte
	err     error
}

type ticketHeap []*commandTicket

func (h ticketHeap) Len() int { return len(h) }
func (h ticketHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].timestamp.Before(h[j].timestamp)
}
func (h ticketHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *ticketHeap) Push(x any) {
	t := x.(*commandTicket)
	t.index = len(*h)
	*h = append(*h, t)
}
func (h *ticketHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

// Channel owns one session-scoped IPC channel pair's publisher/subscriber
// shared-memory handles. Per spec Design Note "non-movable IPC handles",
// the handles are only ever touched on the dedicated OS thread started in
// Open; all other goroutines interact exclusively through the command
// queue.
type Channel struct {
	SessionID string
	NodeID    string

	inputName  string
	outputName string

	pub *shm.Ring // written by this side, read by the worker (input to worker)
	sub *shm.Ring // read by this side, written by the worker (output from worker)

	log zerolog.Logger

	mu     sync.Mutex
	heap   ticketHeap
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	wake chan struct{}
}

// Open creates (or attaches to) the shared-memory ring pair for
// (sessionID, nodeID) under dir, and starts the dedicated IPC thread.
func Open(ctx context.Context, dir, sessionID, nodeID string, capacity uint32, log zerolog.Logger) (*Channel, error) {
	inputName := ChannelName(sessionID, nodeID, DirectionInput)
	outputName := ChannelName(sessionID, nodeID, DirectionOutput)

	pub, err := shm.Create(dir+"/"+inputName, capacity)
	if err != nil {
		return nil, rterr.Wrap(KindPublisherCreationFailed, "create input ring", err)
	}
	sub, err := shm.Create(dir+"/"+outputName, capacity)
	if err != nil {
		pub.Remove()
		return nil, rterr.Wrap(KindSubscriberCreationFailed, "create output ring", err)
	}

	cctx, cancel := context.WithCancel(ctx)
	c := &Channel{
		SessionID:  sessionID,
		NodeID:     nodeID,
		inputName:  inputName,
		outputName: outputName,
		pub:        pub,
		sub:        sub,
		log:        log.With().Str("session_id", sessionID).Str("node_id", nodeID).Logger(),
		heap:       make(ticketHeap, 0),
		ctx:        cctx,
		cancel:     cancel,
		wake:       make(chan struct{}, 1),
	}
	heap.Init(&c.heap)

	c.wg.Add(1)
	go c.run()

	return c, nil
}

// SendData enqueues a payload for delivery to the worker's input channel,
// blocking the caller until the dedicated thread accepts it or the
// media-kind deadline elapses.
func (c *Channel) SendData(payload []byte, kind MediaKind) error {
	return c.submit(cmdSendData, payload, defaultDeadline(kind), cmdSendData.basePriority(kind))
}

// RequestReceive blocks until one payload is available on the worker's
// output channel, or the deadline elapses.
func (c *Channel) RequestReceive(deadline time.Duration) ([]byte, error) {
	ticket := &commandTicket{
		cmd:       cmdRequestReceive,
		deadline:  time.Now().Add(deadline),
		response:  make(chan commandResult, 1),
		timestamp: time.Now(),
		priority:  1,
	}
	return c.enqueueAndWait(ticket)
}

// Shutdown stops the dedicated thread and releases the shared-memory
// files (spec §4.2 cleanup: close IPC thread, remove stale channel files).
func (c *Channel) Shutdown() error {
	ticket := &commandTicket{cmd: cmdShutdown, response: make(chan commandResult, 1), timestamp: time.Now()}
	c.mu.Lock()
	heap.Push(&c.heap, ticket)
	c.mu.Unlock()
	c.kick()

	select {
	case <-ticket.response:
	case <-time.After(2 * time.Second):
	}

	c.cancel()
	c.wg.Wait()

	var firstErr error
	if err := c.pub.Remove(); err != nil {
		firstErr = err
	}
	if err := c.sub.Remove(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (c *Channel) submit(cmd commandType, payload []byte, deadline time.Duration, priority int) error {
	ticket := &commandTicket{
		cmd:       cmd,
		payload:   payload,
		deadline:  time.Now().Add(deadline),
		response:  make(chan commandResult, 1),
		timestamp: time.Now(),
		priority:  priority,
	}
	_, err := c.enqueueAndWait(ticket)
	return err
}

func (c *Channel) enqueueAndWait(ticket *commandTicket) ([]byte, error) {
	c.mu.Lock()
	heap.Push(&c.heap, ticket)
	c.mu.Unlock()
	c.kick()

	select {
	case res := <-ticket.response:
		return res.payload, res.err
	case <-c.ctx.Done():
		return nil, rterr.New(KindShutdownInProgress, "channel shutting down")
	}
}

func (c *Channel) kick() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// run is the dedicated OS thread loop. It services queued commands in
// priority order; while a send or receive is being serviced it polls the
// ring in a tight loop, yielding with runtime.Gosched between empty polls
// rather than sleeping (spec §4.1 polling policy). With no command queued
// it waits for a wake-up signal, re-checking at least once per millisecond.
func (c *Channel) run() {
	defer c.wg.Done()
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		ticket := c.popNext()
		if ticket == nil {
			runtime.Gosched()
			select {
			case <-c.wake:
			case <-time.After(time.Millisecond):
			case <-c.ctx.Done():
				return
			}
			continue
		}

		switch ticket.cmd {
		case cmdSendData:
			c.handleSend(ticket)
		case cmdRequestReceive:
			c.handleReceive(ticket)
		case cmdShutdown:
			ticket.response <- commandResult{}
			return
		}
	}
}

func (c *Channel) popNext() *commandTicket {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.heap.Len() == 0 {
		return nil
	}
	return heap.Pop(&c.heap).(*commandTicket)
}

func (c *Channel) handleSend(ticket *commandTicket) {
	for {
		if c.pub.TryPush(ticket.payload) {
			c.log.Debug().Int("bytes", len(ticket.payload)).Msg("frame pushed to input ring")
			ticket.response <- commandResult{}
			return
		}
		if time.Now().After(ticket.deadline) {
			ticket.response <- commandResult{err: rterr.New(KindSendBufferFull, fmt.Sprintf("send buffer full for %s", c.inputName))}
			return
		}
		runtime.Gosched()
	}
}

func (c *Channel) handleReceive(ticket *commandTicket) {
	for {
		if payload, ok := c.sub.TryPop(); ok {
			c.log.Debug().Int("bytes", len(payload)).Msg("frame popped from output ring")
			ticket.response <- commandResult{payload: payload}
			return
		}
		if time.Now().After(ticket.deadline) {
			ticket.response <- commandResult{err: rterr.New(KindReceiveTimeout, "receive deadline exceeded").WithSuggestion("increase receive deadline or check worker liveness")}
			return
		}
		runtime.Gosched()
	}
}
