package executor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// OnWorkerFailed is invoked when the health monitor observes a worker
// transition to StateFailed, so the owning session can retry (bounded) or
// surface the error (spec §4.2 "Health monitoring").
type OnWorkerFailed func(nodeID string, w *Worker)

// HealthMonitor periodically probes every registered worker's liveness.
// Probe frequency is capped by a rate.Limiter the same way the teacher's
// command queue paces outbound API calls, so a large worker fleet cannot
// turn health checks into a liveness-probing storm.
type HealthMonitor struct {
	interval time.Duration
	limiter  *rate.Limiter
	log      zerolog.Logger
	onFailed OnWorkerFailed

	mu      sync.Mutex
	workers map[string]*Worker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHealthMonitor constructs a monitor that checks each worker at most
// once per interval, probing at most maxProbesPerSecond workers/sec.
func NewHealthMonitor(interval time.Duration, maxProbesPerSecond float64, log zerolog.Logger, onFailed OnWorkerFailed) *HealthMonitor {
	ctx, cancel := context.WithCancel(context.Background())
	return &HealthMonitor{
		interval: interval,
		limiter:  rate.NewLimiter(rate.Limit(maxProbesPerSecond), 1),
		log:      log,
		onFailed: onFailed,
		workers:  make(map[string]*Worker),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Track adds a worker to the monitored set.
func (h *HealthMonitor) Track(nodeID string, w *Worker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.workers[nodeID] = w
}

// Untrack removes a worker from the monitored set (on clean shutdown).
func (h *HealthMonitor) Untrack(nodeID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.workers, nodeID)
}

// Start begins the monitoring loop.
func (h *HealthMonitor) Start() {
	h.wg.Add(1)
	go h.loop()
}

// Stop cancels the monitoring loop and waits for it to exit.
func (h *HealthMonitor) Stop() {
	h.cancel()
	h.wg.Wait()
}

func (h *HealthMonitor) loop() {
	defer h.wg.Done()
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
			h.checkAll()
		}
	}
}

func (h *HealthMonitor) checkAll() {
	h.mu.Lock()
	snapshot := make(map[string]*Worker, len(h.workers))
	for id, w := range h.workers {
		snapshot[id] = w
	}
	h.mu.Unlock()

	for nodeID, w := range snapshot {
		if err := h.limiter.Wait(h.ctx); err != nil {
			return
		}
		if w.State() == StateFailed || !w.IsAlive() {
			h.log.Warn().Str("node_id", nodeID).Msg("worker health check failed")
			if w.State() != StateFailed {
				w.state.Store(int32(StateFailed))
			}
			h.Untrack(nodeID)
			if h.onFailed != nil {
				h.onFailed(nodeID, w)
			}
		}
	}
}
