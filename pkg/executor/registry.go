package executor

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// SharedRegistry keys running workers by their configuration hash so
// sessions with identical node configuration share one process,
// reference-counted (spec §5 "Shared-resource policy", §9
// "Container-shared workers").
type SharedRegistry struct {
	mu      sync.Mutex
	workers map[string]*Worker
	log     zerolog.Logger
}

// NewSharedRegistry constructs an empty shared-worker registry.
func NewSharedRegistry(log zerolog.Logger) *SharedRegistry {
	return &SharedRegistry{workers: make(map[string]*Worker), log: log}
}

// Acquire returns the existing worker for cfg's hash, incrementing its
// reference count, or spawns a new one if none exists.
func (r *SharedRegistry) Acquire(ctx context.Context, cfg Config) (*Worker, error) {
	hash := cfg.ConfigHash()

	r.mu.Lock()
	if w, ok := r.workers[hash]; ok {
		w.mu.Lock()
		w.refCount++
		count := w.refCount
		w.mu.Unlock()
		r.mu.Unlock()
		r.log.Debug().Str("hash", hash).Int("ref_count", count).Msg("reusing shared worker")
		return w, nil
	}
	r.mu.Unlock()

	w, err := Spawn(ctx, cfg, r.log)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.workers[hash] = w
	r.mu.Unlock()

	return w, nil
}

// Release decrements the worker's reference count, tearing it down when
// the last session releases it.
func (r *SharedRegistry) Release(ctx context.Context, cfg Config) error {
	hash := cfg.ConfigHash()

	r.mu.Lock()
	w, ok := r.workers[hash]
	if !ok {
		r.mu.Unlock()
		return nil
	}

	w.mu.Lock()
	w.refCount--
	remaining := w.refCount
	w.mu.Unlock()

	if remaining > 0 {
		r.mu.Unlock()
		return nil
	}

	delete(r.workers, hash)
	r.mu.Unlock()

	return w.Cleanup(ctx)
}

// Count returns the number of distinct worker processes currently shared.
func (r *SharedRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.workers)
}

// ShutdownAll tears down every worker this registry owns, regardless of
// reference count, for process-wide shutdown.
func (r *SharedRegistry) ShutdownAll(ctx context.Context) {
	r.mu.Lock()
	workers := make([]*Worker, 0, len(r.workers))
	for _, w := range r.workers {
		workers = append(workers, w)
	}
	r.workers = make(map[string]*Worker)
	r.mu.Unlock()

	for _, w := range workers {
		if err := w.Cleanup(ctx); err != nil {
			r.log.Warn().Err(err).Msg("error during worker cleanup")
		}
	}
}
