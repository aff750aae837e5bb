package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mediarun/pipeline-runtime/pkg/executor"
	"github.com/mediarun/pipeline-runtime/pkg/executor/imagecache"
	"github.com/mediarun/pipeline-runtime/pkg/noderegistry"
	"github.com/mediarun/pipeline-runtime/pkg/rterr"
	"github.com/mediarun/pipeline-runtime/pkg/runtimedata"
	"github.com/mediarun/pipeline-runtime/pkg/session"
)

// Kind errors for execution (spec §4.4, §7 "Pipeline" taxonomy).
const (
	KindNoSingleEntry    rterr.Kind = "pipeline.no_single_entry_node"
	KindNoSingleExit     rterr.Kind = "pipeline.no_single_exit_node"
	KindExecutionTimeout rterr.Kind = "pipeline.execution_timeout"
	KindNoOutputProduced rterr.Kind = "pipeline.no_output_produced"
)

// RunnerConfig carries the settings every node instantiation needs.
type RunnerConfig struct {
	ChannelDir    string
	Interpreter   string
	RingCapacity  uint32
	QueueCapacity int
	QueueDeadline time.Duration
	CloseGrace    time.Duration
	UnaryTimeout  time.Duration
	// ImageCachePath is the sqlite file backing the resolved-image-digest
	// cache consulted for executor_type: docker nodes (spec §6.6). It is
	// opened lazily, only once a manifest actually names a docker node.
	ImageCachePath string
}

// DefaultRunnerConfig matches spec §4.4's documented defaults (30s unary
// timeout, modest queue sizing for interactive use).
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		ChannelDir:     "/tmp/pipeline-runtime",
		Interpreter:    "python",
		RingCapacity:   1 << 20,
		QueueCapacity:  64,
		QueueDeadline:  500 * time.Millisecond,
		CloseGrace:     2 * time.Second,
		UnaryTimeout:   30 * time.Second,
		ImageCachePath: "imagecache.db",
	}
}

// Runner executes manifests against the composite node registry and the
// multiprocess executor, either once (Execute) or as a standing streaming
// session (Open), per spec §4.4.
type Runner struct {
	registry *noderegistry.Registry
	execReg  *executor.SharedRegistry
	cfg      RunnerConfig
	log      zerolog.Logger

	imagesOnce sync.Once
	images     *imagecache.Cache
	imagesErr  error
}

// NewRunner constructs a Runner wired to a node registry and a shared
// multiprocess worker registry.
func NewRunner(registry *noderegistry.Registry, execReg *executor.SharedRegistry, cfg RunnerConfig, log zerolog.Logger) *Runner {
	return &Runner{registry: registry, execReg: execReg, cfg: cfg, log: log}
}

// imageCache opens the resolved-image-digest cache on first use. Most
// deployments never run a docker-executed node, so the sqlite file is
// never created unless a manifest actually asks for one (spec §6.6: "the
// only durable state in the system").
func (r *Runner) imageCache() (*imagecache.Cache, error) {
	r.imagesOnce.Do(func() {
		r.images, r.imagesErr = imagecache.Open(r.cfg.ImageCachePath)
	})
	return r.images, r.imagesErr
}

// Close releases resources the Runner lazily acquired, such as the image
// cache's sqlite connection.
func (r *Runner) Close() error {
	if r.images != nil {
		return r.images.Close()
	}
	return nil
}

func entryNode(m *Manifest) (NodeSpec, error) {
	var entries []NodeSpec
	for _, n := range m.Nodes {
		if len(m.Upstream(n.ID)) == 0 {
			entries = append(entries, n)
		}
	}
	if len(entries) != 1 {
		return NodeSpec{}, rterr.New(KindNoSingleEntry, fmt.Sprintf("manifest has %d entry nodes, unary/stream execution requires exactly one", len(entries)))
	}
	return entries[0], nil
}

func exitNode(m *Manifest) (NodeSpec, error) {
	var exits []NodeSpec
	for _, n := range m.Nodes {
		if len(m.Downstream(n.ID)) == 0 {
			exits = append(exits, n)
		}
	}
	if len(exits) != 1 {
		return NodeSpec{}, rterr.New(KindNoSingleExit, fmt.Sprintf("manifest has %d exit nodes, unary/stream execution requires exactly one", len(exits)))
	}
	return exits[0], nil
}

// Execute performs a single unary run: feed input into the manifest's
// sole entry node, drive every node in topological order, and return the
// sole output emitted by the exit node (spec §4.4, §6.2 unary contract).
func (r *Runner) Execute(ctx context.Context, m *Manifest, input runtimedata.RuntimeData) (runtimedata.RuntimeData, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.UnaryTimeout)
	defer cancel()

	if _, err := entryNode(m); err != nil {
		return runtimedata.RuntimeData{}, err
	}
	exit, err := exitNode(m)
	if err != nil {
		return runtimedata.RuntimeData{}, err
	}

	sess := session.New(r.cfg.QueueCapacity, r.cfg.QueueDeadline, r.cfg.CloseGrace)
	defer sess.Close(ctx)
	if err := sess.Activate(); err != nil {
		return runtimedata.RuntimeData{}, err
	}

	order, err := m.TopologicalOrder()
	if err != nil {
		return runtimedata.RuntimeData{}, err
	}

	handles := make(map[string]nodeHandle, len(order))
	defer func() {
		for _, h := range handles {
			_ = h.Close(ctx)
		}
	}()

	var result runtimedata.RuntimeData
	var resultSet bool

	for _, id := range order {
		spec, _ := m.NodeByID(id)
		h, err := r.newHandle(ctx, spec, sess.ID)
		if err != nil {
			return runtimedata.RuntimeData{}, err
		}
		handles[id] = h
		sess.RegisterWorker(id)

		var in runtimedata.RuntimeData
		if len(m.Upstream(id)) == 0 {
			in = input
		} else {
			payload, ok := sess.Router.Receive(ctx, session.Port{NodeID: id, Name: "input"})
			if !ok {
				return runtimedata.RuntimeData{}, rterr.New(KindExecutionTimeout, fmt.Sprintf("timed out waiting for input to node %q", id))
			}
			in = payload
		}

		downstream := m.Downstream(id)
		emit := func(out runtimedata.RuntimeData) error {
			if id == exit.ID {
				result = out
				resultSet = true
				return nil
			}
			for _, next := range downstream {
				if err := sess.Router.Route(ctx, sess.ID, session.Port{NodeID: next, Name: "input"}, out); err != nil {
					return err
				}
			}
			return nil
		}

		if err := h.Process(ctx, in, emit); err != nil {
			return runtimedata.RuntimeData{}, err
		}
	}

	if !resultSet {
		return runtimedata.RuntimeData{}, rterr.New(KindNoOutputProduced, "exit node did not emit a payload")
	}
	return result, nil
}

// StreamSession is a standing, bidirectional pipeline execution: every
// node in the manifest runs its own pump goroutine, pulling from its
// input queue and pushing to its downstream neighbors' queues, for as
// long as the session stays open (spec §4.4 streaming contract, §6.2
// send_input/recv_output/close/is_active).
type StreamSession struct {
	sess     *session.Session
	manifest *Manifest
	handles  map[string]nodeHandle
	entry    string
	exit     string
	outputs  chan runtimedata.RuntimeData
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	log      zerolog.Logger
}

// Open starts a streaming session for manifest: one pump goroutine per
// node, wired together by the session's Router.
func (r *Runner) Open(ctx context.Context, m *Manifest) (*StreamSession, error) {
	entry, err := entryNode(m)
	if err != nil {
		return nil, err
	}
	exit, err := exitNode(m)
	if err != nil {
		return nil, err
	}

	sess := session.New(r.cfg.QueueCapacity, r.cfg.QueueDeadline, r.cfg.CloseGrace)
	if err := sess.Activate(); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	ss := &StreamSession{
		sess:     sess,
		manifest: m,
		handles:  make(map[string]nodeHandle, len(m.Nodes)),
		entry:    entry.ID,
		exit:     exit.ID,
		outputs:  make(chan runtimedata.RuntimeData, r.cfg.QueueCapacity),
		cancel:   cancel,
		log:      r.log,
	}

	for _, spec := range m.Nodes {
		h, err := r.newHandle(runCtx, spec, sess.ID)
		if err != nil {
			cancel()
			return nil, err
		}
		ss.handles[spec.ID] = h
		sess.RegisterWorker(spec.ID)
	}

	for _, spec := range m.Nodes {
		ss.wg.Add(1)
		go ss.pump(runCtx, spec.ID)
	}

	return ss, nil
}

// pump drives one node for the session's lifetime: receive, process,
// route each emission downstream (or into outputs, if this is the exit
// node), repeat until the context is cancelled.
func (ss *StreamSession) pump(ctx context.Context, nodeID string) {
	defer ss.wg.Done()
	h := ss.handles[nodeID]
	downstream := ss.manifest.Downstream(nodeID)
	port := session.Port{NodeID: nodeID, Name: "input"}

	emit := func(out runtimedata.RuntimeData) error {
		if nodeID == ss.exit {
			select {
			case ss.outputs <- out:
			case <-ctx.Done():
			}
			return nil
		}
		for _, next := range downstream {
			if err := ss.sess.Router.Route(ctx, ss.sess.ID, session.Port{NodeID: next, Name: "input"}, out); err != nil {
				return err
			}
		}
		return nil
	}

	for {
		payload, ok := ss.sess.Router.Receive(ctx, port)
		if !ok {
			return
		}
		if err := h.Process(ctx, payload, emit); err != nil {
			ss.log.Warn().Err(err).Str("node_id", nodeID).Msg("node pump processing error")
		}
	}
}

// SendInput feeds one payload into the session's entry node.
func (ss *StreamSession) SendInput(ctx context.Context, payload runtimedata.RuntimeData) error {
	if err := ss.sess.RejectIfClosed(); err != nil {
		return err
	}
	return ss.sess.Router.Route(ctx, ss.sess.ID, session.Port{NodeID: ss.entry, Name: "input"}, payload)
}

// RecvOutput blocks for the next payload emitted by the exit node.
func (ss *StreamSession) RecvOutput(ctx context.Context) (runtimedata.RuntimeData, bool) {
	select {
	case payload, ok := <-ss.outputs:
		return payload, ok
	case <-ctx.Done():
		return runtimedata.RuntimeData{}, false
	}
}

// IsActive reports whether the session still accepts input.
func (ss *StreamSession) IsActive() bool { return ss.sess.State() == session.StateActive }

// Close stops every pump goroutine and releases node handles.
func (ss *StreamSession) Close(ctx context.Context) error {
	err := ss.sess.Close(ctx)
	ss.cancel()
	ss.wg.Wait()
	for _, h := range ss.handles {
		_ = h.Close(ctx)
	}
	close(ss.outputs)
	return err
}
