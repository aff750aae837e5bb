// Package executor spawns, supervises, and tears down out-of-process
// worker nodes, wiring each one to a dedicated IPC channel pair (spec
// §3.3 "worker processes", §4.2).
package executor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/mediarun/pipeline-runtime/pkg/ipcchannel"
	"github.com/mediarun/pipeline-runtime/pkg/rterr"
	"github.com/mediarun/pipeline-runtime/pkg/runtimedata"
)

// State is a worker process's lifecycle state.
type State int32

const (
	StateSpawning State = iota
	StateReady
	StateFailed
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateSpawning:
		return "spawning"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Kind errors for the multiprocess executor (spec §7 subset used here).
const (
	KindSpawnFailed    rterr.Kind = "executor.spawn_failed"
	KindReadyTimeout   rterr.Kind = "executor.ready_timeout"
	KindWorkerCrashed  rterr.Kind = "executor.worker_crashed"
	KindProcessTimeout rterr.Kind = "executor.process_timeout"
)

// Config describes one worker process to spawn.
type Config struct {
	SessionID     string
	NodeID        string
	NodeType      string
	Params        map[string]any
	Interpreter   string // defaults to "python" via environment override
	IsMultiOutput bool
	ChannelDir    string
	RingCapacity  uint32
}

// ConfigHash is used to key the shared-worker registry: sessions whose
// worker configuration hashes identically may share one process (spec §5
// "Shared-resource policy", §9 "Container-shared workers").
func (c Config) ConfigHash() string {
	return fmt.Sprintf("%s:%s:%v:%s", c.NodeType, c.Interpreter, c.Params, c.NodeID)
}

// Worker owns one spawned process and its IPC channel.
type Worker struct {
	cfg     Config
	cmd     *exec.Cmd
	channel *ipcchannel.Channel
	state   atomic.Int32
	log     zerolog.Logger

	mu       sync.Mutex
	refCount int
}

// Spawn starts a worker process and its IPC channel, per spec §4.2 steps
// 1-2 (spawn, wait_ready).
func Spawn(ctx context.Context, cfg Config, log zerolog.Logger) (*Worker, error) {
	interpreter := cfg.Interpreter
	if v := os.Getenv("RUNTIME_INTERPRETER"); v != "" {
		interpreter = v
	}
	if interpreter == "" {
		interpreter = "python"
	}

	w := &Worker{cfg: cfg, refCount: 1, log: log.With().Str("node_id", cfg.NodeID).Str("node_type", cfg.NodeType).Logger()}
	w.state.Store(int32(StateSpawning))

	channel, err := ipcchannel.Open(ctx, cfg.ChannelDir, cfg.SessionID, cfg.NodeID, cfg.RingCapacity, log)
	if err != nil {
		w.state.Store(int32(StateFailed))
		return nil, rterr.Wrap(KindSpawnFailed, "open ipc channel", err)
	}
	w.channel = channel

	cmd := exec.CommandContext(ctx, interpreter)
	cmd.Env = append(os.Environ(),
		"RUNTIME_SESSION_ID="+cfg.SessionID,
		"RUNTIME_NODE_ID="+cfg.NodeID,
		"RUNTIME_NODE_TYPE="+cfg.NodeType,
		"RUNTIME_CHANNEL_DIR="+cfg.ChannelDir,
		fmt.Sprintf("RUNTIME_MULTI_OUTPUT=%t", cfg.IsMultiOutput),
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		channel.Shutdown()
		w.state.Store(int32(StateFailed))
		return nil, rterr.Wrap(KindSpawnFailed, "start worker process", err)
	}
	w.cmd = cmd

	if err := w.waitReady(5 * time.Second); err != nil {
		w.state.Store(int32(StateFailed))
		return nil, err
	}

	w.state.Store(int32(StateReady))
	w.log.Info().Msg("worker ready")
	return w, nil
}

func (w *Worker) waitReady(timeout time.Duration) error {
	payload, err := w.channel.RequestReceive(timeout)
	if err != nil {
		return rterr.Wrap(KindReadyTimeout, "worker did not publish ready marker in time", err)
	}
	data, err := runtimedata.Decode(payload)
	if err != nil || data.Text != ipcchannel.ReadyMarker {
		return rterr.New(KindReadyTimeout, "worker's first message was not the ready marker")
	}
	return nil
}

// State returns the worker's current lifecycle state.
func (w *Worker) State() State { return State(w.state.Load()) }

// Process sends one payload to the worker and collects its outputs. A
// single-output node yields exactly one payload; a multi-output node
// yields until it emits the end-of-batch sentinel (spec §4.2 step 3).
func (w *Worker) Process(ctx context.Context, in runtimedata.RuntimeData, kind ipcchannel.MediaKind, emit func(runtimedata.RuntimeData) error) error {
	frame, err := runtimedata.Encode(in, false)
	if err != nil {
		return err
	}
	if err := w.channel.SendData(frame, kind); err != nil {
		w.markFailedIfCrash(err)
		return err
	}

	if !w.cfg.IsMultiOutput {
		payload, err := w.channel.RequestReceive(5 * time.Second)
		if err != nil {
			w.markFailedIfCrash(err)
			return err
		}
		out, err := runtimedata.Decode(payload)
		if err != nil {
			return err
		}
		return emit(out)
	}

	for {
		payload, err := w.channel.RequestReceive(5 * time.Second)
		if err != nil {
			w.markFailedIfCrash(err)
			return err
		}
		if len(payload) >= 1 && runtimedata.Variant(payload[0]) == runtimedata.EndOfBatch {
			return nil
		}
		out, err := runtimedata.Decode(payload)
		if err != nil {
			return err
		}
		if err := emit(out); err != nil {
			return err
		}
	}
}

func (w *Worker) markFailedIfCrash(err error) {
	if w.cmd.ProcessState != nil && w.cmd.ProcessState.Exited() {
		w.state.Store(int32(StateFailed))
	}
}

// FinishStreaming sends the stream-end marker and drains remaining
// outputs (spec §4.2 step 4).
func (w *Worker) FinishStreaming(ctx context.Context, emit func(runtimedata.RuntimeData) error) error {
	endFrame, err := runtimedata.Encode(runtimedata.NewText(ipcchannel.StreamEndMarker), false)
	if err != nil {
		return err
	}
	if err := w.channel.SendData(endFrame, ipcchannel.MediaKindOther); err != nil {
		return err
	}

	for {
		payload, err := w.channel.RequestReceive(500 * time.Millisecond)
		if err != nil {
			return nil // drained or worker gone; best-effort drain
		}
		if len(payload) >= 1 && runtimedata.Variant(payload[0]) == runtimedata.EndOfBatch {
			return nil
		}
		out, decErr := runtimedata.Decode(payload)
		if decErr != nil {
			continue
		}
		if err := emit(out); err != nil {
			return err
		}
	}
}

// IsAlive checks process liveness without blocking (used by the health
// monitor, spec §4.2 "Health monitoring").
func (w *Worker) IsAlive() bool {
	if w.cmd.Process == nil {
		return false
	}
	if w.cmd.ProcessState != nil {
		return false
	}
	// Signal 0 probes existence without affecting the process.
	return w.cmd.Process.Signal(syscall.Signal(0)) == nil
}

// Cleanup terminates the process (SIGTERM, then SIGKILL after a bounded
// deadline) and releases the IPC channel and its files (spec §4.2 step 5,
// §5 "crash containment ≤1s").
func (w *Worker) Cleanup(ctx context.Context) error {
	if w.cmd.Process != nil {
		_ = w.cmd.Process.Signal(syscall.SIGTERM)
		done := make(chan error, 1)
		go func() { done <- w.cmd.Wait() }()
		select {
		case <-done:
		case <-time.After(1 * time.Second):
			_ = w.cmd.Process.Kill()
			<-done
		}
	}
	w.state.Store(int32(StateStopped))
	return w.channel.Shutdown()
}
