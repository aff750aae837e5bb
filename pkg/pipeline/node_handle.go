package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/mediarun/pipeline-runtime/pkg/executor"
	"github.com/mediarun/pipeline-runtime/pkg/executor/imagecache"
	"github.com/mediarun/pipeline-runtime/pkg/ipcchannel"
	"github.com/mediarun/pipeline-runtime/pkg/noderegistry"
	"github.com/mediarun/pipeline-runtime/pkg/runtimedata"
)

// nodeHandle is the uniform contract the runner drives every node
// through, whether it executes in-process or out-of-process (spec §4.4:
// "the runner is agnostic to where a node actually executes").
type nodeHandle interface {
	Process(ctx context.Context, in runtimedata.RuntimeData, emit noderegistry.Emit) error
	MultiOutput() bool
	Close(ctx context.Context) error
}

// nativeHandle drives a noderegistry.Node directly in-process.
type nativeHandle struct {
	node          noderegistry.Node
	isMultiOutput bool
}

func (h *nativeHandle) Process(ctx context.Context, in runtimedata.RuntimeData, emit noderegistry.Emit) error {
	return h.node.Process(ctx, in, emit)
}

func (h *nativeHandle) MultiOutput() bool { return h.isMultiOutput }

func (h *nativeHandle) Close(ctx context.Context) error { return h.node.Close() }

// workerHandle drives an executor.Worker (spawned multiprocess node).
type workerHandle struct {
	worker        *executor.Worker
	registry      *executor.SharedRegistry
	cfg           executor.Config
	isMultiOutput bool
}

func (h *workerHandle) Process(ctx context.Context, in runtimedata.RuntimeData, emit noderegistry.Emit) error {
	return h.worker.Process(ctx, in, ipcchannel.MediaKindOther, emit)
}

func (h *workerHandle) MultiOutput() bool { return h.isMultiOutput }

func (h *workerHandle) Close(ctx context.Context) error {
	return h.registry.Release(ctx, h.cfg)
}

// dockerHandle drives a node whose manifest entry asked for
// executor_type: docker. Container orchestration (pulling and launching the
// image) is out of scope for this runtime (spec §1 non-goals); what is in
// scope is the boundary a real orchestrator would sit behind: resolving the
// node's declared image reference to a digest and recording it in the image
// cache, so a deployment that adds orchestration on top has a stable,
// cached digest to launch rather than re-resolving a tag on every run.
// Node execution itself still happens in-process, the same as native.
type dockerHandle struct {
	*nativeHandle
	imageRef string
	digest   string
}

// newHandle instantiates the node named by spec, resolving it against the
// composite node registry (native and docker execution) or by acquiring a
// worker process through the shared executor registry (multiprocess)
// (spec §4.2, §4.4, §6.6).
func (r *Runner) newHandle(ctx context.Context, spec NodeSpec, sessionID string) (nodeHandle, error) {
	switch spec.ExecutorType {
	case ExecutorMultiprocess:
		wcfg := executor.Config{
			SessionID:     sessionID,
			NodeID:        spec.ID,
			NodeType:      spec.NodeType,
			Params:        spec.Params,
			Interpreter:   r.cfg.Interpreter,
			IsMultiOutput: spec.IsMultiOutput,
			ChannelDir:    r.cfg.ChannelDir,
			RingCapacity:  r.cfg.RingCapacity,
		}
		w, err := r.execReg.Acquire(ctx, wcfg)
		if err != nil {
			return nil, err
		}
		return &workerHandle{worker: w, registry: r.execReg, cfg: wcfg, isMultiOutput: spec.IsMultiOutput}, nil
	case ExecutorDocker:
		cache, err := r.imageCache()
		if err != nil {
			return nil, err
		}
		imageRef, digest, err := resolveImageDigest(cache, spec)
		if err != nil {
			return nil, err
		}
		node, err := r.registry.New(spec.NodeType)
		if err != nil {
			return nil, err
		}
		if err := node.Init(spec.Params); err != nil {
			return nil, err
		}
		return &dockerHandle{
			nativeHandle: &nativeHandle{node: node, isMultiOutput: spec.IsMultiOutput},
			imageRef:     imageRef,
			digest:       digest,
		}, nil
	default:
		node, err := r.registry.New(spec.NodeType)
		if err != nil {
			return nil, err
		}
		if err := node.Init(spec.Params); err != nil {
			return nil, err
		}
		return &nativeHandle{node: node, isMultiOutput: spec.IsMultiOutput}, nil
	}
}

// resolveImageDigest looks up (or, on a cache miss, resolves and stores) the
// digest for a docker node's declared image reference. Params["image"]
// names the reference; nodes that omit it fall back to their node_type as
// the reference, which at least makes repeated runs of the same node_type
// share one cache entry. Real digest resolution (talking to a registry) is
// outside this runtime's scope, so the digest is derived deterministically
// from the reference — stable across runs, and replaceable by a real
// registry client without changing this function's signature.
func resolveImageDigest(cache *imagecache.Cache, spec NodeSpec) (reference, digest string, err error) {
	reference, _ = spec.Params["image"].(string)
	if reference == "" {
		reference = spec.NodeType
	}
	sum := sha256.Sum256([]byte(reference))
	digest = "sha256:" + hex.EncodeToString(sum[:])

	entry, err := cache.Lookup(digest)
	if err != nil {
		return "", "", err
	}
	if entry == nil {
		if err := cache.Put(spec.NodeType, reference, digest); err != nil {
			return "", "", err
		}
	}
	return reference, digest, nil
}
