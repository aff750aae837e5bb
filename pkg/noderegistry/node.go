// Package noderegistry defines the single streaming node contract and the
// three-tier composite registry used to resolve node types (spec §4.4
// "Node resolution", §9 "Registry layering"). The spec's Design Notes
// explicitly collapse the legacy implementation's two overlapping node
// abstractions into this one contract: unary and multi-output
// (generator) nodes both implement Process, differing only in how many
// times they call emit.
package noderegistry

import (
	"context"

	"github.com/mediarun/pipeline-runtime/pkg/rterr"
	"github.com/mediarun/pipeline-runtime/pkg/runtimedata"
)

// Kind errors for node resolution and execution.
const (
	KindUnknownNodeType  rterr.Kind = "noderegistry.unknown_node_type"
	KindInitFailed       rterr.Kind = "noderegistry.init_failed"
	KindDuplicateFactory rterr.Kind = "noderegistry.duplicate_factory"
)

// Emit is called by a Node's Process method once per output payload. A
// unary node calls it exactly once; a multi-output (generator) node may
// call it any number of times, including zero, before Process returns.
type Emit func(runtimedata.RuntimeData) error

// Node is the single streaming contract every in-process node type
// implements. Multiprocess workers do not implement it themselves; the
// Pipeline Runner drives both kinds through its own nodeHandle wrapper
// (pkg/pipeline), whose Process has the same shape as Node.Process.
type Node interface {
	// Init configures the node instance from manifest params.
	Init(params map[string]any) error
	// Process consumes one input payload and produces zero or more
	// outputs via emit, in order.
	Process(ctx context.Context, in runtimedata.RuntimeData, emit Emit) error
	// Close releases any resources held by the node.
	Close() error
}

// Factory constructs a new Node instance for a resolved node type.
type Factory func() Node
