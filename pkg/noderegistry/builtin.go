package noderegistry

import (
	"context"

	"github.com/mediarun/pipeline-runtime/pkg/runtimedata"
)

// PassThroughNode emits its input unchanged. It is the system-tier
// default used in the spec's unary and zero-copy end-to-end scenarios
// (spec §8 scenarios 1-2).
type PassThroughNode struct{}

// NewPassThrough is the Factory for "pass_through" in TierSystem.
func NewPassThrough() Node { return &PassThroughNode{} }

func (n *PassThroughNode) Init(params map[string]any) error { return nil }

func (n *PassThroughNode) Process(ctx context.Context, in runtimedata.RuntimeData, emit Emit) error {
	return emit(in)
}

func (n *PassThroughNode) Close() error { return nil }

// RegisterBuiltins installs the system-tier default node types.
func RegisterBuiltins(r *Registry) error {
	return r.Register(TierSystem, "pass_through", NewPassThrough)
}
