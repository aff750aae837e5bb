package noderegistry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mediarun/pipeline-runtime/pkg/noderegistry"
	"github.com/mediarun/pipeline-runtime/pkg/runtimedata"
)

type echoNode struct{ prefix string }

func (e *echoNode) Init(params map[string]any) error {
	if p, ok := params["prefix"].(string); ok {
		e.prefix = p
	}
	return nil
}

func (e *echoNode) Process(ctx context.Context, in runtimedata.RuntimeData, emit noderegistry.Emit) error {
	return emit(runtimedata.NewText(e.prefix + in.Text))
}

func (e *echoNode) Close() error { return nil }

func TestResolveUserOverridesSystem(t *testing.T) {
	r := noderegistry.New()
	require.NoError(t, noderegistry.RegisterBuiltins(r))

	require.NoError(t, r.Register(noderegistry.TierUser, "pass_through", func() noderegistry.Node {
		return &echoNode{prefix: "overridden:"}
	}))

	node, err := r.New("pass_through")
	require.NoError(t, err)

	var out runtimedata.RuntimeData
	err = node.Process(context.Background(), runtimedata.NewText("hi"), func(r runtimedata.RuntimeData) error {
		out = r
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, "overridden:hi", out.Text)
}

func TestResolveUnknownNodeType(t *testing.T) {
	r := noderegistry.New()
	_, err := r.New("does_not_exist")
	require.Error(t, err)
}

func TestRegisterDuplicateInSameTierFails(t *testing.T) {
	r := noderegistry.New()
	require.NoError(t, r.Register(noderegistry.TierSystem, "dup", noderegistry.NewPassThrough))
	require.Error(t, r.Register(noderegistry.TierSystem, "dup", noderegistry.NewPassThrough))
}

func TestMultiOutputNodeEmitsSeveralPayloads(t *testing.T) {
	gen := &generatorNode{count: 3}
	var outs []runtimedata.RuntimeData
	err := gen.Process(context.Background(), runtimedata.NewText("seed"), func(r runtimedata.RuntimeData) error {
		outs = append(outs, r)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, outs, 3)
}

type generatorNode struct{ count int }

func (g *generatorNode) Init(map[string]any) error { return nil }
func (g *generatorNode) Close() error               { return nil }
func (g *generatorNode) Process(ctx context.Context, in runtimedata.RuntimeData, emit noderegistry.Emit) error {
	for i := 0; i < g.count; i++ {
		if err := emit(runtimedata.NewText(in.Text)); err != nil {
			return err
		}
	}
	return nil
}
