package pipeline_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mediarun/pipeline-runtime/pkg/pipeline"
)

const linearManifest = `
version: "1"
metadata:
  name: linear
nodes:
  - id: a
    node_type: pass_through
  - id: b
    node_type: pass_through
  - id: c
    node_type: pass_through
connections:
  - from: a
    to: b
  - from: b
    to: c
`

func TestParseManifestTopologicalOrder(t *testing.T) {
	m, err := pipeline.ParseManifest([]byte(linearManifest))
	require.NoError(t, err)

	order, err := m.TopologicalOrder()
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, order)
}

func TestParseManifestRejectsDuplicateNodeID(t *testing.T) {
	const dup = `
version: "1"
nodes:
  - id: a
    node_type: pass_through
  - id: a
    node_type: pass_through
`
	_, err := pipeline.ParseManifest([]byte(dup))
	require.Error(t, err)
}

func TestParseManifestRejectsUnknownConnectionEndpoint(t *testing.T) {
	const bad = `
version: "1"
nodes:
  - id: a
    node_type: pass_through
connections:
  - from: a
    to: ghost
`
	_, err := pipeline.ParseManifest([]byte(bad))
	require.Error(t, err)
}

func TestParseManifestRejectsCycle(t *testing.T) {
	const cyclic = `
version: "1"
nodes:
  - id: a
    node_type: pass_through
  - id: b
    node_type: pass_through
connections:
  - from: a
    to: b
  - from: b
    to: a
`
	_, err := pipeline.ParseManifest([]byte(cyclic))
	require.Error(t, err)
}

func TestParseManifestRejectsIncompatiblePortTypes(t *testing.T) {
	const mismatched = `
version: "1"
nodes:
  - id: a
    node_type: pass_through
    output_type: audio
  - id: b
    node_type: pass_through
    input_type: video
connections:
  - from: a
    to: b
`
	_, err := pipeline.ParseManifest([]byte(mismatched))
	require.Error(t, err)
}

func TestParseManifestAcceptsMatchingPortTypes(t *testing.T) {
	const matched = `
version: "1"
nodes:
  - id: a
    node_type: pass_through
    output_type: audio
  - id: b
    node_type: pass_through
    input_type: audio
connections:
  - from: a
    to: b
`
	_, err := pipeline.ParseManifest([]byte(matched))
	require.NoError(t, err)
}

func TestParseManifestWildcardPortTypeIsCompatibleWithAnything(t *testing.T) {
	const wildcard = `
version: "1"
nodes:
  - id: a
    node_type: pass_through
    output_type: audio
  - id: b
    node_type: pass_through
`
	_, err := pipeline.ParseManifest([]byte(wildcard))
	require.NoError(t, err)
}

func TestManifestDownstreamUpstream(t *testing.T) {
	m, err := pipeline.ParseManifest([]byte(linearManifest))
	require.NoError(t, err)

	require.Equal(t, []string{"b"}, m.Downstream("a"))
	require.Equal(t, []string{"a"}, m.Upstream("b"))
	require.Empty(t, m.Downstream("c"))
	require.Empty(t, m.Upstream("a"))
}
