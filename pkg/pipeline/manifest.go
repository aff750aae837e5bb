// Package pipeline parses manifests and executes the node DAG they
// describe, in both unary and streaming modes (spec §3.2, §4.4, §6.2).
package pipeline

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/mediarun/pipeline-runtime/pkg/rterr"
)

// Kind errors for manifest parsing/validation.
const (
	KindDuplicateNodeID       rterr.Kind = "pipeline.duplicate_node_id"
	KindCyclicGraph           rterr.Kind = "pipeline.cyclic_graph"
	KindUnknownConnection     rterr.Kind = "pipeline.unknown_connection_endpoint"
	KindManifestParseError    rterr.Kind = "pipeline.manifest_parse_error"
	KindIncompatiblePortTypes rterr.Kind = "pipeline.incompatible_port_types"
)

// ExecutorType selects where a node runs.
type ExecutorType string

const (
	ExecutorNative       ExecutorType = "native"
	ExecutorMultiprocess ExecutorType = "multiprocess"
	ExecutorDocker       ExecutorType = "docker"
)

// NodeSpec is one manifest node entry (spec §3.2).
//
// InputType and OutputType declare the runtimedata.Variant (by its String()
// name, e.g. "audio", "numpy") a node consumes and produces. Either may be
// left blank, which is a wildcard: a type-agnostic node (pass_through and
// similar) is compatible with anything on that side. Declared, non-wildcard
// types are what Validate checks a connection's producer/consumer pair
// against (spec §3.2 invariant: "each connected port's produced type is
// assignable to the consumer's expected type").
type NodeSpec struct {
	ID            string         `yaml:"id" json:"id"`
	NodeType      string         `yaml:"node_type" json:"node_type"`
	Params        map[string]any `yaml:"params" json:"params"`
	ExecutorType  ExecutorType   `yaml:"executor_type,omitempty" json:"executor_type,omitempty"`
	IsMultiOutput bool           `yaml:"is_multi_output,omitempty" json:"is_multi_output,omitempty"`
	InputType     string         `yaml:"input_type,omitempty" json:"input_type,omitempty"`
	OutputType    string         `yaml:"output_type,omitempty" json:"output_type,omitempty"`
}

// Connection is a directed edge between two node IDs.
type Connection struct {
	From string `yaml:"from" json:"from"`
	To   string `yaml:"to" json:"to"`
}

// Metadata carries manifest-level descriptive fields.
type Metadata struct {
	Name string `yaml:"name" json:"name"`
}

// Manifest is the declarative pipeline description (spec §3.2, §6.2).
type Manifest struct {
	Version     string       `yaml:"version" json:"version"`
	Metadata    Metadata     `yaml:"metadata" json:"metadata"`
	Nodes       []NodeSpec   `yaml:"nodes" json:"nodes"`
	Connections []Connection `yaml:"connections" json:"connections"`
}

// ParseManifest accepts YAML (JSON is a YAML superset, so this also
// accepts well-formed JSON manifests, spec §6.2).
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, rterr.Wrap(KindManifestParseError, "parse manifest", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks unique IDs, DAG-ness, and that every connection
// endpoint names a declared node (spec §3.2, §6.2 validation rules).
func (m *Manifest) Validate() error {
	seen := make(map[string]bool, len(m.Nodes))
	for _, n := range m.Nodes {
		if seen[n.ID] {
			return rterr.New(KindDuplicateNodeID, fmt.Sprintf("duplicate node id %q", n.ID))
		}
		seen[n.ID] = true
	}

	for _, c := range m.Connections {
		if !seen[c.From] {
			return rterr.New(KindUnknownConnection, fmt.Sprintf("connection references unknown node %q", c.From))
		}
		if !seen[c.To] {
			return rterr.New(KindUnknownConnection, fmt.Sprintf("connection references unknown node %q", c.To))
		}
	}

	for _, c := range m.Connections {
		from, _ := m.NodeByID(c.From)
		to, _ := m.NodeByID(c.To)
		if !portTypesCompatible(from.OutputType, to.InputType) {
			return rterr.New(KindIncompatiblePortTypes, fmt.Sprintf(
				"node %q produces %q, not assignable to node %q's expected input %q",
				c.From, from.OutputType, c.To, to.InputType))
		}
	}

	if _, err := m.TopologicalOrder(); err != nil {
		return err
	}
	return nil
}

// portTypesCompatible reports whether a producer's declared output type may
// feed a consumer's declared input type. A blank declaration on either side
// is a wildcard and compatible with anything; otherwise the names must
// match exactly (runtimedata.Variant's String() vocabulary).
func portTypesCompatible(produced, expected string) bool {
	if produced == "" || expected == "" {
		return true
	}
	return produced == expected
}

// TopologicalOrder returns node IDs in a valid execution order (Kahn's
// algorithm), or a KindCyclicGraph error if the graph is not a DAG (spec
// §3.2 invariant, §4.4 "the runner executes them in topological order").
func (m *Manifest) TopologicalOrder() ([]string, error) {
	inDegree := make(map[string]int, len(m.Nodes))
	adjacency := make(map[string][]string, len(m.Nodes))
	order := make([]string, 0, len(m.Nodes))

	for _, n := range m.Nodes {
		inDegree[n.ID] = 0
	}
	for _, c := range m.Connections {
		adjacency[c.From] = append(adjacency[c.From], c.To)
		inDegree[c.To]++
	}

	queue := make([]string, 0, len(m.Nodes))
	// Iterate in declared order for deterministic output among ties.
	for _, n := range m.Nodes {
		if inDegree[n.ID] == 0 {
			queue = append(queue, n.ID)
		}
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)

		for _, next := range adjacency[id] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if len(order) != len(m.Nodes) {
		return nil, rterr.New(KindCyclicGraph, "manifest graph contains a cycle")
	}
	return order, nil
}

// Downstream returns the node IDs directly connected from nodeID.
func (m *Manifest) Downstream(nodeID string) []string {
	var out []string
	for _, c := range m.Connections {
		if c.From == nodeID {
			out = append(out, c.To)
		}
	}
	return out
}

// Upstream returns the node IDs directly connected into nodeID.
func (m *Manifest) Upstream(nodeID string) []string {
	var in []string
	for _, c := range m.Connections {
		if c.To == nodeID {
			in = append(in, c.From)
		}
	}
	return in
}

// NodeByID returns the NodeSpec with the given ID, if present.
func (m *Manifest) NodeByID(id string) (NodeSpec, bool) {
	for _, n := range m.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return NodeSpec{}, false
}
