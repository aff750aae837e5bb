package noderegistry

import (
	"fmt"
	"sync"

	"github.com/mediarun/pipeline-runtime/pkg/rterr"
)

// Tier names one layer of the composite registry. Resolution order is
// User, Audio, System — first match wins (spec §4.4, §9).
type Tier int

const (
	TierSystem Tier = iota
	TierAudio
	TierUser
)

// resolutionOrder is the order composite resolution walks tiers in,
// highest-priority first.
var resolutionOrder = []Tier{TierUser, TierAudio, TierSystem}

// tierRegistry is a single read-mostly tier: registration (write) is rare
// relative to resolution (read), so it is protected by an RWMutex rather
// than anything fancier (spec §5 "Global registries... protected by
// read-mostly locks").
type tierRegistry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func newTierRegistry() *tierRegistry {
	return &tierRegistry{factories: make(map[string]Factory)}
}

func (t *tierRegistry) register(nodeType string, f Factory) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.factories[nodeType]; exists {
		return rterr.New(KindDuplicateFactory, fmt.Sprintf("node type %q already registered in this tier", nodeType))
	}
	t.factories[nodeType] = f
	return nil
}

func (t *tierRegistry) lookup(nodeType string) (Factory, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	f, ok := t.factories[nodeType]
	return f, ok
}

// Registry is the composite, three-tier node registry. A deployment
// registers built-in node types in TierSystem, domain-specific audio
// nodes in TierAudio, and deployment-local overrides in TierUser; at
// resolution time user overrides win without recompiling the defaults.
type Registry struct {
	tiers map[Tier]*tierRegistry
}

// New constructs an empty composite registry with all three tiers ready.
func New() *Registry {
	r := &Registry{tiers: make(map[Tier]*tierRegistry, 3)}
	for _, tier := range []Tier{TierSystem, TierAudio, TierUser} {
		r.tiers[tier] = newTierRegistry()
	}
	return r
}

// Register adds a factory for nodeType to the given tier. Registering the
// same nodeType twice within one tier is an error; the same nodeType may
// legitimately appear in multiple tiers (that's exactly how overrides
// work).
func (r *Registry) Register(tier Tier, nodeType string, f Factory) error {
	return r.tiers[tier].register(nodeType, f)
}

// Resolve finds the first factory for nodeType, walking tiers
// user → audio → system.
func (r *Registry) Resolve(nodeType string) (Factory, error) {
	for _, tier := range resolutionOrder {
		if f, ok := r.tiers[tier].lookup(nodeType); ok {
			return f, nil
		}
	}
	return nil, rterr.New(KindUnknownNodeType, fmt.Sprintf("no registered node type %q in any tier", nodeType))
}

// New instantiates a fresh Node for nodeType via the resolved factory.
func (r *Registry) New(nodeType string) (Node, error) {
	f, err := r.Resolve(nodeType)
	if err != nil {
		return nil, err
	}
	return f(), nil
}
