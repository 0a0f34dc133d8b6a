package core

import "sort"

// Layer describes the architectural slice a service belongs to.
type Layer string

const (
	LayerIngress Layer = "ingress" // collectors, fetchers
	LayerEngine  Layer = "engine"  // ranker, evaluator, orchestrator
	LayerData    Layer = "data"    // catalogue store
	LayerEgress  Layer = "egress"  // delivery, admin API
)

// Descriptor advertises a service's placement and capabilities for
// introspection. It does not change runtime behavior.
type Descriptor struct {
	Name         string
	Domain       string
	Layer        Layer
	Capabilities []string
}

// WithCapabilities returns a copy of the descriptor with capabilities
// appended.
func (d Descriptor) WithCapabilities(caps ...string) Descriptor {
	if len(caps) == 0 {
		return d
	}
	combined := make([]string, 0, len(d.Capabilities)+len(caps))
	combined = append(combined, d.Capabilities...)
	combined = append(combined, caps...)
	d.Capabilities = combined
	return d
}

// DescriptorProvider optionally advertises service metadata.
type DescriptorProvider interface {
	Descriptor() Descriptor
}

// CollectDescriptors extracts descriptors from providers, skipping nils, and
// sorts them for deterministic presentation (layer, then name).
func CollectDescriptors(providers []DescriptorProvider) []Descriptor {
	var out []Descriptor
	for _, p := range providers {
		if p == nil {
			continue
		}
		out = append(out, p.Descriptor())
	}
	rank := map[Layer]int{LayerIngress: 0, LayerEngine: 1, LayerData: 2, LayerEgress: 3}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Layer == out[j].Layer {
			return out[i].Name < out[j].Name
		}
		return rank[out[i].Layer] < rank[out[j].Layer]
	})
	return out
}
