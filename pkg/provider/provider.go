package provider

import (
	"fmt"
	"sort"
	"sync"

	"github.com/zen-systems/modelgate/pkg/schema"
)

// Descriptor is the static description of a backend provider. Descriptors
// are immutable after load; status changes replace the whole descriptor.
type Descriptor struct {
	Name           string                `yaml:"name"`
	Adapter        string                `yaml:"adapter"`
	Model          string                `yaml:"model"`
	Status         schema.ProviderStatus `yaml:"status"`
	SupportedTypes []schema.ModelType    `yaml:"supported_types"`
	Capabilities   []string              `yaml:"capabilities"`
	MaxConcurrent  int                   `yaml:"max_concurrent"`
	BaseCost       float64               `yaml:"base_cost"`
	MaxCost        float64               `yaml:"max_cost"`
	CostEfficiency float64               `yaml:"cost_efficiency"`
}

// Supports reports whether the provider can serve the given model type.
func (d *Descriptor) Supports(t schema.ModelType) bool {
	for _, st := range d.SupportedTypes {
		if st == t {
			return true
		}
	}
	return false
}

// Registry is a read-only store of provider descriptors keyed by name.
// Health events replace descriptors atomically; there is no other mutation.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]*Descriptor
}

// NewRegistry builds a registry from the given descriptors.
func NewRegistry(descriptors []*Descriptor) (*Registry, error) {
	r := &Registry{providers: make(map[string]*Descriptor, len(descriptors))}
	for _, d := range descriptors {
		if d.Name == "" {
			return nil, fmt.Errorf("provider descriptor missing name")
		}
		if _, ok := r.providers[d.Name]; ok {
			return nil, fmt.Errorf("duplicate provider %q", d.Name)
		}
		if d.MaxConcurrent <= 0 {
			return nil, fmt.Errorf("provider %q: max_concurrent must be positive", d.Name)
		}
		if d.CostEfficiency < 0 || d.CostEfficiency > 1 {
			return nil, fmt.Errorf("provider %q: cost_efficiency out of [0,1]", d.Name)
		}
		if d.Status == "" {
			d.Status = schema.StatusOnline
		}
		r.providers[d.Name] = d
	}
	return r, nil
}

// Get returns the descriptor for name.
func (r *Registry) Get(name string) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.providers[name]
	return d, ok
}

// List returns all descriptors sorted by name.
func (r *Registry) List() []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Descriptor, 0, len(r.providers))
	for _, d := range r.providers {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ListByType returns all descriptors supporting the given type, sorted by name.
func (r *Registry) ListByType(t schema.ModelType) []*Descriptor {
	var out []*Descriptor
	for _, d := range r.List() {
		if d.Supports(t) {
			out = append(out, d)
		}
	}
	return out
}

// SetStatus replaces the named descriptor with a copy carrying the new
// status. Used by health events; no other field changes after load.
func (r *Registry) SetStatus(name string, status schema.ProviderStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.providers[name]
	if !ok {
		return fmt.Errorf("provider %q not found", name)
	}
	replaced := *d
	replaced.Status = status
	r.providers[name] = &replaced
	return nil
}
