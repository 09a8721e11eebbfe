package tracker

import (
	"sync"

	"github.com/zen-systems/modelgate/pkg/provider"
	"github.com/zen-systems/modelgate/pkg/schema"
)

// Defaults reported for a provider with no call history.
const (
	DefaultLatencyMs      = 500.0
	DefaultSuccessRate    = 0.95
	DefaultCostEfficiency = 0.8
)

// Sample carries the measurements of one completed adapter call.
type Sample struct {
	LatencyMs      float64
	Success        bool
	CostEfficiency float64
}

// Stats is a point-in-time snapshot of one provider's runtime state.
type Stats struct {
	Inflight          int     `json:"inflight"`
	EMALatencyMs      float64 `json:"ema_latency_ms"`
	EMASuccessRate    float64 `json:"ema_success_rate"`
	EMACostEfficiency float64 `json:"ema_cost_efficiency"`
	TotalCalls        int64   `json:"total_calls"`
}

// entry is the runtime state for one provider. Born at first reference,
// lives for the process lifetime. All fields are guarded by mu.
type entry struct {
	mu                sync.Mutex
	inflight          int
	emaLatencyMs      float64
	emaSuccessRate    float64
	emaCostEfficiency float64
	totalCalls        int64
}

// Tracker owns per-provider inflight counters and running performance
// averages. It is the authoritative holder of provider runtime state;
// the router and metrics layers read through snapshots.
type Tracker struct {
	registry *provider.Registry

	mu      sync.Mutex
	entries map[string]*entry
}

// NewTracker creates a tracker reading concurrency caps from the registry.
func NewTracker(registry *provider.Registry) *Tracker {
	return &Tracker{
		registry: registry,
		entries:  make(map[string]*entry),
	}
}

// get returns the entry for name, creating it on first reference.
func (t *Tracker) get(name string) *entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[name]
	if !ok {
		e = &entry{}
		t.entries[name] = e
	}
	return e
}

// Begin admits one request to the named provider. The limit check and the
// increment happen under the same lock so the inflight cap holds exactly
// under contention.
func (t *Tracker) Begin(name string) error {
	desc, ok := t.registry.Get(name)
	if !ok {
		return schema.NewError(schema.CodeModelUnavailable, "provider %q not found", name)
	}

	e := t.get(name)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inflight >= desc.MaxConcurrent {
		return schema.NewError(schema.CodeModelUnavailable,
			"provider %q over concurrency limit (%d)", name, desc.MaxConcurrent)
	}
	e.inflight++
	return nil
}

// End releases one admission. When a sample is provided the running
// averages are updated with the cumulative form new = (old*n + x)/(n+1).
// Samples are recorded only for calls that reached the adapter.
func (t *Tracker) End(name string, sample *Sample) {
	e := t.get(name)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.inflight > 0 {
		e.inflight--
	}
	if sample == nil {
		return
	}

	n := float64(e.totalCalls)
	if e.totalCalls == 0 {
		e.emaLatencyMs = sample.LatencyMs
		e.emaSuccessRate = boolTo01(sample.Success)
		e.emaCostEfficiency = sample.CostEfficiency
	} else {
		e.emaLatencyMs = (e.emaLatencyMs*n + sample.LatencyMs) / (n + 1)
		e.emaSuccessRate = (e.emaSuccessRate*n + boolTo01(sample.Success)) / (n + 1)
		e.emaCostEfficiency = (e.emaCostEfficiency*n + sample.CostEfficiency) / (n + 1)
	}
	e.totalCalls++
}

// StatsFor returns the provider's stats. Providers with no history report
// the documented defaults so the router has a usable performance signal.
func (t *Tracker) StatsFor(name string) Stats {
	e := t.get(name)
	e.mu.Lock()
	defer e.mu.Unlock()

	s := Stats{
		Inflight:   e.inflight,
		TotalCalls: e.totalCalls,
	}
	if e.totalCalls == 0 {
		s.EMALatencyMs = DefaultLatencyMs
		s.EMASuccessRate = DefaultSuccessRate
		s.EMACostEfficiency = DefaultCostEfficiency
	} else {
		s.EMALatencyMs = e.emaLatencyMs
		s.EMASuccessRate = e.emaSuccessRate
		s.EMACostEfficiency = e.emaCostEfficiency
	}
	return s
}

// Inflight returns the current admission count for name.
func (t *Tracker) Inflight(name string) int {
	e := t.get(name)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inflight
}

// Snapshot returns stats for every provider referenced so far.
func (t *Tracker) Snapshot() map[string]Stats {
	t.mu.Lock()
	names := make([]string, 0, len(t.entries))
	for name := range t.entries {
		names = append(names, name)
	}
	t.mu.Unlock()

	out := make(map[string]Stats, len(names))
	for _, name := range names {
		out[name] = t.StatsFor(name)
	}
	return out
}

func boolTo01(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
