package router

import (
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/zen-systems/modelgate/pkg/provider"
	"github.com/zen-systems/modelgate/pkg/schema"
	"github.com/zen-systems/modelgate/pkg/tracker"
)

// Default complexity thresholds for model type selection.
const (
	DefaultThresholdLo = 0.3
	DefaultThresholdHi = 0.7
)

// Selection score weights.
const (
	weightLoad = 0.4
	weightCost = 0.3
	weightPerf = 0.3
)

// Router maps a complexity score and request metadata to a provider
// decision, applying cost control and backup selection.
type Router struct {
	registry *provider.Registry
	tracker  *tracker.Tracker
	lo       float64
	hi       float64
}

// Option configures a Router.
type Option func(*Router)

// WithThresholds overrides the lo/hi complexity thresholds.
func WithThresholds(lo, hi float64) Option {
	return func(r *Router) {
		if lo >= 0 && hi >= lo && hi <= 1 {
			r.lo = lo
			r.hi = hi
		}
	}
}

// NewRouter creates a router over the given registry and tracker.
func NewRouter(registry *provider.Registry, tr *tracker.Tracker, opts ...Option) *Router {
	r := &Router{
		registry: registry,
		tracker:  tr,
		lo:       DefaultThresholdLo,
		hi:       DefaultThresholdHi,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// TypeForScore maps a complexity score to a model type. The local band is
// half-open below lo, hybrid is [lo, hi), remote is [hi, 1].
func (r *Router) TypeForScore(score float64) schema.ModelType {
	switch {
	case score < r.lo:
		return schema.ModelTypeLocal
	case score < r.hi:
		return schema.ModelTypeHybrid
	default:
		return schema.ModelTypeRemote
	}
}

// Route picks the best provider for the scored query. Cost control may
// downgrade the model type when the caller's budget is too small for the
// initial estimate.
func (r *Router) Route(score float64, factors []string, metadata map[string]string) (*Decision, error) {
	modelType := r.TypeForScore(score)
	queryLength := metadataInt(metadata, schema.MetaQueryLength)

	best := r.selectBest(modelType, metadata[schema.MetaPreferredProvider], "")
	if best == nil {
		return nil, schema.NewError(schema.CodeModelUnavailable,
			"no available provider for type %s", modelType)
	}

	decision := &Decision{
		Provider:      best,
		ProviderName:  best.Name,
		ModelType:     modelType,
		EstimatedCost: estimateCost(best, score, queryLength),
	}

	budget, ok := parseBudget(metadata)
	if !ok || decision.EstimatedCost <= budget {
		return decision, nil
	}

	log.Debug().
		Str("provider", best.Name).
		Float64("estimated_cost", decision.EstimatedCost).
		Float64("budget", budget).
		Msg("estimate over budget, trying downgrade chain")

	return r.downgrade(modelType, budget, queryLength)
}

// BackupFor returns the best candidate of the same type excluding the
// primary, recursing down the type chain when the type is exhausted.
func (r *Router) BackupFor(primary string, modelType schema.ModelType, score float64, queryLength int) (*Decision, bool) {
	for t := modelType; t != ""; t = schema.Downgrade(t) {
		best := r.selectBest(t, "", primary)
		if best == nil {
			continue
		}
		return &Decision{
			Provider:      best,
			ProviderName:  best.Name,
			ModelType:     t,
			EstimatedCost: estimateCost(best, score, queryLength),
			IsBackup:      true,
		}, true
	}
	return nil, false
}

// candidatesFor filters the registry to admissible providers of the type:
// not offline, supporting the type, and under their concurrency cap.
func (r *Router) candidatesFor(modelType schema.ModelType) []*provider.Descriptor {
	var out []*provider.Descriptor
	for _, d := range r.registry.ListByType(modelType) {
		if d.Status == schema.StatusOffline {
			continue
		}
		if r.tracker.Inflight(d.Name) >= d.MaxConcurrent {
			continue
		}
		out = append(out, d)
	}
	return out
}

// selectBest scores each candidate and returns the winner. Candidates
// arrive sorted by name, so keeping the first strictly-highest score
// gives the lexicographic tie-break for free. A viable preferred provider
// short-circuits selection; exclude is skipped entirely.
func (r *Router) selectBest(modelType schema.ModelType, preferred, exclude string) *provider.Descriptor {
	candidates := r.candidatesFor(modelType)

	var best *provider.Descriptor
	bestScore := -1.0
	for _, d := range candidates {
		if d.Name == exclude {
			continue
		}
		if preferred != "" && d.Name == preferred {
			return d
		}
		score := r.scoreCandidate(d)
		if score > bestScore {
			best = d
			bestScore = score
		}
	}
	return best
}

// scoreCandidate computes the weighted selection score from load headroom,
// the descriptor's cost efficiency, and the tracked performance signal.
func (r *Router) scoreCandidate(d *provider.Descriptor) float64 {
	stats := r.tracker.StatsFor(d.Name)

	load := 1 - float64(stats.Inflight)/float64(d.MaxConcurrent)
	cost := d.CostEfficiency
	perf := stats.EMASuccessRate * 1000 / (stats.EMALatencyMs + 100)

	return weightLoad*load + weightCost*cost + weightPerf*perf
}

func metadataInt(metadata map[string]string, key string) int {
	if metadata == nil {
		return 0
	}
	n, err := strconv.Atoi(metadata[key])
	if err != nil {
		return 0
	}
	return n
}
