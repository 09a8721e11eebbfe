package router

import (
	"strconv"

	"github.com/zen-systems/modelgate/pkg/provider"
	"github.com/zen-systems/modelgate/pkg/schema"
)

// downgradeScore is the complexity assumed when re-deciding on a cheaper
// type during cost control.
const downgradeScore = 0.5

// estimateCost projects the cost of serving a query on the provider,
// scaled by complexity and query length and clamped to the provider cap.
func estimateCost(d *provider.Descriptor, score float64, queryLength int) float64 {
	cost := d.BaseCost * (1 + score) * (1 + float64(queryLength)/1000)
	if d.MaxCost > 0 && cost > d.MaxCost {
		cost = d.MaxCost
	}
	return cost
}

// parseBudget extracts the caller's budget from metadata. Only a parsable
// positive value activates cost control.
func parseBudget(metadata map[string]string) (float64, bool) {
	if metadata == nil {
		return 0, false
	}
	raw, ok := metadata[schema.MetaBudget]
	if !ok || raw == "" {
		return 0, false
	}
	budget, err := strconv.ParseFloat(raw, 64)
	if err != nil || budget <= 0 {
		return 0, false
	}
	return budget, true
}

// downgrade walks the type chain below the original choice, picking the
// cheapest candidate of each type at the downgrade score. The first type
// whose estimate fits the budget wins; an exhausted chain is a cost
// failure.
func (r *Router) downgrade(from schema.ModelType, budget float64, queryLength int) (*Decision, error) {
	for t := schema.Downgrade(from); t != ""; t = schema.Downgrade(t) {
		cheapest, cost := r.cheapestFor(t, queryLength)
		if cheapest == nil {
			continue
		}
		if cost <= budget {
			return &Decision{
				Provider:          cheapest,
				ProviderName:      cheapest.Name,
				ModelType:         t,
				EstimatedCost:     cost,
				WasCostDowngraded: true,
			}, nil
		}
	}
	return nil, schema.NewError(schema.CodeCostLimitExceeded,
		"no provider fits budget %.6f", budget)
}

// cheapestFor returns the candidate of the type with the lowest estimate
// at the downgrade score. Candidates arrive name-sorted, so strict
// comparison keeps the tie-break deterministic.
func (r *Router) cheapestFor(modelType schema.ModelType, queryLength int) (*provider.Descriptor, float64) {
	var best *provider.Descriptor
	bestCost := 0.0
	for _, d := range r.candidatesFor(modelType) {
		cost := estimateCost(d, downgradeScore, queryLength)
		if best == nil || cost < bestCost {
			best = d
			bestCost = cost
		}
	}
	return best, bestCost
}
