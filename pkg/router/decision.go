package router

import (
	"github.com/zen-systems/modelgate/pkg/provider"
	"github.com/zen-systems/modelgate/pkg/schema"
)

// Decision captures the outcome of one routing pass.
type Decision struct {
	Provider          *provider.Descriptor `json:"-"`
	ProviderName      string               `json:"provider"`
	ModelType         schema.ModelType     `json:"model_type"`
	EstimatedCost     float64              `json:"estimated_cost"`
	IsBackup          bool                 `json:"is_backup"`
	WasCostDowngraded bool                 `json:"was_cost_downgraded"`
}

// candidate pairs a descriptor with its weighted selection score.
type candidate struct {
	desc  *provider.Descriptor
	score float64
}
