package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/zen-systems/modelgate/pkg/metrics"
	"github.com/zen-systems/modelgate/pkg/provider"
	"github.com/zen-systems/modelgate/pkg/schema"
)

// Fleet is the structure of a providers.yaml file.
type Fleet struct {
	Providers  []*provider.Descriptor `yaml:"providers"`
	Thresholds *metrics.Thresholds    `yaml:"alert_thresholds,omitempty"`
}

// LoadFleet reads a provider fleet from a YAML file.
func LoadFleet(path string) (*Fleet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var fleet Fleet
	if err := yaml.Unmarshal(data, &fleet); err != nil {
		return nil, err
	}
	if len(fleet.Providers) == 0 {
		return nil, fmt.Errorf("fleet file %s defines no providers", path)
	}
	return &fleet, nil
}

// DefaultFleet returns the compiled-in provider fleet spanning all three
// model types.
func DefaultFleet() []*provider.Descriptor {
	return []*provider.Descriptor{
		{
			Name:           "llama-local",
			Adapter:        "local",
			Model:          "llama3.1:8b",
			Status:         schema.StatusOnline,
			SupportedTypes: []schema.ModelType{schema.ModelTypeLocal},
			Capabilities:   []string{"chat", "general"},
			MaxConcurrent:  8,
			BaseCost:       0.0001,
			MaxCost:        0.001,
			CostEfficiency: 0.95,
		},
		{
			Name:           "gemini-hybrid",
			Adapter:        "google",
			Model:          "gemini-2.0-pro",
			Status:         schema.StatusOnline,
			SupportedTypes: []schema.ModelType{schema.ModelTypeHybrid, schema.ModelTypeRemote},
			Capabilities:   []string{"chat", "reasoning", "multilingual"},
			MaxConcurrent:  6,
			BaseCost:       0.002,
			MaxCost:        0.05,
			CostEfficiency: 0.85,
		},
		{
			Name:           "claude-remote",
			Adapter:        "anthropic",
			Model:          "claude-sonnet-4-20250514",
			Status:         schema.StatusOnline,
			SupportedTypes: []schema.ModelType{schema.ModelTypeRemote, schema.ModelTypeHybrid},
			Capabilities:   []string{"chat", "reasoning", "code"},
			MaxConcurrent:  4,
			BaseCost:       0.01,
			MaxCost:        0.2,
			CostEfficiency: 0.7,
		},
		{
			Name:           "gpt-remote",
			Adapter:        "openai",
			Model:          "gpt-5.2-pro",
			Status:         schema.StatusOnline,
			SupportedTypes: []schema.ModelType{schema.ModelTypeRemote},
			Capabilities:   []string{"chat", "code", "math"},
			MaxConcurrent:  4,
			BaseCost:       0.012,
			MaxCost:        0.25,
			CostEfficiency: 0.65,
		},
	}
}

// applyProviderDefaults fills optional descriptor fields.
func applyProviderDefaults(providers []*provider.Descriptor, defaultMaxCost float64) {
	for _, d := range providers {
		if d.Status == "" {
			d.Status = schema.StatusOnline
		}
		if d.MaxCost == 0 {
			d.MaxCost = defaultMaxCost
		}
		if d.MaxConcurrent == 0 {
			d.MaxConcurrent = 4
		}
	}
}
