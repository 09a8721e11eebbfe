package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zen-systems/modelgate/pkg/schema"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.InDelta(t, 0.3, cfg.ThresholdLo, 1e-9)
	assert.InDelta(t, 0.7, cfg.ThresholdHi, 1e-9)
	assert.Len(t, cfg.Providers, 4)
	assert.Equal(t, 0.1, cfg.Thresholds.ErrorRate)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("MODELGATE_PORT", "9090")
	t.Setenv("MODELGATE_LOG_LEVEL", "debug")
	t.Setenv("MODELGATE_THRESHOLD_LO", "0.2")
	t.Setenv("MODELGATE_THRESHOLD_HI", "0.8")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.InDelta(t, 0.2, cfg.ThresholdLo, 1e-9)
	assert.InDelta(t, 0.8, cfg.ThresholdHi, 1e-9)
}

func TestLoad_RejectsInvertedThresholds(t *testing.T) {
	t.Setenv("MODELGATE_THRESHOLD_LO", "0.9")
	t.Setenv("MODELGATE_THRESHOLD_HI", "0.1")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadFleet_FromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "providers.yaml")
	data := `
providers:
  - name: tiny-local
    adapter: local
    model: llama3.1:8b
    supported_types: [local]
    capabilities: [chat]
    max_concurrent: 2
    base_cost: 0.0001
    max_cost: 0.001
    cost_efficiency: 0.9
alert_thresholds:
  error_rate: 0.25
  latency_ms: 2000
  memory_fraction: 0.9
  cpu_fraction: 0.8
  cost_daily_usd: 1000
  cost_monthly_usd: 20000
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	t.Setenv("MODELGATE_PROVIDERS_FILE", path)
	cfg, err := Load()
	require.NoError(t, err)

	require.Len(t, cfg.Providers, 1)
	assert.Equal(t, "tiny-local", cfg.Providers[0].Name)
	assert.Equal(t, []schema.ModelType{schema.ModelTypeLocal}, cfg.Providers[0].SupportedTypes)
	assert.Equal(t, 0.25, cfg.Thresholds.ErrorRate)
}

func TestLoadFleet_Errors(t *testing.T) {
	_, err := LoadFleet(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	empty := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("providers: []\n"), 0o644))
	_, err = LoadFleet(empty)
	assert.Error(t, err)
}

func TestApplyProviderDefaults(t *testing.T) {
	fleet := DefaultFleet()
	fleet[0].MaxCost = 0
	fleet[0].Status = ""
	applyProviderDefaults(fleet, 0.75)

	assert.Equal(t, 0.75, fleet[0].MaxCost)
	assert.Equal(t, schema.StatusOnline, fleet[0].Status)
}
