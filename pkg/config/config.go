package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/zen-systems/modelgate/pkg/metrics"
	"github.com/zen-systems/modelgate/pkg/provider"
	"github.com/zen-systems/modelgate/pkg/router"
)

// Config holds the process configuration. It is read once at startup;
// live reconfiguration is not supported.
type Config struct {
	Port     int
	LogLevel string

	AnthropicAPIKey string
	OpenAIAPIKey    string
	GoogleAPIKey    string
	LocalURL        string

	ThresholdLo float64
	ThresholdHi float64

	DefaultMaxCost float64

	Providers  []*provider.Descriptor
	Thresholds metrics.Thresholds
}

// Load reads configuration from environment variables and, when set, the
// provider fleet file named by MODELGATE_PROVIDERS_FILE. Environment
// variables take precedence over compiled-in defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Port:            getEnvInt("MODELGATE_PORT", 8080),
		LogLevel:        getEnvOrDefault("MODELGATE_LOG_LEVEL", "info"),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		GoogleAPIKey:    os.Getenv("GOOGLE_API_KEY"),
		LocalURL:        getEnvOrDefault("MODELGATE_LOCAL_URL", "http://localhost:11434"),
		ThresholdLo:     getEnvFloat("MODELGATE_THRESHOLD_LO", router.DefaultThresholdLo),
		ThresholdHi:     getEnvFloat("MODELGATE_THRESHOLD_HI", router.DefaultThresholdHi),
		DefaultMaxCost:  getEnvFloat("MODELGATE_DEFAULT_MAX_COST", 1.0),
		Thresholds:      metrics.DefaultThresholds(),
	}

	if cfg.ThresholdLo > cfg.ThresholdHi {
		return nil, fmt.Errorf("threshold lo %.2f exceeds hi %.2f", cfg.ThresholdLo, cfg.ThresholdHi)
	}

	if path := os.Getenv("MODELGATE_PROVIDERS_FILE"); path != "" {
		fleet, err := LoadFleet(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load provider fleet from %s: %w", path, err)
		}
		cfg.Providers = fleet.Providers
		if fleet.Thresholds != nil {
			cfg.Thresholds = *fleet.Thresholds
		}
	} else {
		cfg.Providers = DefaultFleet()
	}
	applyProviderDefaults(cfg.Providers, cfg.DefaultMaxCost)

	return cfg, nil
}

// HasAdapter reports whether the named adapter can be constructed from
// the loaded credentials.
func (c *Config) HasAdapter(name string) bool {
	switch name {
	case "anthropic":
		return c.AnthropicAPIKey != ""
	case "openai":
		return c.OpenAIAPIKey != ""
	case "google":
		return c.GoogleAPIKey != ""
	case "local", "mock":
		return true
	default:
		return false
	}
}

// getEnvOrDefault returns the environment variable value if set,
// otherwise returns the default value.
func getEnvOrDefault(envVar, defaultValue string) string {
	if val := os.Getenv(envVar); val != "" {
		return val
	}
	return defaultValue
}

func getEnvInt(envVar string, defaultValue int) int {
	if val := os.Getenv(envVar); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(envVar string, defaultValue float64) float64 {
	if val := os.Getenv(envVar); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
