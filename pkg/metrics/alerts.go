package metrics

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// AlertKind identifies an alert rule.
type AlertKind string

const (
	AlertErrorRate   AlertKind = "error_rate"
	AlertLatency     AlertKind = "latency"
	AlertMemory      AlertKind = "memory"
	AlertCPU         AlertKind = "cpu"
	AlertCostDaily   AlertKind = "cost_daily"
	AlertCostMonthly AlertKind = "cost_monthly"
)

// Severity ranks an alert.
type Severity string

const (
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Alert statuses.
const (
	StatusActive   = "active"
	StatusResolved = "resolved"
)

// Alert is one raised condition.
type Alert struct {
	ID        string         `json:"id"`
	Kind      AlertKind      `json:"kind"`
	Severity  Severity       `json:"severity"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Status    string         `json:"status"`
}

// Thresholds are the alert rule settings.
type Thresholds struct {
	ErrorRate      float64 `yaml:"error_rate"`
	LatencyMs      float64 `yaml:"latency_ms"`
	MemoryFraction float64 `yaml:"memory_fraction"`
	CPUFraction    float64 `yaml:"cpu_fraction"`
	CostDailyUSD   float64 `yaml:"cost_daily_usd"`
	CostMonthlyUSD float64 `yaml:"cost_monthly_usd"`
}

// DefaultThresholds returns the standard alert thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ErrorRate:      0.1,
		LatencyMs:      2000,
		MemoryFraction: 0.9,
		CPUFraction:    0.8,
		CostDailyUSD:   1000,
		CostMonthlyUSD: 20000,
	}
}

// ThresholdUpdate carries a partial threshold change; nil fields keep the
// running value.
type ThresholdUpdate struct {
	ErrorRate      *float64
	LatencyMs      *float64
	MemoryFraction *float64
	CPUFraction    *float64
	CostDailyUSD   *float64
	CostMonthlyUSD *float64
}

// AlertManager owns alert state and thresholds. At most one active alert
// exists per kind; repeated breaches refresh it idempotently.
type AlertManager struct {
	mu         sync.Mutex
	thresholds Thresholds
	active     map[AlertKind]*Alert
	now        func() time.Time
}

// NewAlertManager creates a manager with the given thresholds.
func NewAlertManager(thresholds Thresholds) *AlertManager {
	return &AlertManager{
		thresholds: thresholds,
		active:     make(map[AlertKind]*Alert),
		now:        time.Now,
	}
}

// Thresholds returns a copy of the running thresholds.
func (m *AlertManager) Thresholds() Thresholds {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.thresholds
}

// UpdateThresholds merges the update into the running thresholds in one
// atomic step.
func (m *AlertManager) UpdateThresholds(update ThresholdUpdate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if update.ErrorRate != nil {
		m.thresholds.ErrorRate = *update.ErrorRate
	}
	if update.LatencyMs != nil {
		m.thresholds.LatencyMs = *update.LatencyMs
	}
	if update.MemoryFraction != nil {
		m.thresholds.MemoryFraction = *update.MemoryFraction
	}
	if update.CPUFraction != nil {
		m.thresholds.CPUFraction = *update.CPUFraction
	}
	if update.CostDailyUSD != nil {
		m.thresholds.CostDailyUSD = *update.CostDailyUSD
	}
	if update.CostMonthlyUSD != nil {
		m.thresholds.CostMonthlyUSD = *update.CostMonthlyUSD
	}
}

// Raise records a breach. An already-active alert of the kind is refreshed
// in place so repeated evaluation passes do not inflate counts.
func (m *AlertManager) Raise(kind AlertKind, severity Severity, message string, data map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.active[kind]; ok {
		existing.Severity = severity
		existing.Message = message
		existing.Data = data
		existing.Timestamp = m.now()
		return
	}

	alert := &Alert{
		ID:        uuid.NewString(),
		Kind:      kind,
		Severity:  severity,
		Message:   message,
		Data:      data,
		Timestamp: m.now(),
		Status:    StatusActive,
	}
	m.active[kind] = alert
	log.Warn().
		Str("kind", string(kind)).
		Str("severity", string(severity)).
		Msg(message)
}

// Resolve clears the active alert of the kind, if any.
func (m *AlertManager) Resolve(kind AlertKind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if alert, ok := m.active[kind]; ok {
		alert.Status = StatusResolved
		delete(m.active, kind)
		log.Info().Str("kind", string(kind)).Msg("alert resolved")
	}
}

// Active returns the active alerts sorted most recent first.
func (m *AlertManager) Active() []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Alert, 0, len(m.active))
	for _, alert := range m.active {
		out = append(out, *alert)
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].Timestamp.After(out[i].Timestamp) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out
}

// ActiveByKind returns the active alert for a kind, if any.
func (m *AlertManager) ActiveByKind(kind AlertKind) (Alert, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	alert, ok := m.active[kind]
	if !ok {
		return Alert{}, false
	}
	return *alert, true
}
