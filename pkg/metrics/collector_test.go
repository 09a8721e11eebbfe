package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_ErrorRateAlert(t *testing.T) {
	c := NewCollector(DefaultThresholds())

	// 10 requests, 30% failing on one provider.
	for i := 0; i < 10; i++ {
		c.ingest(Event{
			RequestID: fmt.Sprintf("req-%d", i),
			Provider:  "claude-remote",
			Success:   i >= 3,
			LatencyMs: 100,
			Timestamp: time.Now(),
		})
	}

	alerts := c.CheckHealth()
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertErrorRate, alerts[0].Kind)
	assert.Equal(t, SeverityHigh, alerts[0].Severity)
	assert.Equal(t, StatusActive, alerts[0].Status)
}

func TestCollector_LatencyAlert(t *testing.T) {
	c := NewCollector(DefaultThresholds())

	for i := 0; i < 5; i++ {
		c.ingest(Event{Provider: "gpt-remote", Success: true, LatencyMs: 3000, Timestamp: time.Now()})
	}

	alerts := c.CheckHealth()
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertLatency, alerts[0].Kind)
	assert.Equal(t, SeverityMedium, alerts[0].Severity)
}

func TestCollector_CostDailyAlert(t *testing.T) {
	th := DefaultThresholds()
	th.CostDailyUSD = 10
	c := NewCollector(th)

	for i := 0; i < 10; i++ {
		c.ingest(Event{Provider: "claude-remote", Success: true, LatencyMs: 100, Cost: 2, Timestamp: time.Now()})
	}

	alerts := c.CheckHealth()
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertCostDaily, alerts[0].Kind)
	assert.Equal(t, SeverityHigh, alerts[0].Severity)
}

func TestCollector_AlertDeduplication(t *testing.T) {
	c := NewCollector(DefaultThresholds())

	for i := 0; i < 10; i++ {
		c.ingest(Event{Provider: "p", Success: false, LatencyMs: 100, Timestamp: time.Now()})
	}

	first := c.CheckHealth()
	require.Len(t, first, 1)
	id := first[0].ID

	// Repeated evaluation passes refresh the alert instead of duplicating.
	again := c.CheckHealth()
	require.Len(t, again, 1)
	assert.Equal(t, id, again[0].ID)
}

func TestCollector_AlertResolves(t *testing.T) {
	c := NewCollector(DefaultThresholds())

	c.ingest(Event{Provider: "p", Success: false, LatencyMs: 100, Timestamp: time.Now()})
	require.Len(t, c.CheckHealth(), 1)

	// Enough successes drop the rate under the threshold.
	for i := 0; i < 20; i++ {
		c.ingest(Event{Provider: "p", Success: true, LatencyMs: 100, Timestamp: time.Now()})
	}
	assert.Empty(t, c.CheckHealth())
}

func TestCollector_RequestWindowTruncation(t *testing.T) {
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	current := base
	c := NewCollector(DefaultThresholds(), WithClock(func() time.Time { return current }))

	for i := 0; i < 5; i++ {
		c.ingest(Event{Provider: "p", Success: true, LatencyMs: 10, Timestamp: current})
	}
	assert.Equal(t, 5, c.SnapshotStats().RequestsPerMinute)

	// Two minutes later the trailing window is empty again.
	current = base.Add(2 * time.Minute)
	c.ingest(Event{Provider: "p", Success: true, LatencyMs: 10, Timestamp: current})
	assert.Equal(t, 1, c.SnapshotStats().RequestsPerMinute)
}

func TestCollector_CostHistoryPruned(t *testing.T) {
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	current := base
	c := NewCollector(DefaultThresholds(), WithClock(func() time.Time { return current }))

	c.ingest(Event{Provider: "p", Success: true, LatencyMs: 10, Cost: 5, Timestamp: base})

	// 31 days later the old cost point is dropped on the next write.
	current = base.Add(31 * 24 * time.Hour)
	c.ingest(Event{Provider: "p", Success: true, LatencyMs: 10, Cost: 1, Timestamp: current})

	stats := c.SnapshotStats().Providers["p"]
	assert.InDelta(t, 1.0, stats.TotalCost, 1e-9)
}

func TestCollector_LatencySamplesBounded(t *testing.T) {
	c := NewCollector(DefaultThresholds())

	for i := 0; i < maxLatencySamples+50; i++ {
		c.ingest(Event{Provider: "p", Success: true, LatencyMs: 1, Timestamp: time.Now()})
	}
	assert.Len(t, c.providers["p"].Latencies, maxLatencySamples)
}

func TestCollector_SamplerAlerts(t *testing.T) {
	s := NewSampler()
	s.setForTest(0.95, 0.95)
	c := NewCollector(DefaultThresholds(), WithSampler(s))

	alerts := c.CheckHealth()
	kinds := make(map[AlertKind]Severity, len(alerts))
	for _, a := range alerts {
		kinds[a.Kind] = a.Severity
	}
	assert.Equal(t, SeverityHigh, kinds[AlertMemory])
	assert.Equal(t, SeverityMedium, kinds[AlertCPU])
}

func TestAlertManager_ThresholdMerge(t *testing.T) {
	m := NewAlertManager(DefaultThresholds())

	rate := 0.5
	m.UpdateThresholds(ThresholdUpdate{ErrorRate: &rate})

	th := m.Thresholds()
	assert.Equal(t, 0.5, th.ErrorRate)
	assert.Equal(t, 2000.0, th.LatencyMs, "untouched thresholds keep their values")
}

func TestCollector_AsyncRecordDrains(t *testing.T) {
	c := NewCollector(DefaultThresholds())
	c.Start(t.Context())
	defer c.Stop()

	c.Record(Event{RequestID: "r1", Provider: "p", Success: true, LatencyMs: 42})

	require.Eventually(t, func() bool {
		return c.SnapshotStats().Providers["p"].Count == 1
	}, time.Second, 5*time.Millisecond)
}
