package metrics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	requestWindow     = 60 * time.Second
	maxLatencySamples = 1000
	costRetention     = 30 * 24 * time.Hour
	eventBuffer       = 1024
)

// costPoint is one cost observation kept for the alert windows.
type costPoint struct {
	T      time.Time
	Cost   float64
	Tokens int
}

// providerAgg accumulates per-provider dispatch outcomes.
type providerAgg struct {
	Count          int64
	ErrorCount     int64
	TotalLatencyMs float64
	Latencies      []float64
	CostHistory    []costPoint
}

// ProviderStats is the read-side view of one provider's aggregate.
type ProviderStats struct {
	Count        int64   `json:"count"`
	ErrorCount   int64   `json:"error_count"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
	TotalCost    float64 `json:"total_cost"`
}

// Snapshot is a point-in-time view of the aggregator for API readers.
type Snapshot struct {
	RequestsPerMinute int                      `json:"requests_per_minute"`
	Providers         map[string]ProviderStats `json:"providers"`
	CPUFraction       float64                  `json:"cpu_fraction"`
	MemoryFraction    float64                  `json:"memory_fraction"`
}

// Collector aggregates dispatcher events into rolling windows. The
// dispatcher writes into a buffered channel and never waits on
// aggregation; a dedicated goroutine drains it.
type Collector struct {
	events chan Event
	alerts *AlertManager

	mu           sync.Mutex
	requestTimes []time.Time
	providers    map[string]*providerAgg
	dropped      int64

	sampler *Sampler
	now     func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// CollectorOption configures a Collector.
type CollectorOption func(*Collector)

// WithClock overrides the collector's time source, for tests.
func WithClock(now func() time.Time) CollectorOption {
	return func(c *Collector) {
		c.now = now
	}
}

// WithSampler attaches a CPU/memory sampler.
func WithSampler(s *Sampler) CollectorOption {
	return func(c *Collector) {
		c.sampler = s
	}
}

// NewCollector creates a collector with the given alert thresholds.
func NewCollector(thresholds Thresholds, opts ...CollectorOption) *Collector {
	c := &Collector{
		events:    make(chan Event, eventBuffer),
		alerts:    NewAlertManager(thresholds),
		providers: make(map[string]*providerAgg),
		now:       time.Now,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start launches the aggregation loop and, when configured, the process
// sampler.
func (c *Collector) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	if c.sampler != nil {
		c.sampler.Start(ctx)
	}
	go c.run(ctx)
}

// Stop shuts the aggregation loop down, draining buffered events first.
func (c *Collector) Stop() {
	if c.cancel != nil {
		c.cancel()
		<-c.done
	}
}

// Record enqueues a dispatch event. The send never blocks; when the
// buffer is full the event is dropped and counted.
func (c *Collector) Record(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = c.now()
	}
	select {
	case c.events <- ev:
	default:
		c.mu.Lock()
		c.dropped++
		c.mu.Unlock()
		log.Warn().Str("request_id", ev.RequestID).Msg("metrics buffer full, event dropped")
	}
}

// Alerts exposes the alert manager.
func (c *Collector) Alerts() *AlertManager {
	return c.alerts
}

func (c *Collector) run(ctx context.Context) {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case ev := <-c.events:
					c.ingest(ev)
				default:
					return
				}
			}
		case ev := <-c.events:
			c.ingest(ev)
		}
	}
}

// ingest folds one event into the windows. Old-sample truncation runs
// opportunistically on every write.
func (c *Collector) ingest(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.requestTimes = append(c.requestTimes, ev.Timestamp)
	c.truncateRequestsLocked(now)

	agg, ok := c.providers[ev.Provider]
	if !ok {
		agg = &providerAgg{}
		c.providers[ev.Provider] = agg
	}
	agg.Count++
	if !ev.Success {
		agg.ErrorCount++
	}
	agg.TotalLatencyMs += ev.LatencyMs
	agg.Latencies = append(agg.Latencies, ev.LatencyMs)
	if len(agg.Latencies) > maxLatencySamples {
		agg.Latencies = agg.Latencies[len(agg.Latencies)-maxLatencySamples:]
	}
	if ev.Cost > 0 || ev.Tokens > 0 {
		agg.CostHistory = append(agg.CostHistory, costPoint{T: ev.Timestamp, Cost: ev.Cost, Tokens: ev.Tokens})
		agg.CostHistory = pruneCost(agg.CostHistory, now.Add(-costRetention))
	}

	observeEvent(ev)
}

// truncateRequestsLocked drops request timestamps older than the window.
func (c *Collector) truncateRequestsLocked(now time.Time) {
	cutoff := now.Add(-requestWindow)
	idx := 0
	for idx < len(c.requestTimes) && c.requestTimes[idx].Before(cutoff) {
		idx++
	}
	if idx > 0 {
		c.requestTimes = c.requestTimes[idx:]
	}
}

func pruneCost(points []costPoint, cutoff time.Time) []costPoint {
	idx := 0
	for idx < len(points) && points[idx].T.Before(cutoff) {
		idx++
	}
	if idx > 0 {
		points = points[idx:]
	}
	return points
}

// SnapshotStats returns a copy of the aggregates under one short lock.
func (c *Collector) SnapshotStats() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.truncateRequestsLocked(c.now())
	snap := Snapshot{
		RequestsPerMinute: len(c.requestTimes),
		Providers:         make(map[string]ProviderStats, len(c.providers)),
	}
	for name, agg := range c.providers {
		stats := ProviderStats{
			Count:      agg.Count,
			ErrorCount: agg.ErrorCount,
		}
		if agg.Count > 0 {
			stats.AvgLatencyMs = agg.TotalLatencyMs / float64(agg.Count)
		}
		for _, p := range agg.CostHistory {
			stats.TotalCost += p.Cost
		}
		snap.Providers[name] = stats
	}
	if c.sampler != nil {
		cpu, memFrac := c.sampler.Last()
		snap.CPUFraction = cpu
		snap.MemoryFraction = memFrac
	}
	return snap
}

// CheckHealth evaluates the alert rules against the current windows and
// returns the active alerts after the pass.
func (c *Collector) CheckHealth() []Alert {
	c.mu.Lock()
	now := c.now()

	var total, errors int64
	var totalLatency float64
	var dailyCost, monthlyCost float64
	dayCutoff := now.Add(-24 * time.Hour)
	for _, agg := range c.providers {
		total += agg.Count
		errors += agg.ErrorCount
		totalLatency += agg.TotalLatencyMs
		for _, p := range agg.CostHistory {
			monthlyCost += p.Cost
			if !p.T.Before(dayCutoff) {
				dailyCost += p.Cost
			}
		}
	}
	c.mu.Unlock()

	th := c.alerts.Thresholds()

	if total > 0 {
		rate := float64(errors) / float64(total)
		if rate > th.ErrorRate {
			c.alerts.Raise(AlertErrorRate, SeverityHigh,
				fmt.Sprintf("error rate %.1f%% over threshold %.1f%%", rate*100, th.ErrorRate*100),
				map[string]any{"error_rate": rate, "errors": errors, "total": total})
		} else {
			c.alerts.Resolve(AlertErrorRate)
		}

		avgLatency := totalLatency / float64(total)
		if avgLatency > th.LatencyMs {
			c.alerts.Raise(AlertLatency, SeverityMedium,
				fmt.Sprintf("average latency %.0f ms over threshold %.0f ms", avgLatency, th.LatencyMs),
				map[string]any{"avg_latency_ms": avgLatency})
		} else {
			c.alerts.Resolve(AlertLatency)
		}
	}

	if dailyCost > th.CostDailyUSD {
		c.alerts.Raise(AlertCostDaily, SeverityHigh,
			fmt.Sprintf("daily cost $%.2f over threshold $%.2f", dailyCost, th.CostDailyUSD),
			map[string]any{"daily_cost": dailyCost})
	}
	if monthlyCost > th.CostMonthlyUSD {
		c.alerts.Raise(AlertCostMonthly, SeverityCritical,
			fmt.Sprintf("monthly cost $%.2f over threshold $%.2f", monthlyCost, th.CostMonthlyUSD),
			map[string]any{"monthly_cost": monthlyCost})
	}

	if c.sampler != nil {
		cpu, memFrac := c.sampler.Last()
		if memFrac > th.MemoryFraction {
			c.alerts.Raise(AlertMemory, SeverityHigh,
				fmt.Sprintf("memory use %.0f%% of system over threshold %.0f%%", memFrac*100, th.MemoryFraction*100),
				map[string]any{"memory_fraction": memFrac})
		} else {
			c.alerts.Resolve(AlertMemory)
		}
		if cpu > th.CPUFraction {
			c.alerts.Raise(AlertCPU, SeverityMedium,
				fmt.Sprintf("cpu use %.0f%% over threshold %.0f%%", cpu*100, th.CPUFraction*100),
				map[string]any{"cpu_fraction": cpu})
		} else {
			c.alerts.Resolve(AlertCPU)
		}
	}

	return c.alerts.Active()
}
