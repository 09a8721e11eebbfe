package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelgate_requests_total",
			Help: "Total number of dispatched requests",
		},
		[]string{"provider", "outcome"},
	)

	requestLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "modelgate_request_latency_seconds",
			Help: "End-to-end dispatch latency in seconds",
		},
		[]string{"provider"},
	)

	costTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelgate_cost_usd_total",
			Help: "Accumulated request cost in USD",
		},
		[]string{"provider"},
	)

	providerInflight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "modelgate_provider_inflight",
			Help: "Current admitted requests per provider",
		},
		[]string{"provider"},
	)
)

// observeEvent mirrors one dispatch event into the Prometheus collectors.
func observeEvent(ev Event) {
	outcome := "success"
	if !ev.Success {
		outcome = "failure"
	}
	provider := ev.Provider
	if provider == "" {
		provider = "none"
	}
	requestCount.WithLabelValues(provider, outcome).Inc()
	requestLatency.WithLabelValues(provider).Observe(ev.LatencyMs / 1000)
	if ev.Cost > 0 {
		costTotal.WithLabelValues(provider).Add(ev.Cost)
	}
}

// SetInflight publishes a provider's current admission count.
func SetInflight(provider string, n int) {
	providerInflight.WithLabelValues(provider).Set(float64(n))
}
