package metrics

import "time"

// Event is the single terminal record a dispatch emits. Provider is empty
// when the request failed before any provider was admitted.
type Event struct {
	RequestID      string    `json:"request_id"`
	Provider       string    `json:"provider"`
	Success        bool      `json:"success"`
	LatencyMs      float64   `json:"latency_ms"`
	ModelLatencyMs float64   `json:"model_latency_ms"`
	Cost           float64   `json:"cost"`
	Tokens         int       `json:"tokens"`
	Complexity     float64   `json:"complexity"`
	FailureKind    string    `json:"failure_kind,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}
