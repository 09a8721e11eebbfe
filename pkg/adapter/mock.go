package adapter

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockAdapter returns deterministic responses for local runs and tests.
type MockAdapter struct {
	mu              sync.Mutex
	name            string
	responses       map[string]string
	defaultResponse string
	failures        []error
	latency         time.Duration
	calls           int

	// Usage, when set, is attached to every outcome.
	Usage *Usage
	// CostUSD, when set, is attached to every outcome.
	CostUSD *float64
}

// NewMockAdapter creates a mock adapter with a default response.
func NewMockAdapter(name string) *MockAdapter {
	if name == "" {
		name = "mock"
	}
	return &MockAdapter{
		name:            name,
		responses:       make(map[string]string),
		defaultResponse: "mock response:",
	}
}

// WithResponses sets predefined responses keyed by query text.
func (a *MockAdapter) WithResponses(responses map[string]string, defaultResponse string) *MockAdapter {
	if defaultResponse != "" {
		a.defaultResponse = defaultResponse
	}
	for k, v := range responses {
		a.responses[k] = v
	}
	return a
}

// FailNext queues errors returned by the next calls, in order, before the
// adapter goes back to succeeding.
func (a *MockAdapter) FailNext(errs ...error) *MockAdapter {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failures = append(a.failures, errs...)
	return a
}

// WithLatency makes every call report the given processing time.
func (a *MockAdapter) WithLatency(d time.Duration) *MockAdapter {
	a.latency = d
	return a
}

// Name returns the adapter identifier.
func (a *MockAdapter) Name() string {
	return a.name
}

// Models returns the list of supported mock models.
func (a *MockAdapter) Models() []string {
	return []string{"mock-1"}
}

// Calls returns how many times Call was invoked.
func (a *MockAdapter) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

// Call returns a deterministic outcome for the query.
func (a *MockAdapter) Call(_ context.Context, model string, query Query, _ Options) (*Outcome, error) {
	a.mu.Lock()
	a.calls++
	if len(a.failures) > 0 {
		err := a.failures[0]
		a.failures = a.failures[1:]
		a.mu.Unlock()
		return nil, err
	}
	response, ok := a.responses[query.Text]
	a.mu.Unlock()

	if model == "" {
		model = "mock-1"
	}
	if !ok {
		response = fmt.Sprintf("%s %s", a.defaultResponse, query.Text)
	}

	return &Outcome{
		Text:           response,
		Usage:          a.Usage,
		CostUSD:        a.CostUSD,
		Provider:       a.name,
		Model:          model,
		ProcessingTime: a.latency,
	}, nil
}
