package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zen-systems/modelgate/pkg/adapter"
	"github.com/zen-systems/modelgate/pkg/complexity"
	"github.com/zen-systems/modelgate/pkg/metrics"
	"github.com/zen-systems/modelgate/pkg/provider"
	"github.com/zen-systems/modelgate/pkg/router"
	"github.com/zen-systems/modelgate/pkg/schema"
	"github.com/zen-systems/modelgate/pkg/tracker"
	"github.com/zen-systems/modelgate/pkg/validate"
)

// stubEvaluator returns a fixed score, standing in for the real evaluator
// so routing bands can be driven directly.
type stubEvaluator struct {
	score float64
	err   error
}

func (s *stubEvaluator) Evaluate(string) (*complexity.Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &complexity.Result{Score: s.score}, nil
}

type harness struct {
	dispatcher *Dispatcher
	registry   *provider.Registry
	tracker    *tracker.Tracker
	collector  *metrics.Collector
	adapters   map[string]*adapter.MockAdapter
}

func newHarness(t *testing.T, score float64) *harness {
	t.Helper()

	descriptors := []*provider.Descriptor{
		{
			Name:           "llama-local",
			Adapter:        "local-a",
			Model:          "mock-1",
			SupportedTypes: []schema.ModelType{schema.ModelTypeLocal},
			MaxConcurrent:  4,
			BaseCost:       0.0001,
			MaxCost:        0.001,
			CostEfficiency: 0.95,
		},
		{
			Name:           "gemini-hybrid",
			Adapter:        "hybrid-a",
			Model:          "mock-1",
			SupportedTypes: []schema.ModelType{schema.ModelTypeHybrid},
			MaxConcurrent:  4,
			BaseCost:       0.002,
			MaxCost:        0.05,
			CostEfficiency: 0.85,
		},
		{
			Name:           "claude-remote",
			Adapter:        "remote-a",
			Model:          "mock-1",
			SupportedTypes: []schema.ModelType{schema.ModelTypeRemote},
			MaxConcurrent:  4,
			BaseCost:       0.01,
			MaxCost:        0.2,
			CostEfficiency: 0.7,
		},
		{
			Name:           "gpt-remote",
			Adapter:        "remote-b",
			Model:          "mock-1",
			SupportedTypes: []schema.ModelType{schema.ModelTypeRemote},
			MaxConcurrent:  4,
			BaseCost:       0.012,
			MaxCost:        0.25,
			CostEfficiency: 0.7,
		},
	}
	reg, err := provider.NewRegistry(descriptors)
	require.NoError(t, err)

	mocks := map[string]*adapter.MockAdapter{
		"local-a":  adapter.NewMockAdapter("local-a"),
		"hybrid-a": adapter.NewMockAdapter("hybrid-a"),
		"remote-a": adapter.NewMockAdapter("remote-a"),
		"remote-b": adapter.NewMockAdapter("remote-b"),
	}
	adapters := make(map[string]adapter.Adapter, len(mocks))
	for name, m := range mocks {
		adapters[name] = m
	}

	tr := tracker.NewTracker(reg)
	collector := metrics.NewCollector(metrics.DefaultThresholds())
	collector.Start(t.Context())
	t.Cleanup(collector.Stop)

	d := NewDispatcher(Config{
		Validator: validate.NewValidator(),
		Evaluator: &stubEvaluator{score: score},
		Router:    router.NewRouter(reg, tr),
		Tracker:   tr,
		Collector: collector,
		Adapters:  adapters,
		Retry:     adapter.RetryPolicy{MaxAttempts: 1, BaseBackoff: time.Millisecond, Multiplier: 2},
	})

	return &harness{dispatcher: d, registry: reg, tracker: tr, collector: collector, adapters: mocks}
}

func (h *harness) waitForEvents(t *testing.T, total int64) metrics.Snapshot {
	t.Helper()
	var snap metrics.Snapshot
	require.Eventually(t, func() bool {
		snap = h.collector.SnapshotStats()
		var n int64
		for _, p := range snap.Providers {
			n += p.Count
		}
		return n == total
	}, time.Second, 5*time.Millisecond)
	return snap
}

func TestProcess_LowComplexityRoutesLocal(t *testing.T) {
	h := newHarness(t, 0.2)

	resp, err := h.dispatcher.Process(context.Background(), &schema.QueryRequest{Query: "今天天气怎么样？"})
	require.NoError(t, err)

	assert.Equal(t, "llama-local", resp.ModelUsed)
	assert.NotEmpty(t, resp.Response)
	assert.Greater(t, resp.Cost, 0.0)
	assert.Equal(t, 0.2, resp.ComplexityScore)
	assert.Equal(t, 0, h.tracker.Inflight("llama-local"), "admission released")
}

func TestProcess_MidComplexityRoutesHybrid(t *testing.T) {
	h := newHarness(t, 0.5)

	resp, err := h.dispatcher.Process(context.Background(), &schema.QueryRequest{Query: "解释一下量子力学的基本原理"})
	require.NoError(t, err)
	assert.Equal(t, "gemini-hybrid", resp.ModelUsed)
}

func TestProcess_HighComplexityRoutesRemote(t *testing.T) {
	h := newHarness(t, 0.9)

	resp, err := h.dispatcher.Process(context.Background(), &schema.QueryRequest{
		Query: "请详细分析人工智能在医疗领域的应用前景和潜在风险",
	})
	require.NoError(t, err)
	assert.Contains(t, []string{"claude-remote", "gpt-remote"}, resp.ModelUsed)
}

func TestProcess_FallbackOnPrimaryFailure(t *testing.T) {
	h := newHarness(t, 0.9)

	// Both remote candidates score identically with no history; claude
	// wins the lexicographic tie-break and fails once.
	h.adapters["remote-a"].FailNext(errors.New("backend exploded"))
	h.adapters["remote-b"].WithResponses(nil, "Backup model response from gpt-remote")

	resp, err := h.dispatcher.Process(context.Background(), &schema.QueryRequest{Query: "hard question"})
	require.NoError(t, err)

	assert.Equal(t, "gpt-remote", resp.ModelUsed)
	assert.Contains(t, resp.Response, "Backup model")
	assert.Equal(t, 1, h.adapters["remote-a"].Calls())
	assert.Equal(t, 1, h.adapters["remote-b"].Calls())

	assert.Equal(t, 0, h.tracker.Inflight("claude-remote"))
	assert.Equal(t, 0, h.tracker.Inflight("gpt-remote"))
}

func TestProcess_AllProvidersFail(t *testing.T) {
	h := newHarness(t, 0.9)

	for _, m := range h.adapters {
		m.FailNext(errors.New("down"), errors.New("down"), errors.New("down"))
	}

	_, err := h.dispatcher.Process(context.Background(), &schema.QueryRequest{Query: "hard question"})
	assertCode(t, err, schema.CodeModelUnavailable)

	for _, name := range []string{"llama-local", "gemini-hybrid", "claude-remote", "gpt-remote"} {
		assert.Equal(t, 0, h.tracker.Inflight(name), "provider %s", name)
	}
}

func TestProcess_BudgetTooSmall(t *testing.T) {
	h := newHarness(t, 0.9)

	// Starve the chain of its cheap tail so nothing fits.
	require.NoError(t, h.registry.SetStatus("llama-local", schema.StatusOffline))

	_, err := h.dispatcher.Process(context.Background(), &schema.QueryRequest{
		Query:    "hard question",
		Metadata: map[string]string{schema.MetaBudget: "0.001"},
	})
	assertCode(t, err, schema.CodeCostLimitExceeded)
}

func TestProcess_UnsafeContentRejected(t *testing.T) {
	h := newHarness(t, 0.2)

	_, err := h.dispatcher.Process(context.Background(), &schema.QueryRequest{Query: `exec("rm -rf /")`})
	assertCode(t, err, schema.CodeInvalidRequest)
	assert.Contains(t, err.Error(), "unsafe")

	// No adapter saw the request.
	for _, m := range h.adapters {
		assert.Zero(t, m.Calls())
	}
}

func TestProcess_EvaluatorFailure(t *testing.T) {
	h := newHarness(t, 0)
	h.dispatcher.evaluator = &stubEvaluator{err: errors.New("feature extractor broke")}

	_, err := h.dispatcher.Process(context.Background(), &schema.QueryRequest{Query: "anything"})
	assertCode(t, err, schema.CodeComplexityEvaluationFailed)
}

func TestProcess_EmitsOneMetricsEventPerDispatch(t *testing.T) {
	h := newHarness(t, 0.2)

	_, err := h.dispatcher.Process(context.Background(), &schema.QueryRequest{Query: "fine"})
	require.NoError(t, err)
	_, err = h.dispatcher.Process(context.Background(), &schema.QueryRequest{Query: ""})
	require.Error(t, err)

	snap := h.waitForEvents(t, 2)
	assert.Equal(t, int64(1), snap.Providers["llama-local"].Count)
	// The validation failure is recorded without a provider.
	assert.Equal(t, int64(1), snap.Providers[""].Count)
	assert.Equal(t, int64(1), snap.Providers[""].ErrorCount)
}

func TestProcess_SuccessUpdatesTrackerAverages(t *testing.T) {
	h := newHarness(t, 0.2)

	_, err := h.dispatcher.Process(context.Background(), &schema.QueryRequest{Query: "fine"})
	require.NoError(t, err)

	stats := h.tracker.StatsFor("llama-local")
	assert.Equal(t, int64(1), stats.TotalCalls)
	assert.InDelta(t, 1.0, stats.EMASuccessRate, 1e-9)
}

func TestProcess_SaturatedProviderSkipped(t *testing.T) {
	h := newHarness(t, 0.9)

	// A provider at its concurrency cap never enters the candidate set.
	for i := 0; i < 4; i++ {
		require.NoError(t, h.tracker.Begin("claude-remote"))
	}

	resp, err := h.dispatcher.Process(context.Background(), &schema.QueryRequest{Query: "hard question"})
	require.NoError(t, err)
	assert.Equal(t, "gpt-remote", resp.ModelUsed)
}

func assertCode(t *testing.T, err error, code schema.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	var gerr *schema.GatewayError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, code, gerr.Code)
}
