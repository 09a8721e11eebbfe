package dispatch

import (
	"context"
	"errors"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/zen-systems/modelgate/pkg/adapter"
	"github.com/zen-systems/modelgate/pkg/complexity"
	"github.com/zen-systems/modelgate/pkg/metrics"
	"github.com/zen-systems/modelgate/pkg/router"
	"github.com/zen-systems/modelgate/pkg/schema"
	"github.com/zen-systems/modelgate/pkg/tracker"
	"github.com/zen-systems/modelgate/pkg/validate"
)

// Adapter call deadlines by model type.
const (
	remoteCallTimeout = 60 * time.Second
	localCallTimeout  = 30 * time.Second
)

// Evaluator scores a query. *complexity.Evaluator is the standard
// implementation; the seam exists for custom feature extractors.
type Evaluator interface {
	Evaluate(query string) (*complexity.Result, error)
}

// Dispatcher runs the per-request state machine: validate, evaluate,
// route, admit, call, fall back once on failure, record, reply.
type Dispatcher struct {
	validator *validate.Validator
	evaluator Evaluator
	router    *router.Router
	tracker   *tracker.Tracker
	collector *metrics.Collector
	adapters  map[string]adapter.Adapter
	retry     adapter.RetryPolicy
}

// Config wires a dispatcher's collaborators.
type Config struct {
	Validator *validate.Validator
	Evaluator Evaluator
	Router    *router.Router
	Tracker   *tracker.Tracker
	Collector *metrics.Collector
	Adapters  map[string]adapter.Adapter
	Retry     adapter.RetryPolicy
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(cfg Config) *Dispatcher {
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = adapter.DefaultRetryPolicy()
	}
	return &Dispatcher{
		validator: cfg.Validator,
		evaluator: cfg.Evaluator,
		router:    cfg.Router,
		tracker:   cfg.Tracker,
		collector: cfg.Collector,
		adapters:  cfg.Adapters,
		retry:     cfg.Retry,
	}
}

// Process executes one dispatch. Exactly one metrics event is emitted on
// every exit path, and every successful admission is released.
func (d *Dispatcher) Process(ctx context.Context, req *schema.QueryRequest) (*schema.QueryResponse, error) {
	start := time.Now()

	requestID := ""
	if req != nil {
		requestID = req.RequestID
	}

	normalized, err := d.validator.ValidateAndNormalize(req)
	if err != nil {
		return nil, d.fail(requestID, "", start, 0, err)
	}
	requestID = normalized.RequestID
	logger := log.With().Str("component", "dispatcher").Str("request_id", requestID).Logger()

	result, err := d.evaluator.Evaluate(normalized.Query)
	if err != nil {
		gerr := schema.NewError(schema.CodeComplexityEvaluationFailed,
			"complexity evaluation failed: %v", err)
		return nil, d.fail(requestID, "", start, 0, gerr)
	}
	logger.Debug().Float64("score", result.Score).Strs("factors", result.Factors).Msg("query scored")

	decision, err := d.router.Route(result.Score, result.Factors, normalized.Metadata)
	if err != nil {
		return nil, d.fail(requestID, "", start, result.Score, err)
	}

	queryLength := metadataInt(normalized.Metadata, schema.MetaQueryLength)

	// Admit the primary; a refused admission gets one backup try.
	if err := d.tracker.Begin(decision.ProviderName); err != nil {
		logger.Debug().Str("provider", decision.ProviderName).Msg("admission refused, trying backup")
		backup, ok := d.router.BackupFor(decision.ProviderName, decision.ModelType, result.Score, queryLength)
		if !ok {
			return nil, d.fail(requestID, "", start, result.Score, err)
		}
		if err := d.tracker.Begin(backup.ProviderName); err != nil {
			return nil, d.fail(requestID, "", start, result.Score, err)
		}
		decision = backup
	}
	metrics.SetInflight(decision.ProviderName, d.tracker.Inflight(decision.ProviderName))

	outcome, callErr := d.callProvider(ctx, logger, decision, normalized, result.Score)
	if callErr != nil {
		// One fallback to a different provider, no retry chain.
		backup, ok := d.router.BackupFor(decision.ProviderName, decision.ModelType, result.Score, queryLength)
		if !ok {
			gerr := schema.NewError(schema.CodeModelUnavailable,
				"provider %s failed and no backup is available: %v", decision.ProviderName, callErr)
			return nil, d.fail(requestID, decision.ProviderName, start, result.Score, gerr)
		}
		logger.Info().
			Str("primary", decision.ProviderName).
			Str("backup", backup.ProviderName).
			Msg("primary call failed, falling back")

		if err := d.tracker.Begin(backup.ProviderName); err != nil {
			return nil, d.fail(requestID, decision.ProviderName, start, result.Score, err)
		}
		metrics.SetInflight(backup.ProviderName, d.tracker.Inflight(backup.ProviderName))

		outcome, callErr = d.callProvider(ctx, logger, backup, normalized, result.Score)
		if callErr != nil {
			gerr := schema.NewError(schema.CodeModelUnavailable,
				"backup provider %s also failed: %v", backup.ProviderName, callErr)
			return nil, d.fail(requestID, backup.ProviderName, start, result.Score, gerr)
		}
		decision = backup
	}

	cost := decision.EstimatedCost
	if outcome.CostUSD != nil {
		cost = *outcome.CostUSD
	}
	usage := tokenUsage(outcome, normalized.Query)
	elapsed := time.Since(start)

	d.collector.Record(metrics.Event{
		RequestID:      requestID,
		Provider:       decision.ProviderName,
		Success:        true,
		LatencyMs:      float64(elapsed.Milliseconds()),
		ModelLatencyMs: float64(outcome.ProcessingTime.Milliseconds()),
		Cost:           cost,
		Tokens:         usage.Total,
		Complexity:     result.Score,
	})

	return &schema.QueryResponse{
		RequestID:        requestID,
		Response:         outcome.Text,
		ComplexityScore:  result.Score,
		ModelUsed:        decision.ProviderName,
		Cost:             cost,
		TokenUsage:       usage,
		ProcessingTimeMs: elapsed.Milliseconds(),
	}, nil
}

// callProvider runs the adapter call for an admitted decision. The paired
// tracker release happens here on every path, with the call's sample.
func (d *Dispatcher) callProvider(ctx context.Context, logger zerolog.Logger, decision *router.Decision, req *schema.QueryRequest, score float64) (*adapter.Outcome, error) {
	desc := decision.Provider
	a, ok := d.adapters[desc.Adapter]
	if !ok {
		// Release the admission; the adapter never saw the call, so no sample.
		d.tracker.End(decision.ProviderName, nil)
		metrics.SetInflight(decision.ProviderName, d.tracker.Inflight(decision.ProviderName))
		return nil, schema.NewError(schema.CodeModelUnavailable,
			"adapter %q not configured for provider %s", desc.Adapter, desc.Name)
	}

	query := adapter.Query{Text: req.Query, Score: score}
	opts := optionsFromMetadata(req.Metadata, decision.ModelType)

	callStart := time.Now()
	outcome, err := adapter.CallWithRetry(ctx, a, desc.Model, query, opts, d.retry)
	latencyMs := float64(time.Since(callStart).Milliseconds())

	d.tracker.End(decision.ProviderName, &tracker.Sample{
		LatencyMs:      latencyMs,
		Success:        err == nil,
		CostEfficiency: desc.CostEfficiency,
	})
	metrics.SetInflight(decision.ProviderName, d.tracker.Inflight(decision.ProviderName))

	if err != nil {
		logger.Warn().Err(err).Str("provider", desc.Name).Msg("adapter call failed")
		return nil, err
	}
	return outcome, nil
}

// fail emits the mandatory failure event and normalizes the error for the
// caller. Unknown errors map to a sanitized internal failure. provider is
// the last admitted provider whose call failed, or "" when none was admitted.
func (d *Dispatcher) fail(requestID, provider string, start time.Time, score float64, err error) error {
	gerr := asGatewayError(err)
	d.collector.Record(metrics.Event{
		RequestID:   requestID,
		Provider:    provider,
		Success:     false,
		LatencyMs:   float64(time.Since(start).Milliseconds()),
		Complexity:  score,
		FailureKind: gerr.Code.String(),
	})
	return gerr
}

func asGatewayError(err error) *schema.GatewayError {
	var gerr *schema.GatewayError
	if errors.As(err, &gerr) {
		return gerr
	}
	return &schema.GatewayError{Code: -1, Message: "internal error"}
}

// tokenUsage converts the adapter's usage, estimating a quarter of the
// text length per side when the backend reported nothing.
func tokenUsage(outcome *adapter.Outcome, query string) schema.TokenUsage {
	if outcome.Usage != nil {
		return schema.TokenUsage{
			Input:  outcome.Usage.PromptTokens,
			Output: outcome.Usage.CompletionTokens,
			Total:  outcome.Usage.TotalTokens,
		}
	}
	input := (utf8.RuneCountInString(query) + 3) / 4
	output := (utf8.RuneCountInString(outcome.Text) + 3) / 4
	return schema.TokenUsage{Input: input, Output: output, Total: input + output}
}

// optionsFromMetadata maps recognized metadata keys onto adapter options.
func optionsFromMetadata(metadata map[string]string, modelType schema.ModelType) adapter.Options {
	opts := adapter.Options{}
	if modelType == schema.ModelTypeLocal {
		opts.Timeout = localCallTimeout
	} else {
		opts.Timeout = remoteCallTimeout
	}
	if metadata == nil {
		return opts
	}

	if v := metadata[schema.MetaMaxTokens]; v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			opts.MaxTokens = n
		}
	}
	if v := metadata[schema.MetaTemperature]; v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			opts.Temperature = &f
		}
	}
	if v := metadata[schema.MetaTopP]; v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			opts.TopP = &f
		}
	}
	if v := metadata[schema.MetaSystemMessage]; v != "" {
		opts.SystemMessage = v
	}
	if v := metadata[schema.MetaBudget]; v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			opts.BudgetUSD = f
		}
	}
	if v := metadata[schema.MetaTimeout]; v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			opts.Timeout = time.Duration(ms) * time.Millisecond
		}
	}
	return opts
}

func metadataInt(metadata map[string]string, key string) int {
	if metadata == nil {
		return 0
	}
	n, err := strconv.Atoi(metadata[key])
	if err != nil {
		return 0
	}
	return n
}
