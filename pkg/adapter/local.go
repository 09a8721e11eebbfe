package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultLocalBaseURL = "http://localhost:11434"

// LocalAdapter implements the Adapter interface for an Ollama-compatible
// on-box inference server.
type LocalAdapter struct {
	baseURL    string
	httpClient *http.Client
	models     []string
}

// localRequest is the Ollama chat request format.
type localRequest struct {
	Model    string        `json:"model"`
	Messages []Message     `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  *localOptions `json:"options,omitempty"`
}

type localOptions struct {
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	NumPredict  int      `json:"num_predict,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

// localResponse is the Ollama chat response format.
type localResponse struct {
	Model           string  `json:"model"`
	Message         Message `json:"message"`
	Done            bool    `json:"done"`
	PromptEvalCount int     `json:"prompt_eval_count,omitempty"`
	EvalCount       int     `json:"eval_count,omitempty"`
}

// NewLocalAdapter creates an adapter against an Ollama-compatible server.
// An empty baseURL uses the standard local endpoint.
func NewLocalAdapter(baseURL string, models []string) *LocalAdapter {
	if baseURL == "" {
		baseURL = defaultLocalBaseURL
	}
	if len(models) == 0 {
		models = []string{"llama3.1:8b"}
	}
	return &LocalAdapter{
		baseURL:    baseURL,
		httpClient: &http.Client{},
		models:     models,
	}
}

// Name returns the adapter identifier.
func (a *LocalAdapter) Name() string {
	return "local"
}

// Models returns the configured local models.
func (a *LocalAdapter) Models() []string {
	return a.models
}

// Call sends a query to the local server and returns the outcome.
func (a *LocalAdapter) Call(ctx context.Context, model string, query Query, opts Options) (*Outcome, error) {
	messages := make([]Message, 0, len(query.Context)+2)
	if opts.SystemMessage != "" {
		messages = append(messages, Message{Role: "system", Content: opts.SystemMessage})
	}
	messages = append(messages, query.Context...)
	messages = append(messages, Message{Role: "user", Content: query.Text})

	reqBody := localRequest{
		Model:    model,
		Messages: messages,
		Stream:   false,
	}
	if opts.Temperature != nil || opts.TopP != nil || opts.MaxTokens > 0 || len(opts.StopSequences) > 0 {
		reqBody.Options = &localOptions{
			Temperature: opts.Temperature,
			TopP:        opts.TopP,
			NumPredict:  opts.MaxTokens,
			Stop:        opts.StopSequences,
		}
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", a.baseURL+"/api/chat", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, &AdapterError{Temporary: true, Err: fmt.Errorf("local API request failed: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, wrapStatus(resp.StatusCode,
			fmt.Errorf("local API returned status %d: %s", resp.StatusCode, string(body)))
	}

	var localResp localResponse
	if err := json.Unmarshal(body, &localResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	cost := 0.0 // on-box inference has no per-token charge
	return &Outcome{
		Text: localResp.Message.Content,
		Usage: normalizeUsage(&Usage{
			PromptTokens:     localResp.PromptEvalCount,
			CompletionTokens: localResp.EvalCount,
		}),
		CostUSD:        &cost,
		Provider:       a.Name(),
		Model:          model,
		ProcessingTime: time.Since(start),
	}, nil
}
