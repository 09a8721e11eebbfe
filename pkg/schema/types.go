package schema

import "fmt"

// ModelType is the coarse class of backend a query can be served by.
type ModelType string

const (
	ModelTypeLocal  ModelType = "local"
	ModelTypeHybrid ModelType = "hybrid"
	ModelTypeRemote ModelType = "remote"
)

// DowngradeChain orders model types from most to least capable. Cost
// control walks this chain when an estimate exceeds the caller's budget.
var DowngradeChain = []ModelType{ModelTypeRemote, ModelTypeHybrid, ModelTypeLocal}

// Downgrade returns the next cheaper model type, or "" at the end of the chain.
func Downgrade(t ModelType) ModelType {
	switch t {
	case ModelTypeRemote:
		return ModelTypeHybrid
	case ModelTypeHybrid:
		return ModelTypeLocal
	default:
		return ""
	}
}

// ProviderStatus reflects a provider's availability.
type ProviderStatus string

const (
	StatusOnline   ProviderStatus = "online"
	StatusDegraded ProviderStatus = "degraded"
	StatusOffline  ProviderStatus = "offline"
)

// ErrorCode is the wire-level error taxonomy.
type ErrorCode int

const (
	CodeOK                         ErrorCode = 0
	CodeInvalidRequest             ErrorCode = 1
	CodeModelUnavailable           ErrorCode = 2
	CodeComplexityEvaluationFailed ErrorCode = 3
	CodeCostLimitExceeded          ErrorCode = 4
)

// String returns the symbolic name of the code.
func (c ErrorCode) String() string {
	switch c {
	case CodeOK:
		return "OK"
	case CodeInvalidRequest:
		return "INVALID_REQUEST"
	case CodeModelUnavailable:
		return "MODEL_UNAVAILABLE"
	case CodeComplexityEvaluationFailed:
		return "COMPLEXITY_EVALUATION_FAILED"
	case CodeCostLimitExceeded:
		return "COST_LIMIT_EXCEEDED"
	default:
		return "INTERNAL"
	}
}

// GatewayError is a typed failure surfaced to the caller.
type GatewayError struct {
	Code    ErrorCode
	Message string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError builds a GatewayError with a formatted message.
func NewError(code ErrorCode, format string, args ...any) *GatewayError {
	return &GatewayError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Recognized metadata keys. Unknown keys are ignored but preserved.
const (
	MetaBudget            = "budget"
	MetaMaxTokens         = "maxTokens"
	MetaTemperature       = "temperature"
	MetaTopP              = "topP"
	MetaSystemMessage     = "systemMessage"
	MetaPreferredProvider = "preferredProvider"
	MetaTimeout           = "timeout"

	// Derived keys inserted by the validator.
	MetaTimestamp   = "timestamp"
	MetaQueryLength = "queryLength"
	MetaWordCount   = "wordCount"
)

// QueryRequest is the inbound RPC payload for ProcessQuery.
type QueryRequest struct {
	RequestID string            `json:"request_id,omitempty"`
	Query     string            `json:"query"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// TokenUsage captures normalized token counts for a call.
type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
	Total  int `json:"total"`
}

// QueryResponse is the successful ProcessQuery reply.
type QueryResponse struct {
	RequestID        string     `json:"request_id"`
	Response         string     `json:"response"`
	ComplexityScore  float64    `json:"complexity_score"`
	ModelUsed        string     `json:"model_used"`
	Cost             float64    `json:"cost"`
	TokenUsage       TokenUsage `json:"token_usage"`
	ProcessingTimeMs int64      `json:"processing_time_ms"`
}

// ComplexityRequest is the inbound payload for EvaluateComplexity.
type ComplexityRequest struct {
	Query    string   `json:"query"`
	Features []string `json:"features,omitempty"`
}

// ComplexityResponse carries a score and its contributing factors.
type ComplexityResponse struct {
	ComplexityScore   float64  `json:"complexity_score"`
	ComplexityFactors []string `json:"complexity_factors"`
}

// ProviderCapabilities describes one provider's capability tags.
type ProviderCapabilities struct {
	ProviderName string   `json:"provider_name"`
	Capabilities []string `json:"capabilities"`
}

// CapabilitiesResponse is the GetModelCapabilities reply. Capabilities is
// the union over online providers.
type CapabilitiesResponse struct {
	Capabilities []string               `json:"capabilities"`
	Providers    []ProviderCapabilities `json:"providers"`
}

// ErrorResponse is the wire shape of a typed failure.
type ErrorResponse struct {
	Code      int    `json:"code"`
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}
