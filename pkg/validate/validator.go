package validate

import (
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/zen-systems/modelgate/pkg/schema"
)

const (
	// MaxQueryLength bounds query text in code points.
	MaxQueryLength = 10000
)

// defaultUnsafePatterns are shell-injection style tokens rejected by the
// safety check. Matching is a case-insensitive substring test.
var defaultUnsafePatterns = []string{
	"exec(",
	"eval(",
	"system(",
	"popen(",
	"subprocess.",
	"rm -rf",
	"__import__(",
}

// Validator standardizes inbound requests and rejects malformed or unsafe
// input before any routing work happens.
type Validator struct {
	unsafePatterns []string
	now            func() time.Time
	newID          func() string
}

// Option configures a Validator.
type Option func(*Validator)

// WithUnsafePatterns overrides the rejected-token set.
func WithUnsafePatterns(patterns []string) Option {
	return func(v *Validator) {
		v.unsafePatterns = patterns
	}
}

// WithClock overrides the timestamp source, for tests.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) {
		v.now = now
	}
}

// NewValidator creates a validator with the default unsafe-pattern set.
func NewValidator(opts ...Option) *Validator {
	v := &Validator{
		unsafePatterns: defaultUnsafePatterns,
		now:            time.Now,
		newID:          func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// ValidateAndNormalize checks the request and returns a normalized copy
// with a request id, a metadata map, and the derived queryLength and
// wordCount fields filled in. The input request is not mutated.
func (v *Validator) ValidateAndNormalize(req *schema.QueryRequest) (*schema.QueryRequest, error) {
	if req == nil {
		return nil, schema.NewError(schema.CodeInvalidRequest, "request is required")
	}

	length := utf8.RuneCountInString(req.Query)
	if length == 0 {
		return nil, schema.NewError(schema.CodeInvalidRequest, "query text must not be empty")
	}
	if length > MaxQueryLength {
		return nil, schema.NewError(schema.CodeInvalidRequest,
			"query text exceeds %d code points", MaxQueryLength)
	}

	if err := v.checkSafety(req.Query); err != nil {
		return nil, err
	}

	normalized := &schema.QueryRequest{
		RequestID: req.RequestID,
		Query:     req.Query,
		Metadata:  make(map[string]string, len(req.Metadata)+3),
	}
	if normalized.RequestID == "" {
		normalized.RequestID = v.newID()
	}
	for k, val := range req.Metadata {
		normalized.Metadata[k] = val
	}

	normalized.Metadata[schema.MetaTimestamp] = v.now().UTC().Format(time.RFC3339Nano)
	normalized.Metadata[schema.MetaQueryLength] = strconv.Itoa(length)
	normalized.Metadata[schema.MetaWordCount] = strconv.Itoa(len(strings.Fields(req.Query)))

	return normalized, nil
}

// checkSafety rejects queries containing shell-injection style tokens.
func (v *Validator) checkSafety(query string) error {
	lowered := strings.ToLower(query)
	for _, pattern := range v.unsafePatterns {
		if strings.Contains(lowered, strings.ToLower(pattern)) {
			return schema.NewError(schema.CodeInvalidRequest,
				"query contains unsafe pattern %q", pattern)
		}
	}
	return nil
}
