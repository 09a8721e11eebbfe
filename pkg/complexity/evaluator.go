package complexity

import (
	"fmt"
	"strings"
)

// Factor tags emitted alongside a score, ordered by contribution.
const (
	FactorHighVocabulary = "high_vocabulary_complexity"
	FactorComplexGrammar = "complex_grammar"
	FactorLongQuery      = "long_query"
)

// Named features selectable through EvaluateWithFeatures.
const (
	FeatureVocabulary = "vocabulary"
	FeatureGrammar    = "grammar"
	FeatureLength     = "length"
)

// Result is a deterministic complexity estimate for a query.
type Result struct {
	Score   float64  `json:"score"`
	Factors []string `json:"factors"`
}

// Evaluator computes complexity scores from query text alone. Metadata is
// deliberately not an input so identical queries score identically.
type Evaluator struct{}

// NewEvaluator creates an evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Evaluate scores a query in [0,1] and reports the contributing factors.
func (e *Evaluator) Evaluate(query string) (*Result, error) {
	return e.EvaluateWithFeatures(query, nil)
}

// EvaluateWithFeatures scores a query using the named features only. An
// empty or nil feature list runs the full default algorithm.
func (e *Evaluator) EvaluateWithFeatures(query string, features []string) (*Result, error) {
	for _, f := range features {
		switch f {
		case FeatureVocabulary, FeatureGrammar, FeatureLength:
		default:
			return nil, fmt.Errorf("unknown complexity feature %q", f)
		}
	}

	words := strings.Fields(query)
	wordCount := len(words)

	avgWordLen := 0.0
	if wordCount > 0 {
		total := 0
		for _, w := range words {
			total += len([]rune(w))
		}
		avgWordLen = float64(total) / float64(wordCount)
	}

	vocabulary := 0.5*clamp01(float64(wordCount)/100) + 0.5*clamp01(avgWordLen/10)

	sentences := splitSentences(query)
	sentenceCount := len(sentences)
	if sentenceCount < 1 {
		sentenceCount = 1
	}
	avgSentenceLen := float64(wordCount) / float64(sentenceCount)
	grammar := clamp01(avgSentenceLen / 20)

	vocabEnabled := featureEnabled(features, FeatureVocabulary)
	grammarEnabled := featureEnabled(features, FeatureGrammar)
	lengthEnabled := featureEnabled(features, FeatureLength)

	score := 0.0
	switch {
	case vocabEnabled && grammarEnabled:
		score = 0.6*vocabulary + 0.4*grammar
	case vocabEnabled:
		score = vocabulary
	case grammarEnabled:
		score = grammar
	}
	score = clamp01(score)

	var factors []string
	if vocabEnabled && vocabulary > 0.6 {
		factors = append(factors, FactorHighVocabulary)
	}
	if grammarEnabled && grammar > 0.6 {
		factors = append(factors, FactorComplexGrammar)
	}
	if lengthEnabled && wordCount > 100 {
		factors = append(factors, FactorLongQuery)
	}

	return &Result{Score: score, Factors: factors}, nil
}

// featureEnabled treats an empty selector as "all features".
func featureEnabled(features []string, name string) bool {
	if len(features) == 0 {
		return true
	}
	for _, f := range features {
		if f == name {
			return true
		}
	}
	return false
}

// splitSentences splits on runs of '.', '!' and '?' and keeps non-empty
// trimmed parts.
func splitSentences(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
