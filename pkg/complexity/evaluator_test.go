package complexity

import (
	"math"
	"strings"
	"testing"
)

func TestEvaluator_Evaluate(t *testing.T) {
	e := NewEvaluator()

	tests := []struct {
		name          string
		query         string
		expectedScore float64
		expectFactors []string
	}{
		{
			name:  "single short word",
			query: "hi",
			// vocab = 0.5*(1/100) + 0.5*(2/10); grammar = (1/1)/20
			expectedScore: 0.6*(0.005+0.1) + 0.4*0.05,
		},
		{
			name:  "cjk question without ascii punctuation",
			query: "今天天气怎么样？",
			// one whitespace token of 8 code points, one sentence
			expectedScore: 0.6*(0.005+0.4) + 0.4*0.05,
		},
		{
			name:  "three short sentences",
			query: "One. Two! Three?",
			// W=3, avg word len 14/3; S=3, one word per sentence
			expectedScore: 0.6*(0.5*0.03+0.5*(14.0/3/10)) + 0.4*0.05,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := e.Evaluate(tt.query)
			if err != nil {
				t.Fatalf("Evaluate(%q) returned error: %v", tt.query, err)
			}
			if math.Abs(result.Score-tt.expectedScore) > 1e-9 {
				t.Errorf("Evaluate(%q) score = %v, want %v", tt.query, result.Score, tt.expectedScore)
			}
			if len(tt.expectFactors) == 0 && len(result.Factors) != 0 {
				t.Errorf("Evaluate(%q) factors = %v, want none", tt.query, result.Factors)
			}
		})
	}
}

func TestEvaluator_FactorsFireInStableOrder(t *testing.T) {
	e := NewEvaluator()

	query := strings.TrimSpace(strings.Repeat("considerable ", 120))
	result, err := e.Evaluate(query)
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}

	want := []string{FactorHighVocabulary, FactorComplexGrammar, FactorLongQuery}
	if len(result.Factors) != len(want) {
		t.Fatalf("factors = %v, want %v", result.Factors, want)
	}
	for i, f := range want {
		if result.Factors[i] != f {
			t.Errorf("factor[%d] = %q, want %q", i, result.Factors[i], f)
		}
	}
	if result.Score < 0 || result.Score > 1 {
		t.Errorf("score %v out of [0,1]", result.Score)
	}
}

func TestEvaluator_Deterministic(t *testing.T) {
	e := NewEvaluator()
	query := "Explain the fundamental principles of quantum mechanics. Include examples!"

	first, err := e.Evaluate(query)
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := e.Evaluate(query)
		if err != nil {
			t.Fatalf("Evaluate returned error: %v", err)
		}
		if again.Score != first.Score {
			t.Fatalf("score changed between calls: %v vs %v", again.Score, first.Score)
		}
	}
}

func TestEvaluator_ScoreClamped(t *testing.T) {
	e := NewEvaluator()

	// Many long words in one run-on sentence push both components to 1.
	query := strings.TrimSpace(strings.Repeat("incomprehensibilities ", 200))
	result, err := e.Evaluate(query)
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	if result.Score > 1 {
		t.Errorf("score %v exceeds 1", result.Score)
	}
}

func TestEvaluator_FeatureSelector(t *testing.T) {
	e := NewEvaluator()

	if _, err := e.EvaluateWithFeatures("some query", []string{"nonsense"}); err == nil {
		t.Fatal("expected error for unknown feature")
	}

	// Vocabulary-only scoring drops the grammar term.
	result, err := e.EvaluateWithFeatures("short words here", []string{FeatureVocabulary})
	if err != nil {
		t.Fatalf("EvaluateWithFeatures returned error: %v", err)
	}
	full, _ := e.Evaluate("short words here")
	if result.Score == full.Score {
		t.Errorf("vocabulary-only score %v should differ from full score %v", result.Score, full.Score)
	}
}
