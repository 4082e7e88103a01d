//go:build js_eval

package query

import "testing"

func TestJSEvaluatorMatches(t *testing.T) {
	evaluator, err := NewEvaluator(EngineJS, NewMapCache(), DefaultFunctions())
	if err != nil {
		t.Fatalf("evaluator: %v", err)
	}
	m := NewMatcher(WithEvaluator(EngineJS, evaluator))
	ok, err := m.Match(Criteria{Where: `score > 2 && upper(status) === "OPEN"`}, map[string]any{"status": "open", "score": 3})
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if !ok {
		t.Fatalf("expected js match")
	}
}
