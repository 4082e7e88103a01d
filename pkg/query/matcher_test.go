package query

import (
	"errors"
	"testing"
)

func TestParseSplitsReservedKeys(t *testing.T) {
	c, err := Parse(map[string]any{
		"status": "open",
		"where":  " score > 3 ",
		"limit":  2,
		"offset": "1",
	})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Where != "score > 3" || c.Limit != 2 || c.Offset != 1 {
		t.Fatalf("unexpected criteria: %+v", c)
	}
	if len(c.Equal) != 1 || c.Equal["status"] != "open" {
		t.Fatalf("unexpected equality filters: %+v", c.Equal)
	}
}

func TestParseRejectsInvalidReservedValues(t *testing.T) {
	for _, params := range []map[string]any{
		{"where": 10},
		{"limit": -1},
		{"offset": 1.5},
		{"limit": "many"},
	} {
		if _, err := Parse(params); !errors.Is(err, ErrInvalidParam) {
			t.Fatalf("expected ErrInvalidParam for %v, got %v", params, err)
		}
	}
}

func TestEqualComparesAcrossNumericTypes(t *testing.T) {
	cases := []struct {
		a, b any
		want bool
	}{
		{5, float64(5), true},
		{int64(5), uint8(5), true},
		{"5", 5, true},
		{true, "true", false},
		{nil, nil, true},
		{nil, 0, false},
		{[]any{"a"}, []any{"a"}, true},
	}
	for _, tc := range cases {
		if got := Equal(tc.a, tc.b); got != tc.want {
			t.Fatalf("Equal(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestMatcherFiltersWithWhereAndWindow(t *testing.T) {
	docs := []map[string]any{
		{"id": 1, "status": "open", "score": 5},
		{"id": 2, "status": "open", "score": 1},
		{"id": 3, "status": "open", "score": 9},
		{"id": 4, "status": "closed", "score": 9},
	}
	c, err := Parse(map[string]any{"status": "open", "where": "score > 3", "limit": 1, "offset": 1})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	var events []EvaluationEvent
	m := NewMatcher(WithLogger(LoggerFunc(func(e EvaluationEvent) { events = append(events, e) })))
	got, err := m.Filter(c, docs)
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	if len(got) != 1 || got[0]["id"] != 3 {
		t.Fatalf("expected only record 3, got %v", got)
	}
	if len(events) != 3 {
		t.Fatalf("expected where evaluated for the 3 open records, got %d", len(events))
	}
	if m.Engine() != EngineExpr {
		t.Fatalf("expected expr engine, got %s", m.Engine())
	}
}

func TestMatcherRejectsNonBooleanWhere(t *testing.T) {
	m := NewMatcher()
	_, err := m.Match(Criteria{Where: "score + 1"}, map[string]any{"score": 1})
	if !errors.Is(err, ErrNotBoolean) {
		t.Fatalf("expected ErrNotBoolean, got %v", err)
	}
	var evalErr *EvaluationError
	if !errors.As(err, &evalErr) || evalErr.Engine != EngineExpr {
		t.Fatalf("expected EvaluationError from expr, got %v", err)
	}
}

func TestMatcherUsesDefaultFunctions(t *testing.T) {
	m := NewMatcher()
	ok, err := m.Match(Criteria{Where: `lower(title) == "hello"`}, map[string]any{"title": "HeLLo"})
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if !ok {
		t.Fatalf("expected match through lower()")
	}
}

func TestCELEvaluatorMatches(t *testing.T) {
	cache := NewMapCache()
	evaluator, err := NewEvaluator(EngineCEL, cache, nil)
	if err != nil {
		t.Fatalf("evaluator: %v", err)
	}
	m := NewMatcher(WithEvaluator(EngineCEL, evaluator))
	ok, err := m.Match(Criteria{Where: `status == "open" && record["score"] > 2`}, map[string]any{"status": "open", "score": 3})
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if !ok {
		t.Fatalf("expected CEL match")
	}
	if cache.Len() != 1 {
		t.Fatalf("expected one cached program, got %d", cache.Len())
	}
}

func TestNewEvaluatorUnknownEngine(t *testing.T) {
	if _, err := NewEvaluator("lua", nil, nil); !errors.Is(err, ErrNoEvaluator) {
		t.Fatalf("expected ErrNoEvaluator, got %v", err)
	}
	if !JSAvailable() {
		if _, err := NewEvaluator(EngineJS, nil, nil); !errors.Is(err, ErrNoEvaluator) {
			t.Fatalf("expected ErrNoEvaluator without js_eval, got %v", err)
		}
	}
}

func TestExprCompiledProgramReused(t *testing.T) {
	cache := NewMapCache()
	evaluator := NewExprEvaluator(ExprWithProgramCache(cache))
	program, err := evaluator.Compile("a + b")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	for i, want := range []int{3, 7} {
		got, err := program.Evaluate(Env{Record: map[string]any{"a": i + 1, "b": want - i - 1}})
		if err != nil {
			t.Fatalf("evaluate: %v", err)
		}
		if got != want {
			t.Fatalf("expected %d, got %v", want, got)
		}
	}
	if _, err := evaluator.Evaluate(Env{}, ""); !errors.Is(err, ErrEmptyExpression) {
		t.Fatalf("expected ErrEmptyExpression, got %v", err)
	}
}

func TestFunctionRegistryRejectsDuplicates(t *testing.T) {
	registry := NewFunctionRegistry()
	fn := func(args ...any) (any, error) { return len(args), nil }
	if err := registry.Register("Count", fn); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := registry.Register("count", fn); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
	got, err := registry.Clone().Call("COUNT", 1, 2)
	if err != nil || got != 2 {
		t.Fatalf("unexpected call result %v %v", got, err)
	}
}
