package query

import (
	"fmt"
	"time"
)

// Engine names accepted by WithEngine.
const (
	EngineExpr = "expr"
	EngineCEL  = "cel"
	EngineJS   = "js"
)

// Option configures a Matcher.
type Option func(*Matcher)

// WithEvaluator replaces the default expr evaluator.
func WithEvaluator(engine string, evaluator Evaluator) Option {
	return func(m *Matcher) {
		if evaluator == nil {
			return
		}
		m.engine = engine
		m.evaluator = evaluator
	}
}

// WithProgramCache shares compiled programs between matches.
func WithProgramCache(cache ProgramCache) Option {
	return func(m *Matcher) {
		m.cache = cache
	}
}

// WithFunctionRegistry exposes helper functions to where clauses.
func WithFunctionRegistry(registry *FunctionRegistry) Option {
	return func(m *Matcher) {
		m.functions = registry
	}
}

// WithLogger records each where evaluation.
func WithLogger(logger Logger) Option {
	return func(m *Matcher) {
		if logger == nil {
			logger = noopLogger{}
		}
		m.logger = logger
	}
}

// Matcher applies Criteria to documents.
type Matcher struct {
	engine    string
	evaluator Evaluator
	cache     ProgramCache
	functions *FunctionRegistry
	logger    Logger
}

// NewMatcher builds a Matcher. Without WithEvaluator it evaluates where
// clauses with expr, a shared MapCache and DefaultFunctions.
func NewMatcher(opts ...Option) *Matcher {
	m := &Matcher{logger: noopLogger{}}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	if m.evaluator == nil {
		if m.cache == nil {
			m.cache = NewMapCache()
		}
		if m.functions == nil {
			m.functions = DefaultFunctions()
		}
		m.engine = EngineExpr
		m.evaluator = NewExprEvaluator(
			ExprWithProgramCache(m.cache),
			ExprWithFunctionRegistry(m.functions),
		)
	}
	return m
}

// NewEvaluator builds the evaluator for engine.
func NewEvaluator(engine string, cache ProgramCache, functions *FunctionRegistry) (Evaluator, error) {
	switch engine {
	case "", EngineExpr:
		return NewExprEvaluator(ExprWithProgramCache(cache), ExprWithFunctionRegistry(functions)), nil
	case EngineCEL:
		return NewCELEvaluator(CELWithProgramCache(cache), CELWithFunctionRegistry(functions)), nil
	case EngineJS:
		if evaluator := NewJSEvaluator(JSWithProgramCache(cache), JSWithFunctionRegistry(functions)); evaluator != nil {
			return evaluator, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrNoEvaluator, engine)
}

// Engine returns the name of the active evaluator.
func (m *Matcher) Engine() string { return m.engine }

// Match reports whether doc satisfies c. Equality filters are checked
// before the where clause runs.
func (m *Matcher) Match(c Criteria, doc map[string]any) (bool, error) {
	if !c.MatchEqual(doc) {
		return false, nil
	}
	if c.Where == "" {
		return true, nil
	}
	start := time.Now()
	result, err := m.evaluator.Evaluate(Env{Record: doc, Params: c.Equal}, c.Where)
	matched := false
	if err == nil {
		var ok bool
		matched, ok = result.(bool)
		if !ok {
			err = wrapEvaluationError(m.engine, c.Where, fmt.Errorf("%w: got %T", ErrNotBoolean, result))
		}
	}
	m.logger.LogEvaluation(EvaluationEvent{
		Engine:   m.engine,
		Expr:     c.Where,
		Duration: time.Since(start),
		Matched:  matched,
		Err:      err,
	})
	if err != nil {
		return false, err
	}
	return matched, nil
}

// Filter returns the documents of docs matching c, windowed by limit and
// offset.
func (m *Matcher) Filter(c Criteria, docs []map[string]any) ([]map[string]any, error) {
	var matched []map[string]any
	for _, doc := range docs {
		ok, err := m.Match(c, doc)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, doc)
		}
	}
	start, end := c.Window(len(matched))
	return matched[start:end], nil
}
