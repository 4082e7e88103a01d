package query

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyExpression indicates an empty where clause.
	ErrEmptyExpression = errors.New("query: expression must not be empty")
	// ErrNotBoolean indicates a where clause that did not produce a bool.
	ErrNotBoolean = errors.New("query: where expression must return a boolean")
	// ErrInvalidParam indicates a reserved parameter with the wrong type.
	ErrInvalidParam = errors.New("query: invalid parameter")
	// ErrNoEvaluator indicates the requested engine is not compiled in.
	ErrNoEvaluator = errors.New("query: evaluator not available")
)

// EvaluationError carries the engine and expression that failed.
type EvaluationError struct {
	Engine string
	Expr   string
	Err    error
}

func (e *EvaluationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	expr := "expr=<empty>"
	if e.Expr != "" {
		expr = fmt.Sprintf("expr=%q", e.Expr)
	}
	return fmt.Sprintf("query: %s evaluator %s: %v", e.Engine, expr, e.Err)
}

func (e *EvaluationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func wrapEvaluationError(engine, expr string, err error) error {
	if err == nil {
		return nil
	}
	var evalErr *EvaluationError
	if errors.As(err, &evalErr) {
		if evalErr.Engine == "" {
			evalErr.Engine = engine
		}
		if evalErr.Expr == "" {
			evalErr.Expr = expr
		}
		return evalErr
	}
	return &EvaluationError{Engine: engine, Expr: expr, Err: err}
}
