package query

import "time"

// EvaluationEvent describes one where clause evaluation.
type EvaluationEvent struct {
	Engine   string
	Expr     string
	Duration time.Duration
	Matched  bool
	Err      error
}

// Logger records evaluation events.
type Logger interface {
	LogEvaluation(EvaluationEvent)
}

// LoggerFunc adapts a function to Logger.
type LoggerFunc func(EvaluationEvent)

// LogEvaluation implements Logger.
func (f LoggerFunc) LogEvaluation(event EvaluationEvent) {
	if f != nil {
		f(event)
	}
}

type noopLogger struct{}

func (noopLogger) LogEvaluation(EvaluationEvent) {}
