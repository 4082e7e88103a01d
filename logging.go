package records

import (
	"context"
	"log/slog"
	"time"
)

// TransitionEvent describes a state change applied to a record.
type TransitionEvent struct {
	Type       string
	Key        any
	Field      string
	Transition string
	State      State
}

// OperationEvent describes one collaborator call made on behalf of a record
// or record type.
type OperationEvent struct {
	Op       string
	Type     string
	Key      any
	Duration time.Duration
	Err      error
}

// Logger records state transitions and collaborator calls.
type Logger interface {
	LogTransition(TransitionEvent)
	LogOperation(OperationEvent)
}

// LoggerFuncs adapts plain functions to Logger. Nil functions are skipped.
type LoggerFuncs struct {
	Transition func(TransitionEvent)
	Operation  func(OperationEvent)
}

// LogTransition implements Logger.
func (f LoggerFuncs) LogTransition(event TransitionEvent) {
	if f.Transition != nil {
		f.Transition(event)
	}
}

// LogOperation implements Logger.
func (f LoggerFuncs) LogOperation(event OperationEvent) {
	if f.Operation != nil {
		f.Operation(event)
	}
}

type noopLogger struct{}

func (noopLogger) LogTransition(TransitionEvent) {}
func (noopLogger) LogOperation(OperationEvent)   {}

// SlogLogger writes transitions at debug level and operations at debug or
// error level depending on the outcome.
func SlogLogger(logger *slog.Logger) Logger {
	if logger == nil {
		return noopLogger{}
	}
	return slogLogger{logger: logger}
}

type slogLogger struct {
	logger *slog.Logger
}

func (l slogLogger) LogTransition(event TransitionEvent) {
	l.logger.Debug("records: transition",
		"type", event.Type,
		"key", event.Key,
		"field", event.Field,
		"transition", event.Transition,
		"state", event.State.String(),
	)
}

func (l slogLogger) LogOperation(event OperationEvent) {
	level := slog.LevelDebug
	attrs := []any{
		"op", event.Op,
		"type", event.Type,
		"key", event.Key,
		"duration", event.Duration,
	}
	if event.Err != nil {
		level = slog.LevelError
		attrs = append(attrs, "error", event.Err)
	}
	l.logger.Log(context.Background(), level, "records: operation", attrs...)
}
