package query

import "time"

// Env carries the values an expression can reference. Every key of Record is
// also exposed as a top-level variable.
type Env struct {
	Record map[string]any
	Params map[string]any
	Now    *time.Time
}

func (env Env) withDefaults() Env {
	if env.Now == nil {
		now := time.Now()
		env.Now = &now
	}
	if env.Record == nil {
		env.Record = map[string]any{}
	}
	if env.Params == nil {
		env.Params = map[string]any{}
	}
	return env
}

func (env Env) timestamp() time.Time {
	return *env.withDefaults().Now
}

// variables flattens env into the binding map shared by the evaluators.
func (env Env) variables() map[string]any {
	env = env.withDefaults()
	vars := make(map[string]any, len(env.Record)+3)
	for key, value := range env.Record {
		vars[key] = value
	}
	vars["record"] = env.Record
	vars["params"] = env.Params
	vars["now"] = *env.Now
	return vars
}

// Evaluator runs expressions against an Env.
type Evaluator interface {
	Evaluate(env Env, expr string) (any, error)
	Compile(expr string) (Program, error)
}

// Program is a compiled expression that can be run repeatedly.
type Program interface {
	Evaluate(env Env) (any, error)
}

// ProgramCache stores compiled programs keyed by expression.
type ProgramCache interface {
	Get(key string) (any, bool)
	Set(key string, value any)
}
