package hydrate

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Context identifies the record type a payload belongs to.
type Context struct {
	Type     string
	Resource string
}

// Hook rewrites a payload. Returning a nil map keeps the current payload.
type Hook func(Context, map[string]any) (map[string]any, error)

// Pipeline runs hooks over a detached copy of a payload.
type Pipeline struct {
	hooks []Hook
}

// NewPipeline returns a pipeline running hooks in order. Nil hooks are
// skipped.
func NewPipeline(hooks ...Hook) *Pipeline {
	p := &Pipeline{}
	for _, hook := range hooks {
		p.Append(hook)
	}
	return p
}

// Append adds hook to the end of the pipeline.
func (p *Pipeline) Append(hook Hook) {
	if hook != nil {
		p.hooks = append(p.hooks, hook)
	}
}

// Len returns the number of hooks.
func (p *Pipeline) Len() int {
	if p == nil {
		return 0
	}
	return len(p.hooks)
}

// Run applies every hook. The caller's map is never modified; when hooks are
// present they receive a JSON round-tripped copy with numbers kept as
// json.Number.
func (p *Pipeline) Run(ctx Context, payload map[string]any) (map[string]any, error) {
	if payload == nil {
		return nil, fmt.Errorf("hydrate: payload is nil for %q", ctx.Type)
	}
	if p.Len() == 0 {
		return payload, nil
	}
	current, err := clonePayload(payload)
	if err != nil {
		return nil, fmt.Errorf("hydrate: clone payload for %q: %w", ctx.Type, err)
	}
	for _, hook := range p.hooks {
		next, err := hook(ctx, current)
		if err != nil {
			return nil, fmt.Errorf("hydrate: hook for %q failed: %w", ctx.Type, err)
		}
		if next != nil {
			current = next
		}
	}
	return current, nil
}

func clonePayload(payload map[string]any) (map[string]any, error) {
	buffer, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	decoder := json.NewDecoder(bytes.NewReader(buffer))
	decoder.UseNumber()
	var out map[string]any
	if err := decoder.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}
