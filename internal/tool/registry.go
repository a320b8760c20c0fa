package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Registry holds the set of tools available to a turn, each with its
// argument schema compiled once at registration time.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]registeredTool
}

type registeredTool struct {
	spec   Spec
	schema *jsonschema.Schema
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]registeredTool)}
}

// Register compiles spec's schema and adds it to the registry,
// replacing any existing tool with the same name.
func (r *Registry) Register(spec Spec) error {
	compiler := jsonschema.NewCompiler()
	var schema *jsonschema.Schema
	if len(spec.Schema) > 0 {
		var doc any
		if err := json.Unmarshal(spec.Schema, &doc); err != nil {
			return fmt.Errorf("tool: %s: parse schema: %w", spec.Name, err)
		}
		resourceName := spec.Name + ".schema.json"
		if err := compiler.AddResource(resourceName, doc); err != nil {
			return fmt.Errorf("tool: %s: add schema resource: %w", spec.Name, err)
		}
		compiled, err := compiler.Compile(resourceName)
		if err != nil {
			return fmt.Errorf("tool: %s: compile schema: %w", spec.Name, err)
		}
		schema = compiled
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[spec.Name] = registeredTool{spec: spec, schema: schema}
	return nil
}

// Names lists every registered tool name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

// Specs returns the Spec portion of every registered tool, e.g. for
// advertising to an LLM as its tool list.
func (r *Registry) Specs() []Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs := make([]Spec, 0, len(r.tools))
	for _, t := range r.tools {
		specs = append(specs, t.spec)
	}
	return specs
}

// Invoke validates args against the registered schema and, if that
// passes, runs the tool. An unknown tool name or a schema validation
// failure is reported as a Result with IsError=true rather than a Go
// error, matching every other policy violation (spec §4.4).
func (r *Registry) Invoke(ctx context.Context, name string, args json.RawMessage, policy Policy) (Result, error) {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return errorResult(fmt.Sprintf("unknown tool %q", name)), nil
	}

	if t.schema != nil {
		var doc any
		if len(args) == 0 {
			doc = map[string]any{}
		} else if err := json.Unmarshal(args, &doc); err != nil {
			return errorResult("arguments are not valid JSON"), nil
		}
		if err := t.schema.Validate(doc); err != nil {
			return errorResult(fmt.Sprintf("arguments do not match schema: %s", err)), nil
		}
	}

	return t.spec.Invoke(ctx, args, policy)
}
