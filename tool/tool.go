// Package tool defines the interface the kernel uses to dispatch tool_call
// frames to host-side tool implementations, and a generic, type-safe
// registry for building one.
package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/invopop/jsonschema"
)

// Def describes one tool the interpreter may invoke mid-execution.
type Def struct {
	Name             string          `json:"name"`
	Description      string          `json:"description,omitempty"`
	Schema           json.RawMessage `json:"schema"`
	InjectIntoPrompt bool            `json:"inject_into_prompt,omitempty"`

	// Timeout, if non-zero, overrides the session's global tool_timeout
	// (kernel.WithToolTimeout) for invocations of this tool only. It is not
	// marshaled onto the wire: the interpreter never needs to know it.
	Timeout time.Duration `json:"-"`
}

// Result is the outcome of one tool invocation. Result is an opaque string:
// the kernel never parses it, only relays it back to the interpreter inside
// a tool_result frame.
type Result struct {
	Success bool
	Result  string
}

// Provider answers tool_call frames with Results. Execute must return
// (Result{}, err) only for host-side faults (e.g. the provider itself
// panicked or crashed); a tool that runs and fails on its own terms should
// return Result{Success: false, Result: "<reason>"}, nil so the interpreter
// sees a normal failed-tool response rather than a broker fault.
type Provider interface {
	Definitions() []Def
	Execute(ctx context.Context, name string, args json.RawMessage) (Result, error)
}

// Registry is a type-safe, generics-based Provider builder grounded on the
// same pattern as a typed MCP tool registry: each tool's argument struct
// drives both its JSON schema and its unmarshaling, eliminating hand-written
// argument parsing per tool.
type Registry struct {
	tools []registration
}

type registration struct {
	def    Def
	invoke func(context.Context, json.RawMessage) (Result, error)
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Option configures a single tool's Def at registration time.
type Option func(*Def)

// WithTimeout overrides the session's global tool_timeout for this tool only.
func WithTimeout(d time.Duration) Option {
	return func(def *Def) { def.Timeout = d }
}

// AddTool registers a type-safe tool handler. T should be a struct with json
// and jsonschema struct tags describing its arguments.
func AddTool[T any](r *Registry, name, description string, handler func(context.Context, T) (Result, error), opts ...Option) *Registry {
	schema := generateSchema[T]()

	invoke := func(ctx context.Context, args json.RawMessage) (Result, error) {
		var params T
		if len(args) > 0 {
			if err := json.Unmarshal(args, &params); err != nil {
				return Result{Success: false, Result: fmt.Sprintf("invalid arguments for tool %s: %v", name, err)}, nil
			}
		}
		return handler(ctx, params)
	}

	def := Def{
		Name:        name,
		Description: description,
		Schema:      schema,
	}
	for _, opt := range opts {
		opt(&def)
	}

	r.tools = append(r.tools, registration{
		def:    def,
		invoke: invoke,
	})
	return r
}

// Definitions implements Provider.
func (r *Registry) Definitions() []Def {
	defs := make([]Def, len(r.tools))
	for i, t := range r.tools {
		defs[i] = t.def
	}
	return defs
}

// Execute implements Provider.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage) (Result, error) {
	for _, t := range r.tools {
		if t.def.Name == name {
			return t.invoke(ctx, args)
		}
	}
	return Result{Success: false, Result: fmt.Sprintf("unknown tool: %s", name)}, nil
}

func generateSchema[T any]() json.RawMessage {
	reflector := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}

	var zero T
	schema := reflector.Reflect(zero)

	b, err := json.Marshal(schema)
	if err != nil {
		panic(fmt.Sprintf("failed to generate schema for type %T: %v", zero, err))
	}
	return b
}

var _ Provider = (*Registry)(nil)
