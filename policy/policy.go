// Package policy enforces the agent loop's tool allow-list, input schema
// validation, and input/output redaction before and after each tool call.
package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/featherlabs/feather/planner"
)

// ToolNotAllowedError reports an action naming a tool outside the allow
// list.
type ToolNotAllowedError struct {
	Tool string
}

func (e *ToolNotAllowedError) Error() string {
	return fmt.Sprintf("policy: tool %q is not allowed", e.Tool)
}

// ToolValidationFailedError reports a schema, custom-validate, or redaction
// failure.
type ToolValidationFailedError struct {
	Tool   string
	Reason string
}

func (e *ToolValidationFailedError) Error() string {
	return fmt.Sprintf("policy: tool %q validation failed: %s", e.Tool, e.Reason)
}

// ToolSpec describes one allow-listed tool's validation and redaction rules.
type ToolSpec struct {
	Name string
	// Schema is a raw JSON Schema document; nil skips schema validation.
	Schema []byte
	// Validate is an optional custom hook run after schema validation.
	Validate func(input map[string]any) error
	// RedactInput/RedactResult scrub values before they reach events/logs;
	// both default to identity when nil.
	RedactInput  func(input map[string]any) map[string]any
	RedactResult func(result any) any
	// Audit, if set, is invoked after a tool call completes (success or
	// failure) with the (possibly redacted) result.
	Audit func(ctx context.Context, tool string, result any, err error)
}

// BeforeToolResult is the outcome of a beforeTool check.
type BeforeToolResult struct {
	Action planner.Action
	Input  map[string]any
}

// AfterToolResult is the outcome of an afterTool pass.
type AfterToolResult struct {
	Result any
	Audit  any
}

// Policy enforces allow-listing, schema validation, and redaction around
// tool execution.
type Policy struct {
	mu      sync.Mutex
	tools   map[string]ToolSpec
	schemas map[string]*jsonschema.Schema
}

// New constructs a Policy from the given tool specs, keyed by name.
func New(specs []ToolSpec) *Policy {
	p := &Policy{
		tools:   make(map[string]ToolSpec, len(specs)),
		schemas: make(map[string]*jsonschema.Schema),
	}
	for _, s := range specs {
		p.tools[s.Name] = s
	}
	return p
}

func (p *Policy) schemaFor(spec ToolSpec) (*jsonschema.Schema, error) {
	if spec.Schema == nil {
		return nil, nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.schemas[spec.Name]; ok {
		return s, nil
	}
	compiler := jsonschema.NewCompiler()
	var doc any
	if err := json.Unmarshal(spec.Schema, &doc); err != nil {
		return nil, err
	}
	url := "mem://" + spec.Name + ".schema.json"
	if err := compiler.AddResource(url, doc); err != nil {
		return nil, err
	}
	compiled, err := compiler.Compile(url)
	if err != nil {
		return nil, err
	}
	p.schemas[spec.Name] = compiled
	return compiled, nil
}

// BeforeTool asserts allow-list membership, runs schema and custom
// validation, and redacts the action's input for downstream events.
func (p *Policy) BeforeTool(ctx context.Context, action planner.Action) (BeforeToolResult, error) {
	spec, ok := p.tools[action.Tool]
	if !ok {
		return BeforeToolResult{}, &ToolNotAllowedError{Tool: action.Tool}
	}

	schema, err := p.schemaFor(spec)
	if err != nil {
		return BeforeToolResult{}, &ToolValidationFailedError{Tool: action.Tool, Reason: err.Error()}
	}
	if schema != nil {
		if err := schema.Validate(toAny(action.Args)); err != nil {
			return BeforeToolResult{}, &ToolValidationFailedError{Tool: action.Tool, Reason: err.Error()}
		}
	}
	if spec.Validate != nil {
		if err := spec.Validate(action.Args); err != nil {
			return BeforeToolResult{}, &ToolValidationFailedError{Tool: action.Tool, Reason: err.Error()}
		}
	}

	input := action.Args
	if spec.RedactInput != nil {
		input = spec.RedactInput(input)
	}
	return BeforeToolResult{Action: action, Input: input}, nil
}

// AfterTool redacts result and runs the tool's audit hook, if any.
func (p *Policy) AfterTool(ctx context.Context, tool string, result any, callErr error) AfterToolResult {
	spec, ok := p.tools[tool]
	if !ok {
		return AfterToolResult{Result: result}
	}
	redacted := result
	if spec.RedactResult != nil {
		redacted = spec.RedactResult(result)
	}
	if spec.Audit != nil {
		spec.Audit(ctx, tool, redacted, callErr)
	}
	return AfterToolResult{Result: redacted}
}

// SanitizeBlocked replaces every value of a blocked action's input with the
// literal "undefined" marker (the keys are kept) before it is placed in
// events, so a validation failure never leaks the raw attempted values.
func SanitizeBlocked(action planner.Action) map[string]any {
	sanitized := make(map[string]any, len(action.Args))
	for k := range action.Args {
		sanitized[k] = "undefined"
	}
	return sanitized
}

func toAny(m map[string]any) any {
	// jsonschema validates against decoded JSON values (map[string]any,
	// []any, etc); m already satisfies that shape.
	return map[string]any(m)
}
