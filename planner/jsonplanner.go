package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/featherlabs/feather/dispatcher"
	"github.com/featherlabs/feather/llm"
)

// ToolManifestEntry describes one tool available to the planner, rendered
// into the system prompt.
type ToolManifestEntry struct {
	Name        string
	Description string
}

// DefaultFallback is returned when the model's output cannot be parsed as a
// plan. The default fallback is a canned final message.
var DefaultFallback = PlanResult{IsFinal: true, Final: "couldn't determine next action"}

// JSONPlanner wraps a chat backend: it prepends a system prompt and tool
// manifest, invokes the model, extracts the first balanced {...} object from
// the reply, and parses it into a PlanResult.
type JSONPlanner struct {
	Backend      dispatcher.Backend
	Model        string
	SystemPrompt string
	Manifest     []ToolManifestEntry
	Fallback     PlanResult
}

// jsonPlan is the wire shape the model is expected to emit.
type jsonPlan struct {
	Actions []jsonAction `json:"actions"`
	Final   *string      `json:"final"`
}

type jsonAction struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args"`
}

// Plan implements the Planner function type's signature, so
// p.Plan can be passed anywhere a Planner is expected.
func (p *JSONPlanner) Plan(ctx context.Context, req PlanRequest) (PlanResult, error) {
	fallback := p.Fallback
	if fallback.Final == "" && len(fallback.Actions) == 0 {
		fallback = DefaultFallback
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: p.buildSystemPrompt()},
	}
	for _, t := range req.Context {
		messages = append(messages, llm.Message{Role: t.Role, Content: t.Content})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: req.Input})

	resp, err := p.Backend.Chat(ctx, llm.ChatRequest{Model: p.Model, Messages: messages})
	if err != nil {
		return PlanResult{}, err
	}

	raw, ok := extractBalancedObject(resp.Content)
	if !ok {
		return fallback, nil
	}

	var parsed jsonPlan
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return fallback, nil
	}

	result := PlanResult{}
	if parsed.Final != nil {
		result.IsFinal = true
		result.Final = *parsed.Final
	} else {
		for _, a := range parsed.Actions {
			result.Actions = append(result.Actions, Action{Tool: a.Tool, Args: a.Args})
		}
	}

	if err := Validate(result); err != nil {
		return fallback, nil
	}
	return result, nil
}

func (p *JSONPlanner) buildSystemPrompt() string {
	var b strings.Builder
	b.WriteString(p.SystemPrompt)
	if len(p.Manifest) > 0 {
		b.WriteString("\n\nAvailable tools:\n")
		for _, t := range p.Manifest {
			fmt.Fprintf(&b, "- %s: %s\n", t.Name, t.Description)
		}
	}
	b.WriteString("\nRespond with a single JSON object: either {\"actions\": [{\"tool\": ..., \"args\": {...}}, ...]} or {\"final\": \"...\"}.")
	return b.String()
}

// extractBalancedObject scans s for the first top-level balanced {...}
// span, tracking quote state and escapes so braces inside string literals
// don't affect the nesting count.
func extractBalancedObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
