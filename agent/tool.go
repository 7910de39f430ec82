package agent

import "context"

// Tool is one named capability the loop's S4 Act step may invoke. Input is
// the plan action's (possibly redacted) arguments; metadata is the run's
// caller-supplied metadata.
type Tool interface {
	Name() string
	// CacheTTLSec declares how long a successful result may be cached.
	// <= 0 opts the tool out of caching entirely.
	CacheTTLSec() int
	Invoke(ctx context.Context, input map[string]any, metadata map[string]any) (any, error)
}

// FuncTool adapts a plain function into a Tool.
type FuncTool struct {
	ToolName string
	TTLSec   int
	Fn       func(ctx context.Context, input map[string]any, metadata map[string]any) (any, error)
}

func (t FuncTool) Name() string        { return t.ToolName }
func (t FuncTool) CacheTTLSec() int     { return t.TTLSec }
func (t FuncTool) Invoke(ctx context.Context, input map[string]any, metadata map[string]any) (any, error) {
	return t.Fn(ctx, input, metadata)
}
