// Package agent implements the tool-using agent run loop: a bounded
// plan/act state machine wiring a planner, memory manager, tool policy,
// quota limiter, tool cache, and tool registry together, publishing a
// tagged event at every transition.
package agent

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/featherlabs/feather/events"
	"github.com/featherlabs/feather/llm"
	"github.com/featherlabs/feather/memory"
	"github.com/featherlabs/feather/planner"
	"github.com/featherlabs/feather/policy"
	"github.com/featherlabs/feather/quota"
	"github.com/featherlabs/feather/toolcache"
	"github.com/featherlabs/feather/toolerrors"
)

// Options configures one Loop.Run invocation.
type Options struct {
	MaxIterations     int
	MaxActionsPerPlan int
	// MaxTurns bounds how many turns memory retains for this session; 0
	// means unlimited, matching memory.Manager.Append's convention.
	MaxTurns int
	Context  memory.ContextOptions
	Metadata map[string]any
	// ShouldStop, if set, is consulted after each plan; a truthy return
	// synthesizes a final message from its second return value.
	ShouldStop func(iteration int) (stop bool, message string)
	// LoopDetect enables the repeated-plan check in S2.
	LoopDetect bool
}

func (o Options) withDefaults() Options {
	if o.MaxIterations <= 0 {
		o.MaxIterations = 25
	}
	if o.MaxActionsPerPlan <= 0 {
		o.MaxActionsPerPlan = 8
	}
	return o
}

// ToolResult is one action's outcome within a Step.
type ToolResult struct {
	Tool       string
	CacheHit   bool
	Result     any
	Err        error
	DurationMs int64
}

// Step is one S1-S5 iteration's trace.
type Step struct {
	Iteration int
	Actions   []planner.Action
	Results   []ToolResult
	Status    string // "continue", "final", "error"
}

// Result is a completed run's outcome.
type Result struct {
	Output     string
	Iterations int
	Steps      []Step
}

// Loop wires a planner, memory manager, policy, quota limiter, tool cache,
// and tool registry into the agent run state machine.
type Loop struct {
	AgentID      string
	Memory       memory.Manager
	Plan         planner.Planner
	Policy       *policy.Policy
	QuotaLimiter quota.Limiter
	QuotaRules   []quota.Rule
	ToolCache    *toolcache.ToolCache
	Tools        map[string]Tool
	Bus          *events.Bus
}

func (l *Loop) publish(typ events.Type, sessionID string, fields map[string]any) {
	if l.Bus == nil {
		return
	}
	l.Bus.Publish(events.New(typ, sessionID, l.AgentID, fields))
}

// Run executes one agent run for sessionID/input through to completion or
// failure, implementing the S0-S7 state machine.
func (l *Loop) Run(ctx context.Context, sessionID, input string, opts Options) (result Result, runErr error) {
	opts = opts.withDefaults()
	var steps []Step

	defer func() {
		if runErr != nil {
			ae := wrapUnexpected(runErr)
			runErr = ae
			l.publish(events.TypeRunError, sessionID, map[string]any{"kind": string(ae.Kind), "message": ae.Message})
		}
	}()

	// S0 Init
	if sessionID == "" {
		return Result{}, newError(KindAborted, "sessionId must not be empty")
	}
	if strings.TrimSpace(input) == "" {
		return Result{}, newError(KindAborted, "input must not be empty")
	}
	if l.Memory == nil || l.Plan == nil {
		return Result{}, newError(KindUnexpectedError, "loop requires a memory manager and a planner")
	}

	if err := l.Memory.Append(ctx, sessionID, memory.Turn{Role: llm.RoleUser, Content: input}, opts.MaxTurns); err != nil {
		return Result{}, wrapUnexpected(err)
	}
	l.publish(events.TypeRunStart, sessionID, map[string]any{"input": input})

	var prevFingerprint string
	iteration := 0

	for {
		step, status, final, err := l.step(ctx, sessionID, input, iteration, opts, &prevFingerprint)
		switch {
		case err != nil:
			step.Status = "error"
		case status == stepFinal:
			step.Status = "final"
		default:
			step.Status = "continue"
		}
		steps = append(steps, step)
		if err != nil {
			return Result{Steps: steps, Iterations: iteration}, err
		}
		if status == stepFinal {
			l.publish(events.TypeStepDone, sessionID, map[string]any{"iteration": iteration, "status": "final"})
			if err := l.Memory.Append(ctx, sessionID, memory.Turn{Role: llm.RoleAssistant, Content: final}, opts.MaxTurns); err != nil {
				return Result{Steps: steps, Iterations: iteration}, wrapUnexpected(err)
			}
			l.publish(events.TypeRunComplete, sessionID, map[string]any{"iterations": iteration + 1, "output": final})
			return Result{Output: final, Iterations: iteration + 1, Steps: steps}, nil
		}

		l.publish(events.TypeStepDone, sessionID, map[string]any{"iteration": iteration, "status": "continue"})
		iteration++
	}
}

type stepStatus int

const (
	stepContinue stepStatus = iota
	stepFinal
)

// step runs one S1-S5 iteration, returning its trace, whether it produced a
// final answer, the final text (if any), and any terminal loop error.
func (l *Loop) step(ctx context.Context, sessionID, input string, iteration int, opts Options, prevFingerprint *string) (Step, stepStatus, string, error) {
	trace := Step{Iteration: iteration}

	// S1 Step
	if iteration >= opts.MaxIterations {
		return trace, stepContinue, "", newError(KindMaxIterationsExceed, "max iterations exceeded")
	}
	if err := ctx.Err(); err != nil {
		return trace, stepContinue, "", newError(KindAborted, "context canceled")
	}

	turns, err := l.Memory.GetContext(ctx, sessionID, opts.Context)
	if err != nil {
		return trace, stepContinue, "", wrapUnexpected(err)
	}
	l.publish(events.TypeStepStart, sessionID, map[string]any{"iteration": iteration, "turns": len(turns)})

	// S2 Plan
	plan, err := l.Plan(ctx, planner.PlanRequest{
		SessionID: sessionID,
		Input:     input,
		Context:   turns,
		Metadata:  opts.Metadata,
		Iteration: iteration,
	})
	if err != nil {
		return trace, stepContinue, "", wrapUnexpected(err)
	}
	if err := planner.Validate(plan); err != nil {
		return trace, stepContinue, "", wrapUnexpected(err)
	}
	l.publish(events.TypePlan, sessionID, map[string]any{"iteration": iteration, "isFinal": plan.IsFinal, "actions": len(plan.Actions)})

	if plan.IsFinal {
		return trace, stepFinal, plan.Final, nil
	}
	if len(plan.Actions) == 0 {
		return trace, stepContinue, "", newError(KindPlanEmptyActions, "plan carried no actions")
	}
	if len(plan.Actions) > opts.MaxActionsPerPlan {
		return trace, stepContinue, "", newError(KindMaxActionsExceeded, "plan exceeded max actions per step")
	}

	if opts.LoopDetect {
		fp, err := fingerprintActions(plan.Actions)
		if err == nil {
			if *prevFingerprint != "" && fp == *prevFingerprint {
				return trace, stepFinal, "repeated the same plan", nil
			}
			*prevFingerprint = fp
		}
	}

	// S3 Stop hook
	if opts.ShouldStop != nil {
		if stop, message := opts.ShouldStop(iteration); stop {
			if message == "" {
				message = "stopped by caller"
			}
			return trace, stepFinal, message, nil
		}
	}

	// S4 Act
	trace.Actions = plan.Actions
	for _, action := range plan.Actions {
		res, err := l.act(ctx, sessionID, action, opts.Metadata, opts.MaxTurns)
		trace.Results = append(trace.Results, res)
		if err != nil {
			return trace, stepContinue, "", err
		}
	}

	return trace, stepContinue, "", nil
}

// act runs one action through Policy.BeforeTool, quota, tool cache, the
// tool itself, and Policy.AfterTool, matching spec S4's seven sub-steps.
func (l *Loop) act(ctx context.Context, sessionID string, action planner.Action, metadata map[string]any, maxTurns int) (ToolResult, error) {
	res := ToolResult{Tool: action.Tool}

	// 1. Policy.beforeTool
	input := action.Args
	if l.Policy != nil {
		before, err := l.Policy.BeforeTool(ctx, action)
		if err != nil {
			l.publish(events.TypeToolBlocked, sessionID, map[string]any{
				"tool": action.Tool, "input": policy.SanitizeBlocked(action), "error": err.Error(),
			})
			return res, blockedError(err)
		}
		input = before.Input
	}

	tool, ok := l.Tools[action.Tool]
	if !ok {
		l.publish(events.TypeToolBlocked, sessionID, map[string]any{"tool": action.Tool, "input": policy.SanitizeBlocked(action)})
		return res, newError(KindUnknownTool, "unknown tool: "+action.Tool)
	}

	// 2. Quota.consume
	for _, rule := range l.QuotaRules {
		if l.QuotaLimiter == nil {
			continue
		}
		err := l.QuotaLimiter.Consume(ctx, rule, quota.Request{SessionID: sessionID, Metadata: metadata, Tool: action.Tool})
		if err != nil {
			l.publish(events.TypeQuotaBlocked, sessionID, map[string]any{"tool": action.Tool, "rule": rule.Name})
			return res, newError(KindQuotaExceeded, "quota exceeded: "+rule.Name)
		}
	}

	// 3. Tool cache probe
	var decision toolcache.Decision
	if l.ToolCache != nil && tool.CacheTTLSec() > 0 {
		decision = l.ToolCache.Prepare(action.Tool, input, tool.CacheTTLSec())
	}

	start := time.Now()
	var result any
	var callErr error
	l.publish(events.TypeToolStart, sessionID, map[string]any{"tool": action.Tool, "cached": decision.Hit})
	if decision.Hit {
		result = decision.Value
		res.CacheHit = true
	} else {
		result, callErr = tool.Invoke(ctx, input, metadata)
		if callErr != nil {
			l.publish(events.TypeToolError, sessionID, map[string]any{"tool": action.Tool, "error": callErr.Error()})
			cause := toolerrors.NewWithCause("tool execution failed: "+action.Tool, callErr)
			return res, newErrorWithCause(KindToolExecutionFailed, "tool execution failed: "+action.Tool, cause)
		}
	}
	res.DurationMs = time.Since(start).Milliseconds()

	// 5. Policy.afterTool
	audit := result
	if l.Policy != nil {
		after := l.Policy.AfterTool(ctx, action.Tool, result, callErr)
		audit = after.Result
	}

	// 6. Cache write on miss
	if l.ToolCache != nil && decision.Cacheable && !decision.Hit {
		l.ToolCache.Write(decision, audit, tool.CacheTTLSec())
	}

	res.Result = audit
	l.publish(events.TypeToolEnd, sessionID, map[string]any{
		"tool": action.Tool, "cached": res.CacheHit, "durationMs": res.DurationMs,
	})

	if err := l.Memory.Append(ctx, sessionID, memory.Turn{Role: llm.RoleTool, Content: toContentString(audit)}, maxTurns); err != nil {
		return res, wrapUnexpected(err)
	}

	return res, nil
}

// blockedError maps a Policy error to the matching closed AgentError kind.
func blockedError(err error) error {
	switch err.(type) {
	case *policy.ToolNotAllowedError:
		return newError(KindToolNotAllowed, err.Error())
	default:
		return newError(KindToolValidationFailed, err.Error())
	}
}

// fingerprintActions hashes a plan's tool sequence plus each action's
// stable-JSON input, so S2's repeated-plan check can compare iterations by
// structural equality rather than pointer/slice identity.
func fingerprintActions(actions []planner.Action) (string, error) {
	h := sha256.New()
	for _, a := range actions {
		key, err := toolcache.Key(a.Tool, a.Args)
		if err != nil {
			return "", err
		}
		h.Write([]byte(key))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// toContentString renders a tool result as memory-turn content: strings
// pass through, everything else is rendered as JSON (falling back to
// fmt.Sprint on a marshal error, which should only happen for
// non-JSON-able values a tool should not have produced).
func toContentString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
