// Package events defines the typed lifecycle events published across the
// dispatcher and agent loop, and a synchronous bus that fans them out to
// subscribers without letting a misbehaving subscriber break the publisher.
package events

import "time"

// Type names an event kind. Kept as a plain string (rather than a closed
// enum) since sinks match on it by prefix (e.g. "agent.tool.").
type Type string

const (
	TypeCallStart   Type = "call.start"
	TypeCallSuccess Type = "call.success"
	TypeCallError   Type = "call.error"
	TypeCallRetry   Type = "call.retry"

	TypeBreakerOpen  Type = "breaker.open"
	TypeBreakerClose Type = "breaker.close"

	TypeRunStart    Type = "agent.run.start"
	TypeRunComplete Type = "agent.run.complete"
	TypeRunError    Type = "agent.run.error"

	TypeStepStart Type = "agent.step.start"
	TypeStepDone  Type = "agent.step.done"

	TypePlan Type = "agent.plan"

	TypeToolStart   Type = "agent.tool.start"
	TypeToolEnd     Type = "agent.tool.end"
	TypeToolError   Type = "agent.tool.error"
	TypeToolBlocked Type = "agent.tool.blocked"

	TypeQuotaBlocked Type = "agent.quota.blocked"

	TypeMemoryAppend    Type = "agent.memory.append"
	TypeMemorySummarize Type = "agent.memory.summarize"
	TypeMemoryTrim      Type = "agent.memory.trim"
)

// Event is a single published occurrence. Fields is a free-form payload
// whose shape depends on Type, matching spec §6's per-type field lists.
type Event struct {
	Type      Type
	SessionID string
	AgentID   string
	Timestamp time.Time
	Fields    map[string]any
}

// New constructs an Event, stamping Timestamp with now.
func New(typ Type, sessionID, agentID string, fields map[string]any) Event {
	if fields == nil {
		fields = map[string]any{}
	}
	return Event{
		Type:      typ,
		SessionID: sessionID,
		AgentID:   agentID,
		Timestamp: now(),
		Fields:    fields,
	}
}

// now is a seam so tests can pin the clock if ever needed; production code
// always uses the real wall clock.
var now = time.Now
