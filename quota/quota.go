// Package quota enforces fixed-window request counters by
// (session/user/global, optional tool) key.
package quota

import (
	"context"
	"errors"
	"fmt"
)

// ErrQuotaExceeded is returned when a Consume call would exceed the rule's
// limit.
var ErrQuotaExceeded = errors.New("quota: exceeded")

// Scope names what a rule's key is derived from.
type Scope string

const (
	ScopeSession Scope = "session"
	ScopeUser    Scope = "user"
	ScopeGlobal  Scope = "global"
)

// Rule configures one quota: a maximum count within a window, scoped to a
// session, user, or the whole process.
type Rule struct {
	Name        string
	Scope       Scope
	Limit       int
	WindowMs    int64
	MetadataKey string // defaults to "userId" for ScopeUser
	IncludeTool bool
}

// Request is the input to Consume.
type Request struct {
	SessionID string
	Metadata  map[string]any
	Tool      string
}

// Limiter consumes one unit against a rule's counter, returning
// ErrQuotaExceeded once the rule's limit is hit within its window.
type Limiter interface {
	Consume(ctx context.Context, rule Rule, req Request) error
}

// Key derives the counter key for rule/req per spec: session -> sessionId;
// user -> metadata[metadataKey ?? "userId"], dropped if absent/blank;
// global -> the literal "global"; if includeTool and tool is set, append
// ":<tool>".
func Key(rule Rule, req Request) (string, bool) {
	var base string
	switch rule.Scope {
	case ScopeSession:
		base = req.SessionID
	case ScopeUser:
		metaKey := rule.MetadataKey
		if metaKey == "" {
			metaKey = "userId"
		}
		v, ok := req.Metadata[metaKey]
		if !ok {
			return "", false
		}
		s, ok := v.(string)
		if !ok || s == "" {
			return "", false
		}
		base = s
	case ScopeGlobal:
		base = "global"
	default:
		return "", false
	}
	if rule.IncludeTool && req.Tool != "" {
		base = fmt.Sprintf("%s:%s", base, req.Tool)
	}
	return fmt.Sprintf("%s:%s", rule.Name, base), true
}
