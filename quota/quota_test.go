package quota

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKey_Session(t *testing.T) {
	k, ok := Key(Rule{Name: "r", Scope: ScopeSession}, Request{SessionID: "s1"})
	assert.True(t, ok)
	assert.Equal(t, "r:s1", k)
}

func TestKey_UserDroppedWhenAbsent(t *testing.T) {
	_, ok := Key(Rule{Name: "r", Scope: ScopeUser}, Request{})
	assert.False(t, ok)
}

func TestKey_UserDroppedWhenBlank(t *testing.T) {
	_, ok := Key(Rule{Name: "r", Scope: ScopeUser}, Request{Metadata: map[string]any{"userId": ""}})
	assert.False(t, ok)
}

func TestKey_Global(t *testing.T) {
	k, ok := Key(Rule{Name: "r", Scope: ScopeGlobal}, Request{})
	assert.True(t, ok)
	assert.Equal(t, "r:global", k)
}

func TestKey_IncludeTool(t *testing.T) {
	k, ok := Key(Rule{Name: "r", Scope: ScopeGlobal, IncludeTool: true}, Request{Tool: "search"})
	assert.True(t, ok)
	assert.Equal(t, "r:global:search", k)
}
