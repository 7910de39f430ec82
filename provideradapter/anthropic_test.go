package provideradapter

import (
	"context"
	"errors"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/featherlabs/feather/llm"
)

type stubAnthropicMessages struct {
	lastParams sdk.MessageNewParams
	resp       *sdk.Message
	err        error
}

func (s *stubAnthropicMessages) New(_ context.Context, body sdk.MessageNewParams, _ ...option.RequestOption) (*sdk.Message, error) {
	s.lastParams = body
	return s.resp, s.err
}

func TestAnthropic_ChatTranslatesRolesAndTranscribesText(t *testing.T) {
	stub := &stubAnthropicMessages{resp: &sdk.Message{
		Content: []sdk.ContentBlockUnion{{Type: "text", Text: "hello there"}},
		Usage:   sdk.Usage{InputTokens: 10, OutputTokens: 5},
	}}
	a := NewAnthropic("anthropic", stub)

	resp, err := a.Chat(context.Background(), llm.ChatRequest{
		Model:     "claude-3.5-sonnet",
		MaxTokens: 128,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "be terse"},
			{Role: llm.RoleUser, Content: "hi"},
			{Role: llm.RoleAssistant, Content: "hello"},
			{Role: llm.RoleTool, ToolName: "search", ToolValue: "result"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello there", resp.Content)
	assert.Equal(t, 10, resp.Usage.InputTokens)
	assert.Equal(t, 5, resp.Usage.OutputTokens)
	assert.Same(t, stub.resp, resp.Raw)

	require.Len(t, stub.lastParams.System, 1)
	assert.Equal(t, "be terse", stub.lastParams.System[0].Text)
	require.Len(t, stub.lastParams.Messages, 3)
}

func TestAnthropic_RequiresMaxTokens(t *testing.T) {
	a := NewAnthropic("anthropic", &stubAnthropicMessages{})
	_, err := a.Chat(context.Background(), llm.ChatRequest{
		Model:    "claude-3.5-sonnet",
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	require.Error(t, err)
}

func TestAnthropic_RequiresAtLeastOneUserOrAssistantMessage(t *testing.T) {
	a := NewAnthropic("anthropic", &stubAnthropicMessages{})
	_, err := a.Chat(context.Background(), llm.ChatRequest{
		Model:     "claude-3.5-sonnet",
		MaxTokens: 64,
		Messages:  []llm.Message{{Role: llm.RoleSystem, Content: "only system"}},
	})
	require.Error(t, err)
}

func TestAnthropic_WrapsSDKErrorInCallError(t *testing.T) {
	boom := errors.New("upstream exploded")
	a := NewAnthropic("anthropic", &stubAnthropicMessages{err: boom})
	_, err := a.Chat(context.Background(), llm.ChatRequest{
		Model:     "claude-3.5-sonnet",
		MaxTokens: 64,
		Messages:  []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	var ce *CallError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "anthropic", ce.Provider)
	assert.ErrorIs(t, ce, boom)
}
