package provideradapter

import (
	"context"
	"errors"
	"testing"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/featherlabs/feather/llm"
)

type stubOpenAIChatCompletions struct {
	lastParams oai.ChatCompletionNewParams
	resp       *oai.ChatCompletion
	err        error
}

func (s *stubOpenAIChatCompletions) New(_ context.Context, body oai.ChatCompletionNewParams, _ ...option.RequestOption) (*oai.ChatCompletion, error) {
	s.lastParams = body
	return s.resp, s.err
}

func TestOpenAI_ChatTranslatesRolesAndUsage(t *testing.T) {
	stub := &stubOpenAIChatCompletions{resp: &oai.ChatCompletion{
		Choices: []oai.ChatCompletionChoice{
			{Message: oai.ChatCompletionMessage{Content: "hi there"}},
		},
		Usage: oai.CompletionUsage{PromptTokens: 10, CompletionTokens: 5},
	}}
	o := NewOpenAI("openai", stub)

	resp, err := o.Chat(context.Background(), llm.ChatRequest{
		Model: "gpt-4o",
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "be terse"},
			{Role: llm.RoleUser, Content: "hi"},
			{Role: llm.RoleAssistant, Content: "prior reply"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "hi there", resp.Content)
	assert.Equal(t, 10, resp.Usage.InputTokens)
	assert.Equal(t, 5, resp.Usage.OutputTokens)
	require.Len(t, stub.lastParams.Messages, 3)
}

func TestOpenAI_RequiresAtLeastOneUserAssistantOrToolMessage(t *testing.T) {
	o := NewOpenAI("openai", &stubOpenAIChatCompletions{})
	_, err := o.Chat(context.Background(), llm.ChatRequest{
		Model:    "gpt-4o",
		Messages: []llm.Message{{Role: llm.RoleSystem, Content: "only system"}},
	})
	require.Error(t, err)
}

func TestOpenAI_NoChoicesIsAnError(t *testing.T) {
	o := NewOpenAI("openai", &stubOpenAIChatCompletions{resp: &oai.ChatCompletion{}})
	_, err := o.Chat(context.Background(), llm.ChatRequest{
		Model:    "gpt-4o",
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	require.Error(t, err)
}

func TestOpenAI_WrapsSDKErrorInCallError(t *testing.T) {
	boom := errors.New("rate limited")
	o := NewOpenAI("openai", &stubOpenAIChatCompletions{err: boom})
	_, err := o.Chat(context.Background(), llm.ChatRequest{
		Model:    "gpt-4o",
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	var ce *CallError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "openai", ce.Provider)
	assert.ErrorIs(t, ce, boom)
}
