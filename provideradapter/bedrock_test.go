package provideradapter

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/featherlabs/feather/llm"
)

type stubBedrockRuntime struct {
	lastInput *bedrockruntime.ConverseInput
	out       *bedrockruntime.ConverseOutput
	err       error
}

func (s *stubBedrockRuntime) Converse(_ context.Context, params *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	s.lastInput = params
	return s.out, s.err
}

func TestBedrock_ChatTranslatesRolesAndUsage(t *testing.T) {
	stub := &stubBedrockRuntime{out: &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{Value: brtypes.Message{
			Role:    brtypes.ConversationRoleAssistant,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: "hello"}},
		}},
		Usage: &brtypes.TokenUsage{InputTokens: aws.Int32(100), OutputTokens: aws.Int32(20)},
	}}
	b := NewBedrock("bedrock", stub)

	resp, err := b.Chat(context.Background(), llm.ChatRequest{
		Model: "anthropic.claude-3",
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "be terse"},
			{Role: llm.RoleUser, Content: "hi"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Content)
	assert.Equal(t, 100, resp.Usage.InputTokens)
	assert.Equal(t, 20, resp.Usage.OutputTokens)

	require.NotNil(t, stub.lastInput.ModelId)
	assert.Equal(t, "anthropic.claude-3", *stub.lastInput.ModelId)
	require.Len(t, stub.lastInput.System, 1)
	require.Len(t, stub.lastInput.Messages, 1)
	assert.Equal(t, brtypes.ConversationRoleUser, stub.lastInput.Messages[0].Role)
}

func TestBedrock_RequiresModelID(t *testing.T) {
	b := NewBedrock("bedrock", &stubBedrockRuntime{})
	_, err := b.Chat(context.Background(), llm.ChatRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	require.Error(t, err)
}

func TestBedrock_RequiresAtLeastOneUserOrAssistantMessage(t *testing.T) {
	b := NewBedrock("bedrock", &stubBedrockRuntime{})
	_, err := b.Chat(context.Background(), llm.ChatRequest{
		Model:    "anthropic.claude-3",
		Messages: []llm.Message{{Role: llm.RoleSystem, Content: "only system"}},
	})
	require.Error(t, err)
}

func TestBedrock_WrapsSDKErrorInCallError(t *testing.T) {
	boom := errors.New("throttled")
	b := NewBedrock("bedrock", &stubBedrockRuntime{err: boom})
	_, err := b.Chat(context.Background(), llm.ChatRequest{
		Model:    "anthropic.claude-3",
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	var ce *CallError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "bedrock", ce.Provider)
	assert.ErrorIs(t, ce, boom)
}

func TestBedrock_TranslateConverseOutputHandlesMissingUsage(t *testing.T) {
	out := &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{Value: brtypes.Message{
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: "ok"}},
		}},
	}
	content, usage := translateConverseOutput(out)
	assert.Equal(t, "ok", content)
	assert.Zero(t, usage.InputTokens)
	assert.Zero(t, usage.OutputTokens)
}
