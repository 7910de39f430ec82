package provideradapter

import (
	"context"
	"errors"
	"fmt"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/featherlabs/feather/llm"
)

// OpenAIChatCompletions is the subset of the OpenAI SDK the adapter needs;
// satisfied by the real client's Chat.Completions service.
type OpenAIChatCompletions interface {
	New(ctx context.Context, body oai.ChatCompletionNewParams, opts ...option.RequestOption) (*oai.ChatCompletion, error)
}

// OpenAI adapts the Chat Completions API (and any OpenAI-compatible
// endpoint reached via a custom base URL — DeepSeek, Groq, etc.) to
// dispatcher.Backend.
type OpenAI struct {
	key  string
	chat OpenAIChatCompletions
}

// NewOpenAI builds an OpenAI-backed Backend keyed by key.
func NewOpenAI(key string, chat OpenAIChatCompletions) *OpenAI {
	return &OpenAI{key: key, chat: chat}
}

// NewOpenAICompatible constructs an adapter against apiKey/baseURL (baseURL
// empty selects the real OpenAI endpoint).
func NewOpenAICompatible(key, apiKey, baseURL string) *OpenAI {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := oai.NewClient(opts...)
	return NewOpenAI(key, client.Chat.Completions)
}

func (o *OpenAI) Key() string { return o.key }

func (o *OpenAI) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	if err := req.Validate(); err != nil {
		return llm.ChatResponse{}, err
	}

	var msgs []oai.ChatCompletionMessageParamUnion
	turns := 0
	for _, m := range req.Messages {
		switch m.Role {
		case llm.RoleSystem, llm.RoleSummary:
			msgs = append(msgs, oai.SystemMessage(m.Content))
		case llm.RoleUser:
			msgs = append(msgs, oai.UserMessage(m.Content))
			turns++
		case llm.RoleAssistant:
			msgs = append(msgs, oai.AssistantMessage(m.Content))
			turns++
		case llm.RoleTool:
			msgs = append(msgs, oai.UserMessage(fmt.Sprintf("[tool:%s] %v", m.ToolName, m.ToolValue)))
			turns++
		}
	}
	if turns == 0 {
		return llm.ChatResponse{}, errors.New("provideradapter: at least one user/assistant/tool message is required")
	}

	params := oai.ChatCompletionNewParams{
		Model:    oai.ChatModel(req.Model),
		Messages: msgs,
	}
	if req.HasTemperature {
		params.Temperature = oai.Float(req.Temperature)
	}
	if req.HasTopP {
		params.TopP = oai.Float(req.TopP)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = oai.Int(int64(req.MaxTokens))
	}

	resp, err := o.chat.New(ctx, params)
	if err != nil {
		return llm.ChatResponse{}, &CallError{Provider: "openai", Cause: err}
	}
	if len(resp.Choices) == 0 {
		return llm.ChatResponse{}, fmt.Errorf("provideradapter: openai response carried no choices")
	}

	return llm.ChatResponse{
		Content: resp.Choices[0].Message.Content,
		Raw:     resp,
		Usage: llm.TokenUsage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
		},
	}, nil
}
