// Package provideradapter wraps each backing model SDK in a thin
// dispatcher.Backend: translate llm.ChatRequest to the provider's wire
// shape, call it, translate the response back, and surface rate limiting
// through the decoupling RateLimited() interface the adaptive rate limiter
// middleware checks for.
package provideradapter

import (
	"context"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/featherlabs/feather/llm"
)

// AnthropicMessages is the subset of the Anthropic SDK client the adapter
// needs, satisfied by *sdk.MessageService so tests can substitute a fake.
type AnthropicMessages interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Anthropic adapts Claude's Messages API to dispatcher.Backend.
type Anthropic struct {
	key         string
	msg         AnthropicMessages
	defaultTemp float64
}

// NewAnthropic builds an Anthropic-backed Backend keyed by key.
func NewAnthropic(key string, msg AnthropicMessages) *Anthropic {
	return &Anthropic{key: key, msg: msg}
}

// NewAnthropicFromAPIKey constructs an Anthropic adapter using the SDK's
// default HTTP client.
func NewAnthropicFromAPIKey(key, apiKey string) *Anthropic {
	client := sdk.NewClient(option.WithAPIKey(apiKey))
	return NewAnthropic(key, &client.Messages)
}

func (a *Anthropic) Key() string { return a.key }

func (a *Anthropic) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	if err := req.Validate(); err != nil {
		return llm.ChatResponse{}, err
	}
	if req.MaxTokens <= 0 {
		return llm.ChatResponse{}, errors.New("provideradapter: anthropic requires maxTokens")
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: int64(req.MaxTokens),
	}
	var system []sdk.TextBlockParam
	var msgs []sdk.MessageParam
	for _, m := range req.Messages {
		switch m.Role {
		case llm.RoleSystem, llm.RoleSummary:
			if m.Content != "" {
				system = append(system, sdk.TextBlockParam{Text: m.Content})
			}
		case llm.RoleUser:
			msgs = append(msgs, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		case llm.RoleAssistant:
			msgs = append(msgs, sdk.NewAssistantMessage(sdk.NewTextBlock(m.Content)))
		case llm.RoleTool:
			msgs = append(msgs, sdk.NewUserMessage(sdk.NewTextBlock(fmt.Sprintf("[tool:%s] %v", m.ToolName, m.ToolValue))))
		}
	}
	if len(msgs) == 0 {
		return llm.ChatResponse{}, errors.New("provideradapter: at least one user/assistant message is required")
	}
	params.Messages = msgs
	if len(system) > 0 {
		params.System = system
	}
	if req.HasTemperature {
		params.Temperature = sdk.Float(req.Temperature)
	} else if a.defaultTemp > 0 {
		params.Temperature = sdk.Float(a.defaultTemp)
	}
	if req.HasTopP {
		params.TopP = sdk.Float(req.TopP)
	}

	msg, err := a.msg.New(ctx, params)
	if err != nil {
		return llm.ChatResponse{}, &CallError{Provider: "anthropic", Cause: err}
	}

	var content string
	for _, block := range msg.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}
	return llm.ChatResponse{
		Content: content,
		Raw:     msg,
		Usage: llm.TokenUsage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}, nil
}
