package provideradapter

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/featherlabs/feather/llm"
)

// BedrockRuntime is the subset of the AWS Bedrock runtime client the
// adapter needs, satisfied by *bedrockruntime.Client.
type BedrockRuntime interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// Bedrock adapts the AWS Bedrock Converse API to dispatcher.Backend. Model
// selection is per-request (req.Model carries the Bedrock model ID), since
// a single runtime client can serve any model in the account's region.
type Bedrock struct {
	key     string
	runtime BedrockRuntime
}

// NewBedrock builds a Bedrock-backed Backend keyed by key.
func NewBedrock(key string, runtime BedrockRuntime) *Bedrock {
	return &Bedrock{key: key, runtime: runtime}
}

func (b *Bedrock) Key() string { return b.key }

func (b *Bedrock) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	if err := req.Validate(); err != nil {
		return llm.ChatResponse{}, err
	}
	if req.Model == "" {
		return llm.ChatResponse{}, errors.New("provideradapter: bedrock requires a model id")
	}

	var system []brtypes.SystemContentBlock
	var msgs []brtypes.Message
	for _, m := range req.Messages {
		switch m.Role {
		case llm.RoleSystem, llm.RoleSummary:
			if m.Content != "" {
				system = append(system, &brtypes.SystemContentBlockMemberText{Value: m.Content})
			}
		case llm.RoleUser:
			msgs = append(msgs, brtypes.Message{
				Role:    brtypes.ConversationRoleUser,
				Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: m.Content}},
			})
		case llm.RoleAssistant:
			msgs = append(msgs, brtypes.Message{
				Role:    brtypes.ConversationRoleAssistant,
				Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: m.Content}},
			})
		case llm.RoleTool:
			msgs = append(msgs, brtypes.Message{
				Role:    brtypes.ConversationRoleUser,
				Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: fmt.Sprintf("[tool:%s] %v", m.ToolName, m.ToolValue)}},
			})
		}
	}
	if len(msgs) == 0 {
		return llm.ChatResponse{}, errors.New("provideradapter: at least one user/assistant message is required")
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(req.Model),
		Messages: msgs,
	}
	if len(system) > 0 {
		input.System = system
	}
	if req.HasTemperature || req.MaxTokens > 0 || req.HasTopP {
		cfg := &brtypes.InferenceConfiguration{}
		if req.HasTemperature {
			cfg.Temperature = aws.Float32(float32(req.Temperature))
		}
		if req.HasTopP {
			cfg.TopP = aws.Float32(float32(req.TopP))
		}
		if req.MaxTokens > 0 {
			cfg.MaxTokens = aws.Int32(int32(req.MaxTokens))
		}
		input.InferenceConfig = cfg
	}

	out, err := b.runtime.Converse(ctx, input)
	if err != nil {
		return llm.ChatResponse{}, &CallError{Provider: "bedrock", Cause: err}
	}

	content, usage := translateConverseOutput(out)
	return llm.ChatResponse{Content: content, Raw: out, Usage: usage}, nil
}

func translateConverseOutput(out *bedrockruntime.ConverseOutput) (string, llm.TokenUsage) {
	var content string
	if msgOutput, ok := out.Output.(*brtypes.ConverseOutputMemberMessage); ok {
		for _, block := range msgOutput.Value.Content {
			if textBlock, ok := block.(*brtypes.ContentBlockMemberText); ok {
				content += textBlock.Value
			}
		}
	}
	var usage llm.TokenUsage
	if out.Usage != nil {
		usage = llm.TokenUsage{
			InputTokens:  int(aws.ToInt32(out.Usage.InputTokens)),
			OutputTokens: int(aws.ToInt32(out.Usage.OutputTokens)),
		}
	}
	return content, usage
}
