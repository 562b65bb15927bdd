package provider

import (
	"context"
	"encoding/json"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"
	"github.com/cloudwego/eino/schema"
)

// AnthropicClientConfig is everything needed to open a request against the
// Anthropic Messages API, generalized from the single eino chat-model
// adapter's constructor (internal/models' Anthropic driver) so a request
// can be issued without going through eino's model.ToolCallingChatModel
// interface at all.
type AnthropicClientConfig struct {
	APIKey      string
	BearerToken string // takes precedence over APIKey when set
	BaseURL     string
	Timeout     time.Duration
	Model       string
	MaxTokens   int
}

const (
	defaultModel     = "claude-sonnet-4-6"
	defaultMaxTokens = 4096
	defaultTimeout   = 60 * time.Second
)

// NewAnthropicClient builds the underlying SDK client for cfg.
func NewAnthropicClient(cfg AnthropicClientConfig) anthropic.Client {
	var opts []option.RequestOption

	if cfg.BearerToken != "" {
		opts = append(opts, option.WithAuthToken(cfg.BearerToken))
	} else {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}

	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	opts = append(opts, option.WithRequestTimeout(timeout))

	return anthropic.NewClient(opts...)
}

// NewAnthropicStreamFactory closes over client, cfg, messages, and tools to
// produce a function assignable to retry.StreamFactory (a plain func value
// satisfies that named type without this package importing internal/retry,
// which already imports this one). The factory reopens an identical
// request on every call, which is what the retry wrapper needs: no state
// here is mutated between attempts.
func NewAnthropicStreamFactory(client anthropic.Client, cfg AnthropicClientConfig, messages []*schema.Message, toolInfos []*schema.ToolInfo) func(ctx context.Context) (<-chan StreamEvent, error) {
	return func(ctx context.Context) (<-chan StreamEvent, error) {
		params := buildAnthropicParams(cfg, messages, toolInfos)
		stream := client.Messages.NewStreaming(ctx, params)
		return StreamAnthropic(ctx, stream), nil
	}
}

func buildAnthropicParams(cfg AnthropicClientConfig, messages []*schema.Message, toolInfos []*schema.ToolInfo) anthropic.MessageNewParams {
	modelName := cfg.Model
	if modelName == "" {
		modelName = defaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(modelName),
		MaxTokens: int64(maxTokens),
	}

	var anthropicMsgs []anthropic.MessageParam
	for _, msg := range messages {
		if msg.Role == schema.System {
			params.System = append(params.System, anthropic.TextBlockParam{Text: msg.Content})
			continue
		}
		anthropicMsgs = append(anthropicMsgs, convertSchemaMessage(msg))
	}
	params.Messages = anthropicMsgs

	if len(toolInfos) > 0 {
		anthropicTools := make([]anthropic.ToolUnionParam, 0, len(toolInfos))
		for _, tool := range toolInfos {
			inputSchema := convertToolSchema(tool)
			toolParam := anthropic.ToolUnionParamOfTool(inputSchema, tool.Name)
			if toolParam.OfTool != nil {
				toolParam.OfTool.Description = param.NewOpt(tool.Desc)
			}
			anthropicTools = append(anthropicTools, toolParam)
		}
		params.Tools = anthropicTools
	}

	return params
}

func convertToolSchema(tool *schema.ToolInfo) anthropic.ToolInputSchemaParam {
	inputSchema := anthropic.ToolInputSchemaParam{}
	if tool.ParamsOneOf == nil {
		return inputSchema
	}

	jsonSchema, err := tool.ParamsOneOf.ToJSONSchema()
	if err != nil || jsonSchema == nil {
		return inputSchema
	}
	schemaBytes, err := json.Marshal(jsonSchema)
	if err != nil {
		return inputSchema
	}
	var schemaMap map[string]any
	if json.Unmarshal(schemaBytes, &schemaMap) != nil {
		return inputSchema
	}

	if props, ok := schemaMap["properties"]; ok {
		inputSchema.Properties = props
	}
	if req, ok := schemaMap["required"].([]any); ok {
		required := make([]string, 0, len(req))
		for _, r := range req {
			if s, ok := r.(string); ok {
				required = append(required, s)
			}
		}
		inputSchema.Required = required
	}
	return inputSchema
}

func convertSchemaMessage(msg *schema.Message) anthropic.MessageParam {
	switch msg.Role {
	case schema.User:
		return anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content))

	case schema.Assistant:
		var blocks []anthropic.ContentBlockParamUnion
		if msg.Content != "" {
			blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
		}
		for _, tc := range msg.ToolCalls {
			var input any
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &input); err != nil {
				input = tc.Function.Arguments
			}
			blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Function.Name))
		}
		return anthropic.NewAssistantMessage(blocks...)

	case schema.Tool:
		return anthropic.NewUserMessage(anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false))

	default:
		return anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content))
	}
}
