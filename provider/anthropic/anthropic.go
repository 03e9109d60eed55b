package anthropic_provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/mohammad-safakhou/choir/models"
)

// structuredTool is the forced tool used to obtain schema-shaped replies,
// since the Messages API has no response_format.
const structuredTool = "root"

const defaultMaxTokens = 4096

// Options configure the Anthropic Messages adapter.
type Options struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

type client struct {
	sdk  anthropic.Client
	opts Options
}

// NewAnthropicClient creates a Messages API client with SDK retries disabled.
func NewAnthropicClient(opts Options) *client {
	reqOpts := []option.RequestOption{option.WithMaxRetries(0)}
	if opts.APIKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.Timeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(opts.Timeout))
	}
	return &client{sdk: anthropic.NewClient(reqOpts...), opts: opts}
}

func (c *client) Name() string { return "anthropic" }

// Complete sends one Messages request and flattens the content blocks.
func (c *client) Complete(ctx context.Context, req models.CompletionRequest) (models.CompletionResponse, error) {
	resp, err := c.sdk.Messages.New(ctx, c.buildParams(req))
	if err != nil {
		return models.CompletionResponse{}, fmt.Errorf("anthropic api error: %w", err)
	}
	if len(resp.Content) == 0 {
		return models.CompletionResponse{}, models.ErrEmptyCompletion
	}
	var (
		out  models.CompletionResponse
		text strings.Builder
	)
	for _, block := range resp.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(variant.Text)
		case anthropic.ToolUseBlock:
			if req.Schema != nil && variant.Name == structuredTool {
				out.Content = string(variant.Input)
				return out, nil
			}
			out.ToolCalls = append(out.ToolCalls, models.ToolCall{
				ID:        variant.ID,
				Name:      variant.Name,
				Arguments: string(variant.Input),
			})
		}
	}
	out.Content = text.String()
	return out, nil
}

func (c *client) buildParams(req models.CompletionRequest) anthropic.MessageNewParams {
	model := req.Model
	if model == "" {
		model = c.opts.Model
	}
	maxTokens := c.opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	system, messages := convertMessages(req.Messages)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		System:    system,
		Messages:  messages,
	}
	if c.opts.Temperature > 0 {
		params.Temperature = anthropic.Float(c.opts.Temperature)
	}
	for _, t := range req.Tools {
		params.Tools = append(params.Tools, toolParam(t.Name, t.Description, t.Parameters))
	}
	if req.Schema != nil {
		params.Tools = append(params.Tools, toolParam(structuredTool, "Return the final answer as a JSON document.", req.Schema))
		params.ToolChoice = anthropic.ToolChoiceUnionParam{OfTool: &anthropic.ToolChoiceToolParam{Name: structuredTool}}
	}
	return params
}

func toolParam(name, description string, schema map[string]any) anthropic.ToolUnionParam {
	input := anthropic.ToolInputSchemaParam{Properties: schema["properties"]}
	switch req := schema["required"].(type) {
	case []string:
		input.Required = req
	case []any:
		for _, r := range req {
			if s, ok := r.(string); ok {
				input.Required = append(input.Required, s)
			}
		}
	}
	return anthropic.ToolUnionParam{OfTool: &anthropic.ToolParam{
		Name:        name,
		Description: anthropic.String(description),
		InputSchema: input,
	}}
}

// convertMessages splits system text out and groups consecutive tool results
// into a single user turn, as the Messages API requires.
func convertMessages(in []models.Message) ([]anthropic.TextBlockParam, []anthropic.MessageParam) {
	var (
		system  []anthropic.TextBlockParam
		out     []anthropic.MessageParam
		results []anthropic.ContentBlockParamUnion
	)
	flush := func() {
		if len(results) > 0 {
			out = append(out, anthropic.NewUserMessage(results...))
			results = nil
		}
	}
	for _, m := range in {
		if m.Role != models.RoleTool {
			flush()
		}
		switch m.Role {
		case models.RoleSystem:
			system = append(system, anthropic.TextBlockParam{Text: m.Content})
		case models.RoleTool:
			isErr := strings.HasPrefix(m.Content, "Error: ")
			results = append(results, anthropic.NewToolResultBlock(m.ToolCallID, m.Content, isErr))
		case models.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				input := json.RawMessage(tc.Arguments)
				if !json.Valid(input) {
					input = json.RawMessage(`{}`)
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewAssistantMessage(blocks...))
			}
		default:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	flush()
	return system, out
}
