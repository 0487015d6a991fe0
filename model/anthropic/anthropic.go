// Package anthropic provides a planner backed by the Anthropic Claude API.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/model"
)

// Options configures the Anthropic planner (temperature, model id,
// max tokens, API key). Extend via functional options to preserve stability.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// Planner drives decision cycles through the Anthropic Messages API. Tool
// choice is forced so every response is an action batch, never prose.
type Planner struct {
	client *anthropic.Client
	opts   Options
}

var (
	_ model.Planner    = (*Planner)(nil)
	_ model.Summarizer = (*Planner)(nil)
)

// New creates a new Anthropic planner using the official client
func New(optFns ...func(o *Options)) *Planner {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}

	client := anthropic.NewClient(clientOpts...)

	return &Planner{
		client: &client,
		opts:   opts,
	}
}

// NewFromClient creates a new Anthropic planner from an existing client
func NewFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Planner {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Planner{
		client: client,
		opts:   opts,
	}
}

// Decide implements model.Planner. It sends the turn context as a single
// user message, forces tool selection, and converts the returned tool_use
// blocks into an ordered action list.
func (p *Planner) Decide(ctx context.Context, req model.Request) ([]core.Action, error) {
	params := anthropic.MessageNewParams{
		Model:       p.opts.Model,
		MaxTokens:   p.opts.MaxTokens,
		Temperature: anthropic.Float(p.opts.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}

	if req.Instructions != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.Instructions}}
	}

	if len(req.Actions) > 0 {
		params.Tools = buildTools(req.Actions)
		params.ToolChoice = anthropic.ToolChoiceUnionParam{
			OfAny: &anthropic.ToolChoiceAnyParam{},
		}
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, classifyError(err)
	}

	var actions []core.Action
	for _, block := range resp.Content {
		if block.Type != "tool_use" {
			continue
		}
		toolBlock := block.AsToolUse()
		args := "{}"
		if toolBlock.Input != nil {
			if argsBytes, err := json.Marshal(toolBlock.Input); err == nil {
				args = string(argsBytes)
			}
		}
		actions = append(actions, core.Action{
			Name:      toolBlock.Name,
			Arguments: args,
		})
	}

	if len(actions) == 0 {
		return nil, &model.MalformedError{Detail: "anthropic response contained no tool_use blocks"}
	}

	return actions, nil
}

// Summarize implements model.Summarizer with a plain text exchange, no tools.
func (p *Planner) Summarize(ctx context.Context, system, prompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:       p.opts.Model,
		MaxTokens:   p.opts.MaxTokens,
		Temperature: anthropic.Float(p.opts.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", classifyError(err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.AsText().Text
		}
	}

	if text == "" {
		return "", &model.MalformedError{Detail: "anthropic response contained no text"}
	}

	return text, nil
}

// buildTools converts action schemas to the Anthropic tool format
func buildTools(schemas []model.ActionSchema) []anthropic.ToolUnionParam {
	tools := make([]anthropic.ToolUnionParam, len(schemas))

	for i, schema := range schemas {
		inputSchema := anthropic.ToolInputSchemaParam{
			Type: constant.Object("object"),
		}

		if schema.Parameters != nil {
			if properties, exists := schema.Parameters["properties"]; exists {
				inputSchema.Properties = properties
			}
			if required, exists := schema.Parameters["required"]; exists {
				if reqSlice, ok := required.([]string); ok {
					inputSchema.Required = reqSlice
				} else if reqInterface, ok := required.([]interface{}); ok {
					var reqStrings []string
					for _, r := range reqInterface {
						if s, ok := r.(string); ok {
							reqStrings = append(reqStrings, s)
						}
					}
					inputSchema.Required = reqStrings
				}
			}
		}

		tools[i] = anthropic.ToolUnionParamOfTool(inputSchema, schema.Name)
	}

	return tools
}

// classifyError maps Anthropic API failures onto the model error taxonomy.
func classifyError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 401 || apiErr.StatusCode == 403:
			return &model.AuthError{Cause: err}
		case apiErr.StatusCode == 408 || apiErr.StatusCode == 429 || apiErr.StatusCode >= 500:
			return &model.TransientError{Cause: err}
		}
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	// Connection resets and similar transport failures are retryable.
	return &model.TransientError{Cause: err}
}

// Info returns metadata describing this Anthropic planner implementation.
func (p *Planner) Info() model.Info {
	return model.Info{
		Name:     string(p.opts.Model),
		Provider: "anthropic",
	}
}
