// Package openai provides a planner backed by the OpenAI Chat Completions
// API. It adapts the normalized planner request into the SDK's message
// format and converts forced tool calls back into ordered action lists.
package openai

import (
	"context"
	"errors"

	"github.com/openai/openai-go"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/model"
)

// Options configure the OpenAI planner.
// Fields mirror a subset of Chat Completion parameters intentionally kept
// minimal; extend via functional options without breaking callers.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
}

// Planner drives decision cycles through the OpenAI Chat Completions API
// with tool choice set to required.
type Planner struct {
	client *openai.Client
	opts   Options
}

var (
	_ model.Planner    = (*Planner)(nil)
	_ model.Summarizer = (*Planner)(nil)
)

// New creates a new OpenAI planner using the official client
func New(optFns ...func(o *Options)) *Planner {
	client := openai.NewClient()
	return NewFromClient(&client, optFns...)
}

// NewFromClient creates a new OpenAI planner from an existing client
func NewFromClient(client *openai.Client, optFns ...func(o *Options)) *Planner {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Planner{client: client, opts: opts}
}

// Decide implements model.Planner. The instructions become the system
// message, the per-turn prompt the user message, and tool_choice "required"
// forces the response to carry at least one tool call.
func (p *Planner) Decide(ctx context.Context, req model.Request) ([]core.Action, error) {
	params := p.buildParams(req)

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, classifyError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &model.MalformedError{Detail: "openai response contained no choices"}
	}

	var actions []core.Action
	for _, tc := range resp.Choices[0].Message.ToolCalls {
		args := tc.Function.Arguments
		if args == "" {
			args = "{}"
		}
		actions = append(actions, core.Action{
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}

	if len(actions) == 0 {
		return nil, &model.MalformedError{Detail: "openai response contained no tool calls"}
	}

	return actions, nil
}

// Summarize implements model.Summarizer with a plain text exchange, no tools.
func (p *Planner) Summarize(ctx context.Context, system, prompt string) (string, error) {
	var messages []openai.ChatCompletionMessageParamUnion
	if system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}
	messages = append(messages, openai.UserMessage(prompt))

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               p.opts.Model,
		Temperature:         openai.Float(p.opts.Temperature),
		MaxCompletionTokens: openai.Int(p.opts.MaxCompletionTokens),
	})
	if err != nil {
		return "", classifyError(err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", &model.MalformedError{Detail: "openai response contained no text"}
	}

	return resp.Choices[0].Message.Content, nil
}

// buildParams assembles the OpenAI request parameters including tool definitions.
func (p *Planner) buildParams(req model.Request) openai.ChatCompletionNewParams {
	var messages []openai.ChatCompletionMessageParamUnion
	if req.Instructions != "" {
		messages = append(messages, openai.SystemMessage(req.Instructions))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               p.opts.Model,
		Temperature:         openai.Float(p.opts.Temperature),
		MaxCompletionTokens: openai.Int(p.opts.MaxCompletionTokens),
	}
	if len(req.Actions) == 0 {
		return params
	}

	tools := make([]openai.ChatCompletionToolParam, len(req.Actions))
	for i, schema := range req.Actions {
		tools[i] = openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        schema.Name,
				Description: openai.String(schema.Description),
				Parameters:  schema.Parameters,
			},
		}
	}
	params.Tools = tools
	params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{
		OfAuto: openai.String("required"),
	}
	return params
}

// classifyError maps OpenAI API failures onto the model error taxonomy.
func classifyError(err error) error {
	var apiErr *openai.Error
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
	return &model.TransientError{Cause: err}
}

// Info returns metadata describing this OpenAI planner implementation.
func (p *Planner) Info() model.Info {
	return model.Info{
		Name:     p.opts.Model,
		Provider: "openai",
	}
}
