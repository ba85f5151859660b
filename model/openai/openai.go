// Package openai adapts the OpenAI Chat Completions API (including
// streaming and function/tool calling) to the model.Model interface. It
// converts agentcrew's normalized messages into the SDK's message format
// and back.
package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/ssestream"

	"github.com/hupe1980/agentcrew/model"
)

// Options configure the OpenAI model adapter (model id, temperature,
// max completion tokens).
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
}

// Model wraps the OpenAI Chat Completions API behind model.Model.
type Model struct {
	client *openai.Client
	opts   Options
}

// NewModel creates a new OpenAI model using the official client.
func NewModel(optFns ...func(o *Options)) *Model {
	client := openai.NewClient()
	return NewModelFromClient(&client, optFns...)
}

// NewModelFromClient creates a new OpenAI model from an existing client.
func NewModelFromClient(client *openai.Client, optFns ...func(o *Options)) *Model {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
}

// Complete implements non-streaming generation.
func (m *Model) Complete(ctx context.Context, req model.Request) (*model.Response, error) {
	resp, err := m.client.Chat.Completions.New(ctx, m.buildParams(req))
	if err != nil {
		return nil, fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned")
	}

	choice := resp.Choices[0]

	msg := model.Message{
		Role:    model.RoleAssistant,
		Content: choice.Message.Content,
		Refusal: choice.Message.Refusal,
	}
	for _, tc := range choice.Message.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, model.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}

	return &model.Response{Message: msg, FinishReason: choice.FinishReason}, nil
}

// Stream implements streaming generation, returning an adapter over the
// SDK's server-sent-event stream.
func (m *Model) Stream(ctx context.Context, req model.Request) (model.Stream, error) {
	inner := m.client.Chat.Completions.NewStreaming(ctx, m.buildParams(req))
	return &stream{inner: inner}, nil
}

// Info returns metadata describing this OpenAI model implementation.
func (m *Model) Info() model.Info {
	return model.Info{Name: m.opts.Model, Provider: "openai", SupportsTools: true}
}

// buildParams assembles the request parameters including tool definitions.
func (m *Model) buildParams(req model.Request) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Messages:            buildMessages(req.Messages),
		Model:               m.opts.Model,
		Temperature:         openai.Float(m.opts.Temperature),
		MaxCompletionTokens: openai.Int(m.opts.MaxCompletionTokens),
	}

	if len(req.Tools) > 0 {
		tools := make([]openai.ChatCompletionToolParam, len(req.Tools))
		for i, tdef := range req.Tools {
			tools[i] = openai.ChatCompletionToolParam{
				Type: "function",
				Function: openai.FunctionDefinitionParam{
					Name:        tdef.Function.Name,
					Description: openai.String(tdef.Function.Description),
					Parameters:  tdef.Function.Parameters,
				},
			}
		}
		params.Tools = tools

		if req.ParallelToolCalls != nil {
			params.ParallelToolCalls = openai.Bool(*req.ParallelToolCalls)
		}
	}

	return params
}

// buildMessages converts normalized messages into SDK chat messages.
func buildMessages(messages []model.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case model.RoleAssistant:
			if len(msg.ToolCalls) == 0 {
				out = append(out, openai.AssistantMessage(msg.Content))
				continue
			}
			toolCalls := make([]openai.ChatCompletionMessageToolCallParam, len(msg.ToolCalls))
			for i, tc := range msg.ToolCalls {
				toolCalls[i] = openai.ChatCompletionMessageToolCallParam{
					ID:   tc.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				}
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{
				OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					Role:      "assistant",
					ToolCalls: toolCalls,
				},
			})
		case model.RoleTool:
			out = append(out, openai.ToolMessage(msg.Content, msg.ToolCallID))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}

	return out
}

// stream adapts the SDK chunk stream to model.Stream.
type stream struct {
	inner *ssestream.Stream[openai.ChatCompletionChunk]
	cur   model.Chunk
}

func (s *stream) Next() bool {
	if !s.inner.Next() {
		return false
	}
	s.cur = convertChunk(s.inner.Current())
	return true
}

func (s *stream) Current() model.Chunk { return s.cur }

func (s *stream) Err() error { return s.inner.Err() }

func (s *stream) Close() error { return s.inner.Close() }

// convertChunk flattens the first choice of an SDK chunk into the
// normalized chunk shape.
func convertChunk(ck openai.ChatCompletionChunk) model.Chunk {
	var chunk model.Chunk

	if len(ck.Choices) == 0 {
		return chunk
	}

	choice := ck.Choices[0]
	chunk.Content = choice.Delta.Content
	chunk.Refusal = choice.Delta.Refusal
	chunk.FinishReason = choice.FinishReason

	for _, tc := range choice.Delta.ToolCalls {
		chunk.ToolCalls = append(chunk.ToolCalls, model.ToolCallDelta{
			Index:     int(tc.Index),
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}

	return chunk
}
