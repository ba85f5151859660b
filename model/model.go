// Package model defines the transport contract between agents and LLM
// completion providers. Agents build normalized Requests; providers answer
// either with a complete Response or with an incrementally consumable chunk
// Stream. Provider adapters live in the subpackages (openai, anthropic); a
// scripted Mock for tests and examples lives here.
package model

import "context"

// Role identifies the author of a conversation message.
type Role string

const (
	// RoleSystem carries fixed instructions.
	RoleSystem Role = "system"
	// RoleUser carries the rendered task prompt.
	RoleUser Role = "user"
	// RoleAssistant carries model output, including tool-call requests.
	RoleAssistant Role = "assistant"
	// RoleTool carries the serialized result of one tool call.
	RoleTool Role = "tool"
)

// Message is one exchange turn in a conversation.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // links a tool result to its call
	Refusal    string     `json:"refusal,omitempty"`
}

// ToolCall is a finalized function invocation requested by the model.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON text
}

// ToolCallDelta is a partial tool-call fragment inside a streamed chunk.
// Fragments at the same index belong to the same call: the id is set once,
// the name arrives once, and argument text must be concatenated in arrival
// order.
type ToolCallDelta struct {
	Index     int    `json:"index"`
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// Chunk is one streamed fragment of a completion.
type Chunk struct {
	Content      string          `json:"content,omitempty"`
	ToolCalls    []ToolCallDelta `json:"tool_calls,omitempty"`
	Refusal      string          `json:"refusal,omitempty"`
	FinishReason string          `json:"finish_reason,omitempty"` // set once generation ends
}

// Stream is an incrementally consumable chunk sequence. The iteration
// pattern mirrors the official SDK streams: Next advances, Current returns
// the chunk, Err reports a terminal failure after Next returns false.
type Stream interface {
	Next() bool
	Current() Chunk
	Err() error
	Close() error
}

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes an individual function (tool) exposed to the
// model. Parameters is a minimal JSON Schema object.
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Request is the normalized model input produced by agents.
type Request struct {
	Messages          []Message        `json:"messages"`
	Tools             []ToolDefinition `json:"tools,omitempty"`
	Stream            bool             `json:"stream,omitempty"`
	ParallelToolCalls *bool            `json:"parallel_tool_calls,omitempty"` // hint, only meaningful with tools
}

// Response is a complete (non-streamed) completion result.
type Response struct {
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "mock", ...
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface agents require from a completion provider.
type Model interface {
	// Complete issues a non-streaming completion (used for planning).
	Complete(ctx context.Context, req Request) (*Response, error)

	// Stream issues a streaming completion and returns the chunk stream.
	Stream(ctx context.Context, req Request) (Stream, error)

	// Info returns metadata about the model implementation.
	Info() Info
}
