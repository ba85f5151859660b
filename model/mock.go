package model

import (
	"context"
	"fmt"
	"sync"
)

// Mock is a scripted in-memory Model for tests and examples. Streaming calls
// consume StreamTurns in order, non-streaming calls consume CompleteTurns in
// order, and every request is recorded for inspection.
type Mock struct {
	mu sync.Mutex

	// StreamTurns holds one chunk sequence per expected Stream call.
	StreamTurns [][]Chunk
	// CompleteTurns holds one response per expected Complete call.
	CompleteTurns []Response

	// Requests records every request in arrival order (streaming and not).
	Requests []Request

	streamIdx   int
	completeIdx int
}

// NewMock creates an empty scripted model.
func NewMock() *Mock { return &Mock{} }

// AddStreamTurn queues a chunk sequence for the next streaming call.
func (m *Mock) AddStreamTurn(chunks ...Chunk) *Mock {
	m.StreamTurns = append(m.StreamTurns, chunks)
	return m
}

// AddTextTurn queues a streamed turn that yields the given content fragments
// followed by a "stop" finish reason.
func (m *Mock) AddTextTurn(fragments ...string) *Mock {
	chunks := make([]Chunk, 0, len(fragments)+1)
	for _, f := range fragments {
		chunks = append(chunks, Chunk{Content: f})
	}
	chunks = append(chunks, Chunk{FinishReason: "stop"})
	return m.AddStreamTurn(chunks...)
}

// AddToolCallTurn queues a streamed turn that requests the given tool calls
// and finishes with "tool_calls".
func (m *Mock) AddToolCallTurn(calls ...ToolCall) *Mock {
	chunks := make([]Chunk, 0, len(calls)+1)
	for i, c := range calls {
		chunks = append(chunks, Chunk{ToolCalls: []ToolCallDelta{{
			Index:     i,
			ID:        c.ID,
			Name:      c.Name,
			Arguments: c.Arguments,
		}}})
	}
	chunks = append(chunks, Chunk{FinishReason: "tool_calls"})
	return m.AddStreamTurn(chunks...)
}

// AddCompleteTurn queues a response for the next non-streaming call.
func (m *Mock) AddCompleteTurn(content string) *Mock {
	m.CompleteTurns = append(m.CompleteTurns, Response{
		Message:      Message{Role: RoleAssistant, Content: content},
		FinishReason: "stop",
	})
	return m
}

// Complete implements Model.
func (m *Mock) Complete(_ context.Context, req Request) (*Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Requests = append(m.Requests, req)

	if m.completeIdx >= len(m.CompleteTurns) {
		return nil, fmt.Errorf("mock: no scripted response for completion call %d", m.completeIdx+1)
	}

	resp := m.CompleteTurns[m.completeIdx]
	m.completeIdx++

	return &resp, nil
}

// Stream implements Model.
func (m *Mock) Stream(_ context.Context, req Request) (Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Requests = append(m.Requests, req)

	if m.streamIdx >= len(m.StreamTurns) {
		return nil, fmt.Errorf("mock: no scripted chunks for streaming call %d", m.streamIdx+1)
	}

	chunks := m.StreamTurns[m.streamIdx]
	m.streamIdx++

	return &sliceStream{chunks: chunks}, nil
}

// Info implements Model.
func (m *Mock) Info() Info {
	return Info{Name: "mock", Provider: "mock", SupportsTools: true}
}

// sliceStream serves a fixed chunk slice as a Stream.
type sliceStream struct {
	chunks []Chunk
	pos    int
	cur    Chunk
}

func (s *sliceStream) Next() bool {
	if s.pos >= len(s.chunks) {
		return false
	}
	s.cur = s.chunks[s.pos]
	s.pos++
	return true
}

func (s *sliceStream) Current() Chunk { return s.cur }

func (s *sliceStream) Err() error { return nil }

func (s *sliceStream) Close() error { return nil }
