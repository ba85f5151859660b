package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentcrew/core"
	"github.com/hupe1980/agentcrew/model"
	"github.com/hupe1980/agentcrew/tool"
)

func runAgent(t *testing.T, a *Agent, input string) (any, error) {
	t.Helper()
	return a.Execute(context.Background(), tool.Input{Args: map[string]any{"input": input}})
}

func newWeatherTool() *tool.Function {
	return tool.NewFunction(
		"Weather",
		"Look up the current weather for a city",
		tool.Schema{
			Properties: map[string]tool.Property{
				"city": {Type: "string", Description: "City name"},
			},
			Required: []string{"city"},
		},
		func(_ context.Context, input tool.Input) (any, error) {
			return fmt.Sprintf("Sunny in %v", input.Args["city"]), nil
		},
	)
}

// -------------------- Construction Tests --------------------

func TestNew_Defaults(t *testing.T) {
	a := New("Echo")

	assert.Equal(t, "Echo", a.Role())
	assert.Equal(t, "EchoAgent", a.FuncName())
	assert.Equal(t, 5, a.MaxIter())
	assert.NotNil(t, a.Emitter())
	assert.Nil(t, a.Model())
}

func TestNew_MaxIterScalesWithTools(t *testing.T) {
	tools := make([]tool.Tool, 7)
	for i := range tools {
		tools[i] = tool.NewFunction(fmt.Sprintf("T%d", i), "noop", tool.DefaultSchema(),
			func(_ context.Context, _ tool.Input) (any, error) { return nil, nil })
	}

	a := New("Busy", WithTools(tools...))
	assert.Equal(t, 7, a.MaxIter())

	a = New("Capped", WithTools(tools...), WithMaxIter(2))
	assert.Equal(t, 2, a.MaxIter())
}

func TestNew_PropagatesEmitterAndParent(t *testing.T) {
	weather := newWeatherTool()
	a := New("Researcher", WithTools(weather))

	assert.Same(t, a.Emitter(), weather.Emitter())
	assert.Equal(t, a.Depth()+1, weather.Depth())
	assert.True(t, strings.HasPrefix(weather.GraphID(), a.GraphID()+"->"))
}

// -------------------- Run Loop Tests --------------------

func TestAgent_TextResponse(t *testing.T) {
	llm := model.NewMock().AddTextTurn("Hel", "lo!")

	a := New("Echo", WithModel(llm))

	var deltas []string
	a.Emitter().Attach(&core.Listener{Kind: core.KindDelta, Handle: func(ev core.Event) {
		deltas = append(deltas, ev.Content)
	}})

	out, err := runAgent(t, a, "say hello")
	require.NoError(t, err)
	assert.Equal(t, "Hello!", out)
	assert.Equal(t, []string{"Hel", "lo!"}, deltas)

	// No tools configured means no tool declarations and no parallel hint.
	require.Len(t, llm.Requests, 1)
	assert.Nil(t, llm.Requests[0].Tools)
	assert.Nil(t, llm.Requests[0].ParallelToolCalls)
}

func TestAgent_NoModel(t *testing.T) {
	a := New("Echo")

	_, err := runAgent(t, a, "hi")
	assert.ErrorIs(t, err, core.ErrModelNotConfigured)
}

func TestAgent_EmptyContentFallback(t *testing.T) {
	llm := model.NewMock().AddStreamTurn(model.Chunk{FinishReason: "stop"})

	a := New("Echo", WithModel(llm))

	out, err := runAgent(t, a, "hi")
	require.NoError(t, err)
	assert.Equal(t, NoResponseFallback, out)
}

func TestAgent_ToolRoundTrip(t *testing.T) {
	llm := model.NewMock().
		AddToolCallTurn(model.ToolCall{ID: "call_1", Name: "WeatherTool", Arguments: `{"city":"Tokyo"}`}).
		AddTextTurn("It is sunny in Tokyo today.")

	a := New("Researcher", WithModel(llm), WithTools(newWeatherTool()))

	out, err := runAgent(t, a, "weather in Tokyo?")
	require.NoError(t, err)
	assert.Equal(t, "It is sunny in Tokyo today.", out)

	// First request offers the tool, second carries its result back.
	require.Len(t, llm.Requests, 2)
	require.Len(t, llm.Requests[0].Tools, 1)
	assert.Equal(t, "WeatherTool", llm.Requests[0].Tools[0].Function.Name)
	require.NotNil(t, llm.Requests[0].ParallelToolCalls)

	var toolTurn *model.Message
	for i := range llm.Requests[1].Messages {
		if llm.Requests[1].Messages[i].Role == model.RoleTool {
			toolTurn = &llm.Requests[1].Messages[i]
		}
	}
	require.NotNil(t, toolTurn)
	assert.Equal(t, "call_1", toolTurn.ToolCallID)
	assert.Contains(t, toolTurn.Content, "Sunny in Tokyo")
}

func TestAgent_WorkingMemoryFlowsToLaterTools(t *testing.T) {
	var observed []core.MemoryEntry
	recorder := tool.NewFunction("Recorder", "records what it can see", tool.DefaultSchema(),
		func(_ context.Context, input tool.Input) (any, error) {
			observed = input.Memory
			return "recorded", nil
		})

	llm := model.NewMock().
		AddToolCallTurn(model.ToolCall{ID: "c1", Name: "WeatherTool", Arguments: `{"city":"Tokyo"}`}).
		AddToolCallTurn(model.ToolCall{ID: "c2", Name: "RecorderTool", Arguments: `{"input":"x"}`}).
		AddTextTurn("done")

	a := New("Researcher", WithModel(llm), WithTools(newWeatherTool(), recorder))

	_, err := runAgent(t, a, "go")
	require.NoError(t, err)

	require.Len(t, observed, 1)
	assert.Equal(t, "WeatherTool", observed[0].Name)
	assert.Contains(t, observed[0].Result, "Sunny in Tokyo")
}

func TestAgent_InheritedMemoryRenderedAsContext(t *testing.T) {
	llm := model.NewMock().AddTextTurn("ok")

	a := New("Writer", WithModel(llm))

	_, err := a.Execute(context.Background(), tool.Input{
		Args:   map[string]any{"input": "summarize"},
		Memory: []core.MemoryEntry{{Name: "WeatherTool", Arguments: `{"city":"Tokyo"}`, Result: `"Sunny"`}},
	})
	require.NoError(t, err)

	require.Len(t, llm.Requests, 1)
	var contextTurn string
	for _, msg := range llm.Requests[0].Messages {
		if msg.Role == model.RoleAssistant {
			contextTurn = msg.Content
		}
	}
	assert.Contains(t, contextTurn, "## Source: WeatherTool")
	assert.Contains(t, contextTurn, `"Sunny"`)
}

func TestAgent_ParallelFailureIsolation(t *testing.T) {
	flaky := tool.NewFunction("Flaky", "always fails", tool.DefaultSchema(),
		func(_ context.Context, _ tool.Input) (any, error) {
			return nil, errors.New("boom")
		})
	panicky := tool.NewFunction("Panicky", "always panics", tool.DefaultSchema(),
		func(_ context.Context, _ tool.Input) (any, error) {
			panic("kaboom")
		})

	llm := model.NewMock().
		AddStreamTurn(
			model.Chunk{ToolCalls: []model.ToolCallDelta{
				{Index: 0, ID: "c1", Name: "WeatherTool", Arguments: `{"city":"Tokyo"}`},
				{Index: 1, ID: "c2", Name: "FlakyTool", Arguments: `{"input":"x"}`},
				{Index: 2, ID: "c3", Name: "PanickyTool", Arguments: `{"input":"x"}`},
			}},
			model.Chunk{FinishReason: "tool_calls"},
		).
		AddTextTurn("done")

	a := New("Researcher",
		WithModel(llm),
		WithTools(newWeatherTool(), flaky, panicky),
		WithParallelToolCalls(true),
	)

	out, err := runAgent(t, a, "go")
	require.NoError(t, err)
	assert.Equal(t, "done", out)

	// All three calls produced a tool turn in request order, failures
	// contained as structured error payloads.
	require.Len(t, llm.Requests, 2)
	var toolTurns []model.Message
	for _, msg := range llm.Requests[1].Messages {
		if msg.Role == model.RoleTool {
			toolTurns = append(toolTurns, msg)
		}
	}
	require.Len(t, toolTurns, 3)
	assert.Contains(t, toolTurns[0].Content, "Sunny in Tokyo")
	assert.Contains(t, toolTurns[1].Content, "Error executing tool: boom")
	assert.Contains(t, toolTurns[2].Content, "Error executing tool: kaboom")
}

func TestAgent_UnknownToolAndBadArguments(t *testing.T) {
	llm := model.NewMock().
		AddStreamTurn(
			model.Chunk{ToolCalls: []model.ToolCallDelta{
				{Index: 0, ID: "c1", Name: "NoSuchTool", Arguments: `{}`},
				{Index: 1, ID: "c2", Name: "WeatherTool", Arguments: `{not json`},
			}},
			model.Chunk{FinishReason: "tool_calls"},
		).
		AddTextTurn("done")

	a := New("Researcher", WithModel(llm), WithTools(newWeatherTool()))

	out, err := runAgent(t, a, "go")
	require.NoError(t, err)
	assert.Equal(t, "done", out)

	var toolTurns []model.Message
	for _, msg := range llm.Requests[1].Messages {
		if msg.Role == model.RoleTool {
			toolTurns = append(toolTurns, msg)
		}
	}
	require.Len(t, toolTurns, 2)
	assert.Contains(t, toolTurns[0].Content, "Tool NoSuchTool not found")
	assert.Contains(t, toolTurns[1].Content, "Invalid JSON object")
}

func TestAgent_FragmentedToolCallReconstruction(t *testing.T) {
	llm := model.NewMock().
		AddStreamTurn(
			model.Chunk{ToolCalls: []model.ToolCallDelta{{Index: 0, ID: "c1", Name: "WeatherTool", Arguments: `{"ci`}}},
			model.Chunk{ToolCalls: []model.ToolCallDelta{{Index: 0, Arguments: `ty":"To`}}},
			model.Chunk{ToolCalls: []model.ToolCallDelta{{Index: 0, Arguments: `kyo"}`}}},
			model.Chunk{FinishReason: "tool_calls"},
		).
		AddTextTurn("done")

	var gotCity any
	weather := tool.NewFunction("Weather", "weather", tool.Schema{
		Properties: map[string]tool.Property{"city": {Type: "string"}},
		Required:   []string{"city"},
	}, func(_ context.Context, input tool.Input) (any, error) {
		gotCity = input.Args["city"]
		return "ok", nil
	})

	a := New("Researcher", WithModel(llm), WithTools(weather))

	_, err := runAgent(t, a, "go")
	require.NoError(t, err)
	assert.Equal(t, "Tokyo", gotCity)
}

func TestAgent_WarnOnUnexpectedFinishReason(t *testing.T) {
	llm := model.NewMock().AddStreamTurn(
		model.Chunk{Content: "truncated answer"},
		model.Chunk{FinishReason: "length"},
	)

	a := New("Echo", WithModel(llm))

	var warns []core.Event
	a.Emitter().Attach(&core.Listener{Kind: core.KindWarn, Handle: func(ev core.Event) {
		warns = append(warns, ev)
	}})

	out, err := runAgent(t, a, "hi")
	require.NoError(t, err)
	assert.Equal(t, "truncated answer", out)

	require.Len(t, warns, 1)
	assert.Contains(t, warns[0].Message, "length")
}

func TestAgent_MaxIterationsFallback(t *testing.T) {
	// Every scripted turn requests another tool call, so the budget runs
	// out without a free-text answer.
	llm := model.NewMock().
		AddToolCallTurn(model.ToolCall{ID: "c1", Name: "WeatherTool", Arguments: `{"city":"Tokyo"}`}).
		AddToolCallTurn(model.ToolCall{ID: "c2", Name: "WeatherTool", Arguments: `{"city":"Osaka"}`})

	a := New("Researcher", WithModel(llm), WithTools(newWeatherTool()), WithMaxIter(1))

	out, err := runAgent(t, a, "go")
	require.NoError(t, err)
	assert.Equal(t, MaxIterationsFallback, out)

	// The final pass must not offer tools.
	require.Len(t, llm.Requests, 2)
	assert.NotEmpty(t, llm.Requests[0].Tools)
	assert.Empty(t, llm.Requests[1].Tools)
}

func TestAgent_MaxIterZeroSinglePassWithoutTools(t *testing.T) {
	llm := model.NewMock().AddTextTurn("direct answer")

	a := New("Echo", WithModel(llm), WithTools(newWeatherTool()), WithMaxIter(0))

	out, err := runAgent(t, a, "hi")
	require.NoError(t, err)
	assert.Equal(t, "direct answer", out)

	require.Len(t, llm.Requests, 1)
	assert.Empty(t, llm.Requests[0].Tools)
}

func TestAgent_PromptIncludesConfiguration(t *testing.T) {
	llm := model.NewMock().AddTextTurn("ok")

	a := New("Researcher",
		WithModel(llm),
		WithGoal("Find facts"),
		WithApproach("Search first", "Then verify"),
		WithBackstory("You are meticulous."),
		WithTools(newWeatherTool()),
	)

	_, err := runAgent(t, a, "topic")
	require.NoError(t, err)

	var userTurn string
	for _, msg := range llm.Requests[0].Messages {
		if msg.Role == model.RoleUser {
			userTurn = msg.Content
		}
	}
	assert.Contains(t, userTurn, "Your role: Researcher")
	assert.Contains(t, userTurn, "Your goal: Find facts")
	assert.Contains(t, userTurn, "1. Search first")
	assert.Contains(t, userTurn, "2. Then verify")
	assert.Contains(t, userTurn, "You are meticulous.")
	assert.Contains(t, userTurn, "WeatherTool: Look up the current weather for a city")
	assert.Contains(t, userTurn, `"input":"topic"`)
}

func TestAgent_ValidationRejectsBeforeModelCall(t *testing.T) {
	llm := model.NewMock()
	a := New("Echo", WithModel(llm))

	_, err := a.Execute(context.Background(), tool.Input{Args: map[string]any{}})
	require.Error(t, err)

	var vErr *core.ValidationError
	assert.ErrorAs(t, err, &vErr)
	assert.Empty(t, llm.Requests)
}
