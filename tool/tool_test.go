package tool

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentcrew/core"
)

// -------------------- Schema & Validation Tests --------------------

type sampleSchema struct {
	A string `json:"a" description:"Field A"`
	B *int   `json:"b" description:"Optional pointer field"`
	C int    `json:"c,omitempty" description:"Omit empty field"`
}

func TestSchemaFromStruct(t *testing.T) {
	schema := SchemaFromStruct(sampleSchema{})

	assert.Contains(t, schema.Properties, "a")
	assert.Contains(t, schema.Properties, "b")
	assert.Contains(t, schema.Properties, "c")
	assert.Equal(t, "string", schema.Properties["a"].Type)
	assert.Equal(t, "integer", schema.Properties["b"].Type)
	assert.Equal(t, "Field A", schema.Properties["a"].Description)
	// Required only includes non-pointer, non-omitempty exported fields.
	assert.ElementsMatch(t, []string{"a"}, schema.Required)
}

func TestSchemaValidate(t *testing.T) {
	schema := Schema{
		Properties: map[string]Property{
			"x": {Type: "integer"},
		},
		Required: []string{"x"},
	}

	// Success
	assert.NoError(t, schema.Validate(map[string]any{"x": 5}))

	// JSON decoding yields float64; whole values pass as integer.
	assert.NoError(t, schema.Validate(map[string]any{"x": float64(5)}))

	// Missing required
	err := schema.Validate(map[string]any{})
	require.Error(t, err)
	var vErr *core.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "x", vErr.Field)

	// Wrong type
	err = schema.Validate(map[string]any{"x": "not-int"})
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Message, "expected type integer")

	// Undeclared extra fields are allowed.
	assert.NoError(t, schema.Validate(map[string]any{"x": 1, "extra": true}))
}

func TestDefaultSchema(t *testing.T) {
	schema := DefaultSchema()

	assert.Contains(t, schema.Properties, "input")
	assert.Equal(t, []string{"input"}, schema.Required)

	params := schema.Parameters()
	assert.Equal(t, "object", params["type"])
}

// -------------------- Identity Tests --------------------

func TestFuncNameSanitization(t *testing.T) {
	b := New("Weather Lookup", "looks up weather")
	assert.Equal(t, "WeatherLookupTool", b.FuncName())

	// Suffix is not duplicated when the name already contains it.
	b = New("SearchTool", "searches")
	assert.Equal(t, "SearchTool", b.FuncName())

	b = New("Researcher", "researches", WithFuncNameSuffix("Agent"))
	assert.Equal(t, "ResearcherAgent", b.FuncName())
}

func TestGraphIDAndDepth(t *testing.T) {
	root := New("Root Node", "root")
	child := New("Child", "child", WithParent(root))

	assert.Equal(t, 0, root.Depth())
	assert.Equal(t, 1, child.Depth())

	assert.Equal(t, "RootNode:"+root.ID(), root.GraphID())
	assert.Equal(t, root.GraphID()+"->Child:"+child.ID(), child.GraphID())

	// Identity follows the live parent chain.
	grandchild := New("Leaf", "leaf")
	grandchild.SetParent(child)
	assert.Equal(t, 2, grandchild.Depth())
	assert.Equal(t, child.GraphID()+"->Leaf:"+grandchild.ID(), grandchild.GraphID())
}

func TestDefinition(t *testing.T) {
	b := New("Calc", "adds numbers", WithParameters(Schema{
		Properties: map[string]Property{"a": {Type: "number"}},
		Required:   []string{"a"},
	}))

	def := b.Definition()
	assert.Equal(t, "function", def.Type)
	assert.Equal(t, "CalcTool", def.Function.Name)
	assert.Equal(t, "adds numbers", def.Function.Description)
	assert.Equal(t, "object", def.Function.Parameters["type"])
}

// -------------------- Execute Tests --------------------

func collectEvents(e *core.Emitter) *[]core.Event {
	var events []core.Event
	e.Attach(&core.Listener{Kind: core.KindAny, Handle: func(ev core.Event) {
		events = append(events, ev)
	}})
	return &events
}

func TestExecute_Success(t *testing.T) {
	emitter := core.NewEmitter()
	events := collectEvents(emitter)

	fn := NewFunction("Echo", "echoes input", DefaultSchema(), func(_ context.Context, input Input) (any, error) {
		return input.Args["input"], nil
	}, WithEmitter(emitter))

	out, err := fn.Execute(context.Background(), Input{Args: map[string]any{"input": "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "hi", out)

	require.Len(t, *events, 2)
	assert.Equal(t, core.KindStart, (*events)[0].Kind)
	assert.Equal(t, "Starting Echo", (*events)[0].Message)
	assert.Equal(t, "hi", (*events)[0].Args["input"])
	assert.Equal(t, core.KindComplete, (*events)[1].Kind)
	assert.NoError(t, (*events)[1].Err)
}

func TestExecute_ValidationRejectsBeforeStart(t *testing.T) {
	emitter := core.NewEmitter()
	events := collectEvents(emitter)

	fn := NewFunction("Echo", "echoes input", DefaultSchema(), func(_ context.Context, _ Input) (any, error) {
		return "never", nil
	}, WithEmitter(emitter))

	_, err := fn.Execute(context.Background(), Input{Args: map[string]any{}})
	require.Error(t, err)

	var vErr *core.ValidationError
	assert.ErrorAs(t, err, &vErr)
	assert.Empty(t, *events)
}

func TestExecute_ErrorReportedAndReturned(t *testing.T) {
	emitter := core.NewEmitter()
	events := collectEvents(emitter)

	boom := errors.New("boom")
	fn := NewFunction("Flaky", "always fails", DefaultSchema(), func(_ context.Context, _ Input) (any, error) {
		return nil, boom
	}, WithEmitter(emitter))

	_, err := fn.Execute(context.Background(), Input{Args: map[string]any{"input": "x"}})
	assert.ErrorIs(t, err, boom)

	require.Len(t, *events, 2)
	assert.Equal(t, core.KindComplete, (*events)[1].Kind)
	assert.ErrorIs(t, (*events)[1].Err, boom)
}

func TestExecute_StampsIdentity(t *testing.T) {
	emitter := core.NewEmitter()
	events := collectEvents(emitter)

	parent := New("Parent", "parent")
	fn := NewFunction("Leaf", "leaf", DefaultSchema(), func(_ context.Context, _ Input) (any, error) {
		return "ok", nil
	}, WithEmitter(emitter), WithParent(parent))

	_, err := fn.Execute(context.Background(), Input{Args: map[string]any{"input": "x"}})
	require.NoError(t, err)

	require.Len(t, *events, 2)
	for _, ev := range *events {
		assert.Equal(t, fn.GraphID(), ev.ID)
		assert.Equal(t, 1, ev.Depth)
		assert.Same(t, fn.BaseTool, ev.Source)
	}
}

func TestEmitData(t *testing.T) {
	emitter := core.NewEmitter()
	events := collectEvents(emitter)

	b := New("Probe", "emits data", WithEmitter(emitter))
	b.EmitData(map[string]any{"progress": 0.5})

	require.Len(t, *events, 1)
	assert.Equal(t, core.KindData, (*events)[0].Kind)
	assert.Equal(t, map[string]any{"progress": 0.5}, (*events)[0].Data)
}

func TestNewFunctionFromStruct(t *testing.T) {
	fn := NewFunctionFromStruct("Typed", "typed tool", sampleSchema{}, func(_ context.Context, input Input) (any, error) {
		return input.Args["a"], nil
	})

	out, err := fn.Execute(context.Background(), Input{Args: map[string]any{"a": "value"}})
	require.NoError(t, err)
	assert.Equal(t, "value", out)

	_, err = fn.Execute(context.Background(), Input{Args: map[string]any{}})
	assert.Error(t, err)
}
