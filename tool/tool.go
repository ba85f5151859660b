// Package tool implements the capability abstraction of agentcrew: a named,
// schema-described unit of work callable by a model or by another
// capability. BaseTool wraps argument validation and event emission around
// an overridable run function; agents and teams embed it so every node in a
// call tree shares the same identity, schema and event semantics.
package tool

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/agentcrew/core"
	"github.com/hupe1980/agentcrew/model"
)

// graphSeparator joins parent and child segments of a hierarchical id.
const graphSeparator = "->"

// Input carries the arguments of one capability invocation. Memory is the
// framework-injected working-memory record of earlier invocations in the
// same run; it is never part of the user-supplied arguments and is excluded
// from schema validation.
type Input struct {
	Args   map[string]any
	Memory []core.MemoryEntry
}

// RunFunc is the overridable work function a capability executes once its
// arguments validated.
type RunFunc func(ctx context.Context, input Input) (any, error)

// Tool is the full capability contract. Implementations usually embed
// *BaseTool, which provides everything except the bound run function.
type Tool interface {
	core.Capability

	// Parameters returns the declared input schema.
	Parameters() Schema

	// Definition projects the tool into the function-calling declaration
	// consumed by model transports. Pure, no side effects.
	Definition() model.ToolDefinition

	// Emitter returns the shared event channel, nil if unset.
	Emitter() *core.Emitter

	// SetEmitter shares an event channel with this tool. A parent assigns
	// its own emitter to every child before execution.
	SetEmitter(e *core.Emitter)

	// SetParent establishes the non-owning parent link used for
	// hierarchical id and depth computation.
	SetParent(p core.Capability)

	// Execute validates input, emits start/complete events and invokes the
	// run function. The original error is re-returned after the complete
	// event so callers can still branch on failure.
	Execute(ctx context.Context, input Input) (any, error)
}

// Options configure a BaseTool.
type Options struct {
	// Parameters is the declared input schema. Defaults to DefaultSchema.
	Parameters *Schema
	// Emitter is the shared event channel. Defaults to a fresh emitter so a
	// root tool is usable immediately.
	Emitter *core.Emitter
	// Parent is the owning capability, nil for roots.
	Parent core.Capability
	// FuncNameSuffix disambiguates capability types in function names
	// ("Tool", "Agent"). Defaults to "Tool".
	FuncNameSuffix string
}

// BaseTool implements the shared capability mechanics: identity, schema,
// event emission and the execute wrapper. Concrete capabilities bind their
// work function with Bind.
type BaseTool struct {
	id          string
	name        string
	funcName    string
	description string
	parameters  Schema
	emitter     *core.Emitter
	parent      core.Capability
	run         RunFunc
}

// New constructs a BaseTool with a generated id and a sanitized function
// name (whitespace stripped, type suffix appended unless already present).
func New(name, description string, optFns ...func(o *Options)) *BaseTool {
	opts := Options{FuncNameSuffix: "Tool"}
	for _, fn := range optFns {
		fn(&opts)
	}

	parameters := DefaultSchema()
	if opts.Parameters != nil {
		parameters = *opts.Parameters
	}

	emitter := opts.Emitter
	if emitter == nil {
		emitter = core.NewEmitter()
	}

	return &BaseTool{
		id:          core.NewID(),
		name:        name,
		funcName:    funcName(name, opts.FuncNameSuffix),
		description: description,
		parameters:  parameters,
		emitter:     emitter,
		parent:      opts.Parent,
	}
}

// WithParameters sets the declared input schema.
func WithParameters(s Schema) func(o *Options) {
	return func(o *Options) { o.Parameters = &s }
}

// WithEmitter sets the shared event channel.
func WithEmitter(e *core.Emitter) func(o *Options) {
	return func(o *Options) { o.Emitter = e }
}

// WithParent sets the owning capability.
func WithParent(p core.Capability) func(o *Options) {
	return func(o *Options) { o.Parent = p }
}

// WithFuncNameSuffix overrides the function-name type suffix.
func WithFuncNameSuffix(suffix string) func(o *Options) {
	return func(o *Options) { o.FuncNameSuffix = suffix }
}

// funcName sanitizes a display name into a function-calling identifier.
func funcName(name, suffix string) string {
	fn := strings.Join(strings.Fields(name), "")
	if !strings.Contains(strings.ToLower(fn), strings.ToLower(suffix)) {
		fn += suffix
	}
	return fn
}

// Bind sets the work function invoked by Execute. Embedders call it once
// during construction.
func (b *BaseTool) Bind(run RunFunc) { b.run = run }

// ID returns the generated unique identifier.
func (b *BaseTool) ID() string { return b.id }

// Name returns the human-readable name.
func (b *BaseTool) Name() string { return b.name }

// FuncName returns the sanitized function-calling name.
func (b *BaseTool) FuncName() string { return b.funcName }

// Description returns the capability description.
func (b *BaseTool) Description() string { return b.description }

// Parameters returns the declared input schema.
func (b *BaseTool) Parameters() Schema { return b.parameters }

// Emitter returns the shared event channel.
func (b *BaseTool) Emitter() *core.Emitter { return b.emitter }

// SetEmitter shares an event channel with this tool.
func (b *BaseTool) SetEmitter(e *core.Emitter) { b.emitter = e }

// SetParent establishes the non-owning parent link.
func (b *BaseTool) SetParent(p core.Capability) { b.parent = p }

// Parent returns the owning capability, nil for roots.
func (b *BaseTool) Parent() core.Capability { return b.parent }

// GraphID computes the hierarchical path identity by walking the live
// parent chain; re-parenting a tool before execution changes its identity.
func (b *BaseTool) GraphID() string {
	segment := strings.Join(strings.Fields(b.name+":"+b.id), "")
	if b.parent == nil {
		return segment
	}
	return b.parent.GraphID() + graphSeparator + segment
}

// Depth computes the nesting depth from the live parent chain (root = 0).
func (b *BaseTool) Depth() int {
	if b.parent == nil {
		return 0
	}
	return b.parent.Depth() + 1
}

// Definition projects the tool into its function-calling declaration.
func (b *BaseTool) Definition() model.ToolDefinition {
	return model.ToolDefinition{
		Type: "function",
		Function: model.FunctionDefinition{
			Name:        b.funcName,
			Description: b.description,
			Parameters:  b.parameters.Parameters(),
		},
	}
}

// Emit publishes an event through the shared channel, stamping the
// hierarchical id, depth and source capability.
func (b *BaseTool) Emit(ev core.Event) {
	if b.emitter == nil {
		return
	}

	ev.ID = b.GraphID()
	ev.Depth = b.Depth()
	if ev.Source == nil {
		ev.Source = b
	}

	b.emitter.Emit(ev)
}

// EmitData publishes a tool-defined data payload.
func (b *BaseTool) EmitData(data any) {
	b.Emit(core.Event{Kind: core.KindData, Data: data})
}

// Execute validates the input against the declared schema, then runs the
// work function bracketed by exactly one start and one complete event. A
// validation failure rejects before any event is emitted; a work failure is
// reported on the complete event and then returned to the caller.
func (b *BaseTool) Execute(ctx context.Context, input Input) (any, error) {
	if err := b.parameters.Validate(input.Args); err != nil {
		return nil, err
	}

	b.Emit(core.Event{
		Kind:    core.KindStart,
		Message: fmt.Sprintf("Starting %s", b.name),
		Args:    input.Args,
	})

	if b.run == nil {
		err := fmt.Errorf("tool %s has no run function bound", b.name)
		b.Emit(core.Event{Kind: core.KindComplete, Message: fmt.Sprintf("Failed to complete %s", b.name), Err: err})
		return nil, err
	}

	result, err := b.run(ctx, input)
	if err != nil {
		b.Emit(core.Event{Kind: core.KindComplete, Message: fmt.Sprintf("Failed to complete %s", b.name), Err: err})
		return nil, err
	}

	b.Emit(core.Event{Kind: core.KindComplete, Message: fmt.Sprintf("Successfully completed %s", b.name)})

	return result, nil
}
