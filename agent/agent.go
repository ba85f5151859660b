// Package agent implements the conversational execution engine of
// agentcrew. An Agent is a capability whose work function is a bounded
// tool-calling loop with an LLM: it renders a prompt from its role, goal
// and available capabilities, streams the model's response, dispatches any
// requested tool calls, feeds the results back and repeats until the model
// answers in free text or the iteration budget forces closure. A Team is an
// agent whose capabilities are other agents, coordinated by a generated
// execution plan (see team.go).
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/agentcrew/core"
	"github.com/hupe1980/agentcrew/logging"
	"github.com/hupe1980/agentcrew/model"
	"github.com/hupe1980/agentcrew/tool"
)

const (
	// defaultMaxIter is the minimum iteration budget; agents with more
	// tools get proportionally more rounds.
	defaultMaxIter = 5

	// NoResponseFallback is returned when the model finishes without
	// producing any content. Callers can compare against it to detect the
	// degraded outcome.
	NoResponseFallback = "Sorry, no response was generated"

	// MaxIterationsFallback is returned when the iteration budget is
	// exhausted before a tool-call-free response. It is a defined terminal
	// outcome, not an error.
	MaxIterationsFallback = "Sorry, we reached the maximum number of iterations without a response"
)

// validFinishReasons are the accepted terminal reasons for a completion;
// anything else triggers a warn event but does not stop the run.
var validFinishReasons = map[string]bool{
	"stop":          true,
	"tool_calls":    true,
	"function_call": true,
}

// Options configure an Agent.
type Options struct {
	// Goal describes what the agent should achieve; it doubles as the
	// capability description offered to calling models.
	Goal string
	// Approach lines describe how the agent should work. Multiple lines
	// are rendered as a numbered list.
	Approach []string
	// Backstory lines give the agent persona context.
	Backstory []string
	// Model is the LLM transport. A team propagates its own model into
	// members that leave this nil.
	Model model.Model
	// Tools are the capabilities offered to the model.
	Tools []tool.Tool
	// Parameters overrides the agent's declared input schema.
	Parameters *tool.Schema
	// MaxIter caps tool-call rounds. Negative means the default of
	// max(len(Tools), 5). Zero is valid: a single pass with no tools.
	MaxIter int
	// ParallelToolCalls dispatches an iteration's tool calls concurrently.
	ParallelToolCalls bool
	// Emitter is the shared event channel for the call tree.
	Emitter *core.Emitter
	// Logger receives model/tool lifecycle records. Defaults to NoOp.
	Logger logging.Logger
}

// Agent is a capability that converses with an LLM, optionally invoking
// child tools, until a final textual answer is produced or the iteration
// budget is exhausted.
type Agent struct {
	*tool.BaseTool

	role      string
	goal      string
	approach  string
	backstory string

	llm      model.Model
	tools    []tool.Tool
	maxIter  int
	parallel bool
	logger   logging.Logger

	systemPrompt string
	promptFn     func(args map[string]any, includeTools bool) (string, error)
}

// New constructs an Agent and propagates its emitter and parent link into
// every supplied tool.
func New(role string, optFns ...func(o *Options)) *Agent {
	opts := Options{MaxIter: -1, Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	maxIter := opts.MaxIter
	if maxIter < 0 {
		maxIter = len(opts.Tools)
		if maxIter < defaultMaxIter {
			maxIter = defaultMaxIter
		}
	}

	a := &Agent{
		role:         role,
		goal:         opts.Goal,
		approach:     numberedList(opts.Approach),
		backstory:    numberedList(opts.Backstory),
		llm:          opts.Model,
		tools:        opts.Tools,
		maxIter:      maxIter,
		parallel:     opts.ParallelToolCalls,
		logger:       opts.Logger,
		systemPrompt: agentSystemPrompt,
	}

	toolOpts := []func(o *tool.Options){tool.WithFuncNameSuffix("Agent")}
	if opts.Parameters != nil {
		toolOpts = append(toolOpts, tool.WithParameters(*opts.Parameters))
	}
	if opts.Emitter != nil {
		toolOpts = append(toolOpts, tool.WithEmitter(opts.Emitter))
	}

	a.BaseTool = tool.New(role, opts.Goal, toolOpts...)
	a.Bind(a.run)
	a.promptFn = a.buildPrompt

	a.Propagate()

	return a
}

// WithGoal sets the agent's goal.
func WithGoal(goal string) func(o *Options) {
	return func(o *Options) { o.Goal = goal }
}

// WithApproach sets the agent's approach lines.
func WithApproach(lines ...string) func(o *Options) {
	return func(o *Options) { o.Approach = lines }
}

// WithBackstory sets the agent's backstory lines.
func WithBackstory(lines ...string) func(o *Options) {
	return func(o *Options) { o.Backstory = lines }
}

// WithModel sets the LLM transport.
func WithModel(m model.Model) func(o *Options) {
	return func(o *Options) { o.Model = m }
}

// WithTools sets the capabilities offered to the model.
func WithTools(tools ...tool.Tool) func(o *Options) {
	return func(o *Options) { o.Tools = tools }
}

// WithParameters overrides the agent's declared input schema.
func WithParameters(s tool.Schema) func(o *Options) {
	return func(o *Options) { o.Parameters = &s }
}

// WithMaxIter caps the number of tool-call rounds.
func WithMaxIter(n int) func(o *Options) {
	return func(o *Options) { o.MaxIter = n }
}

// WithParallelToolCalls enables concurrent dispatch of an iteration's calls.
func WithParallelToolCalls(parallel bool) func(o *Options) {
	return func(o *Options) { o.ParallelToolCalls = parallel }
}

// WithEmitter sets the shared event channel.
func WithEmitter(e *core.Emitter) func(o *Options) {
	return func(o *Options) { o.Emitter = e }
}

// WithLogger sets the structured logger.
func WithLogger(l logging.Logger) func(o *Options) {
	return func(o *Options) { o.Logger = l }
}

// Role returns the agent's role.
func (a *Agent) Role() string { return a.role }

// Goal returns the agent's goal.
func (a *Agent) Goal() string { return a.goal }

// Model returns the configured LLM transport, nil if unset.
func (a *Agent) Model() model.Model { return a.llm }

// SetModel replaces the LLM transport.
func (a *Agent) SetModel(m model.Model) { a.llm = m }

// MaxIter returns the iteration budget.
func (a *Agent) MaxIter() int { return a.maxIter }

// Tools returns a copy of the agent's capability set.
func (a *Agent) Tools() []tool.Tool {
	out := make([]tool.Tool, len(a.tools))
	copy(out, a.tools)
	return out
}

// SetTools replaces the capability set. Call Propagate afterwards so the
// new children share this agent's emitter and parent link.
func (a *Agent) SetTools(tools ...tool.Tool) { a.tools = tools }

// Propagate pushes this agent's event channel and parent link into every
// child tool. It must be re-run whenever children are replaced after
// construction.
func (a *Agent) Propagate() {
	for _, t := range a.tools {
		t.SetParent(a)
		t.SetEmitter(a.Emitter())
	}
}

// join folds this agent into a team: the team becomes its parent, shares
// its event channel and transport, and contributes its generic tools.
func (a *Agent) join(t *Team) {
	a.SetParent(t)
	a.SetEmitter(t.Emitter())
	if a.llm == nil {
		a.llm = t.llm
	}
	a.tools = dedupeTools(append(append([]tool.Tool{}, t.genericTools...), a.tools...))
	a.Propagate()
}

// run is the conversational loop bound as the agent's work function.
func (a *Agent) run(ctx context.Context, input tool.Input) (any, error) {
	if a.llm == nil {
		return nil, core.ErrModelNotConfigured
	}

	defs := a.toolDefinitions()

	// Working memory: inherited from our peers, collected for our tools.
	var memory []core.MemoryEntry

	messages := []model.Message{{Role: model.RoleSystem, Content: a.systemPrompt}}

	if len(input.Memory) > 0 {
		rendered, err := renderWorkingMemoryPrompt(input.Memory)
		if err != nil {
			return nil, err
		}
		messages = append(messages, model.Message{Role: model.RoleAssistant, Content: rendered})
	}

	// Placeholder for the current turn, rewritten before each request.
	messages = append(messages, model.Message{Role: model.RoleUser})

	// The upper bound is inclusive: the final pass omits tools so the
	// model must answer in free text.
	for i := 0; i <= a.maxIter; i++ {
		includeTools := i < a.maxIter

		reqTools := defs
		if !includeTools {
			reqTools = nil
		}

		var parallel *bool
		if len(reqTools) > 0 {
			p := a.parallel
			parallel = &p
		}

		prompt, err := a.promptFn(input.Args, includeTools)
		if err != nil {
			return nil, err
		}
		if err := updateLastUserMessage(messages, prompt); err != nil {
			return nil, err
		}

		a.logger.Debug("agent.model.call", "agent", a.Name(), "iteration", i, "tools", len(reqTools))

		stream, err := a.llm.Stream(ctx, model.Request{
			Messages:          messages,
			Tools:             reqTools,
			Stream:            true,
			ParallelToolCalls: parallel,
		})
		if err != nil {
			return nil, fmt.Errorf("completion request: %w", err)
		}

		msg, finishReason, err := a.consumeStream(stream)
		if err != nil {
			return nil, err
		}

		if !validFinishReasons[finishReason] {
			a.logger.Warn("agent.model.finish_reason", "agent", a.Name(), "finish_reason", finishReason)
			a.Emit(core.Event{
				Kind:    core.KindWarn,
				Message: fmt.Sprintf("Unexpected finish reason: %s", finishReason),
			})
		}

		if len(msg.ToolCalls) == 0 {
			if msg.Content == "" {
				return NoResponseFallback, nil
			}
			return msg.Content, nil
		}

		newMessages, entries := a.dispatchToolCalls(ctx, msg, memory)
		memory = append(memory, entries...)
		messages = append(messages, newMessages...)
	}

	return MaxIterationsFallback, nil
}

// toolCallAgg merges partial tool-call fragments at one stream index.
type toolCallAgg struct{ id, name, args string }

// consumeStream drains a completion stream, re-emitting content fragments
// as delta events and reconstructing tool calls from indexed fragments,
// then assembles a synthetic non-streamed assistant message.
func (a *Agent) consumeStream(stream model.Stream) (model.Message, string, error) {
	defer func() { _ = stream.Close() }()

	var (
		content      strings.Builder
		refusal      string
		finishReason string
	)
	agg := map[int]*toolCallAgg{}

	for stream.Next() {
		chunk := stream.Current()

		if chunk.FinishReason != "" {
			finishReason = chunk.FinishReason
		}
		if chunk.Refusal != "" {
			refusal = chunk.Refusal
		}

		if chunk.Content != "" {
			content.WriteString(chunk.Content)
			a.Emit(core.Event{Kind: core.KindDelta, Content: chunk.Content})
		}

		for _, delta := range chunk.ToolCalls {
			ac, ok := agg[delta.Index]
			if !ok {
				ac = &toolCallAgg{}
				agg[delta.Index] = ac
			}
			if delta.ID != "" {
				ac.id = delta.ID
			}
			if delta.Name != "" {
				ac.name = delta.Name
			}
			ac.args += delta.Arguments
		}
	}

	if err := stream.Err(); err != nil {
		return model.Message{}, "", fmt.Errorf("completion stream: %w", err)
	}

	indexes := make([]int, 0, len(agg))
	for idx := range agg {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	var calls []model.ToolCall
	for _, idx := range indexes {
		ac := agg[idx]
		calls = append(calls, model.ToolCall{ID: ac.id, Name: ac.name, Arguments: ac.args})
	}

	msg := model.Message{
		Role:      model.RoleAssistant,
		Content:   content.String(),
		ToolCalls: calls,
		Refusal:   refusal,
	}

	return msg, finishReason, nil
}

// dispatchToolCalls executes every call requested in msg, sequentially or
// concurrently, and returns the conversation turns to append (the assistant
// request turn plus one tool-result turn per call) together with the new
// working-memory entries in request order.
func (a *Agent) dispatchToolCalls(ctx context.Context, msg model.Message, memory []core.MemoryEntry) ([]model.Message, []core.MemoryEntry) {
	calls := msg.ToolCalls
	results := make([]any, len(calls))

	if a.parallel {
		var wg sync.WaitGroup
		for i := range calls {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = a.dispatchToolCall(ctx, calls[i], memory)
			}(i)
		}
		wg.Wait()
	} else {
		for i := range calls {
			results[i] = a.dispatchToolCall(ctx, calls[i], memory)
		}
	}

	newMessages := make([]model.Message, 0, len(calls)+1)
	newMessages = append(newMessages, model.Message{
		Role:      model.RoleAssistant,
		Content:   msg.Content,
		ToolCalls: calls,
	})

	entries := make([]core.MemoryEntry, 0, len(calls))
	for i, call := range calls {
		serialized := serializeResult(results[i])
		entries = append(entries, core.MemoryEntry{
			Name:      call.Name,
			Arguments: call.Arguments,
			Result:    serialized,
		})
		newMessages = append(newMessages, model.Message{
			Role:       model.RoleTool,
			Content:    serialized,
			ToolCallID: call.ID,
		})
	}

	return newMessages, entries
}

// dispatchToolCall resolves and executes a single requested call. Every
// failure mode (unknown function, malformed arguments, execution error,
// panic) is contained and converted into a structured error result so one
// failing call never aborts sibling calls or the run.
func (a *Agent) dispatchToolCall(ctx context.Context, call model.ToolCall, memory []core.MemoryEntry) (result any) {
	t := a.findTool(call.Name)
	if t == nil {
		a.logger.Warn("agent.tool.unknown", "agent", a.Name(), "function", call.Name)
		return map[string]any{"error": fmt.Sprintf("Tool %s not found", call.Name)}
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
		a.logger.Warn("agent.tool.bad_arguments", "agent", a.Name(), "function", call.Name)
		return map[string]any{"error": fmt.Sprintf("Invalid JSON object: %s", call.Arguments)}
	}

	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("agent.tool.panic", "agent", a.Name(), "tool", t.FuncName(), "recover", r)
			result = map[string]any{"error": fmt.Sprintf("Error executing tool: %v", r)}
		}
	}()

	start := time.Now()

	out, err := t.Execute(ctx, tool.Input{Args: args, Memory: memory})
	if err != nil {
		a.logger.Error("agent.tool.error", "agent", a.Name(), "tool", t.FuncName(), "error", err.Error())
		return map[string]any{"error": fmt.Sprintf("Error executing tool: %s", err.Error())}
	}

	a.logger.Info("agent.tool.executed", "agent", a.Name(), "tool", t.FuncName(), "duration_ms", time.Since(start).Milliseconds())

	return out
}

// findTool resolves a requested function name by exact match.
func (a *Agent) findTool(funcName string) tool.Tool {
	for _, t := range a.tools {
		if t.FuncName() == funcName {
			return t
		}
	}
	return nil
}

// toolDefinitions projects the capability set into function-calling
// declarations, nil when the agent has no tools.
func (a *Agent) toolDefinitions() []model.ToolDefinition {
	if len(a.tools) == 0 {
		return nil
	}
	defs := make([]model.ToolDefinition, 0, len(a.tools))
	for _, t := range a.tools {
		defs = append(defs, t.Definition())
	}
	return defs
}

// buildPrompt renders the current-turn prompt from the agent configuration
// and the serialized remaining input.
func (a *Agent) buildPrompt(args map[string]any, includeTools bool) (string, error) {
	if args == nil {
		args = map[string]any{}
	}
	serialized, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("serialize input: %w", err)
	}

	var tools []tool.Tool
	if includeTools {
		tools = a.tools
	}

	return renderAgentPrompt(agentPromptData{
		Role:      a.role,
		Goal:      a.goal,
		Approach:  a.approach,
		Backstory: a.backstory,
		Tools:     promptTools(tools),
		Args:      string(serialized),
	})
}

// updateLastUserMessage rewrites the content of the designated current-turn
// placeholder (the last user message).
func updateLastUserMessage(messages []model.Message, content string) error {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == model.RoleUser {
			messages[i].Content = content
			return nil
		}
	}
	return fmt.Errorf("no user message found")
}

// serializeResult encodes a tool result for the conversation and working
// memory.
func serializeResult(result any) string {
	b, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprintf("%v", result)
	}
	return string(b)
}

// dedupeTools drops tools whose function name was already seen, keeping the
// first occurrence.
func dedupeTools(tools []tool.Tool) []tool.Tool {
	seen := make(map[string]struct{}, len(tools))
	out := make([]tool.Tool, 0, len(tools))
	for _, t := range tools {
		if _, ok := seen[t.FuncName()]; ok {
			continue
		}
		seen[t.FuncName()] = struct{}{}
		out = append(out, t)
	}
	return out
}
