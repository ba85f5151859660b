package agent

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"github.com/hupe1980/agentcrew/core"
	"github.com/hupe1980/agentcrew/logging"
	"github.com/hupe1980/agentcrew/model"
	"github.com/hupe1980/agentcrew/tool"
)

// noPlanFallback substitutes a failed or empty planning completion;
// planning degradation is never fatal to the run.
const noPlanFallback = "No plan generated."

// stepPrefix strips leading enumeration markers ("1. ", "2) ") from plan
// lines.
var stepPrefix = regexp.MustCompile(`^\d+[.)]\s*`)

// Member is a capability that can join a team: an *Agent or a nested *Team.
// Joining shares the team's event channel, transport and generic tools with
// the member, recursively.
type Member interface {
	tool.Tool

	join(t *Team)
}

// TeamOptions configure a Team.
type TeamOptions struct {
	// Role defaults to "Agent Manager".
	Role string
	// Goal defaults to "Use the provided agents to respond to the input".
	Goal string
	// Approach lines describe how the team should coordinate.
	Approach []string
	// Backstory lines give the coordinator persona context.
	Backstory []string
	// Plan supplies the execution plan up front; when empty the team
	// synthesizes one with a dedicated planning completion before running.
	Plan []string
	// Model is the coordinator transport, shared with members lacking one.
	Model model.Model
	// Tools are generic tools pushed down into every member (the team
	// itself only calls its member agents).
	Tools []tool.Tool
	// Parameters overrides the team's declared input schema.
	Parameters *tool.Schema
	// MaxIter caps coordinator rounds; negative means max(members, 5).
	MaxIter int
	// ParallelToolCalls dispatches member invocations concurrently.
	ParallelToolCalls bool
	// Emitter is the shared event channel for the whole tree.
	Emitter *core.Emitter
	// Logger receives lifecycle records. Defaults to NoOp.
	Logger logging.Logger
}

// Team is an agent whose callable capabilities are its member agents. It
// synthesizes an execution plan before running and tracks plan-step state
// by observing start/complete events of its direct children.
type Team struct {
	*Agent

	members      []Member
	genericTools []tool.Tool

	plan string

	// planMu serializes plan-step mutation and snapshot emission; with
	// parallel dispatch enabled member events arrive from multiple
	// goroutines.
	planMu        sync.Mutex
	planSteps     []core.PlanStep
	planListeners []*core.Listener
}

// NewTeam constructs a Team over the given members and propagates its event
// channel, transport and generic tools into each of them, recursively.
func NewTeam(members []Member, optFns ...func(o *TeamOptions)) *Team {
	opts := TeamOptions{
		Role:    "Agent Manager",
		Goal:    "Use the provided agents to respond to the input",
		MaxIter: -1,
		Logger:  logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	t := &Team{
		members:      members,
		genericTools: opts.Tools,
		plan:         numberedList(opts.Plan),
	}

	memberTools := make([]tool.Tool, len(members))
	for i, m := range members {
		memberTools[i] = m
	}

	t.Agent = New(opts.Role, func(o *Options) {
		o.Goal = opts.Goal
		o.Approach = opts.Approach
		o.Backstory = opts.Backstory
		o.Model = opts.Model
		o.Tools = memberTools
		o.Parameters = opts.Parameters
		o.MaxIter = opts.MaxIter
		o.ParallelToolCalls = opts.ParallelToolCalls
		o.Emitter = opts.Emitter
		o.Logger = opts.Logger
	})

	t.systemPrompt = teamSystemPrompt
	t.promptFn = t.buildPrompt
	t.Bind(t.run)

	t.Propagate()

	return t
}

// WithTeamRole sets the coordinator role.
func WithTeamRole(role string) func(o *TeamOptions) {
	return func(o *TeamOptions) { o.Role = role }
}

// WithTeamGoal sets the coordinator goal.
func WithTeamGoal(goal string) func(o *TeamOptions) {
	return func(o *TeamOptions) { o.Goal = goal }
}

// WithPlan supplies the execution plan up front, one step per entry.
func WithPlan(steps ...string) func(o *TeamOptions) {
	return func(o *TeamOptions) { o.Plan = steps }
}

// WithTeamModel sets the coordinator transport.
func WithTeamModel(m model.Model) func(o *TeamOptions) {
	return func(o *TeamOptions) { o.Model = m }
}

// WithTeamTools sets generic tools shared with every member.
func WithTeamTools(tools ...tool.Tool) func(o *TeamOptions) {
	return func(o *TeamOptions) { o.Tools = tools }
}

// WithTeamMaxIter caps coordinator rounds.
func WithTeamMaxIter(n int) func(o *TeamOptions) {
	return func(o *TeamOptions) { o.MaxIter = n }
}

// WithTeamParallelToolCalls dispatches member invocations concurrently.
func WithTeamParallelToolCalls(parallel bool) func(o *TeamOptions) {
	return func(o *TeamOptions) { o.ParallelToolCalls = parallel }
}

// WithTeamEmitter sets the shared event channel.
func WithTeamEmitter(e *core.Emitter) func(o *TeamOptions) {
	return func(o *TeamOptions) { o.Emitter = e }
}

// WithTeamLogger sets the structured logger.
func WithTeamLogger(l logging.Logger) func(o *TeamOptions) {
	return func(o *TeamOptions) { o.Logger = l }
}

// Plan returns the current plan text, empty until supplied or generated.
func (t *Team) Plan() string { return t.plan }

// Members returns a copy of the member list.
func (t *Team) Members() []Member {
	out := make([]Member, len(t.members))
	copy(out, t.members)
	return out
}

// Propagate pushes the team's event channel, transport and generic tools
// into every member, recursively. It must be re-run whenever members are
// replaced after construction.
func (t *Team) Propagate() {
	for _, m := range t.members {
		m.join(t)
	}
}

// join folds this team into a parent team: nested teams share one event
// tree and one transport by default while keeping their own plan.
func (t *Team) join(parent *Team) {
	t.SetParent(parent)
	t.SetEmitter(parent.Emitter())
	if t.llm == nil {
		t.llm = parent.llm
	}
	t.genericTools = dedupeTools(append(append([]tool.Tool{}, parent.genericTools...), t.genericTools...))
	t.Propagate()
}

// run wraps the inherited conversational loop with plan handling.
func (t *Team) run(ctx context.Context, input tool.Input) (any, error) {
	if t.llm == nil {
		return nil, core.ErrModelNotConfigured
	}

	t.ensurePlan(ctx, input)

	t.startPlanUpdates()
	defer t.stopPlanUpdates()

	return t.Agent.run(ctx, input)
}

// ensurePlan synthesizes a plan when none was supplied, using a dedicated
// non-streaming, capability-free completion. Failure to obtain plan text
// degrades to a fixed placeholder instead of propagating an error.
func (t *Team) ensurePlan(ctx context.Context, input tool.Input) {
	if t.plan != "" {
		return
	}

	base, err := t.Agent.buildPrompt(input.Args, true)
	if err != nil {
		t.logger.Warn("team.plan.degraded", "team", t.Name(), "error", err.Error())
		t.plan = noPlanFallback
		return
	}

	planPrompt, err := renderPlanPrompt(base, len(t.members)+1)
	if err != nil {
		t.logger.Warn("team.plan.degraded", "team", t.Name(), "error", err.Error())
		t.plan = noPlanFallback
		return
	}

	resp, err := t.llm.Complete(ctx, model.Request{Messages: []model.Message{
		{Role: model.RoleSystem, Content: t.systemPrompt},
		{Role: model.RoleUser, Content: planPrompt},
	}})
	if err != nil || resp.Message.Content == "" {
		t.logger.Warn("team.plan.degraded", "team", t.Name(), "error", errText(err))
		t.plan = noPlanFallback
		return
	}

	t.plan = resp.Message.Content
}

// buildPrompt extends the agent prompt with the plan and team-specific
// coordination instructions.
func (t *Team) buildPrompt(args map[string]any, includeTools bool) (string, error) {
	base, err := t.Agent.buildPrompt(args, includeTools)
	if err != nil {
		return "", err
	}
	return renderTeamPrompt(base, t.plan)
}

// startPlanUpdates parses the plan into pending steps, emits the initial
// plan event and attaches the two listeners that advance step state from
// start/complete events of the team's direct children.
func (t *Team) startPlanUpdates() {
	if t.plan == "" {
		return
	}

	t.planMu.Lock()
	t.planSteps = parsePlan(t.plan)
	t.emitPlanLocked()
	t.planMu.Unlock()

	transition := func(state core.PlanState) core.Handler {
		return func(ev core.Event) {
			// Only direct children drive this team's plan; events from
			// deeper descendants belong to nested plans.
			if ev.Source == nil || ev.Depth != t.Depth()+1 {
				return
			}

			name := ev.Source.FuncName()

			t.planMu.Lock()
			defer t.planMu.Unlock()

			for i := range t.planSteps {
				step := &t.planSteps[i]
				if step.State != core.PlanCompleted && strings.Contains(step.Content, name) {
					step.State = state
					t.emitPlanLocked()
					return
				}
			}
		}
	}

	t.planListeners = []*core.Listener{
		{Kind: core.KindStart, Handle: transition(core.PlanRunning)},
		{Kind: core.KindComplete, Handle: transition(core.PlanCompleted)},
	}
	for _, l := range t.planListeners {
		t.Emitter().Attach(l)
	}
}

// stopPlanUpdates forces every unfinished step to completed, emits the
// final plan event and detaches the listeners. It runs at the end of every
// run regardless of outcome so a plan never ends partially running.
func (t *Team) stopPlanUpdates() {
	for _, l := range t.planListeners {
		t.Emitter().Detach(l)
	}
	t.planListeners = nil

	t.planMu.Lock()
	defer t.planMu.Unlock()

	if t.planSteps != nil {
		for i := range t.planSteps {
			t.planSteps[i].State = core.PlanCompleted
		}
		t.emitPlanLocked()
	}

	t.planSteps = nil
}

// emitPlanLocked publishes a snapshot of the current step states. Callers
// must hold planMu, which also keeps snapshots arriving in state order.
func (t *Team) emitPlanLocked() {
	snapshot := make([]core.PlanStep, len(t.planSteps))
	copy(snapshot, t.planSteps)
	t.Emit(core.Event{Kind: core.KindPlan, Plan: snapshot})
}

// parsePlan splits plan text into steps, one per non-empty line, with
// leading enumeration markers stripped.
func parsePlan(plan string) []core.PlanStep {
	var steps []core.PlanStep
	for _, line := range strings.Split(plan, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		steps = append(steps, core.PlanStep{
			Step:    len(steps) + 1,
			Content: stepPrefix.ReplaceAllString(line, ""),
			State:   core.PlanPending,
		})
	}
	return steps
}

func errText(err error) string {
	if err == nil {
		return "empty plan response"
	}
	return err.Error()
}
