// Package agentcrew provides a high-level entry point over the agent, tool
// and model packages for building multi-agent reasoning systems. Most
// applications interact with the library by:
//  1. Creating one or more agents via agent.New (wiring a model and tools)
//  2. Optionally grouping them into a team via agent.NewTeam
//  3. Running the top-level agent or team with Run, observing progress
//     through the attached event emitter
//
// Agents, teams and tools share a single capability model: each one carries
// an identity, validates its arguments against a schema and reports its
// lifecycle through events. Defaults are safe for local development; real
// deployments supply a configured model adapter and a structured logger.
package agentcrew

import (
	"context"
	"fmt"

	"github.com/hupe1980/agentcrew/core"
	"github.com/hupe1980/agentcrew/tool"
)

// Runner is anything that can be executed with validated arguments. Both
// *agent.Agent and *agent.Team satisfy it.
type Runner interface {
	core.Capability
	Emitter() *core.Emitter
	Execute(ctx context.Context, input tool.Input) (any, error)
}

// Run executes a runner with a single input string and returns the textual
// response.
func Run(ctx context.Context, r Runner, input string) (string, error) {
	result, err := r.Execute(ctx, tool.Input{Args: map[string]any{"input": input}})
	if err != nil {
		return "", err
	}

	text, ok := result.(string)
	if !ok {
		return fmt.Sprintf("%v", result), nil
	}

	return text, nil
}

// Observe attaches a handler for the given event kind on the runner's
// emitter and returns the listener so it can be detached later.
func Observe(r Runner, kind core.Kind, handler core.Handler) *core.Listener {
	l := &core.Listener{Kind: kind, Handle: handler}
	r.Emitter().Attach(l)
	return l
}
