// Package core provides the shared primitives of the agentcrew framework:
// the hierarchical event fabric (Emitter), the Capability identity contract
// implemented by every tool and agent, and the small value types (working
// memory entries, plan steps) exchanged between packages.
package core

import "github.com/google/uuid"

// Capability is the minimal identity surface every node in a call tree
// exposes. Tools, agents and teams all implement it; event consumers use it
// to correlate events with the emitting node without importing the tool or
// agent packages.
type Capability interface {
	// ID returns the generated unique identifier of this capability.
	ID() string

	// Name returns the human-readable name (an agent's role, a tool's name).
	Name() string

	// FuncName returns the sanitized function-calling name offered to the
	// model (name with whitespace stripped and a type suffix appended).
	FuncName() string

	// Description returns the capability description shown to models.
	Description() string

	// GraphID returns the hierarchical path identity of this capability,
	// computed lazily from the live parent chain.
	GraphID() string

	// Depth returns the nesting depth relative to the root capability
	// (root = 0), computed lazily from the live parent chain.
	Depth() int
}

// MemoryEntry records one completed capability invocation inside a single
// run: the capability's function name, its serialized arguments and its
// serialized result. Working memory is run-scoped and never persisted.
type MemoryEntry struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
	Result    string `json:"result"`
}

// PlanState is the lifecycle state of a single plan step.
type PlanState string

const (
	// PlanPending marks a step that has not started yet.
	PlanPending PlanState = "pending"
	// PlanRunning marks a step whose referenced capability is executing.
	PlanRunning PlanState = "running"
	// PlanCompleted marks a finished step.
	PlanCompleted PlanState = "completed"
)

// PlanStep is one lifecycle-tracked unit of a team's execution plan.
type PlanStep struct {
	Step    int       `json:"step"`
	Content string    `json:"content"`
	State   PlanState `json:"state"`
}

// NewID generates a unique identifier for capabilities and events.
func NewID() string { return uuid.NewString() }
