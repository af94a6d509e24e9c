package core

// Agent is the primary processing unit of a CitySense pipeline. Agents receive
// their inputs through a RunContext, process them, and emit events to
// communicate results and state changes back to the coordinator.
//
// Implementations must:
//   - Respect context cancellation
//   - Emit events through the provided RunContext
//   - Be safe for concurrent runs across sessions (hold no per-run state)
type Agent interface {
	Name() string
	Description() string
	Run(runCtx *RunContext) error
	SetSubAgents(children ...Agent) error
	SubAgents() []Agent
	Parent() Agent
	FindAgent(name string) Agent
}

// AgentInfo carries identifying details about an agent used in contexts & events.
// Name is the external identifier; Type categorizes implementation (e.g. "pipeline", "research").
type AgentInfo struct{ Name, Type string }
