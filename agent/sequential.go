package agent

import (
	"fmt"

	"github.com/citysense-ai/citysense/core"
)

// SequentialAgent executes child agents in order, passing the accumulated
// session state between them. Each stage's output keys become readable by the
// stages that follow, which makes it the natural shape for multi-step
// research pipelines where later stages build on earlier results.
type SequentialAgent struct {
	BaseAgent
	children []core.Agent
}

// NewSequentialAgent creates a coordinator that runs children in the order given.
func NewSequentialAgent(name string, children ...core.Agent) *SequentialAgent {
	return &SequentialAgent{
		BaseAgent: NewBaseAgent(name),
		children:  children,
	}
}

// Run implements core.Agent. Each child receives the same run context so
// state flows through the whole sequence; the first error stops further
// processing immediately.
func (s *SequentialAgent) Run(runCtx *core.RunContext) error {
	for _, child := range s.children {
		runCtx.LogDebug("agent.sequential.step", "coordinator", s.Name(), "agent", child.Name())

		if err := child.Run(runCtx); err != nil {
			return fmt.Errorf("sequential execution failed at agent %s: %w", child.Name(), err)
		}
	}

	return nil
}
