package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/citysense-ai/citysense/core"
)

// ParallelAgent runs child agents concurrently and waits for all of them to
// finish before returning (fan-out with a join barrier).
//
// Each child receives a cloned run context with its own branch label and
// state delta buffer, so concurrent children cannot trample each other's
// staged state. They still share the session, the emit channel, and the
// resume signal. A failing child does not cancel its siblings; all child
// errors are collected and returned joined after the barrier.
type ParallelAgent struct {
	BaseAgent
	children        []core.Agent
	timeout         time.Duration
	continueOnError bool
}

// NewParallelAgent creates a coordinator that runs children concurrently. A
// zero timeout means the children are bounded only by the caller's context.
func NewParallelAgent(name string, timeout time.Duration, children ...core.Agent) *ParallelAgent {
	return &ParallelAgent{
		BaseAgent: NewBaseAgent(name),
		children:  children,
		timeout:   timeout,
	}
}

// ContinueOnError makes Run absorb child failures after the join barrier:
// each failure is logged, the child's output is simply absent, and the run
// reports success so downstream stages can work with what exists.
func (p *ParallelAgent) ContinueOnError() *ParallelAgent {
	p.continueOnError = true
	return p
}

// branchCtxFor clones the parent context with a hierarchical branch label
// ("Parent.Child") isolating the child's staged state.
func (p *ParallelAgent) branchCtxFor(runCtx *core.RunContext, child core.Agent) *core.RunContext {
	suffix := fmt.Sprintf("%s.%s", p.Name(), child.Name())
	branch := suffix
	if runCtx.Branch != "" {
		branch = runCtx.Branch + "." + suffix
	}
	return runCtx.WithBranch(branch)
}

// Run implements core.Agent. All children are launched at once; Run returns
// only after every child has completed, joining any errors encountered.
func (p *ParallelAgent) Run(runCtx *core.RunContext) error {
	ctx := runCtx.Context
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	var wg sync.WaitGroup
	errCh := make(chan error, len(p.children))

	for _, child := range p.children {
		wg.Add(1)
		go func(c core.Agent) {
			defer wg.Done()

			branchCtx := p.branchCtxFor(runCtx, c)
			branchCtx.Context = ctx

			if err := c.Run(branchCtx); err != nil {
				runCtx.LogWarn("agent.parallel.child_failed", "coordinator", p.Name(), "agent", c.Name(), "error", err.Error())
				errCh <- fmt.Errorf("parallel execution failed for agent %s: %w", c.Name(), err)
			}
		}(child)
	}

	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}

	if p.continueOnError {
		return nil
	}

	return errors.Join(errs...)
}
