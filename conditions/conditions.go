// Package conditions assembles the local-conditions research pipeline: a
// location stage, a parallel air-quality / traffic research team, and a
// synthesis stage that merges the findings into one report.
package conditions

import (
	"time"

	"github.com/citysense-ai/citysense/agent"
	"github.com/citysense-ai/citysense/core"
	"github.com/citysense-ai/citysense/location"
	"github.com/citysense-ai/citysense/model"
	"github.com/citysense-ai/citysense/retry"
	"github.com/citysense-ai/citysense/search"
	"github.com/citysense-ai/citysense/tool"
)

// Session state keys written by the pipeline stages. Later stages and the
// coordinator read research results through these.
const (
	// StateKeyPreciseLocation holds client-supplied GPS coordinates
	// ({"lat": .., "lng": ..}), persisted before the pipeline runs.
	StateKeyPreciseLocation = "precise_location"

	KeyLocationResearch  = "location_research_output"
	KeyAqiResearch       = "aqi_research_output"
	KeyTrafficResearch   = "traffic_research_output"
	KeyConditionsSummary = "local_conditions_summary"
)

// Agent names within the pipeline. The coordinator extracts the final answer
// from the synthesizer's events.
const (
	PipelineName     = "ConditionsPipeline"
	ResearchTeamName = "ResearchTeam"
	LocatorName      = "LocationResearcher"
	AqiName          = "AqiResearcher"
	TrafficName      = "TrafficResearcher"
	SearchName       = "SearchAssistant"
	MemoryName       = "MemoryAssistant"
	SynthesizerName  = "Synthesizer"
)

// Config carries the external services the pipeline depends on.
type Config struct {
	// Model backs every agent in the tree.
	Model model.Model
	// Locator performs IP geolocation when the client sent no coordinates.
	Locator *location.Resolver
	// Search provides web search to the research agents.
	Search search.Provider
	// Retry wraps all model calls; defaults to the standard policy when nil.
	Retry *retry.Executor
	// ResearchTimeout bounds the parallel research stage (0 = unbounded).
	ResearchTimeout time.Duration
}

// BuildPipeline wires the full agent tree:
//
//	Sequential(Locator, Parallel(Aqi, Traffic), Synthesizer)
//
// The synthesizer additionally carries the search and memory assistants as
// nested agent tools for follow-up questions.
func BuildPipeline(cfg Config) (*agent.SequentialAgent, error) {
	if cfg.Retry == nil {
		cfg.Retry = retry.New(retry.DefaultPolicy())
	}

	locator := agent.NewModelAgent(LocatorName, cfg.Model, func(o *agent.ModelAgentOptions) {
		o.Instruction = agent.NewInstructionFromText(locatorInstruction)
		o.OutputKey = KeyLocationResearch
		o.Retry = cfg.Retry
		o.Tools = []tool.Tool{NewLocationTool(cfg.Locator)}
	})
	locator.SetDescription("Determines the user's current location from GPS or IP")

	aqi := agent.NewModelAgent(AqiName, cfg.Model, func(o *agent.ModelAgentOptions) {
		o.Instruction = agent.NewInstructionFromText(aqiInstruction)
		o.OutputKey = KeyAqiResearch
		o.Retry = cfg.Retry
		o.Tools = []tool.Tool{search.NewSearchTool(cfg.Search)}
	})
	aqi.SetDescription("Researches real-time air quality, advisories and remedies")

	traffic := agent.NewModelAgent(TrafficName, cfg.Model, func(o *agent.ModelAgentOptions) {
		o.Instruction = agent.NewInstructionFromText(trafficInstruction)
		o.OutputKey = KeyTrafficResearch
		o.Retry = cfg.Retry
		o.Tools = []tool.Tool{search.NewSearchTool(cfg.Search)}
	})
	traffic.SetDescription("Researches real-time traffic congestion, incidents and advisories")

	searchAssistant := agent.NewModelAgent(SearchName, cfg.Model, func(o *agent.ModelAgentOptions) {
		o.Instruction = agent.NewInstructionFromText(searchAssistantInstruction)
		o.Retry = cfg.Retry
		o.Tools = []tool.Tool{search.NewSearchTool(cfg.Search)}
	})
	searchAssistant.SetDescription("Finds current information on the web for follow-up questions")

	memoryAssistant := agent.NewModelAgent(MemoryName, cfg.Model, func(o *agent.ModelAgentOptions) {
		o.Instruction = agent.NewInstructionFromText(memoryAssistantInstruction)
		o.Retry = cfg.Retry
		o.Tools = []tool.Tool{tool.NewMemoryRecallTool()}
	})
	memoryAssistant.SetDescription("Recalls relevant context from the user's past conversations")

	synthesizer := agent.NewModelAgent(SynthesizerName, cfg.Model, func(o *agent.ModelAgentOptions) {
		o.Instruction = agent.NewInstructionFromText(synthesizerInstruction)
		o.OutputKey = KeyConditionsSummary
		o.Retry = cfg.Retry
		o.Tools = []tool.Tool{
			tool.NewAgentTool(searchAssistant),
			tool.NewAgentTool(memoryAssistant),
		}
	})
	synthesizer.SetDescription("Consolidates research findings into one local conditions report")
	if err := synthesizer.SetSubAgents(searchAssistant, memoryAssistant); err != nil {
		return nil, err
	}

	// A failed researcher leaves its output absent; the synthesizer reports
	// the gap instead of the whole turn failing.
	team := agent.NewParallelAgent(ResearchTeamName, cfg.ResearchTimeout, aqi, traffic).ContinueOnError()
	if err := team.SetSubAgents(aqi, traffic); err != nil {
		return nil, err
	}

	pipeline := agent.NewSequentialAgent(PipelineName, locator, team, synthesizer)
	if err := pipeline.SetSubAgents(locator, team, synthesizer); err != nil {
		return nil, err
	}

	return pipeline, nil
}

// NewLocationTool returns the get_precise_location tool. Client coordinates
// stored in session state win; otherwise the resolver performs an IP lookup.
// The tool never fails: when everything is unavailable it reports an unknown
// location so the pipeline can continue with reduced precision.
func NewLocationTool(resolver *location.Resolver) *tool.FunctionTool {
	return tool.NewFunctionTool(
		"get_precise_location",
		"Resolve the user's current location via stored GPS coordinates or IP geolocation",
		map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		func(toolCtx *core.ToolContext, _ map[string]any) (any, error) {
			if v, ok := toolCtx.GetState(StateKeyPreciseLocation); ok {
				if rec, ok := recordFromState(v); ok {
					toolCtx.Logger().Debug("location.resolved", "source", rec.Source)
					return rec.Map(), nil
				}
			}

			if resolver == nil {
				return location.Unknown().Map(), nil
			}

			rec := resolver.Resolve(toolCtx.Context())
			toolCtx.Logger().Debug("location.resolved", "source", rec.Source)
			return rec.Map(), nil
		},
	)
}

// recordFromState interprets the stored {"lat": .., "lng": ..} map. Both
// coordinates must be numeric for the record to count as GPS.
func recordFromState(v any) (location.Record, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return location.Record{}, false
	}
	lat, latOK := toFloat(m["lat"])
	lng, lngOK := toFloat(m["lng"])
	if !latOK || !lngOK {
		return location.Record{}, false
	}
	return location.FromCoordinates(lat, lng), true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}
