package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/adalundhe/metapersona/agents"
	"github.com/adalundhe/metapersona/core/agent"
	"github.com/adalundhe/metapersona/core/blackboard"
	"github.com/adalundhe/metapersona/core/config"
	"github.com/adalundhe/metapersona/core/delegation"
	"github.com/adalundhe/metapersona/core/distributed"
	"github.com/adalundhe/metapersona/core/llm"
	"github.com/adalundhe/metapersona/core/messaging"
	"github.com/adalundhe/metapersona/core/registry"
	"github.com/adalundhe/metapersona/core/routing"
	"github.com/adalundhe/metapersona/core/storage"
	"github.com/adalundhe/metapersona/skills"
)

// runtime is the assembled application: every engine wired from one config.
type runtime struct {
	cfg        *config.Config
	provider   llm.Provider
	board      *blackboard.Blackboard
	msgRouter  *messaging.Router
	registry   *registry.Registry
	taskRouter *routing.TaskRouter
	planning   *agents.PlanningAgent
	planner    *distributed.PlanningEngine
	logger     *slog.Logger
}

// buildRuntime loads the config and constructs the agent roster and
// engines. A missing config file falls back to the default roster with no
// provider configured.
func buildRuntime(path string) (*runtime, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	cfg, err := config.Load(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		logger.Warn("config file not found, using defaults", "path", path)
		cfg = defaultConfig()
	}

	var provider llm.Provider
	if len(cfg.LLM.Providers) > 0 {
		provider, err = cfg.LLM.Build(logger)
		if err != nil {
			return nil, fmt.Errorf("building llm provider: %w", err)
		}
	}

	store, err := storage.NewFileStore(cfg.Storage.Dir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	regOpts := []registry.Option{registry.WithStore(store), registry.WithLogger(logger)}
	if cfg.SkillsFile != "" {
		loaded, err := skills.Load(cfg.SkillsFile)
		if err != nil {
			return nil, err
		}
		matcher, err := skills.NewMatcher(loaded)
		if err != nil {
			return nil, err
		}
		regOpts = append(regOpts, registry.WithSkillCounter(matcher.CountFor))
	}

	rt := &runtime{
		cfg:       cfg,
		provider:  provider,
		board:     blackboard.New(blackboard.WithLogger(logger)),
		msgRouter: messaging.NewRouter(logger),
		registry:  registry.New(regOpts...),
		logger:    logger,
	}

	agentCfg := agents.Config{
		Provider: provider,
		Router:   rt.msgRouter,
		Board:    rt.board,
		Logger:   logger,
	}
	for _, ac := range cfg.Agents {
		a, err := buildAgent(ac, agentCfg)
		if err != nil {
			return nil, err
		}
		rt.registry.Register(a)
		if planning, ok := a.(*agents.PlanningAgent); ok {
			rt.planning = planning
		}
	}

	routerOpts := []routing.Option{
		routing.WithMinConfidence(cfg.Routing.MinConfidence),
		routing.WithLogger(logger),
	}
	if cfg.Routing.DefaultAgent != "" {
		routerOpts = append(routerOpts, routing.WithDefaultAgent(cfg.Routing.DefaultAgent))
	}
	if cfg.Routing.LLMRouting && provider != nil {
		routerOpts = append(routerOpts, routing.WithLLMRouting(provider))
	}
	rt.taskRouter = routing.New(rt.registry, routerOpts...)

	parallel := distributed.NewParallelEngine(rt.msgRouter, rt.board, cfg.Parallel.MaxWorkers, logger)
	rules := delegation.NewRulesEngine(map[delegation.TaskType]string{
		delegation.TypePlanning:  "planning_agent",
		delegation.TypeWriting:   "writing_agent",
		delegation.TypeResearch:  "research_agent",
		delegation.TypeCritique:  "critique_agent",
		delegation.TypeAlignment: "persona_alignment_agent",
	}, cfg.Routing.DefaultAgent, nil)
	rt.planner = distributed.NewPlanningEngine(rt.msgRouter, rt.board, rules, parallel, rt.candidatesFor, logger)

	return rt, nil
}

// candidatesFor gathers registered agents whose roles credibly fit the task
// type, for fragment negotiation.
func (rt *runtime) candidatesFor(taskType delegation.TaskType) []distributed.Bidder {
	var bidders []distributed.Bidder
	for _, a := range rt.registry.ListAll() {
		if level, _ := delegation.EstimateConfidence(a.Role(), taskType); level != delegation.LevelLow {
			bidders = append(bidders, distributed.Bidder{AgentID: a.ID(), Role: a.Role()})
		}
	}
	return bidders
}

func buildAgent(ac config.AgentConfig, base agents.Config) (agent.Agent, error) {
	cfg := base
	cfg.ID = ac.ID
	switch ac.Kind {
	case "research":
		return agents.NewResearchAgent(cfg), nil
	case "code":
		return agents.NewCodeAgent(cfg), nil
	case "writer":
		return agents.NewWriterAgent(cfg), nil
	case "generalist":
		return agents.NewGeneralistAgent(cfg), nil
	case "critique":
		return agents.NewCritiqueAgent(cfg), nil
	case "planning":
		return agents.NewPlanningAgent(cfg), nil
	case "alignment":
		return agents.NewPersonaAlignmentAgent(cfg), nil
	default:
		return nil, fmt.Errorf("unknown agent kind: %s", ac.Kind)
	}
}

func defaultConfig() *config.Config {
	cfg := &config.Config{
		Agents: []config.AgentConfig{
			{Kind: "research"},
			{Kind: "code"},
			{Kind: "writer"},
			{Kind: "generalist"},
			{Kind: "critique"},
			{Kind: "planning"},
			{Kind: "alignment"},
		},
		Routing: config.RoutingConfig{DefaultAgent: "generalist_agent"},
	}
	// Validate only applies defaults here; the roster above is well formed.
	_ = cfg.Validate()
	return cfg
}
