package planner_test

import (
	"testing"

	"github.com/openviking/membridge/core/client"
	"github.com/openviking/membridge/core/memconfig"
	"github.com/openviking/membridge/core/planner"
	"github.com/stretchr/testify/assert"
)

func TestDecide_ConfiguredStrategy(t *testing.T) {
	cfg := memconfig.SearchConfig{Strategy: memconfig.StrategySkillFirst}
	dec := planner.Decide(cfg, "anything", "", nil, nil)
	assert.Equal(t, planner.KindSkill, dec.Priority)
	assert.True(t, dec.IncludeSkills)
	assert.Contains(t, dec.Reason, "configured-skill-first")
}

func TestDecide_AutoPlannerOverride(t *testing.T) {
	cfg := memconfig.SearchConfig{Strategy: memconfig.StrategyAuto}
	plan := &client.QueryPlan{
		Queries: []client.TypedQuery{
			{ContextType: "resource", Priority: 4},
			{ContextType: "skill", Priority: 1},
		},
	}
	dec := planner.Decide(cfg, "show config file documentation path", "", plan, nil)
	assert.Equal(t, planner.KindSkill, dec.Priority)
	assert.Contains(t, dec.Reason, "auto-planner-plan")
	assert.True(t, dec.IncludeResources)
	assert.True(t, dec.IncludeSkills)
}

func TestDecide_LexicalFallback(t *testing.T) {
	cfg := memconfig.SearchConfig{Strategy: memconfig.StrategyAuto}
	dec := planner.Decide(cfg, "what is the weather today", "", nil, nil)
	assert.Equal(t, planner.KindMemory, dec.Priority)
	assert.Equal(t, "lexical-heuristic", dec.Reason)
}

func TestDecide_LexicalResourceSignals(t *testing.T) {
	cfg := memconfig.SearchConfig{Strategy: memconfig.StrategyAuto}
	dec := planner.Decide(cfg, "where is the config file path", "", nil, nil)
	assert.Equal(t, planner.KindResource, dec.Priority)
	assert.True(t, dec.IncludeResources)
}

func TestDecide_SessionSuffix(t *testing.T) {
	cfg := memconfig.SearchConfig{Strategy: memconfig.StrategyAuto}
	results := []client.QueryResult{{ContextType: "memory", MatchedContexts: 3}}
	dec := planner.Decide(cfg, "q", "session-key", nil, results)
	assert.Contains(t, dec.Reason, "auto-planner-results")
	assert.Contains(t, dec.Reason, "-session")
}
