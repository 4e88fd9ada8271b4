// Package planner implements C5, the Retrieval Planner: a pure function
// deciding context-type priority from configured strategy, planner
// signals, and query lexicon. It performs no I/O.
package planner

import (
	"regexp"
	"strings"

	"github.com/openviking/membridge/core/client"
	"github.com/openviking/membridge/core/memconfig"
)

// Kind is a context type bucket.
type Kind string

const (
	KindMemory   Kind = "memory"
	KindResource Kind = "resource"
	KindSkill    Kind = "skill"
)

// Decision is the planner's output for one search.
type Decision struct {
	Strategy         memconfig.Strategy
	Reason           string
	Priority         Kind
	IncludeResources bool
	IncludeSkills    bool
}

var priorityWeights = map[int]float64{1: 5, 2: 4, 3: 3, 4: 2}

func weightForPriority(p int) float64 {
	if w, ok := priorityWeights[p]; ok {
		return w
	}
	return 1
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// RESOURCE_SIGNALS / SKILL_SIGNALS fixed lexical token sets (spec §4.5).
var resourceSignals = map[string]bool{
	"file": true, "path": true, "readme": true, "markdown": true,
	"resource": true, "code": true, "config": true, "api": true,
	"document": true, "docs": true,
}

var skillSignals = map[string]bool{
	"how": true, "plan": true, "steps": true, "workflow": true,
	"playbook": true, "guide": true, "template": true, "skill": true,
	"strategy": true, "process": true,
}

var tokenPattern = regexp.MustCompile(`[A-Za-z0-9]+`)

func tokenize(query string) []string {
	return tokenPattern.FindAllString(strings.ToLower(query), -1)
}

// Decide computes the planner decision (spec §4.5 rules i-iii).
func Decide(cfg memconfig.SearchConfig, query string, sessionKey string, plan *client.QueryPlan, results []client.QueryResult) Decision {
	dec := Decision{
		IncludeResources: cfg.IncludeResources,
		IncludeSkills:    cfg.IncludeSkills,
	}

	dec.Strategy = cfg.Strategy
	if dec.Strategy == "" {
		dec.Strategy = memconfig.StrategyAuto
	}

	switch cfg.Strategy {
	case memconfig.StrategyMemoryFirst:
		dec.Priority = KindMemory
		dec.Reason = "configured-memory-first"
		return dec
	case memconfig.StrategyResourceFirst:
		dec.Priority = KindResource
		dec.IncludeResources = true
		dec.Reason = "configured-resource-first"
		return dec
	case memconfig.StrategySkillFirst:
		dec.Priority = KindSkill
		dec.IncludeSkills = true
		dec.Reason = "configured-skill-first"
		return dec
	}

	if priority, reason, weights, ok := decideFromPlannerSignals(plan, results); ok {
		dec.Priority = priority
		dec.Reason = reason
		if sessionKey != "" {
			dec.Reason += "-session"
		}
		dec.IncludeResources = dec.IncludeResources || weights[KindResource] > 0
		dec.IncludeSkills = dec.IncludeSkills || weights[KindSkill] > 0
		return dec
	}

	priority, resourceHit, skillHit := decideFromLexicon(query)
	dec.Priority = priority
	dec.Reason = "lexical-heuristic"
	dec.IncludeResources = dec.IncludeResources || resourceHit
	dec.IncludeSkills = dec.IncludeSkills || skillHit
	return dec
}

func toKind(contextType string) (Kind, bool) {
	switch contextType {
	case "memory":
		return KindMemory, true
	case "resource":
		return KindResource, true
	case "skill":
		return KindSkill, true
	default:
		return "", false
	}
}

// decideFromPlannerSignals implements rule (ii): weight contributions from
// query_plan priorities and query_results matched_contexts counts; if one
// context_type uniquely dominates, it becomes the priority.
func decideFromPlannerSignals(plan *client.QueryPlan, results []client.QueryResult) (Kind, string, map[Kind]float64, bool) {
	weights := map[Kind]float64{}
	havePlan := plan != nil && len(plan.Queries) > 0
	haveResults := len(results) > 0

	if havePlan {
		for _, q := range plan.Queries {
			if k, ok := toKind(q.ContextType); ok {
				weights[k] += weightForPriority(q.Priority)
			}
		}
	}
	if haveResults {
		for _, r := range results {
			if k, ok := toKind(r.ContextType); ok {
				weights[k] += float64(clamp(r.MatchedContexts, 1, 5))
			}
		}
	}

	if len(weights) == 0 {
		return "", "", weights, false
	}

	dominant, unique := dominantKind(weights)
	if !unique {
		return "", "", weights, false
	}

	reason := "auto-planner-combined"
	switch {
	case havePlan && !haveResults:
		reason = "auto-planner-plan"
	case !havePlan && haveResults:
		reason = "auto-planner-results"
	}
	return dominant, reason, weights, true
}

func dominantKind(weights map[Kind]float64) (Kind, bool) {
	var best Kind
	var bestW float64 = -1
	tie := false
	for k, w := range weights {
		if w > bestW {
			best = k
			bestW = w
			tie = false
		} else if w == bestW {
			tie = true
		}
	}
	if tie {
		return "", false
	}
	return best, true
}

// decideFromLexicon implements rule (iii): tokenize on non-alphanumeric
// boundaries, count RESOURCE_SIGNALS/SKILL_SIGNALS hits, priority is
// whichever count is strictly greater; ties with both>0 -> resource; ties
// at zero -> memory.
func decideFromLexicon(query string) (Kind, bool, bool) {
	tokens := tokenize(query)
	var resourceCount, skillCount int
	for _, tok := range tokens {
		if resourceSignals[tok] {
			resourceCount++
		}
		if skillSignals[tok] {
			skillCount++
		}
	}

	resourceHit := resourceCount > 0
	skillHit := skillCount > 0

	switch {
	case resourceCount > skillCount:
		return KindResource, resourceHit, skillHit
	case skillCount > resourceCount:
		return KindSkill, resourceHit, skillHit
	case resourceCount > 0: // tie, both > 0
		return KindResource, resourceHit, skillHit
	default: // tie at zero
		return KindMemory, resourceHit, skillHit
	}
}
