package retrieval

import (
	"context"
	"sort"
	"strings"

	"github.com/openviking/membridge/core/client"
	"github.com/openviking/membridge/core/planner"
)

// bonus implements the per-kind ranking adjustment shared by phases E and F:
// +0.15 when kind matches the decided priority, +0.05 for memory otherwise,
// 0 for anything else.
func bonus(kind, priority planner.Kind) float64 {
	switch {
	case kind == priority:
		return 0.15
	case kind == planner.KindMemory:
		return 0.05
	default:
		return 0
	}
}

func contextScore(c client.Context) float64 {
	if c.Score != nil {
		return *c.Score
	}
	return 0
}

// directCandidates implements phase E.
func directCandidates(contexts []client.Context, priority planner.Kind) []candidate {
	out := make([]candidate, 0, len(contexts))
	for _, c := range contexts {
		kind := planner.Kind(c.ContextType)
		score := contextScore(c)
		out = append(out, candidate{
			uri:         c.URI,
			kind:        kind,
			score:       score,
			rank:        score + bonus(kind, priority),
			abstract:    c.Abstract,
			overview:    c.Overview,
			matchReason: c.MatchReason,
			origin:      "direct",
		})
	}
	return out
}

func inferKindFromURI(uri string) planner.Kind {
	switch {
	case strings.Contains(uri, "/skills/"):
		return planner.KindSkill
	case strings.Contains(uri, "/session/"), strings.Contains(uri, "/memories/"):
		return planner.KindMemory
	default:
		return planner.KindResource
	}
}

// expandRelations implements phase F: optional BFS relation expansion over
// C1.relations, seeded from the top direct candidates plus the planner's
// target_directories, bounded by priority-boosted budgets.
func (p *Pipeline) expandRelations(ctx context.Context, direct []candidate, priority planner.Kind, plan *client.QueryPlan) ([]candidate, RelationExpansionStats) {
	cfg := p.cfg
	stats := RelationExpansionStats{Enabled: true}

	boostApplied := cfg.RelationPriorityBudgetBoost && priority != planner.KindMemory
	stats.BoostApplied = boostApplied

	maxDepth := cfg.RelationMaxDepth
	maxAnchors := cfg.RelationMaxAnchors
	maxExpandedEntries := cfg.RelationMaxExpandedEntries
	if boostApplied {
		maxDepth += cfg.RelationPriorityDepthBonus
		maxAnchors += cfg.RelationPriorityAnchorsBonus
		maxExpandedEntries += cfg.RelationPriorityExpandedBonus
	}
	stats.MaxDepth = maxDepth
	stats.MaxAnchors = maxAnchors
	stats.MaxExpandedEntries = maxExpandedEntries

	if maxAnchors <= 0 || maxDepth <= 0 || maxExpandedEntries <= 0 {
		return nil, stats
	}

	directURIs := make(map[string]bool, len(direct))
	for _, c := range direct {
		directURIs[c.uri] = true
	}

	// Select anchors: top-ranked direct candidates by rank then score.
	ranked := make([]candidate, len(direct))
	copy(ranked, direct)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].rank != ranked[j].rank {
			return ranked[i].rank > ranked[j].rank
		}
		return ranked[i].score > ranked[j].score
	})

	type anchor struct {
		uri   string
		kind  planner.Kind
		score float64
	}
	var anchors []anchor
	seenAnchor := map[string]bool{}
	for _, c := range ranked {
		if len(anchors) >= maxAnchors {
			break
		}
		if seenAnchor[c.uri] {
			continue
		}
		seenAnchor[c.uri] = true
		anchors = append(anchors, anchor{uri: c.uri, kind: c.kind, score: c.score})
	}

	// Seed anchors from the planner's target_directories, if room remains.
	if plan != nil {
		for _, q := range plan.Queries {
			for _, dir := range q.TargetDirectories {
				if len(anchors) >= maxAnchors {
					break
				}
				if seenAnchor[dir] || directURIs[dir] {
					continue
				}
				seenAnchor[dir] = true
				anchors = append(anchors, anchor{uri: dir, kind: inferKindFromURI(dir), score: cfg.RelationSeedAnchorScore})
				stats.SeedAnchors++
			}
		}
	}
	stats.Anchors = len(anchors)

	maxQueries := maxInt(maxAnchors, maxExpandedEntries*maxDepth)

	type discovered struct {
		uri       string
		kind      planner.Kind
		depth     int
		anchorURI string
		rank      float64
		score     float64
	}
	best := map[string]discovered{}

	queries := 0
	discoveredCount := 0

	type frontierEntry struct {
		uri   string
		depth int
	}

	for _, a := range anchors {
		if queries >= maxQueries || discoveredCount >= maxExpandedEntries {
			break
		}
		frontier := []frontierEntry{{uri: a.uri, depth: 0}}
		visited := map[string]bool{a.uri: true}

		for len(frontier) > 0 {
			cur := frontier[0]
			frontier = frontier[1:]
			if cur.depth >= maxDepth {
				continue
			}
			if queries >= maxQueries || discoveredCount >= maxExpandedEntries {
				break
			}

			rels, err := p.store.Relations(ctx, cur.uri)
			queries++
			if err != nil {
				continue
			}

			nextDepth := cur.depth + 1
			for _, rel := range rels {
				if directURIs[rel.URI] {
					continue
				}
				if visited[rel.URI] {
					continue
				}
				visited[rel.URI] = true

				relKind := inferKindFromURI(rel.URI)
				relScore := maxFloat(0, a.score-float64(nextDepth)*0.12-0.08)
				relRank := relScore + bonus(relKind, priority) - 0.25 - float64(nextDepth)*0.05

				if existing, ok := best[rel.URI]; !ok || relRank > existing.rank {
					if !ok {
						discoveredCount++
					}
					best[rel.URI] = discovered{
						uri: rel.URI, kind: relKind, depth: nextDepth,
						anchorURI: a.uri, rank: relRank, score: relScore,
					}
				}

				if discoveredCount >= maxExpandedEntries {
					break
				}
				frontier = append(frontier, frontierEntry{uri: rel.URI, depth: nextDepth})
			}
		}
	}

	stats.RelationQueries = queries
	stats.Discovered = len(best)

	out := make([]candidate, 0, len(best))
	for uri, d := range best {
		out = append(out, candidate{
			uri: uri, kind: d.kind, score: d.score, rank: d.rank,
			origin: "relation", depth: d.depth, anchorURI: d.anchorURI,
		})
	}
	return out, stats
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// filterAndSort implements phase G: drop by minScore, sort by rank then
// score, truncate to hardLimit = max(1, min(limit, maxEntries)).
// Returns the selected slice and the count that survived the minScore
// filter (before the hardLimit truncation), so callers can derive
// droppedByMaxEntries precisely.
func filterAndSort(all []candidate, minScore *float64, limit, maxEntries int) ([]candidate, int) {
	var filtered []candidate
	for _, c := range all {
		if minScore != nil && c.score < *minScore {
			continue
		}
		filtered = append(filtered, c)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		if filtered[i].rank != filtered[j].rank {
			return filtered[i].rank > filtered[j].rank
		}
		return filtered[i].score > filtered[j].score
	})

	hardLimit := maxInt(1, minInt(limit, maxEntries))
	if len(filtered) <= hardLimit {
		return filtered, len(filtered)
	}
	return filtered[:hardLimit], len(filtered)
}
