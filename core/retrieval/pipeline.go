package retrieval

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/openviking/membridge/core/client"
	"github.com/openviking/membridge/core/memconfig"
	"github.com/openviking/membridge/core/planner"
	"github.com/openviking/membridge/core/sessionlink"
)

// Store is the subset of C1 the pipeline calls.
type Store interface {
	Search(ctx context.Context, req client.SearchRequest) (client.SearchResponse, error)
	Find(ctx context.Context, req client.SearchRequest) (client.SearchResponse, error)
	Relations(ctx context.Context, uri string) ([]client.Relation, error)
}

// LayerReader fetches content layers, implemented by *client.LayeredReader
// in production (cached) or *client.Client directly (uncached).
type LayerReader interface {
	Abstract(ctx context.Context, uri string) (string, error)
	Overview(ctx context.Context, uri string) (string, error)
	Read(ctx context.Context, uri string) (string, error)
}

// SessionResolver resolves a host sessionKey to its store session id.
type SessionResolver interface {
	Get(sessionKey string) (*sessionlink.Link, error)
}

// Pipeline is one per-(agentId,endpoint) Read Pipeline instance (spec §4.6).
type Pipeline struct {
	cfg    memconfig.SearchConfig
	store  Store
	layers LayerReader
	links  SessionResolver
	logger *slog.Logger

	agentID  string
	endpoint string

	mu   sync.Mutex
	diag Diagnostics
}

// New builds a Pipeline. links may be nil when no session-scoped search is
// needed (storeSessionId then stays empty).
func New(cfg memconfig.SearchConfig, store Store, layers LayerReader, links SessionResolver, agentID, endpoint string, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{cfg: cfg, store: store, layers: layers, links: links, agentID: agentID, endpoint: endpoint, logger: logger}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Search runs phases A-H and returns the ordered, budget-trimmed snippet
// rows for one query.
func (p *Pipeline) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return nil, nil
	}

	// Phase A.
	limit := p.cfg.Limit
	if opts.MaxResults > 0 {
		limit = minInt(opts.MaxResults, p.cfg.Limit)
	}
	var scoreThreshold *float64
	if p.cfg.ScoreThreshold != nil {
		scoreThreshold = p.cfg.ScoreThreshold
	}
	if opts.MinScore != nil {
		scoreThreshold = opts.MinScore
	}

	var storeSessionID string
	if opts.SessionKey != "" && p.links != nil {
		if link, err := p.links.Get(opts.SessionKey); err == nil && link != nil {
			storeSessionID = link.StoreSessionID
		}
	}

	req := client.SearchRequest{
		Query:          trimmed,
		TargetURI:      p.cfg.TargetURI,
		SessionID:      storeSessionID,
		Limit:          limit,
		ScoreThreshold: scoreThreshold,
	}

	resp, err := p.store.Search(ctx, req)
	if err != nil {
		return nil, err
	}

	// Phase B.
	decision := planner.Decide(p.cfg, trimmed, opts.SessionKey, resp.QueryPlan, resp.QueryResults)

	// Phase C.
	contexts := gatherContexts(resp, decision)
	explain := Explainability{ResultCount: len(contexts)}
	if resp.QueryPlan != nil {
		explain.TypedQueries = resp.QueryPlan.Queries
		explain.TopPlannerQueries = topPlannerQueries(resp.QueryPlan.Queries, 5)
	}

	// Phase D.
	if len(contexts) == 0 {
		findResp, err := p.store.Find(ctx, req)
		if err == nil {
			contexts = gatherContexts(findResp, decision)
			explain.FallbackKind = "find"
			explain.FallbackHits = len(contexts)
			explain.ResultCount = len(contexts)
			if explain.TypedQueries == nil && findResp.QueryPlan != nil {
				explain.TypedQueries = findResp.QueryPlan.Queries
			}
		}
	}

	// Phase E.
	direct := directCandidates(contexts, decision.Priority)

	ranking := Ranking{
		DirectCandidates: len(direct),
	}

	// Phase F.
	relStats := RelationExpansionStats{Enabled: p.cfg.RelationExpansion}
	var relationCandidates []candidate
	var queryPlan *client.QueryPlan
	if resp.QueryPlan != nil {
		queryPlan = resp.QueryPlan
	}
	if p.cfg.RelationExpansion {
		relationCandidates, relStats = p.expandRelations(ctx, direct, decision.Priority, queryPlan)
	}
	ranking.RelationCandidates = len(relationCandidates)

	// Phase G.
	all := append(append([]candidate{}, direct...), relationCandidates...)
	ranking.TotalCandidates = len(all)
	selected, filteredCount := filterAndSort(all, opts.MinScore, limit, p.cfg.MaxEntries)
	ranking.FilteredCandidates = filteredCount
	ranking.SelectedCandidates = len(selected)
	ranking.DroppedByMaxEntries = maxInt(0, filteredCount-len(selected))

	// Phase H.
	results, layering, emptySkips, budgetDrops := p.assembleSnippets(ctx, selected, p.cfg.RelationExpansion)
	ranking.EmittedCandidates = len(results)
	ranking.SkippedEmptySnippet = emptySkips
	ranking.DroppedByBudget = budgetDrops

	p.mu.Lock()
	p.diag = Diagnostics{
		Explainability:    explain,
		Strategy:          decision,
		Layering:          layering,
		RelationExpansion: relStats,
		Ranking:           ranking,
	}
	p.mu.Unlock()

	return results, nil
}

// Diagnostics returns the last search's diagnostics snapshot.
func (p *Pipeline) Diagnostics() Diagnostics {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.diag
}

func topPlannerQueries(queries []client.TypedQuery, n int) []client.TypedQuery {
	if len(queries) <= n {
		return queries
	}
	return queries[:n]
}

// gatherContexts concatenates memories (always), resources (iff decided),
// skills (iff decided), tagged with kind (phase C).
func gatherContexts(resp client.SearchResponse, decision planner.Decision) []client.Context {
	var out []client.Context
	out = append(out, taggedContexts(resp.Memories, planner.KindMemory)...)
	if decision.IncludeResources {
		out = append(out, taggedContexts(resp.Resources, planner.KindResource)...)
	}
	if decision.IncludeSkills {
		out = append(out, taggedContexts(resp.Skills, planner.KindSkill)...)
	}
	return out
}

// taggedContexts forces ContextType to kind so downstream ranking never has
// to re-derive it from the store's own (possibly absent) context_type field.
func taggedContexts(ctxs []client.Context, kind planner.Kind) []client.Context {
	out := make([]client.Context, len(ctxs))
	for i, c := range ctxs {
		c.ContextType = string(kind)
		out[i] = c
	}
	return out
}
