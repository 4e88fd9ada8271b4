package retrieval_test

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/openviking/membridge/core/client"
	"github.com/openviking/membridge/core/memconfig"
	"github.com/openviking/membridge/core/retrieval"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu         sync.Mutex
	searchResp client.SearchResponse
	searchErr  error
	findResp   client.SearchResponse
	findErr    error
	relations  map[string][]client.Relation

	relationCalls int
}

func (f *fakeStore) Search(ctx context.Context, req client.SearchRequest) (client.SearchResponse, error) {
	return f.searchResp, f.searchErr
}

func (f *fakeStore) Find(ctx context.Context, req client.SearchRequest) (client.SearchResponse, error) {
	return f.findResp, f.findErr
}

func (f *fakeStore) Relations(ctx context.Context, uri string) ([]client.Relation, error) {
	f.mu.Lock()
	f.relationCalls++
	f.mu.Unlock()
	return f.relations[uri], nil
}

type fakeLayers struct {
	overviews map[string]string
	abstracts map[string]string
	reads     map[string]string
}

func (f *fakeLayers) Abstract(ctx context.Context, uri string) (string, error) { return f.abstracts[uri], nil }
func (f *fakeLayers) Overview(ctx context.Context, uri string) (string, error) { return f.overviews[uri], nil }
func (f *fakeLayers) Read(ctx context.Context, uri string) (string, error)     { return f.reads[uri], nil }

func floatPtr(f float64) *float64 { return &f }

// TestPipeline_BudgetTruncation is spec §8 scenario 3.
func TestPipeline_BudgetTruncation(t *testing.T) {
	cfg := memconfig.Resolve(memconfig.Config{}).Search
	cfg.MaxEntries = 2
	cfg.MaxSnippetChars = 80
	cfg.MaxInjectedChars = 50

	overviewA := strings.Repeat("A", 80)
	overviewB := strings.Repeat("B", 80)
	store := &fakeStore{searchResp: client.SearchResponse{
		Memories: []client.Context{
			{URI: "viking://memories/a", Overview: overviewA},
			{URI: "viking://memories/b", Overview: overviewB},
		},
	}}
	layers := &fakeLayers{}

	p := retrieval.New(cfg, store, layers, nil, "agent", "ep", nil)
	results, err := p.Search(context.Background(), "what happened", retrieval.Options{})
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.LessOrEqual(t, len(results[0].Snippet), 50)

	diag := p.Diagnostics()
	assert.True(t, diag.Layering.TruncatedByBudget)
	assert.Equal(t, 1, diag.Ranking.DroppedByBudget)
}

// TestPipeline_RelationSeedFromPlannerDirectory is spec §8 scenario 5.
func TestPipeline_RelationSeedFromPlannerDirectory(t *testing.T) {
	cfg := memconfig.Resolve(memconfig.Config{}).Search
	cfg.RelationExpansion = true
	cfg.RelationMaxDepth = 1
	cfg.RelationMaxAnchors = 2
	cfg.RelationMaxExpandedEntries = 2
	cfg.ReadLayer = memconfig.LayerL1
	cfg.RelationSeedAnchorScore = 0.4

	rootURI := "viking://resource/docs/root"
	fromSeedURI := "viking://resource/docs/from-seed"

	store := &fakeStore{
		searchResp: client.SearchResponse{
			QueryPlan: &client.QueryPlan{
				Queries: []client.TypedQuery{
					{Query: "q", ContextType: "resource", Priority: 1, TargetDirectories: []string{rootURI}},
				},
			},
		},
		findResp: client.SearchResponse{},
		relations: map[string][]client.Relation{
			rootURI: {{URI: fromSeedURI, Reason: "seed-link"}},
		},
	}
	layers := &fakeLayers{overviews: map[string]string{fromSeedURI: "the from-seed overview"}}

	p := retrieval.New(cfg, store, layers, nil, "agent", "ep", nil)
	results, err := p.Search(context.Background(), "find docs", retrieval.Options{})
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, fromSeedURI, results[0].Path)
	assert.Contains(t, results[0].Snippet, "[relation-expanded")

	diag := p.Diagnostics()
	assert.Equal(t, 1, diag.RelationExpansion.SeedAnchors)
}

func TestPipeline_EmptyQueryReturnsEmpty(t *testing.T) {
	cfg := memconfig.Resolve(memconfig.Config{}).Search
	store := &fakeStore{}
	layers := &fakeLayers{}
	p := retrieval.New(cfg, store, layers, nil, "agent", "ep", nil)

	results, err := p.Search(context.Background(), "   ", retrieval.Options{})
	require.NoError(t, err)
	assert.Nil(t, results)
}

func TestPipeline_FallbackToFindWhenPrimaryEmpty(t *testing.T) {
	cfg := memconfig.Resolve(memconfig.Config{}).Search
	store := &fakeStore{
		searchResp: client.SearchResponse{},
		findResp: client.SearchResponse{
			Memories: []client.Context{{URI: "viking://memories/x", Overview: "found via find"}},
		},
	}
	layers := &fakeLayers{}
	p := retrieval.New(cfg, store, layers, nil, "agent", "ep", nil)

	results, err := p.Search(context.Background(), "anything", retrieval.Options{})
	require.NoError(t, err)
	require.Len(t, results, 1)

	diag := p.Diagnostics()
	assert.Equal(t, "find", diag.Explainability.FallbackKind)
	assert.Equal(t, 1, diag.Explainability.FallbackHits)
}

// TestPipeline_EmittedCountRespectsAllLimits is the §8 quantified invariant:
// emitted count <= min(maxEntries, limit, options.maxResults).
func TestPipeline_EmittedCountRespectsAllLimits(t *testing.T) {
	cfg := memconfig.Resolve(memconfig.Config{}).Search
	cfg.MaxEntries = 5
	cfg.Limit = 10

	var memories []client.Context
	for i := 0; i < 20; i++ {
		memories = append(memories, client.Context{URI: "viking://memories/m", Score: floatPtr(0.5), Overview: "text"})
	}
	store := &fakeStore{searchResp: client.SearchResponse{Memories: memories}}
	layers := &fakeLayers{}

	p := retrieval.New(cfg, store, layers, nil, "agent", "ep", nil)
	results, err := p.Search(context.Background(), "q", retrieval.Options{MaxResults: 3})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(results), 3)
}

// TestPipeline_RelationQueryBudget is the §8 quantified invariant: total
// C1.relations calls <= max(maxAnchors, maxExpandedEntries*maxDepth).
func TestPipeline_RelationQueryBudget(t *testing.T) {
	cfg := memconfig.Resolve(memconfig.Config{}).Search
	cfg.RelationExpansion = true
	cfg.RelationMaxDepth = 3
	cfg.RelationMaxAnchors = 2
	cfg.RelationMaxExpandedEntries = 4

	relations := map[string][]client.Relation{}
	for i := 0; i < 50; i++ {
		uri := "viking://resource/n" + string(rune('a'+i%26))
		next := "viking://resource/n" + string(rune('a'+(i+1)%26))
		relations[uri] = []client.Relation{{URI: next}}
	}

	store := &fakeStore{
		searchResp: client.SearchResponse{
			Memories: []client.Context{
				{URI: "viking://resource/na", Score: floatPtr(0.9), Overview: "x"},
				{URI: "viking://resource/nb", Score: floatPtr(0.8), Overview: "y"},
			},
		},
		relations: relations,
	}
	layers := &fakeLayers{}

	p := retrieval.New(cfg, store, layers, nil, "agent", "ep", nil)
	_, err := p.Search(context.Background(), "q", retrieval.Options{})
	require.NoError(t, err)

	bound := cfg.RelationMaxAnchors
	if alt := cfg.RelationMaxExpandedEntries * cfg.RelationMaxDepth; alt > bound {
		bound = alt
	}
	assert.LessOrEqual(t, store.relationCalls, bound)
}

func TestReadFile_NormalizesBarePath(t *testing.T) {
	store := &fakeStore{}
	layers := &fakeLayers{reads: map[string]string{"viking://resource/abs/path": "line1\nline2\nline3"}}
	cfg := memconfig.Resolve(memconfig.Config{}).Search

	p := retrieval.New(cfg, store, layers, nil, "agent", "ep", nil)
	text, uri, err := p.ReadFile(context.Background(), "/abs/path", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "viking://resource/abs/path", uri)
	assert.Equal(t, "line1\nline2\nline3", text)
}

func TestReadFile_PassesThroughVikingURI(t *testing.T) {
	store := &fakeStore{}
	layers := &fakeLayers{reads: map[string]string{"viking://resource/docs/x": "a\nb\nc\nd\ne"}}
	cfg := memconfig.Resolve(memconfig.Config{}).Search

	p := retrieval.New(cfg, store, layers, nil, "agent", "ep", nil)
	text, uri, err := p.ReadFile(context.Background(), "viking://resource/docs/x", 2, 2)
	require.NoError(t, err)
	assert.Equal(t, "viking://resource/docs/x", uri)
	assert.Equal(t, "b\nc", text)
}
