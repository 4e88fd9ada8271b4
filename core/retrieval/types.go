// Package retrieval implements C6, the Read Pipeline: a multi-phase search
// that turns a query into an ordered list of snippets fit for injection into
// an agent's prompt, plus a direct readFile path.
package retrieval

import (
	"github.com/openviking/membridge/core/client"
	"github.com/openviking/membridge/core/memconfig"
	"github.com/openviking/membridge/core/planner"
)

// Options narrows a single Search call beyond the configured defaults.
type Options struct {
	MaxResults int
	MinScore   *float64
	SessionKey string
}

// Result is one emitted, ready-to-inject snippet row.
type Result struct {
	Path      string
	StartLine int
	EndLine   int
	Score     float64
	Snippet   string
	Source    string
}

// candidate is the transient ranking unit threaded through phases E-H.
type candidate struct {
	uri         string
	kind        planner.Kind
	score       float64
	rank        float64
	abstract    string
	overview    string
	matchReason string

	origin    string // "direct" or "relation"
	depth     int
	anchorURI string
}

// Explainability captures the primary-search shape for one search call.
type Explainability struct {
	TypedQueries      []client.TypedQuery
	ResultCount       int
	TopPlannerQueries []client.TypedQuery
	FallbackKind      string
	FallbackHits      int
}

// Layering captures phase H's snippet-assembly shape.
type Layering struct {
	RequestedLayer    memconfig.ReadLayer
	Entries           int
	SnippetChars      int
	InjectedChars     int
	LayerCounts       map[string]int
	TruncatedByBudget bool
}

// RelationExpansionStats captures phase F's BFS shape.
type RelationExpansionStats struct {
	Enabled            bool
	BoostApplied       bool
	MaxDepth           int
	MaxAnchors         int
	MaxExpandedEntries int
	Anchors            int
	SeedAnchors        int
	RelationQueries    int
	Discovered         int
}

// Ranking captures phases E-G's candidate-flow shape.
type Ranking struct {
	TotalCandidates     int
	DirectCandidates    int
	RelationCandidates  int
	FilteredCandidates  int
	SelectedCandidates  int
	EmittedCandidates   int
	DroppedByMaxEntries int
	DroppedByBudget     int
	SkippedEmptySnippet int
}

// Diagnostics is the per-(agentId,endpoint) snapshot recorded after each
// search call.
type Diagnostics struct {
	Explainability    Explainability
	Strategy          planner.Decision
	Layering          Layering
	RelationExpansion RelationExpansionStats
	Ranking           Ranking
}
