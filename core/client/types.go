package client

// Context is a store-returned record: a memory, resource, or skill hit.
type Context struct {
	URI             string   `json:"uri"`
	Score           *float64 `json:"score,omitempty"`
	Abstract        string   `json:"abstract,omitempty"`
	Overview        string   `json:"overview,omitempty"`
	MatchReason     string   `json:"match_reason,omitempty"`
	ContextType     string   `json:"context_type,omitempty"`
	TargetDirectories []string `json:"target_directories,omitempty"`
}

// TypedQuery is one entry of a planner QueryPlan.
type TypedQuery struct {
	Query             string   `json:"query"`
	ContextType       string   `json:"context_type"`
	Intent            string   `json:"intent,omitempty"`
	Priority          int      `json:"priority"`
	TargetDirectories []string `json:"target_directories,omitempty"`
}

// QueryPlan is the planner-signal block optionally returned by search.
type QueryPlan struct {
	Queries        []TypedQuery `json:"queries"`
	SessionContext string       `json:"session_context,omitempty"`
	Reasoning      string       `json:"reasoning,omitempty"`
}

// QueryResult reports matched_contexts counts per context_type, the other
// planner signal search optionally returns.
type QueryResult struct {
	ContextType     string `json:"context_type"`
	MatchedContexts int    `json:"matched_contexts"`
}

// SearchRequest is the body for /search/search and /search/find.
type SearchRequest struct {
	Query          string   `json:"query"`
	TargetURI      string   `json:"target_uri,omitempty"`
	SessionID      string   `json:"session_id,omitempty"`
	Limit          int      `json:"limit,omitempty"`
	ScoreThreshold *float64 `json:"score_threshold,omitempty"`
	Filter         string   `json:"filter,omitempty"`
}

// SearchResponse is the result payload of /search/search and /search/find.
type SearchResponse struct {
	Memories    []Context     `json:"memories,omitempty"`
	Resources   []Context     `json:"resources,omitempty"`
	Skills      []Context     `json:"skills,omitempty"`
	QueryPlan   *QueryPlan    `json:"query_plan,omitempty"`
	QueryResults []QueryResult `json:"query_results,omitempty"`
}

// GrepRequest is the body for /search/grep.
type GrepRequest struct {
	URI             string `json:"uri"`
	Pattern         string `json:"pattern"`
	CaseInsensitive bool   `json:"case_insensitive"`
}

// GlobRequest is the body for /search/glob.
type GlobRequest struct {
	Pattern string `json:"pattern"`
	URI     string `json:"uri"`
}

// Session is the result of createSession/getSession.
type Session struct {
	SessionID string `json:"session_id"`
}

// AddMessageResult is the result of addSessionMessage.
type AddMessageResult struct {
	SessionID    string `json:"session_id"`
	MessageCount int    `json:"message_count"`
}

// AddEventsBatchResult is the result of addEventsBatch.
type AddEventsBatchResult struct {
	SessionID string `json:"session_id"`
	Accepted  int    `json:"accepted"`
}

// CommitResult is the result of commitSession.
type CommitResult struct {
	SessionID string `json:"session_id"`
	Cause     string `json:"cause"`
}

// Resource describes a resource ingest request.
type Resource struct {
	Path        string `json:"path"`
	Target      string `json:"target,omitempty"`
	Reason      string `json:"reason,omitempty"`
	Instruction string `json:"instruction,omitempty"`
	Wait        bool   `json:"wait,omitempty"`
	TimeoutMs   int    `json:"timeout,omitempty"`
}

// Skill describes a skill ingest request.
type Skill struct {
	Data      any  `json:"data"`
	Wait      bool `json:"wait,omitempty"`
	TimeoutMs int  `json:"timeout,omitempty"`
}

// Relation is one neighbor returned by the relations endpoint.
type Relation struct {
	URI    string `json:"uri"`
	Reason string `json:"reason,omitempty"`
}

// FSEntry is one row of fsLs/fsTree/fsStat output.
type FSEntry struct {
	URI   string `json:"uri"`
	IsDir bool   `json:"is_dir,omitempty"`
	Size  int64  `json:"size,omitempty"`
}
