// Package memconfig holds the Resolved Memory Config (spec §3) and its
// documented defaults. Loading a full process config tree (merging env,
// flags, and files) is the host's job; this package exposes Resolve, which
// the host calls after its own YAML unmarshal to apply defaulting rules.
package memconfig

import "strings"

// CommitMode selects synchronous or asynchronous commit delivery.
type CommitMode string

const (
	CommitSync  CommitMode = "sync"
	CommitAsync CommitMode = "async"
)

// Strategy selects the retrieval planner's priority strategy.
type Strategy string

const (
	StrategyAuto          Strategy = "auto"
	StrategyMemoryFirst   Strategy = "memory_first"
	StrategyResourceFirst Strategy = "resource_first"
	StrategySkillFirst    Strategy = "skill_first"
)

// ReadLayer selects the content fidelity tier for snippet assembly.
type ReadLayer string

const (
	LayerL0         ReadLayer = "l0"
	LayerL1         ReadLayer = "l1"
	LayerL2         ReadLayer = "l2"
	LayerProgressive ReadLayer = "progressive"
)

// CommitTriggers controls when the Write Bridge fires automatic commits.
type CommitTriggers struct {
	SessionEnd     bool `yaml:"session_end"`
	Reset          bool `yaml:"reset"`
	EveryNMessages int  `yaml:"every_n_messages"`
	EveryNMinutes  int  `yaml:"every_n_minutes"`
}

// CommitConfig groups commit mode and trigger settings.
type CommitConfig struct {
	Mode     CommitMode     `yaml:"mode"`
	Triggers CommitTriggers `yaml:"triggers"`
}

// OutboxConfig configures the durable write-ahead queue.
type OutboxConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Path            string `yaml:"path"`
	FlushIntervalMs int    `yaml:"flush_interval_ms"`
	MaxBatchSize    int    `yaml:"max_batch_size"`
	RetryBaseMs     int    `yaml:"retry_base_ms"`
	RetryMaxMs      int    `yaml:"retry_max_ms"`
}

// SearchConfig configures the retrieval planner and read pipeline.
type SearchConfig struct {
	Limit          int      `yaml:"limit"`
	ScoreThreshold *float64 `yaml:"score_threshold"`
	TargetURI      string   `yaml:"target_uri"`

	IncludeResources bool     `yaml:"include_resources"`
	IncludeSkills    bool     `yaml:"include_skills"`
	Strategy         Strategy `yaml:"strategy"`
	ReadLayer        ReadLayer `yaml:"read_layer"`

	MaxEntries      int `yaml:"max_entries"`
	MaxSnippetChars int `yaml:"max_snippet_chars"`
	MaxInjectedChars int `yaml:"max_injected_chars"`

	RelationExpansion              bool    `yaml:"relation_expansion"`
	RelationMaxDepth               int     `yaml:"relation_max_depth"`
	RelationMaxAnchors             int     `yaml:"relation_max_anchors"`
	RelationMaxExpandedEntries     int     `yaml:"relation_max_expanded_entries"`
	RelationSeedAnchorScore        float64 `yaml:"relation_seed_anchor_score"`
	RelationPriorityBudgetBoost    bool    `yaml:"relation_priority_budget_boost"`
	RelationPriorityDepthBonus     int     `yaml:"relation_priority_depth_bonus"`
	RelationPriorityAnchorsBonus   int     `yaml:"relation_priority_anchors_bonus"`
	RelationPriorityExpandedBonus  int     `yaml:"relation_priority_expanded_bonus"`
}

// FSWriteConfig configures the FS Write Policy Gate.
type FSWriteConfig struct {
	Enabled           bool     `yaml:"enabled"`
	AllowUriPrefixes  []string `yaml:"allow_uri_prefixes"`
	DenyUriPrefixes   []string `yaml:"deny_uri_prefixes"`
	ProtectedUris     []string `yaml:"protected_uris"`
	AllowRecursiveRm  bool     `yaml:"allow_recursive_rm"`
}

// Config is the Resolved Memory Config (spec §3), plus the two host-level
// gates the Write Bridge's enqueue contract checks first: Enabled (the
// memory backend as a whole) and DualWrite (mirror host events to the
// store at all). Neither is part of §3's enumerated settings block; both
// are host wiring, carried here because the bridge needs them.
type Config struct {
	Enabled   bool `yaml:"enabled"`
	DualWrite bool `yaml:"dual_write"`

	Endpoint string            `yaml:"endpoint"`
	TimeoutMs int              `yaml:"timeout_ms"`
	Headers  map[string]string `yaml:"headers"`

	Commit  CommitConfig  `yaml:"commit"`
	Outbox  OutboxConfig  `yaml:"outbox"`
	Search  SearchConfig  `yaml:"search"`
	FSWrite FSWriteConfig `yaml:"fs_write"`
}

// Documented defaults (spec §3).
const (
	DefaultLimit            = 10
	DefaultMaxEntries       = 6
	DefaultMaxSnippetChars  = 560
	DefaultMaxInjectedChars = 3200
	DefaultFlushIntervalMs  = 2000
	DefaultRetryBaseMs      = 1000
	DefaultRetryMaxMs       = 60000
	DefaultEveryNMessages   = 24
	DefaultEveryNMinutes    = 12
	DefaultMaxBatchSize     = 50
	DefaultTimeoutMs        = 10000
)

// Resolve applies documented defaults to zero/negative fields. It never
// mutates cfg in place; it returns a defaulted copy.
func Resolve(cfg Config) Config {
	out := cfg

	if out.TimeoutMs <= 0 {
		out.TimeoutMs = DefaultTimeoutMs
	}
	out.Endpoint = strings.TrimRight(out.Endpoint, "/")

	if out.Search.Limit <= 0 {
		out.Search.Limit = DefaultLimit
	}
	if out.Search.MaxEntries <= 0 {
		out.Search.MaxEntries = DefaultMaxEntries
	}
	if out.Search.MaxSnippetChars <= 0 {
		out.Search.MaxSnippetChars = DefaultMaxSnippetChars
	}
	if out.Search.MaxInjectedChars <= 0 {
		out.Search.MaxInjectedChars = DefaultMaxInjectedChars
	}
	if out.Search.Strategy == "" {
		out.Search.Strategy = StrategyAuto
	}
	if out.Search.ReadLayer == "" {
		out.Search.ReadLayer = LayerProgressive
	}

	if out.Outbox.FlushIntervalMs <= 0 {
		out.Outbox.FlushIntervalMs = DefaultFlushIntervalMs
	}
	if out.Outbox.MaxBatchSize <= 0 {
		out.Outbox.MaxBatchSize = DefaultMaxBatchSize
	}
	if out.Outbox.RetryBaseMs <= 0 {
		out.Outbox.RetryBaseMs = DefaultRetryBaseMs
	}
	if out.Outbox.RetryMaxMs <= 0 {
		out.Outbox.RetryMaxMs = DefaultRetryMaxMs
	}

	if out.Commit.Mode == "" {
		out.Commit.Mode = CommitAsync
	}
	if out.Commit.Triggers.EveryNMessages <= 0 {
		out.Commit.Triggers.EveryNMessages = DefaultEveryNMessages
	}
	if out.Commit.Triggers.EveryNMinutes <= 0 {
		out.Commit.Triggers.EveryNMinutes = DefaultEveryNMinutes
	}

	return out
}
