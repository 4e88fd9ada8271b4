package bridge

import "time"

// Stats is the per-(agentId,endpoint) snapshot the bridge exposes (spec §4.4).
type Stats struct {
	EventsQueued             int64
	MessageEventsQueued      int64
	ToolEventsQueued         int64
	CommitEventsQueued       int64
	SyncCommits              int64
	AsyncCommits             int64
	PeriodicCommitsByMessage int64
	PeriodicCommitsByTime    int64
	SessionEndCommits        int64
	ResetCommits             int64
	ManualCommits            int64

	LastCommitCause  string
	LastCommitSource string
	LastCommitMode   string
	LastCommitLagMs  int64

	LastPeriodicTrigger string
	LastPeriodicAt      time.Time

	LastEventQueuedAt time.Time
	LastError         string
}
