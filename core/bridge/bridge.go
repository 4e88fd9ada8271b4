// Package bridge implements C4, the Write Bridge: translates host session
// events into store events, enqueues them via the outbox or the store
// client directly, and fires commit triggers.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/openviking/membridge/core/client"
	"github.com/openviking/membridge/core/events"
	"github.com/openviking/membridge/core/memconfig"
	"github.com/openviking/membridge/core/ovrerrors"
	"github.com/openviking/membridge/core/sessionlink"
)

// Linker is the session-link dependency, implemented by
// *sessionlink.Registry in production.
type Linker interface {
	EnsureLink(ctx context.Context, sessionKey string) (string, error)
	BumpSeq(sessionKey string, delta int) (int64, error)
	MarkCommitQueued(sessionKey string) error
	Get(sessionKey string) (*sessionlink.Link, error)
}

// Enqueuer is the outbox dependency, implemented by *outbox.Outbox.
type Enqueuer interface {
	Enqueue(sessionKey, sessionID string, evs []events.Event) (int, error)
}

// DirectSender bypasses the outbox, calling the store synchronously.
// Implemented by an adapter over core/client.Client.AddEventsBatch.
type DirectSender interface {
	Send(ctx context.Context, sessionKey, sessionID string, evs []events.Event) error
}

// Committer issues a synchronous commit. Implemented by
// core/client.Client.CommitSession.
type Committer interface {
	CommitSession(ctx context.Context, sessionID, cause string) (client.CommitResult, error)
}

// Bridge is one per-(agentId,endpoint) Write Bridge instance (spec §4.4).
type Bridge struct {
	cfg       memconfig.Config
	linker    Linker
	outbox    Enqueuer
	direct    DirectSender
	committer Committer
	logger    *slog.Logger

	agentID  string
	endpoint string

	mu    sync.Mutex
	stats Stats

	now func() time.Time
}

// New builds a Bridge. outbox may be nil when cfg.Outbox.Enabled is false;
// direct may be nil when it is true. Both are accepted so callers can wire
// either delivery path independent of config at construction time.
func New(cfg memconfig.Config, linker Linker, outbox Enqueuer, direct DirectSender, committer Committer, agentID, endpoint string, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		cfg:       cfg,
		linker:    linker,
		outbox:    outbox,
		direct:    direct,
		committer: committer,
		logger:    logger,
		agentID:   agentID,
		endpoint:  endpoint,
		now:       time.Now,
	}
}

func (b *Bridge) logFields(sessionKey string) []any {
	return []any{"component", "bridge", "agent_id", b.agentID, "endpoint", b.endpoint, "session_key", sessionKey}
}

// EnqueueMessage builds a message event and enqueues it, applying content
// hygiene: trimmed, empty content is a clean no-op.
func (b *Bridge) EnqueueMessage(ctx context.Context, sessionKey string, role events.Role, content string) (bool, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return false, nil
	}
	ev := events.NewMessage(uuid.NewString(), role, trimmed)
	return b.enqueue(ctx, sessionKey, []events.Event{ev}, false)
}

// EnqueueToolResult builds a tool_result event and enqueues it.
func (b *Bridge) EnqueueToolResult(ctx context.Context, sessionKey, eventID, jsonContent string) (bool, error) {
	trimmed := strings.TrimSpace(jsonContent)
	if trimmed == "" {
		return false, nil
	}
	ev := events.NewToolResult(eventID, events.TruncateContent(trimmed))
	return b.enqueue(ctx, sessionKey, []events.Event{ev}, false)
}

// enqueue implements the 5-step enqueue contract (spec §4.4). skipCommitTriggers
// suppresses step 5's trigger evaluation, used when this call is itself a
// trigger-fired or explicit commit so triggers never recurse.
func (b *Bridge) enqueue(ctx context.Context, sessionKey string, evs []events.Event, skipCommitTriggers bool) (bool, error) {
	// Step 1.
	if !b.cfg.Enabled || !b.cfg.DualWrite {
		return false, nil
	}

	// Step 2.
	sessionID, err := b.linker.EnsureLink(ctx, sessionKey)
	if err != nil {
		b.recordError(err)
		b.logger.Warn("bridge: session link unavailable, dropping write", append(b.logFields(sessionKey), "error", err)...)
		return false, nil
	}

	// Step 3.
	if b.cfg.Outbox.Enabled && b.outbox != nil {
		if _, err := b.outbox.Enqueue(sessionKey, sessionID, evs); err != nil {
			b.recordError(err)
			return false, err
		}
	} else {
		if err := b.direct.Send(ctx, sessionKey, sessionID, evs); err != nil {
			b.recordError(err)
			return false, err
		}
	}

	// Step 4.
	b.recordEnqueued(evs)

	// Step 5.
	containsCommit := false
	for _, ev := range evs {
		if ev.IsCommit() {
			containsCommit = true
			break
		}
	}
	if !containsCommit && !skipCommitTriggers {
		seq, err := b.linker.BumpSeq(sessionKey, len(evs))
		if err != nil {
			b.logger.Warn("bridge: seq bump failed, skipping trigger evaluation", append(b.logFields(sessionKey), "error", err)...)
		} else {
			b.evaluateCommitTriggers(ctx, sessionKey, seq)
		}
	}

	return true, nil
}

// evaluateCommitTriggers implements the message-threshold / time-threshold
// rules. It is called only from a path with skipCommitTriggers=false, so the
// commit event it may enqueue (via enqueueTriggeredCommit, which always
// passes skipCommitTriggers=true) never re-enters this function.
func (b *Bridge) evaluateCommitTriggers(ctx context.Context, sessionKey string, seq int64) {
	triggers := b.cfg.Commit.Triggers

	if triggers.EveryNMessages > 0 && seq%int64(triggers.EveryNMessages) == 0 {
		b.enqueueTriggeredCommit(ctx, sessionKey, "message-threshold")
		return
	}

	if triggers.EveryNMinutes > 0 {
		link, err := b.linker.Get(sessionKey)
		if err != nil || link == nil || link.LastCommitAt.IsZero() {
			return
		}
		if b.now().Sub(link.LastCommitAt) >= time.Duration(triggers.EveryNMinutes)*time.Minute {
			b.enqueueTriggeredCommit(ctx, sessionKey, "time-threshold")
		}
	}
}

func (b *Bridge) enqueueTriggeredCommit(ctx context.Context, sessionKey, source string) {
	ev := events.NewCommit(uuid.NewString(), "periodic", source)
	queued, err := b.enqueue(ctx, sessionKey, []events.Event{ev}, true)
	if err != nil || !queued {
		if err != nil {
			b.logger.Warn("bridge: periodic commit trigger failed", append(b.logFields(sessionKey), "error", err)...)
		}
		return
	}

	b.mu.Lock()
	b.stats.LastPeriodicTrigger = source
	b.stats.LastPeriodicAt = b.now()
	b.mu.Unlock()

	b.recordCommitStats("periodic", source, "async")
	if err := b.linker.MarkCommitQueued(sessionKey); err != nil {
		b.logger.Warn("bridge: markCommitQueued failed after periodic trigger", append(b.logFields(sessionKey), "error", err)...)
	}
}

// EnqueueCommit implements the explicit-commit contract (spec §4.4).
func (b *Bridge) EnqueueCommit(ctx context.Context, sessionKey, cause, source string) (bool, error) {
	triggers := b.cfg.Commit.Triggers
	if cause == "session_end" && !triggers.SessionEnd {
		return false, ovrerrors.Validation("enqueue-commit", fmt.Errorf("session_end commits require commit.triggers.session_end"))
	}
	if cause == "reset" && !triggers.Reset {
		return false, ovrerrors.Validation("enqueue-commit", fmt.Errorf("reset commits require commit.triggers.reset"))
	}

	if !b.cfg.Enabled || !b.cfg.DualWrite {
		return false, nil
	}

	sessionID, err := b.linker.EnsureLink(ctx, sessionKey)
	if err != nil {
		b.recordError(err)
		return false, nil
	}

	if b.cfg.Commit.Mode == memconfig.CommitSync {
		if _, err := b.committer.CommitSession(ctx, sessionID, cause); err != nil {
			b.recordError(err)
			return false, err
		}
		// Sync commits bump commitEventsQueued directly: nothing actually
		// went through enqueue/recordEnqueued on this path, but the counter
		// name means "commits observed by the bridge," not literally
		// "events enqueued" (preserved open question).
		b.mu.Lock()
		b.stats.CommitEventsQueued++
		b.stats.EventsQueued++
		b.mu.Unlock()
		b.recordCommitStats(cause, source, "sync")
		if err := b.linker.MarkCommitQueued(sessionKey); err != nil {
			b.logger.Warn("bridge: markCommitQueued failed after sync commit", append(b.logFields(sessionKey), "error", err)...)
		}
		return true, nil
	}

	ev := events.NewCommit(uuid.NewString(), cause, source)
	queued, err := b.enqueue(ctx, sessionKey, []events.Event{ev}, true)
	if err != nil {
		return false, err
	}
	if !queued {
		return false, nil
	}
	b.recordCommitStats(cause, source, "async")
	if err := b.linker.MarkCommitQueued(sessionKey); err != nil {
		b.logger.Warn("bridge: markCommitQueued failed after async commit", append(b.logFields(sessionKey), "error", err)...)
	}
	return true, nil
}

func (b *Bridge) recordEnqueued(evs []events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ev := range evs {
		b.stats.EventsQueued++
		switch ev.Type {
		case events.TypeMessage:
			b.stats.MessageEventsQueued++
		case events.TypeToolResult:
			b.stats.ToolEventsQueued++
		case events.TypeCommit:
			b.stats.CommitEventsQueued++
		}
	}
	b.stats.LastEventQueuedAt = b.now()
}

func (b *Bridge) recordCommitStats(cause, source, mode string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.stats.LastCommitCause = cause
	b.stats.LastCommitSource = source
	b.stats.LastCommitMode = mode
	if !b.stats.LastEventQueuedAt.IsZero() {
		b.stats.LastCommitLagMs = now.Sub(b.stats.LastEventQueuedAt).Milliseconds()
	}

	if mode == "sync" {
		b.stats.SyncCommits++
	} else {
		b.stats.AsyncCommits++
	}

	switch {
	case cause == "periodic" && source == "message-threshold":
		b.stats.PeriodicCommitsByMessage++
	case cause == "periodic" && source == "time-threshold":
		b.stats.PeriodicCommitsByTime++
	case cause == "session_end":
		b.stats.SessionEndCommits++
	case cause == "reset":
		b.stats.ResetCommits++
	default:
		b.stats.ManualCommits++
	}
}

func (b *Bridge) recordError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stats.LastError = err.Error()
}

// GetStats returns a point-in-time snapshot of the bridge's counters.
func (b *Bridge) GetStats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}
