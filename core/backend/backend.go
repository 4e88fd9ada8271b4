// Package backend implements the polymorphic MemoryBackend facade: it wires
// C1-C7 (core/client, core/outbox, core/sessionlink, core/bridge,
// core/planner, core/retrieval, core/policy) into the one host-facing
// variant this subsystem provides, plus the per-(agentId,endpoint)
// singleton registry described in spec §5.
package backend

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/openviking/membridge/core/bridge"
	"github.com/openviking/membridge/core/client"
	"github.com/openviking/membridge/core/events"
	"github.com/openviking/membridge/core/memconfig"
	"github.com/openviking/membridge/core/outbox"
	"github.com/openviking/membridge/core/policy"
	"github.com/openviking/membridge/core/retrieval"
	"github.com/openviking/membridge/core/sessionlink"
)

// MemoryBackend is the host-facing interface this subsystem implements one
// variant of (spec §9 "Polymorphism of backends"). The host supports
// multiple memory backends; only OpenVikingBackend is provided here.
type MemoryBackend interface {
	Search(ctx context.Context, query string, opts retrieval.Options) ([]retrieval.Result, error)
	ReadFile(ctx context.Context, relPath string, from, lines int) (text, path string, err error)
	Status(ctx context.Context) (Status, error)
	Sync(ctx context.Context) error
	ProbeEmbeddingAvailability(ctx context.Context) (bool, error)
	ProbeVectorAvailability(ctx context.Context) (bool, error)
	Close() error

	// EnqueueMessage, EnqueueToolResult, EnqueueCommit, and FS* round out the
	// write-path and policy-gated fs surface the interface's read-only
	// methods above don't cover; they live on OpenVikingBackend directly
	// rather than on this interface because the host dispatches them
	// per-session, not per-backend-variant (see OpenVikingBackend below).
}

// Status is a point-in-time snapshot combining outbox depth/health and
// write-bridge commit counters, the "status() -> snapshot" operation named
// in spec §9.
type Status struct {
	Healthy        bool
	HealthError    string
	OutboxStats    outbox.Stats
	BridgeStats    bridge.Stats
	LastSearchedAt time.Time
}

var _ MemoryBackend = (*OpenVikingBackend)(nil)

// OpenVikingBackend is the one MemoryBackend variant this subsystem
// provides: it wires together the store client, outbox, session link
// registry, write bridge, read pipeline, and fs write policy gate for one
// (agentId, endpoint) pair.
type OpenVikingBackend struct {
	cfg      memconfig.Config
	agentID  string
	endpoint string
	logger   *slog.Logger

	httpClient *client.Client
	layers     *client.LayeredReader
	links      *sessionlink.Registry
	outboxQ    *outbox.Outbox
	writeBridg *bridge.Bridge
	pipeline   *retrieval.Pipeline
	gate       *policy.Gate

	mu           sync.Mutex
	lastSearchAt time.Time
}

// New wires C1-C7 for one (agentId, endpoint) pair. sessionStorePath is the
// file backing C3's session link registry; cfg is resolved (memconfig.Resolve
// applied) before wiring so every component sees documented defaults.
func New(cfg memconfig.Config, agentID, endpoint, sessionStorePath string, logger *slog.Logger) (*OpenVikingBackend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	resolved := memconfig.Resolve(cfg)

	httpClient := client.New(resolved.Endpoint, "", resolved.Headers,
		time.Duration(resolved.TimeoutMs)*time.Millisecond, client.WithLogger(logger))

	layers, err := client.NewLayeredReader(httpClient)
	if err != nil {
		return nil, err
	}

	links, err := sessionlink.New(sessionStorePath, sessionCreator{client: httpClient})
	if err != nil {
		return nil, err
	}

	sender := eventSender{client: httpClient}

	var ob *outbox.Outbox
	if resolved.Outbox.Enabled {
		ob = outbox.New(outbox.Config{
			Path:            resolved.Outbox.Path,
			FlushIntervalMs: resolved.Outbox.FlushIntervalMs,
			MaxBatchSize:    resolved.Outbox.MaxBatchSize,
			RetryBaseMs:     resolved.Outbox.RetryBaseMs,
			RetryMaxMs:      resolved.Outbox.RetryMaxMs,
		}, sender, logger)
	}

	wb := bridge.New(resolved, links, bridgeEnqueuer(ob), sender, httpClient, agentID, endpoint, logger)

	pipeline := retrieval.New(resolved.Search, httpClient, layers, links, agentID, endpoint, logger)
	gate := policy.New(resolved.FSWrite)

	b := &OpenVikingBackend{
		cfg:        resolved,
		agentID:    agentID,
		endpoint:   endpoint,
		logger:     logger,
		httpClient: httpClient,
		layers:     layers,
		links:      links,
		outboxQ:    ob,
		writeBridg: wb,
		pipeline:   pipeline,
		gate:       gate,
	}
	if err := b.start(); err != nil {
		return nil, err
	}
	return b, nil
}

// bridgeEnqueuer returns ob typed as bridge.Enqueuer, or nil (the untyped
// nil, not a nil-valued interface) when the outbox is disabled, so the
// bridge's own nil check on the interface value still works.
func bridgeEnqueuer(ob *outbox.Outbox) bridge.Enqueuer {
	if ob == nil {
		return nil
	}
	return ob
}

// start begins the outbox's periodic flush loop, if one exists. Called once
// from New; Outbox.Start is itself idempotent so a caller that also holds a
// Registry never double-starts it.
func (b *OpenVikingBackend) start() error {
	if b.outboxQ != nil {
		return b.outboxQ.Start()
	}
	return nil
}

// Search runs the read pipeline for one query (spec §4.6).
func (b *OpenVikingBackend) Search(ctx context.Context, query string, opts retrieval.Options) ([]retrieval.Result, error) {
	b.mu.Lock()
	b.lastSearchAt = time.Now()
	b.mu.Unlock()
	return b.pipeline.Search(ctx, query, opts)
}

// ReadFile implements the direct host read-file path.
func (b *OpenVikingBackend) ReadFile(ctx context.Context, relPath string, from, lines int) (string, string, error) {
	return b.pipeline.ReadFile(ctx, relPath, from, lines)
}

// EnqueueMessage hands a host message event to the write bridge.
func (b *OpenVikingBackend) EnqueueMessage(ctx context.Context, sessionKey string, role events.Role, content string) (bool, error) {
	return b.writeBridg.EnqueueMessage(ctx, sessionKey, role, content)
}

// EnqueueToolResult hands a host tool-result event to the write bridge.
func (b *OpenVikingBackend) EnqueueToolResult(ctx context.Context, sessionKey, eventID, jsonContent string) (bool, error) {
	return b.writeBridg.EnqueueToolResult(ctx, sessionKey, eventID, jsonContent)
}

// EnqueueCommit hands an explicit commit (session_end, reset, manual) to
// the write bridge.
func (b *OpenVikingBackend) EnqueueCommit(ctx context.Context, sessionKey, cause, source string) (bool, error) {
	return b.writeBridg.EnqueueCommit(ctx, sessionKey, cause, source)
}

// FSMkdir vets uri through C7 then issues the mkdir via C1.
func (b *OpenVikingBackend) FSMkdir(ctx context.Context, uri string) error {
	normalized, err := b.gate.Mkdir(uri)
	if err != nil {
		return err
	}
	return b.httpClient.FSMkdir(ctx, normalized)
}

// FSRm vets uri through C7 then issues the delete via C1.
func (b *OpenVikingBackend) FSRm(ctx context.Context, uri string, recursive bool) error {
	normalized, err := b.gate.Rm(uri, recursive)
	if err != nil {
		return err
	}
	return b.httpClient.FSRm(ctx, normalized, recursive)
}

// FSMv vets both endpoints through C7 then issues the move via C1.
func (b *OpenVikingBackend) FSMv(ctx context.Context, fromURI, toURI string) error {
	normalizedFrom, normalizedTo, err := b.gate.Mv(fromURI, toURI)
	if err != nil {
		return err
	}
	return b.httpClient.FSMv(ctx, normalizedFrom, normalizedTo)
}

// Status reports outbox depth/health and write-bridge commit counters.
func (b *OpenVikingBackend) Status(ctx context.Context) (Status, error) {
	b.mu.Lock()
	lastSearch := b.lastSearchAt
	b.mu.Unlock()

	st := Status{
		Healthy:        true,
		BridgeStats:    b.writeBridg.GetStats(),
		LastSearchedAt: lastSearch,
	}
	if b.outboxQ != nil {
		st.OutboxStats = b.outboxQ.GetStats()
	}
	if err := b.httpClient.Health(ctx); err != nil {
		st.Healthy = false
		st.HealthError = err.Error()
	}
	return st, nil
}

// Sync forces an out-of-cycle outbox flush. A backend running in direct
// (outbox-disabled) mode has nothing buffered to flush, so Sync is a no-op.
func (b *OpenVikingBackend) Sync(ctx context.Context) error {
	if b.outboxQ == nil {
		return nil
	}
	_, err := b.outboxQ.Flush(ctx)
	return err
}

// ProbeEmbeddingAvailability checks whether the store's embedding model
// (reported via the vlm observer) is reachable.
func (b *OpenVikingBackend) ProbeEmbeddingAvailability(ctx context.Context) (bool, error) {
	_, err := b.httpClient.ObserverVlm(ctx)
	return err == nil, nil
}

// ProbeVectorAvailability checks whether the store's vector database
// (vikingdb) is reachable.
func (b *OpenVikingBackend) ProbeVectorAvailability(ctx context.Context) (bool, error) {
	_, err := b.httpClient.ObserverVikingdb(ctx)
	return err == nil, nil
}

// Close stops the outbox's flush loop and releases the layer cache.
func (b *OpenVikingBackend) Close() error {
	if b.outboxQ != nil {
		b.outboxQ.Stop()
	}
	b.layers.Close()
	return nil
}
