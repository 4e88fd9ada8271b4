// Package outbox implements C2: a persistent, ordered, at-least-once queue
// of event batches with exponential backoff, backed by a single
// append-oriented JSON-lines file per host agent.
package outbox

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/openviking/membridge/core/events"
	"github.com/openviking/membridge/core/ovrerrors"
)

// Sender delivers one item's events to the store. Implemented by
// core/backend's adapter over core/client.Client.AddEventsBatch.
type Sender interface {
	Send(ctx context.Context, sessionKey, sessionID string, evs []events.Event) error
}

// Config configures an Outbox instance (spec §3's outbox{} block, already
// defaulted by memconfig.Resolve).
type Config struct {
	Path            string
	FlushIntervalMs int
	MaxBatchSize    int
	RetryBaseMs     int
	RetryMaxMs      int
}

// Stats is the snapshot returned by GetStats.
type Stats struct {
	Depth               int
	OldestItemAge       time.Duration
	ItemsReady          int
	TimeUntilNextReady  time.Duration
	LastFlushDuration   time.Duration
	LastFlushSuccess    int
	LastFlushError      int
	TotalEnqueued       int
	TotalSent           int
	TotalFailed         int
	LastError           string
	MaxAttempts         int
}

// Outbox is one durable per-agent queue (spec §4.2, §5).
type Outbox struct {
	cfg    Config
	sender Sender
	logger *slog.Logger

	mu    sync.Mutex
	items []*Item

	flushMu  sync.Mutex
	flushing bool

	totalEnqueued int
	totalSent     int
	totalFailed   int
	lastError     string
	lastFlushDur  time.Duration
	lastFlushOK   int
	lastFlushErr  int

	ticker   *time.Ticker
	stopCh   chan struct{}
	wg       sync.WaitGroup
	started  bool
	now      func() time.Time
}

// New creates an Outbox over cfg. The file is not read until Start.
func New(cfg Config, sender Sender, logger *slog.Logger) *Outbox {
	if logger == nil {
		logger = slog.Default()
	}
	return &Outbox{
		cfg:    cfg,
		sender: sender,
		logger: logger,
		now:    time.Now,
	}
}

// Start loads persisted items (skipping malformed lines) and begins the
// periodic flush timer.
func (o *Outbox) Start() error {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return nil
	}
	o.started = true
	o.mu.Unlock()

	if err := o.load(); err != nil {
		return err
	}

	interval := time.Duration(o.cfg.FlushIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = 2 * time.Second
	}
	o.ticker = time.NewTicker(interval)
	o.stopCh = make(chan struct{})

	o.wg.Add(1)
	go o.flushLoop()

	return nil
}

func (o *Outbox) flushLoop() {
	defer o.wg.Done()
	for {
		select {
		case <-o.ticker.C:
			if _, err := o.Flush(context.Background()); err != nil {
				o.logger.Warn("outbox periodic flush error", "error", err)
			}
		case <-o.stopCh:
			return
		}
	}
}

// Stop cancels the periodic timer. It is cooperative: an in-flight flush
// (and the send it owns) completes on its own; Stop does not interrupt it.
func (o *Outbox) Stop() {
	o.mu.Lock()
	if !o.started {
		o.mu.Unlock()
		return
	}
	o.started = false
	o.mu.Unlock()

	if o.ticker != nil {
		o.ticker.Stop()
	}
	if o.stopCh != nil {
		close(o.stopCh)
	}
	o.wg.Wait()
}

// load reads the outbox file, skipping blank lines and dropping a malformed
// or partial trailing line without losing earlier items (spec §3, §4.2
// failure model).
func (o *Outbox) load() error {
	if o.cfg.Path == "" {
		return nil
	}
	f, err := os.Open(o.cfg.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return ovrerrors.Transport("outbox-load", err)
	}
	defer f.Close()

	var loaded []*Item
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var it Item
		if err := json.Unmarshal([]byte(line), &it); err != nil {
			o.logger.Warn("outbox: dropping malformed line", "error", err)
			continue
		}
		loaded = append(loaded, &it)
	}
	if err := scanner.Err(); err != nil {
		o.logger.Warn("outbox: scan error, partial read accepted", "error", err)
	}

	o.mu.Lock()
	o.items = loaded
	o.mu.Unlock()
	return nil
}

// persist atomically rewrites the outbox file from the in-memory item list
// (temp file + rename), so readers of the next flush cycle see either the
// old contents or the new ones, never a partial write (spec §4.2 invariant iv).
func (o *Outbox) persist() error {
	if o.cfg.Path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(o.cfg.Path), 0o755); err != nil {
		return ovrerrors.Transport("outbox-persist", err)
	}

	var buf strings.Builder
	for _, it := range o.items {
		encoded, err := json.Marshal(it)
		if err != nil {
			return ovrerrors.Protocol("outbox-persist", err)
		}
		buf.Write(encoded)
		buf.WriteByte('\n')
	}

	tmp := o.cfg.Path + ".tmp"
	if err := os.WriteFile(tmp, []byte(buf.String()), 0o644); err != nil {
		return ovrerrors.Transport("outbox-persist", err)
	}
	if err := os.Rename(tmp, o.cfg.Path); err != nil {
		os.Remove(tmp)
		return ovrerrors.Transport("outbox-persist", err)
	}
	return nil
}

// Enqueue appends an item with attempts=0, nextAttemptAt=now, persists it,
// and returns the new queue depth.
func (o *Outbox) Enqueue(sessionKey, sessionID string, evs []events.Event) (int, error) {
	if len(evs) == 0 {
		return 0, ovrerrors.Validation("outbox-enqueue", fmt.Errorf("events must be non-empty"))
	}

	now := o.now()
	it := &Item{
		ID:            uuid.NewString(),
		CreatedAt:     now,
		UpdatedAt:     now,
		Attempts:      0,
		NextAttemptAt: now,
		SessionKey:    sessionKey,
		SessionID:     sessionID,
		Events:        evs,
	}

	o.mu.Lock()
	o.items = append(o.items, it)
	depth := len(o.items)
	o.totalEnqueued++
	err := o.persist()
	o.mu.Unlock()

	if err != nil {
		return depth, err
	}
	return depth, nil
}

// Flush drains under a single-flight lock: for each ready item, in order,
// it calls the sender; success removes the item, failure backs it off.
// Flush stops after maxBatchSize successful sends in one cycle (spec §4.2).
func (o *Outbox) Flush(ctx context.Context) (Stats, error) {
	o.flushMu.Lock()
	if o.flushing {
		o.flushMu.Unlock()
		return o.GetStats(), nil
	}
	o.flushing = true
	o.flushMu.Unlock()
	defer func() {
		o.flushMu.Lock()
		o.flushing = false
		o.flushMu.Unlock()
	}()

	start := o.now()
	maxBatch := o.cfg.MaxBatchSize
	if maxBatch <= 0 {
		maxBatch = 50
	}

	o.mu.Lock()
	snapshot := make([]*Item, len(o.items))
	copy(snapshot, o.items)
	o.mu.Unlock()

	var successCount, errorCount int
	sent := make(map[string]bool, len(snapshot))

	for _, it := range snapshot {
		if successCount >= maxBatch {
			break
		}
		now := o.now()
		if !it.ready(now) {
			continue
		}

		err := o.sender.Send(ctx, it.SessionKey, it.SessionID, it.Events)
		if err == nil {
			sent[it.ID] = true
			successCount++
			o.mu.Lock()
			o.totalSent++
			o.mu.Unlock()
			continue
		}

		errorCount++
		it.Attempts++
		it.UpdatedAt = o.now()
		base := time.Duration(o.cfg.RetryBaseMs) * time.Millisecond
		maxDelay := time.Duration(o.cfg.RetryMaxMs) * time.Millisecond
		it.NextAttemptAt = o.now().Add(ovrerrors.CalculateDelay(it.Attempts, base, maxDelay))

		o.mu.Lock()
		o.totalFailed++
		o.lastError = err.Error()
		o.mu.Unlock()
	}

	// Filter the live list rather than the snapshot, so items enqueued
	// while this flush was sending stay queued.
	o.mu.Lock()
	kept := make([]*Item, 0, len(o.items))
	for _, it := range o.items {
		if !sent[it.ID] {
			kept = append(kept, it)
		}
	}
	o.items = kept
	o.lastFlushDur = o.now().Sub(start)
	o.lastFlushOK = successCount
	o.lastFlushErr = errorCount
	persistErr := o.persist()
	o.mu.Unlock()

	return o.GetStats(), persistErr
}

// GetStats returns a point-in-time snapshot of queue health.
func (o *Outbox) GetStats() Stats {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := o.now()
	stats := Stats{
		Depth:             len(o.items),
		LastFlushDuration: o.lastFlushDur,
		LastFlushSuccess:  o.lastFlushOK,
		LastFlushError:    o.lastFlushErr,
		TotalEnqueued:     o.totalEnqueued,
		TotalSent:         o.totalSent,
		TotalFailed:       o.totalFailed,
		LastError:         o.lastError,
	}

	var oldest time.Time
	var nextReady time.Time
	for i, it := range o.items {
		if i == 0 || it.CreatedAt.Before(oldest) {
			oldest = it.CreatedAt
		}
		if it.ready(now) {
			stats.ItemsReady++
		} else if nextReady.IsZero() || it.NextAttemptAt.Before(nextReady) {
			nextReady = it.NextAttemptAt
		}
		if it.Attempts > stats.MaxAttempts {
			stats.MaxAttempts = it.Attempts
		}
	}
	if !oldest.IsZero() {
		stats.OldestItemAge = now.Sub(oldest)
	}
	if !nextReady.IsZero() {
		stats.TimeUntilNextReady = nextReady.Sub(now)
	}

	return stats
}

// Depth returns the current queue depth without computing the full stats.
func (o *Outbox) Depth() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.items)
}
