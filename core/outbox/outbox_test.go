package outbox_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/openviking/membridge/core/events"
	"github.com/openviking/membridge/core/outbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu        sync.Mutex
	fail      bool
	delivered int
	batches   [][]events.Event
}

func (f *fakeSender) Send(_ context.Context, _ string, _ string, evs []events.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("simulated store outage")
	}
	f.delivered += len(evs)
	f.batches = append(f.batches, evs)
	return nil
}

func newTestOutbox(t *testing.T, sender outbox.Sender) *outbox.Outbox {
	t.Helper()
	path := filepath.Join(t.TempDir(), "outbox.jsonl")
	cfg := outbox.Config{
		Path:            path,
		FlushIntervalMs: 50,
		MaxBatchSize:    1000,
		RetryBaseMs:     10,
		RetryMaxMs:      100,
	}
	ob := outbox.New(cfg, sender, nil)
	require.NoError(t, ob.Start())
	t.Cleanup(ob.Stop)
	return ob
}

func TestOutbox_OutageAndRecovery(t *testing.T) {
	sender := &fakeSender{fail: true}
	ob := newTestOutbox(t, sender)

	for i := 0; i < 200; i++ {
		role := events.RoleUser
		if i%2 == 1 {
			role = events.RoleAssistant
		}
		_, err := ob.Enqueue("session-a", "store-session-a", []events.Event{
			events.NewMessage("ev-"+string(rune(i)), role, "hello"),
		})
		require.NoError(t, err)
	}
	_, err := ob.Enqueue("session-a", "store-session-a", []events.Event{
		events.NewCommit("commit-1", "session_end", "manual"),
	})
	require.NoError(t, err)

	assert.GreaterOrEqual(t, ob.Depth(), 201)

	sender.mu.Lock()
	sender.fail = false
	sender.mu.Unlock()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && ob.Depth() > 0 {
		_, _ = ob.Flush(context.Background())
		time.Sleep(10 * time.Millisecond)
	}

	assert.Equal(t, 0, ob.Depth())
	assert.Equal(t, 201, sender.delivered)
}

func TestOutbox_ColdRestartDurability(t *testing.T) {
	path := filepath.Join(t.TempDir(), "outbox.jsonl")
	failingSender := &fakeSender{fail: true}
	cfg := outbox.Config{Path: path, FlushIntervalMs: 1000, MaxBatchSize: 10, RetryBaseMs: 10, RetryMaxMs: 50}

	ob1 := outbox.New(cfg, failingSender, nil)
	require.NoError(t, ob1.Start())
	_, err := ob1.Enqueue("session-b", "store-session-b", []events.Event{
		events.NewMessage("ev-1", events.RoleUser, "hi"),
	})
	require.NoError(t, err)
	_, _ = ob1.Flush(context.Background())
	ob1.Stop()

	succeedingSender := &fakeSender{fail: false}
	ob2 := outbox.New(cfg, succeedingSender, nil)
	require.NoError(t, ob2.Start())
	defer ob2.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && ob2.Depth() > 0 {
		_, _ = ob2.Flush(context.Background())
		time.Sleep(10 * time.Millisecond)
	}

	assert.Equal(t, 1, succeedingSender.delivered)
	assert.Equal(t, 0, ob2.Depth())
}

func TestOutbox_FlushRespectsMaxBatchSizeAndRetryWindow(t *testing.T) {
	sender := &fakeSender{}
	path := filepath.Join(t.TempDir(), "outbox.jsonl")
	cfg := outbox.Config{Path: path, FlushIntervalMs: 10000, MaxBatchSize: 2, RetryBaseMs: 100000, RetryMaxMs: 100000}
	ob := outbox.New(cfg, sender, nil)
	require.NoError(t, ob.Start())
	defer ob.Stop()

	for i := 0; i < 5; i++ {
		_, err := ob.Enqueue("s", "ss", []events.Event{events.NewMessage("e", events.RoleUser, "hi")})
		require.NoError(t, err)
	}

	stats, err := ob.Flush(context.Background())
	require.NoError(t, err)
	assert.LessOrEqual(t, stats.LastFlushSuccess, 2)
	assert.Equal(t, 3, ob.Depth())

	// The remaining three fail once and are pushed RetryBaseMs into the
	// future, so the next flush must not attempt them even with the sender back.
	sender.mu.Lock()
	sender.fail = true
	sender.mu.Unlock()
	_, err = ob.Flush(context.Background())
	require.NoError(t, err)
	sender.mu.Lock()
	sender.fail = false
	sender.mu.Unlock()

	stats, err = ob.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.LastFlushSuccess)
	assert.Equal(t, 0, stats.ItemsReady)
	assert.Equal(t, 3, ob.Depth())
}

func TestOutbox_MalformedLineDroppedOnLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "outbox.jsonl")
	sender := &fakeSender{}
	ob1 := outbox.New(outbox.Config{Path: path, FlushIntervalMs: 10000, MaxBatchSize: 10, RetryBaseMs: 10, RetryMaxMs: 10}, sender, nil)
	require.NoError(t, ob1.Start())
	_, err := ob1.Enqueue("s", "ss", []events.Event{events.NewMessage("e1", events.RoleUser, "first")})
	require.NoError(t, err)
	ob1.Stop()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, _ = f.WriteString("{not valid json\n")
	f.Close()

	ob2 := outbox.New(outbox.Config{Path: path, FlushIntervalMs: 10000, MaxBatchSize: 10, RetryBaseMs: 10, RetryMaxMs: 10}, sender, nil)
	require.NoError(t, ob2.Start())
	defer ob2.Stop()

	assert.Equal(t, 1, ob2.Depth())
}
