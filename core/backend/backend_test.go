package backend_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/openviking/membridge/core/backend"
	"github.com/openviking/membridge/core/client"
	"github.com/openviking/membridge/core/events"
	"github.com/openviking/membridge/core/memconfig"
	"github.com/openviking/membridge/core/retrieval"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeOK(w http.ResponseWriter, result any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(client.Envelope{Status: "ok", Result: result})
}

// fakeStoreServer is a minimal httptest-backed stand-in for the store,
// enough to exercise backend.OpenVikingBackend end to end without a real
// network dependency (matching the teacher's hand-assembled test fakes, not
// a generated mock).
type fakeStoreServer struct {
	mu          sync.Mutex
	sessionSeq  int
	batchCalls  int32
	failBatches int32 // fail this many AddEventsBatch calls, then succeed
}

func (f *fakeStoreServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeOK(w, nil)
	})
	mux.HandleFunc("/api/v1/sessions", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.sessionSeq++
		id := "sess-" + itoa(f.sessionSeq)
		f.mu.Unlock()
		writeOK(w, client.Session{SessionID: id})
	})
	mux.HandleFunc("/api/v1/search/search", func(w http.ResponseWriter, r *http.Request) {
		writeOK(w, client.SearchResponse{
			Memories: []client.Context{
				{URI: "viking://memories/m1", Score: floatPtr(0.9), Overview: "a relevant memory overview"},
			},
		})
	})
	mux.HandleFunc("/api/v1/content/overview", func(w http.ResponseWriter, r *http.Request) {
		writeOK(w, "a relevant memory overview")
	})
	mux.HandleFunc("/api/v1/content/read", func(w http.ResponseWriter, r *http.Request) {
		writeOK(w, "line1\nline2\nline3")
	})
	mux.HandleFunc("/api/v1/fs/mkdir", func(w http.ResponseWriter, r *http.Request) {
		writeOK(w, nil)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && matchEventsBatch(r.URL.Path):
			n := atomic.AddInt32(&f.batchCalls, 1)
			if n <= atomic.LoadInt32(&f.failBatches) {
				w.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(w).Encode(client.Envelope{Status: "error", Error: &client.EnvelopeError{Message: "simulated outage"}})
				return
			}
			writeOK(w, client.AddEventsBatchResult{SessionID: "sess", Accepted: 1})
		case r.Method == http.MethodPost && matchCommit(r.URL.Path):
			writeOK(w, client.CommitResult{SessionID: "sess", Cause: "manual"})
		default:
			writeOK(w, nil)
		}
	})
	return mux
}

func matchEventsBatch(path string) bool {
	return len(path) > len("/events/batch") && path[len(path)-len("/events/batch"):] == "/events/batch"
}

func matchCommit(path string) bool {
	return len(path) > len("/commit") && path[len(path)-len("/commit"):] == "/commit"
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := ""
	for n > 0 {
		digits = string(rune('0'+n%10)) + digits
		n /= 10
	}
	return digits
}

func floatPtr(f float64) *float64 { return &f }

func testConfig(endpoint, outboxPath string) memconfig.Config {
	cfg := memconfig.Resolve(memconfig.Config{
		Enabled:   true,
		DualWrite: true,
		Endpoint:  endpoint,
		Outbox: memconfig.OutboxConfig{
			Enabled:         true,
			Path:            outboxPath,
			FlushIntervalMs: 50,
			MaxBatchSize:    10,
			RetryBaseMs:     5,
			RetryMaxMs:      20,
		},
		Commit: memconfig.CommitConfig{
			Mode: memconfig.CommitAsync,
			Triggers: memconfig.CommitTriggers{
				SessionEnd: true,
			},
		},
		FSWrite: memconfig.FSWriteConfig{
			Enabled:          true,
			AllowUriPrefixes: []string{"viking://resource/allowed"},
		},
	})
	return cfg
}

func TestOpenVikingBackend_SearchAndReadFile(t *testing.T) {
	srv := httptest.NewServer((&fakeStoreServer{}).handler())
	defer srv.Close()

	dir := t.TempDir()
	b, err := backend.New(testConfig(srv.URL, filepath.Join(dir, "outbox.jsonl")), "agent-1", srv.URL, filepath.Join(dir, "sessions.json"), nil)
	require.NoError(t, err)
	defer b.Close()

	results, err := b.Search(context.Background(), "what happened", retrieval.Options{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "viking://memories/m1", results[0].Path)

	text, path, err := b.ReadFile(context.Background(), "/docs/x", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "viking://resource/docs/x", path)
	assert.Equal(t, "line1\nline2\nline3", text)
}

func TestOpenVikingBackend_EnqueueDrainsThroughOutboxAfterOutage(t *testing.T) {
	store := &fakeStoreServer{}
	atomic.StoreInt32(&store.failBatches, 3)
	srv := httptest.NewServer(store.handler())
	defer srv.Close()

	dir := t.TempDir()
	b, err := backend.New(testConfig(srv.URL, filepath.Join(dir, "outbox.jsonl")), "agent-1", srv.URL, filepath.Join(dir, "sessions.json"), nil)
	require.NoError(t, err)
	defer b.Close()

	for i := 0; i < 5; i++ {
		queued, err := b.EnqueueMessage(context.Background(), "session-a", events.RoleUser, "hello world")
		require.NoError(t, err)
		assert.True(t, queued)
	}

	st, err := b.Status(context.Background())
	require.NoError(t, err)
	assert.Greater(t, st.OutboxStats.Depth, 0)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		st, _ := b.Status(context.Background())
		if st.OutboxStats.Depth == 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	final, err := b.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, final.OutboxStats.Depth)
	assert.EqualValues(t, 5, final.BridgeStats.MessageEventsQueued)
}

func TestOpenVikingBackend_ColdRestartDurability(t *testing.T) {
	store := &fakeStoreServer{}
	atomic.StoreInt32(&store.failBatches, 100) // never succeeds before restart
	srv := httptest.NewServer(store.handler())
	defer srv.Close()

	dir := t.TempDir()
	outboxPath := filepath.Join(dir, "outbox.jsonl")
	sessionPath := filepath.Join(dir, "sessions.json")

	b1, err := backend.New(testConfig(srv.URL, outboxPath), "agent-1", srv.URL, sessionPath, nil)
	require.NoError(t, err)

	queued, err := b1.EnqueueMessage(context.Background(), "session-a", events.RoleUser, "durable message")
	require.NoError(t, err)
	assert.True(t, queued)

	st1, err := b1.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, st1.OutboxStats.Depth)
	require.NoError(t, b1.Close())

	atomic.StoreInt32(&store.failBatches, 0) // recovers before restart

	b2, err := backend.New(testConfig(srv.URL, outboxPath), "agent-1", srv.URL, sessionPath, nil)
	require.NoError(t, err)
	defer b2.Close()

	require.NoError(t, b2.Sync(context.Background()))
	st2, err := b2.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, st2.OutboxStats.Depth)
}

func TestOpenVikingBackend_FSGateBlocksDisallowedPrefix(t *testing.T) {
	srv := httptest.NewServer((&fakeStoreServer{}).handler())
	defer srv.Close()

	dir := t.TempDir()
	b, err := backend.New(testConfig(srv.URL, filepath.Join(dir, "outbox.jsonl")), "agent-1", srv.URL, filepath.Join(dir, "sessions.json"), nil)
	require.NoError(t, err)
	defer b.Close()

	err = b.FSMkdir(context.Background(), "viking://resource/not-allowed/dir")
	require.Error(t, err)

	err = b.FSMkdir(context.Background(), "viking://resource/allowed/dir")
	require.NoError(t, err)
}

func TestRegistry_MemoizesPerAgentEndpoint(t *testing.T) {
	srv := httptest.NewServer((&fakeStoreServer{}).handler())
	defer srv.Close()

	dir := t.TempDir()
	var built int
	reg := backend.NewRegistry(func(cfg memconfig.Config, agentID, endpoint, sessionStorePath string) (*backend.OpenVikingBackend, error) {
		built++
		return backend.New(cfg, agentID, endpoint, sessionStorePath, nil)
	})

	cfg := testConfig(srv.URL, filepath.Join(dir, "outbox.jsonl"))
	sessionPath := filepath.Join(dir, "sessions.json")

	b1, err := reg.GetOrCreate(cfg, "agent-1", srv.URL, sessionPath)
	require.NoError(t, err)
	b2, err := reg.GetOrCreate(cfg, "agent-1", srv.URL, sessionPath)
	require.NoError(t, err)
	assert.Same(t, b1, b2)
	assert.Equal(t, 1, built)

	require.NoError(t, reg.StopAll())
}
