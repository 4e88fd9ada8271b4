// Package sessionlink implements C3: the mapping from host sessionKey to
// store session metadata, persisted to the shared session store file and
// guarded by an atomic read-modify-write.
package sessionlink

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/openviking/membridge/core/ovrerrors"
)

// Link is one Session Link entry (spec §3).
type Link struct {
	SessionID      string    `json:"sessionId"`
	UpdatedAt      time.Time `json:"updatedAt"`
	SessionFile    string    `json:"sessionFile,omitempty"`
	StoreSessionID string    `json:"openvikingSessionId,omitempty"`
	LastSyncedSeq  int64     `json:"lastSyncedSeq"`
	LastCommitAt   time.Time `json:"lastCommitAt"`
}

// Creator creates a new store session, returning its id. Implemented in
// production by core/backend's adapter over core/client.Client.CreateSession.
type Creator interface {
	CreateSession(ctx context.Context) (string, error)
}

// Registry owns the session store file for one agent (spec §4.3, §6).
type Registry struct {
	path    string
	creator Creator

	mu    sync.Mutex // serializes the read-modify-write per file
	cache *lru.Cache[string, *Link]
}

// New creates a Registry backed by path, with a bounded in-memory read
// cache (spec §4.3: "reads are non-blocking").
func New(path string, creator Creator) (*Registry, error) {
	cache, err := lru.New[string, *Link](1024)
	if err != nil {
		return nil, ovrerrors.Config("sessionlink-new", err)
	}
	return &Registry{path: path, creator: creator, cache: cache}, nil
}

func (r *Registry) readAll() (map[string]*Link, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]*Link{}, nil
		}
		return nil, ovrerrors.Transport("sessionlink-read", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]*Link{}, nil
	}
	var all map[string]*Link
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, ovrerrors.Protocol("sessionlink-read", err)
	}
	if all == nil {
		all = map[string]*Link{}
	}
	return all, nil
}

func (r *Registry) writeAll(all map[string]*Link) error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return ovrerrors.Transport("sessionlink-write", err)
	}
	encoded, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return ovrerrors.Protocol("sessionlink-write", err)
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, encoded, 0o644); err != nil {
		return ovrerrors.Transport("sessionlink-write", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		os.Remove(tmp)
		return ovrerrors.Transport("sessionlink-write", err)
	}
	return nil
}

// Get returns the link for sessionKey, if any, consulting the in-memory
// cache first.
func (r *Registry) Get(sessionKey string) (*Link, error) {
	if link, ok := r.cache.Get(sessionKey); ok {
		return link, nil
	}
	all, err := r.readAll()
	if err != nil {
		return nil, err
	}
	link, ok := all[sessionKey]
	if !ok {
		return nil, nil
	}
	r.cache.Add(sessionKey, link)
	return link, nil
}

// EnsureLink returns the store session id for sessionKey, creating both the
// store session and the link entry if none exists yet. Once storeSessionId
// is set it is immutable for that sessionKey (spec §3 invariant); later
// calls are no-ops returning the stored id.
func (r *Registry) EnsureLink(ctx context.Context, sessionKey string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	all, err := r.readAll()
	if err != nil {
		return "", err
	}

	link, ok := all[sessionKey]
	if ok && link.StoreSessionID != "" {
		r.cache.Add(sessionKey, link)
		return link.StoreSessionID, nil
	}

	storeSessionID, err := r.creator.CreateSession(ctx)
	if err != nil {
		return "", ovrerrors.Config("sessionlink-ensure", err)
	}

	if link == nil {
		link = &Link{}
	}
	link.StoreSessionID = storeSessionID
	link.SessionID = storeSessionID
	link.UpdatedAt = time.Now()
	all[sessionKey] = link

	if err := r.writeAll(all); err != nil {
		return "", err
	}
	r.cache.Add(sessionKey, link)
	return storeSessionID, nil
}

// BumpSeq increments lastSyncedSeq by max(1, delta) for sessionKey and
// returns the resulting value, so callers can evaluate message-threshold
// commit triggers against it without a second, racy read.
func (r *Registry) BumpSeq(sessionKey string, delta int) (int64, error) {
	if delta < 1 {
		delta = 1
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	all, err := r.readAll()
	if err != nil {
		return 0, err
	}
	link, ok := all[sessionKey]
	if !ok {
		link = &Link{}
		all[sessionKey] = link
	}
	link.LastSyncedSeq += int64(delta)
	link.UpdatedAt = time.Now()

	if err := r.writeAll(all); err != nil {
		return 0, err
	}
	r.cache.Add(sessionKey, link)
	return link.LastSyncedSeq, nil
}

// MarkCommitQueued sets lastCommitAt=now for sessionKey.
func (r *Registry) MarkCommitQueued(sessionKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	all, err := r.readAll()
	if err != nil {
		return err
	}
	link, ok := all[sessionKey]
	if !ok {
		link = &Link{}
		all[sessionKey] = link
	}
	link.LastCommitAt = time.Now()
	link.UpdatedAt = time.Now()

	if err := r.writeAll(all); err != nil {
		return err
	}
	r.cache.Add(sessionKey, link)
	return nil
}
