package sessionlink_test

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/openviking/membridge/core/sessionlink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCreator struct {
	calls int32
	id    string
}

func (f *fakeCreator) CreateSession(ctx context.Context) (string, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.id, nil
}

func TestRegistry_EnsureLinkIsIdempotent(t *testing.T) {
	creator := &fakeCreator{id: "store-session-1"}
	path := filepath.Join(t.TempDir(), "sessions.json")
	reg, err := sessionlink.New(path, creator)
	require.NoError(t, err)

	id1, err := reg.EnsureLink(context.Background(), "host-key")
	require.NoError(t, err)
	assert.Equal(t, "store-session-1", id1)

	id2, err := reg.EnsureLink(context.Background(), "host-key")
	require.NoError(t, err)
	assert.Equal(t, "store-session-1", id2)

	assert.Equal(t, int32(1), atomic.LoadInt32(&creator.calls))
}

func TestRegistry_BumpSeqIsMonotonic(t *testing.T) {
	creator := &fakeCreator{id: "sid"}
	path := filepath.Join(t.TempDir(), "sessions.json")
	reg, err := sessionlink.New(path, creator)
	require.NoError(t, err)

	_, err = reg.BumpSeq("k", 3)
	require.NoError(t, err)
	seq, err := reg.BumpSeq("k", 0) // 0 -> treated as 1
	require.NoError(t, err)
	assert.Equal(t, int64(4), seq)

	link, err := reg.Get("k")
	require.NoError(t, err)
	require.NotNil(t, link)
	assert.Equal(t, int64(4), link.LastSyncedSeq)
}

func TestRegistry_PersistsAcrossInstances(t *testing.T) {
	creator := &fakeCreator{id: "sid-2"}
	path := filepath.Join(t.TempDir(), "sessions.json")
	reg1, err := sessionlink.New(path, creator)
	require.NoError(t, err)
	_, err = reg1.EnsureLink(context.Background(), "key-x")
	require.NoError(t, err)

	reg2, err := sessionlink.New(path, creator)
	require.NoError(t, err)
	link, err := reg2.Get("key-x")
	require.NoError(t, err)
	require.NotNil(t, link)
	assert.Equal(t, "sid-2", link.StoreSessionID)
}
