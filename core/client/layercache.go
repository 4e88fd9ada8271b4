package client

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"
)

// LayeredReader fetches content layers (abstract/overview/read) from a
// Client, cached by (uri, layer) so that relation expansion and
// multi-candidate layering — which legitimately re-request the same
// uri/layer pair within one search — do not re-issue identical HTTP calls.
// The cache is a performance layer only: it never changes which layer is
// chosen, and it is scoped to one LayeredReader instance (core/backend
// builds one per backend, shared by all of that backend's searches), not
// global.
type LayeredReader struct {
	client *Client
	cache  *ristretto.Cache
}

// NewLayeredReader wraps c with a bounded ristretto cache.
func NewLayeredReader(c *Client) (*LayeredReader, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10000,
		MaxCost:     1 << 20, // 1MiB of cached snippet text
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("layer cache: %w", err)
	}
	return &LayeredReader{client: c, cache: cache}, nil
}

// Close releases cache resources.
func (r *LayeredReader) Close() { r.cache.Close() }

func cacheKey(layer, uri string) string { return layer + "\x00" + uri }

func (r *LayeredReader) fetch(ctx context.Context, layer, uri string, fn func(context.Context, string) (string, error)) (string, error) {
	key := cacheKey(layer, uri)
	if v, ok := r.cache.Get(key); ok {
		if s, ok := v.(string); ok {
			return s, nil
		}
	}
	text, err := fn(ctx, uri)
	if err != nil {
		return "", err
	}
	r.cache.Set(key, text, int64(len(text)))
	return text, nil
}

// Abstract fetches (and caches) the l0 layer.
func (r *LayeredReader) Abstract(ctx context.Context, uri string) (string, error) {
	return r.fetch(ctx, "l0", uri, r.client.Abstract)
}

// Overview fetches (and caches) the l1 layer.
func (r *LayeredReader) Overview(ctx context.Context, uri string) (string, error) {
	return r.fetch(ctx, "l1", uri, r.client.Overview)
}

// Read fetches (and caches) the l2 layer.
func (r *LayeredReader) Read(ctx context.Context, uri string) (string, error) {
	return r.fetch(ctx, "l2", uri, r.client.Read)
}
