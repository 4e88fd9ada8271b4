package client

import (
	"context"
	"net/http"
	"net/url"
)

// Health checks store liveness.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.do(ctx, "health", http.MethodGet, "/health", nil, requestOptions{})
	return err
}

// CreateSession creates a new store session.
func (c *Client) CreateSession(ctx context.Context) (Session, error) {
	env, err := c.do(ctx, "create-session", http.MethodPost, "/api/v1/sessions", map[string]any{}, requestOptions{})
	if err != nil {
		return Session{}, err
	}
	return decodeResult[Session](env)
}

// ListSessions lists all store sessions.
func (c *Client) ListSessions(ctx context.Context) ([]Session, error) {
	env, err := c.do(ctx, "list-sessions", http.MethodGet, "/api/v1/sessions", nil, requestOptions{})
	if err != nil {
		return nil, err
	}
	return decodeResult[[]Session](env)
}

// GetSession fetches a single session by id.
func (c *Client) GetSession(ctx context.Context, sessionID string) (Session, error) {
	env, err := c.do(ctx, "get-session", http.MethodGet, "/api/v1/sessions/"+url.PathEscape(sessionID), nil, requestOptions{})
	if err != nil {
		return Session{}, err
	}
	return decodeResult[Session](env)
}

// DeleteSession deletes a session.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := c.do(ctx, "delete-session", http.MethodDelete, "/api/v1/sessions/"+url.PathEscape(sessionID), nil, requestOptions{})
	return err
}

// ExtractSession triggers memory extraction for a session.
func (c *Client) ExtractSession(ctx context.Context, sessionID string) (any, error) {
	env, err := c.do(ctx, "extract-session", http.MethodPost, "/api/v1/sessions/"+url.PathEscape(sessionID)+"/extract", map[string]any{}, requestOptions{})
	if err != nil {
		return nil, err
	}
	if env == nil {
		return nil, nil
	}
	return env.Result, nil
}

// AddSessionMessage appends a message to a session. role must be "user" or
// "assistant"; per the original server's validation (sessions.py), this is
// checked client-side too so an invalid role fails before the round trip.
func (c *Client) AddSessionMessage(ctx context.Context, sessionID, role, content string) (AddMessageResult, error) {
	if role != "user" && role != "assistant" {
		return AddMessageResult{}, validationRoleError("add-session-message", role)
	}
	env, err := c.do(ctx, "add-session-message", http.MethodPost, "/api/v1/sessions/"+url.PathEscape(sessionID)+"/messages",
		map[string]string{"role": role, "content": content}, requestOptions{})
	if err != nil {
		return AddMessageResult{}, err
	}
	return decodeResult[AddMessageResult](env)
}

// AddEventsBatch appends an idempotent batch of session events.
func (c *Client) AddEventsBatch(ctx context.Context, sessionID string, events any) (AddEventsBatchResult, error) {
	env, err := c.do(ctx, "add-events-batch", http.MethodPost, "/api/v1/sessions/"+url.PathEscape(sessionID)+"/events/batch",
		map[string]any{"events": events}, requestOptions{})
	if err != nil {
		return AddEventsBatchResult{}, err
	}
	return decodeResult[AddEventsBatchResult](env)
}

// CommitSession commits a session checkpoint. The store defaults cause to
// "manual" when empty (original server behavior); callers that care about
// the cause recorded should always pass one explicitly.
func (c *Client) CommitSession(ctx context.Context, sessionID, cause string) (CommitResult, error) {
	body := map[string]any{}
	if cause != "" {
		body["cause"] = cause
	}
	env, err := c.do(ctx, "commit-session", http.MethodPost, "/api/v1/sessions/"+url.PathEscape(sessionID)+"/commit", body, requestOptions{})
	if err != nil {
		return CommitResult{}, err
	}
	return decodeResult[CommitResult](env)
}

// Search runs the planner-aware search endpoint.
func (c *Client) Search(ctx context.Context, req SearchRequest) (SearchResponse, error) {
	env, err := c.do(ctx, "search", http.MethodPost, "/api/v1/search/search", req, requestOptions{})
	if err != nil {
		return SearchResponse{}, err
	}
	return decodeResult[SearchResponse](env)
}

// Find runs the keyword fallback search endpoint.
func (c *Client) Find(ctx context.Context, req SearchRequest) (SearchResponse, error) {
	env, err := c.do(ctx, "find", http.MethodPost, "/api/v1/search/find", req, requestOptions{})
	if err != nil {
		return SearchResponse{}, err
	}
	return decodeResult[SearchResponse](env)
}

// Grep runs a pattern search within a uri.
func (c *Client) Grep(ctx context.Context, req GrepRequest) ([]string, error) {
	env, err := c.do(ctx, "grep", http.MethodPost, "/api/v1/search/grep", req, requestOptions{})
	if err != nil {
		return nil, err
	}
	return decodeResult[[]string](env)
}

// Glob runs a glob pattern search.
func (c *Client) Glob(ctx context.Context, req GlobRequest) ([]string, error) {
	env, err := c.do(ctx, "glob", http.MethodPost, "/api/v1/search/glob", req, requestOptions{})
	if err != nil {
		return nil, err
	}
	return decodeResult[[]string](env)
}

// Read fetches the full-fidelity (l2) content layer for a uri.
func (c *Client) Read(ctx context.Context, uri string) (string, error) {
	return c.contentLayer(ctx, "read", uri)
}

// Abstract fetches the l0 content layer for a uri.
func (c *Client) Abstract(ctx context.Context, uri string) (string, error) {
	return c.contentLayer(ctx, "abstract", uri)
}

// Overview fetches the l1 content layer for a uri.
func (c *Client) Overview(ctx context.Context, uri string) (string, error) {
	return c.contentLayer(ctx, "overview", uri)
}

func (c *Client) contentLayer(ctx context.Context, layer, uri string) (string, error) {
	q := url.Values{}
	q.Set("uri", uri)
	env, err := c.do(ctx, "content-"+layer, http.MethodGet, "/api/v1/content/"+layer, nil, requestOptions{query: q})
	if err != nil {
		return "", err
	}
	return decodeResult[string](env)
}

// AddResource ingests a resource.
func (c *Client) AddResource(ctx context.Context, res Resource) (any, error) {
	env, err := c.do(ctx, "add-resource", http.MethodPost, "/api/v1/resources", res, requestOptions{})
	if err != nil {
		return nil, err
	}
	if env == nil {
		return nil, nil
	}
	return env.Result, nil
}

// AddSkill ingests a skill.
func (c *Client) AddSkill(ctx context.Context, skill Skill) (any, error) {
	env, err := c.do(ctx, "add-skill", http.MethodPost, "/api/v1/skills", skill, requestOptions{})
	if err != nil {
		return nil, err
	}
	if env == nil {
		return nil, nil
	}
	return env.Result, nil
}

// WaitProcessed waits for pending ingestion/indexing to settle.
func (c *Client) WaitProcessed(ctx context.Context, timeoutMs int) error {
	body := map[string]any{}
	if timeoutMs > 0 {
		body["timeout"] = timeoutMs
	}
	_, err := c.do(ctx, "wait-processed", http.MethodPost, "/api/v1/system/wait", body, requestOptions{})
	return err
}

// FSLs lists entries under a uri.
func (c *Client) FSLs(ctx context.Context, uri string) ([]FSEntry, error) {
	return c.fsRead(ctx, "fs-ls", "/api/v1/fs/ls", uri)
}

// FSTree lists the recursive tree under a uri.
func (c *Client) FSTree(ctx context.Context, uri string) ([]FSEntry, error) {
	return c.fsRead(ctx, "fs-tree", "/api/v1/fs/tree", uri)
}

// FSStat stats a single uri.
func (c *Client) FSStat(ctx context.Context, uri string) (FSEntry, error) {
	entries, err := c.fsRead(ctx, "fs-stat", "/api/v1/fs/stat", uri)
	if err != nil {
		return FSEntry{}, err
	}
	if len(entries) == 0 {
		return FSEntry{}, nil
	}
	return entries[0], nil
}

func (c *Client) fsRead(ctx context.Context, op, path, uri string) ([]FSEntry, error) {
	q := url.Values{}
	q.Set("uri", uri)
	env, err := c.do(ctx, op, http.MethodGet, path, nil, requestOptions{query: q})
	if err != nil {
		return nil, err
	}
	return decodeResult[[]FSEntry](env)
}

// FSMkdir creates a directory at a policy-vetted uri. Callers must run the
// uri through core/policy before calling this (C1 performs no policy checks
// itself, per spec §4.7: the gate wraps the call, C1 just issues it).
func (c *Client) FSMkdir(ctx context.Context, uri string) error {
	_, err := c.do(ctx, "fs-mkdir", http.MethodPost, "/api/v1/fs/mkdir", map[string]string{"uri": uri}, requestOptions{})
	return err
}

// FSRm deletes a policy-vetted uri, optionally recursively.
func (c *Client) FSRm(ctx context.Context, uri string, recursive bool) error {
	q := url.Values{}
	q.Set("uri", uri)
	if recursive {
		q.Set("recursive", "true")
	}
	_, err := c.do(ctx, "fs-rm", http.MethodDelete, "/api/v1/fs", nil, requestOptions{query: q})
	return err
}

// FSMv moves a policy-vetted uri to another policy-vetted uri.
func (c *Client) FSMv(ctx context.Context, fromURI, toURI string) error {
	_, err := c.do(ctx, "fs-mv", http.MethodPost, "/api/v1/fs/mv", map[string]string{"from_uri": fromURI, "to_uri": toURI}, requestOptions{})
	return err
}

// Relations fetches neighbors of a uri.
func (c *Client) Relations(ctx context.Context, uri string) ([]Relation, error) {
	q := url.Values{}
	q.Set("uri", uri)
	env, err := c.do(ctx, "relations", http.MethodGet, "/api/v1/relations", nil, requestOptions{query: q})
	if err != nil {
		return nil, err
	}
	return decodeResult[[]Relation](env)
}

// LinkRelation creates a relation edge between two uris.
func (c *Client) LinkRelation(ctx context.Context, fromURI, toURI, reason string) error {
	body := map[string]string{"from_uri": fromURI, "to_uri": toURI}
	if reason != "" {
		body["reason"] = reason
	}
	_, err := c.do(ctx, "link-relation", http.MethodPost, "/api/v1/relations/link", body, requestOptions{})
	return err
}

// UnlinkRelation removes a relation edge.
func (c *Client) UnlinkRelation(ctx context.Context, fromURI, toURI string) error {
	_, err := c.do(ctx, "unlink-relation", http.MethodDelete, "/api/v1/relations/link",
		map[string]string{"from_uri": fromURI, "to_uri": toURI}, requestOptions{})
	return err
}

// ObserverQueue fetches queue health detail.
func (c *Client) ObserverQueue(ctx context.Context) (any, error) { return c.observer(ctx, "queue") }

// ObserverVikingdb fetches vikingdb health detail.
func (c *Client) ObserverVikingdb(ctx context.Context) (any, error) {
	return c.observer(ctx, "vikingdb")
}

// ObserverVlm fetches VLM health detail.
func (c *Client) ObserverVlm(ctx context.Context) (any, error) { return c.observer(ctx, "vlm") }

// ObserverTransaction fetches transaction health detail.
func (c *Client) ObserverTransaction(ctx context.Context) (any, error) {
	return c.observer(ctx, "transaction")
}

// ObserverSystem fetches system health detail.
func (c *Client) ObserverSystem(ctx context.Context) (any, error) { return c.observer(ctx, "system") }

func (c *Client) observer(ctx context.Context, kind string) (any, error) {
	env, err := c.do(ctx, "observer-"+kind, http.MethodGet, "/api/v1/observer/"+kind, nil, requestOptions{})
	if err != nil {
		return nil, err
	}
	if env == nil {
		return nil, nil
	}
	return env.Result, nil
}
