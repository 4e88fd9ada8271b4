// Package client implements C1, the Store Client: a thin request/response
// envelope over the store's HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/openviking/membridge/core/ovrerrors"
)

// Client is a thin HTTP transport over the store's API (spec §4.1, §6).
type Client struct {
	baseURL    string
	apiKey     string
	headers    map[string]string
	timeout    time.Duration
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying *http.Client (e.g. for tests).
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New builds a Client. endpoint has trailing slashes stripped per spec §4.1.
func New(endpoint string, apiKey string, headers map[string]string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(endpoint, "/"),
		apiKey:     apiKey,
		headers:    headers,
		timeout:    timeout,
		httpClient: &http.Client{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// requestHeaders merges X-API-Key, config headers, operation headers, and
// caller headers, in that precedence order (later wins), per spec §4.1.
func (c *Client) requestHeaders(opHeaders, callerHeaders map[string]string) map[string]string {
	merged := make(map[string]string)
	if c.apiKey != "" {
		merged["X-API-Key"] = c.apiKey
	}
	for k, v := range c.headers {
		merged[k] = v
	}
	for k, v := range opHeaders {
		merged[k] = v
	}
	for k, v := range callerHeaders {
		merged[k] = v
	}
	return merged
}

type requestOptions struct {
	query         url.Values
	opHeaders     map[string]string
	callerHeaders map[string]string
}

// do issues an HTTP request and decodes the response envelope, normalizing
// failures into ovrerrors.TransportError or ovrerrors.ProtocolError.
func (c *Client) do(ctx context.Context, op, method, path string, body any, opts requestOptions) (*Envelope, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := c.baseURL + path
	if len(opts.query) > 0 {
		u += "?" + opts.query.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, ovrerrors.Validation(op, fmt.Errorf("encode request body: %w", err))
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, ovrerrors.Transport(op, err)
	}

	for k, v := range c.requestHeaders(opts.opHeaders, opts.callerHeaders) {
		req.Header.Set(k, v)
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, ovrerrors.Transport(op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ovrerrors.Transport(op, fmt.Errorf("read response body: %w", err))
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 && len(strings.TrimSpace(string(raw))) == 0 {
		return &Envelope{Status: "ok"}, nil
	}

	var env Envelope
	if jsonErr := json.Unmarshal(raw, &env); jsonErr != nil {
		return nil, c.normalizeError(op, resp.StatusCode, "", string(raw))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || env.Status != "ok" {
		msg := ""
		if env.Error != nil {
			msg = env.Error.Message
		}
		return nil, c.normalizeError(op, resp.StatusCode, msg, string(raw))
	}

	return &env, nil
}

// normalizeError builds a single well-formed error message preferring
// error.message, then raw body, then HTTP status text (spec §4.1).
func (c *Client) normalizeError(op string, statusCode int, errMessage, rawBody string) error {
	msg := strings.TrimSpace(errMessage)
	if msg == "" {
		msg = strings.TrimSpace(rawBody)
	}
	if msg == "" {
		msg = http.StatusText(statusCode)
	}
	if msg == "" {
		msg = "unknown store error (status " + strconv.Itoa(statusCode) + ")"
	}
	err := fmt.Errorf("store error (status %d): %s", statusCode, msg)
	if statusCode >= 500 || statusCode == 0 {
		return ovrerrors.Transport(op, err)
	}
	return ovrerrors.Protocol(op, err)
}

func decodeResult[T any](env *Envelope) (T, error) {
	var out T
	if env == nil || env.Result == nil {
		return out, nil
	}
	raw, err := json.Marshal(env.Result)
	if err != nil {
		return out, ovrerrors.Protocol("decode-result", err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, ovrerrors.Protocol("decode-result", err)
	}
	return out, nil
}
