// Package qdrant is the vector search engine adapter over the Qdrant HTTP
// API: collection probe/create, point upsert/delete, and filtered
// nearest-neighbor search.
//
// Unlike the text adapter, this one trusts its caller completely: it never
// injects tenant isolation into filters. Every call site must build the
// tenant/unit match clauses itself.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/crmdex/internal/domain"
)

const apiKeyHeader = "api-key"

// Config holds the vector engine connection settings.
type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// Client is a Qdrant HTTP client scoped to one server.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *zap.Logger
}

// New creates a vector engine client. The underlying http.Client is reused
// across all tenants.
func New(cfg Config, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: cfg.URL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// EnsureCollection creates the collection with the given dimensionality if
// the existence probe fails. Any probe failure is treated uniformly as
// "missing". Re-ensuring with a different size is not reconciled here; the
// engine rejects mismatched vectors on write.
func (c *Client) EnsureCollection(ctx context.Context, name string, vectorSize int) error {
	if err := c.do(ctx, http.MethodGet, "/collections/"+name, nil, nil); err == nil {
		return nil
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}
	if err := c.do(ctx, http.MethodPut, "/collections/"+name, body, nil); err != nil {
		// A concurrent ensure may have created it between probe and create.
		if probeErr := c.do(ctx, http.MethodGet, "/collections/"+name, nil, nil); probeErr == nil {
			c.logger.Debug("Vector collection created concurrently", zap.String("collection", name))
			return nil
		}
		return fmt.Errorf("create collection %s: %w", name, err)
	}
	c.logger.Info("Created vector collection",
		zap.String("collection", name),
		zap.Int("size", vectorSize))
	return nil
}

// UpsertPoints writes points by identity; an existing point is replaced.
func (c *Client) UpsertPoints(ctx context.Context, name string, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	body := map[string]any{"points": points}
	if err := c.do(ctx, http.MethodPut, "/collections/"+name+"/points?wait=true", body, nil); err != nil {
		return fmt.Errorf("upsert points in %s: %w", name, err)
	}
	return nil
}

// DeletePoints removes points by id. Deleting absent points is a no-op.
func (c *Client) DeletePoints(ctx context.Context, name string, ids []any) error {
	if len(ids) == 0 {
		return nil
	}
	body := map[string]any{"points": ids}
	if err := c.do(ctx, http.MethodPost, "/collections/"+name+"/points/delete?wait=true", body, nil); err != nil {
		return fmt.Errorf("delete points from %s: %w", name, err)
	}
	return nil
}

// SearchPoints executes a nearest-neighbor search and returns scored points.
func (c *Client) SearchPoints(ctx context.Context, name string, q SearchQuery) ([]ScoredPoint, error) {
	var resp struct {
		Result []ScoredPoint `json:"result"`
	}
	if err := c.do(ctx, http.MethodPost, "/collections/"+name+"/points/search", q, &resp); err != nil {
		return nil, fmt.Errorf("search points in %s: %w", name, err)
	}
	return resp.Result, nil
}

// Ping checks engine availability.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/collections", nil, nil)
}

// do executes one HTTP call against the engine. 404 maps to ErrNotFound; any
// other non-2xx status wraps ErrEngineFailure.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s %s: %w: %w", method, path, err, domain.ErrEngineFailure)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("qdrant %s %s: status %d: %s: %w",
			method, path, resp.StatusCode, bytes.TrimSpace(msg), domain.ErrEngineFailure)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
