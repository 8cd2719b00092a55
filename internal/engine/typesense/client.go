// Package typesense is the text search engine adapter. It speaks the
// Typesense HTTP API directly: collection retrieve/create, document
// upsert/delete, and search with filter_by syntax.
package typesense

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/crmdex/internal/domain"
)

const apiKeyHeader = "X-TYPESENSE-API-KEY"

// Config holds the text engine connection settings.
type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// Client is a Typesense HTTP client scoped to one server.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *zap.Logger
}

// New creates a text engine client. The underlying http.Client is reused
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

// EnsureCollection creates the partition's collection if it does not exist.
// Idempotent: an existing collection short-circuits, and a create that loses
// a concurrent race is treated as success.
func (c *Client) EnsureCollection(
	ctx context.Context, tctx domain.TenantContext, def domain.EntityDefinition,
) error {
	name := domain.CollectionName(tctx.TenantID, tctx.UnitID, def.Name, def.TenantScoped())

	err := c.do(ctx, http.MethodGet, "/collections/"+name, nil, nil)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("retrieve collection %s: %w", name, err)
	}

	schema := BuildSchema(name, def)
	if err := c.do(ctx, http.MethodPost, "/collections", schema, nil); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			c.logger.Debug("Text collection created concurrently", zap.String("collection", name))
			return nil
		}
		return fmt.Errorf("create collection %s: %w", name, err)
	}
	c.logger.Info("Created text collection",
		zap.String("collection", name),
		zap.Int("fields", len(schema.Fields)))
	return nil
}

// UpsertDocument writes a document, coercing or dropping values that do not
// match the declared schema types.
func (c *Client) UpsertDocument(ctx context.Context, collection string, doc map[string]any) error {
	path := fmt.Sprintf("/collections/%s/documents?action=upsert&dirty_values=coerce_or_drop", collection)
	if err := c.do(ctx, http.MethodPost, path, doc, nil); err != nil {
		return fmt.Errorf("upsert document in %s: %w", collection, err)
	}
	return nil
}

// DeleteDocument removes a document by id. Deleting an absent document is a
// no-op.
func (c *Client) DeleteDocument(ctx context.Context, collection, id string) error {
	path := fmt.Sprintf("/collections/%s/documents/%s", collection, url.PathEscape(id))
	err := c.do(ctx, http.MethodDelete, path, nil, nil)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("delete document %s from %s: %w", id, collection, err)
	}
	return nil
}

// Ping checks engine availability.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

// do executes one HTTP call against the engine. 404 maps to ErrNotFound and
// 409 to ErrAlreadyExists; any other non-2xx status wraps ErrEngineFailure.
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
	req.Header.Set(apiKeyHeader, c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("typesense %s %s: %w: %w", method, path, err, domain.ErrEngineFailure)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.ErrNotFound
	case resp.StatusCode == http.StatusConflict:
		return domain.ErrAlreadyExists
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("typesense %s %s: status %d: %s: %w",
			method, path, resp.StatusCode, bytes.TrimSpace(msg), domain.ErrEngineFailure)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
