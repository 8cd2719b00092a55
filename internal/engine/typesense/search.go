package typesense

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/kailas-cloud/crmdex/internal/domain"
)

// SearchOptions is a structured text query. Zero values fall back to the
// engine defaults: per_page=10, page=1, query_by="*".
type SearchOptions struct {
	Query   string
	QueryBy string
	// Filters are additional equality filters AND-combined with the tenant
	// isolation clauses. Slice values become an OR-set.
	Filters map[string]any
	PerPage int
	Page    int
}

// Result is a normalized text search result: hits are flat field maps with
// the engine's nested document wrapper already unwrapped.
type Result struct {
	Hits  []map[string]any
	Found int
	Page  int
}

// searchResponse is the engine's raw search response shape.
type searchResponse struct {
	Found int `json:"found"`
	Page  int `json:"page"`
	Hits  []struct {
		Document map[string]any `json:"document"`
	} `json:"hits"`
}

// Search executes a text search for one partition. Tenant isolation clauses
// are always injected from the tenant context; callers cannot bypass them.
func (c *Client) Search(
	ctx context.Context, tctx domain.TenantContext,
	def domain.EntityDefinition, opts SearchOptions,
) (Result, error) {
	collection := domain.CollectionName(tctx.TenantID, tctx.UnitID, def.Name, def.TenantScoped())

	query := opts.Query
	if query == "" {
		query = "*"
	}
	queryBy := opts.QueryBy
	if queryBy == "" {
		queryBy = "*"
	}
	perPage := opts.PerPage
	if perPage <= 0 {
		perPage = 10
	}
	page := opts.Page
	if page <= 0 {
		page = 1
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("query_by", queryBy)
	params.Set("filter_by", BuildFilter(tctx, def, opts.Filters))
	params.Set("per_page", strconv.Itoa(perPage))
	params.Set("page", strconv.Itoa(page))

	path := fmt.Sprintf("/collections/%s/documents/search?%s", collection, params.Encode())

	var raw searchResponse
	if err := c.do(ctx, "GET", path, nil, &raw); err != nil {
		return Result{}, fmt.Errorf("search %s: %w", collection, err)
	}

	hits := make([]map[string]any, 0, len(raw.Hits))
	for _, h := range raw.Hits {
		if h.Document != nil {
			hits = append(hits, h.Document)
		}
	}

	return Result{Hits: hits, Found: raw.Found, Page: raw.Page}, nil
}
