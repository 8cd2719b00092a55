package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/crmdex/internal/domain"
	"github.com/kailas-cloud/crmdex/internal/embedding"
	"github.com/kailas-cloud/crmdex/internal/engine/qdrant"
	"github.com/kailas-cloud/crmdex/internal/engine/typesense"
	searchuc "github.com/kailas-cloud/crmdex/internal/usecase/search"
)

type stubPinger struct{ err error }

func (p stubPinger) Ping(_ context.Context) error { return p.err }

type stubRegistry struct {
	def domain.EntityDefinition
}

func (s stubRegistry) GetTenant(_ context.Context, tenantID string) (domain.Tenant, error) {
	return domain.Tenant{ID: tenantID}, nil
}

func (s stubRegistry) GetEntity(_ context.Context, _, name string) (domain.EntityDefinition, error) {
	if name != s.def.Name {
		return domain.EntityDefinition{}, fmt.Errorf("entity %s: %w", name, domain.ErrNotFound)
	}
	return s.def, nil
}

func (s stubRegistry) GetEntities(_ context.Context, _ string) ([]domain.EntityDefinition, error) {
	return []domain.EntityDefinition{s.def}, nil
}

type stubTextEngine struct {
	result typesense.Result
	err    error
}

func (s stubTextEngine) Search(
	_ context.Context, _ domain.TenantContext,
	_ domain.EntityDefinition, _ typesense.SearchOptions,
) (typesense.Result, error) {
	return s.result, s.err
}

type stubVectorEngine struct{}

func (stubVectorEngine) SearchPoints(_ context.Context, _ string, _ qdrant.SearchQuery) ([]qdrant.ScoredPoint, error) {
	return nil, nil
}

type stubResolver struct{}

func (stubResolver) Resolve(_ *domain.EmbeddingSettings) (embedding.Provider, error) {
	return nil, embedding.ErrMissingKey(domain.EmbeddingSettings{Provider: "openai"})
}

func testRouter(text stubTextEngine, deps ...Dependency) http.Handler {
	reg := stubRegistry{def: domain.EntityDefinition{
		Name: "contact",
		Fields: []domain.FieldDefinition{
			{Name: "name", Type: domain.FieldString, Searchable: true},
		},
	}}
	svc := searchuc.New(reg, text, stubVectorEngine{}, stubResolver{}, zap.NewNop())
	return NewRouter(svc, zap.NewNop(), nil, deps...)
}

func TestHealthz(t *testing.T) {
	r := testRouter(stubTextEngine{})

	req := httptest.NewRequest("GET", "/healthz", http.NoBody)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestReadyz_AllHealthy(t *testing.T) {
	r := testRouter(stubTextEngine{},
		Dependency{Name: "mongo", Pinger: stubPinger{}},
		Dependency{Name: "typesense", Pinger: stubPinger{}},
	)

	req := httptest.NewRequest("GET", "/readyz", http.NoBody)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("status = %d", rr.Code)
	}
}

func TestReadyz_DependencyDown_503(t *testing.T) {
	r := testRouter(stubTextEngine{},
		Dependency{Name: "mongo", Pinger: stubPinger{}},
		Dependency{Name: "qdrant", Pinger: stubPinger{err: errors.New("refused")}},
	)

	req := httptest.NewRequest("GET", "/readyz", http.NoBody)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rr.Code)
	}
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Checks["mongo"] != "ok" || body.Checks["qdrant"] == "ok" {
		t.Errorf("checks = %v", body.Checks)
	}
}

func searchBody(entity string) string {
	return fmt.Sprintf(`{"tenant_id":"demo","unit_id":"sales","entity":%q,"query":"john"}`, entity)
}

func TestSearchHybrid_OK(t *testing.T) {
	r := testRouter(stubTextEngine{result: typesense.Result{
		Hits:  []map[string]any{{"id": "c1", "name": "John"}},
		Found: 1,
	}})

	req := httptest.NewRequest("POST", "/v1/search/hybrid", strings.NewReader(searchBody("contact")))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var page domain.HybridPage
	if err := json.NewDecoder(rr.Body).Decode(&page); err != nil {
		t.Fatal(err)
	}
	if page.Total != 1 || page.Results[0].ID != "c1" {
		t.Errorf("page = %+v", page)
	}
}

func TestSearchHybrid_UnknownEntity_404(t *testing.T) {
	r := testRouter(stubTextEngine{})

	req := httptest.NewRequest("POST", "/v1/search/hybrid", strings.NewReader(searchBody("ghost")))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d", rr.Code)
	}
}

func TestSearchHybrid_MissingTenant_400(t *testing.T) {
	r := testRouter(stubTextEngine{})

	req := httptest.NewRequest("POST", "/v1/search/hybrid", strings.NewReader(`{"entity":"contact"}`))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rr.Code)
	}
}

func TestSearchText_EngineError_502(t *testing.T) {
	r := testRouter(stubTextEngine{err: fmt.Errorf("boom: %w", domain.ErrEngineFailure)})

	req := httptest.NewRequest("POST", "/v1/search/text", strings.NewReader(searchBody("contact")))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadGateway {
		t.Errorf("status = %d", rr.Code)
	}
}

func TestSearchSemantic_MissingKey_422(t *testing.T) {
	r := testRouter(stubTextEngine{})

	req := httptest.NewRequest("POST", "/v1/search/semantic", strings.NewReader(searchBody("contact")))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
}
