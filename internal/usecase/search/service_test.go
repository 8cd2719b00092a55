package search

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/crmdex/internal/domain"
	"github.com/kailas-cloud/crmdex/internal/embedding"
	"github.com/kailas-cloud/crmdex/internal/engine/qdrant"
	"github.com/kailas-cloud/crmdex/internal/engine/typesense"
)

// --- Mocks ---

type mockRegistry struct {
	tenant     domain.Tenant
	entities   []domain.EntityDefinition
	failEntity string
}

func (m *mockRegistry) GetTenant(_ context.Context, tenantID string) (domain.Tenant, error) {
	if m.tenant.ID != tenantID {
		return domain.Tenant{}, fmt.Errorf("tenant %s: %w", tenantID, domain.ErrNotFound)
	}
	return m.tenant, nil
}

func (m *mockRegistry) GetEntity(_ context.Context, _, name string) (domain.EntityDefinition, error) {
	if m.failEntity != "" && name == m.failEntity {
		return domain.EntityDefinition{}, fmt.Errorf("entity %s: %w", name, domain.ErrNotFound)
	}
	for _, def := range m.entities {
		if def.Name == name {
			return def, nil
		}
	}
	return domain.EntityDefinition{}, fmt.Errorf("entity %s: %w", name, domain.ErrNotFound)
}

func (m *mockRegistry) GetEntities(_ context.Context, _ string) ([]domain.EntityDefinition, error) {
	return m.entities, nil
}

type mockTextEngine struct {
	result typesense.Result
	err    error
	called bool
}

func (m *mockTextEngine) Search(
	_ context.Context, _ domain.TenantContext,
	_ domain.EntityDefinition, _ typesense.SearchOptions,
) (typesense.Result, error) {
	m.called = true
	return m.result, m.err
}

type mockVectorEngine struct {
	points     []qdrant.ScoredPoint
	err        error
	called     bool
	lastQuery  qdrant.SearchQuery
	collection string
}

func (m *mockVectorEngine) SearchPoints(
	_ context.Context, collection string, q qdrant.SearchQuery,
) ([]qdrant.ScoredPoint, error) {
	m.called = true
	m.collection = collection
	m.lastQuery = q
	return m.points, m.err
}

type staticProvider struct {
	vec []float32
	err error
}

func (p *staticProvider) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	if p.err != nil {
		return nil, p.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = p.vec
	}
	return out, nil
}

type mockResolver struct {
	provider embedding.Provider
	err      error
}

func (m *mockResolver) Resolve(_ *domain.EmbeddingSettings) (embedding.Provider, error) {
	return m.provider, m.err
}

func embeddableContact() domain.EntityDefinition {
	return domain.EntityDefinition{
		Name: "contact",
		Fields: []domain.FieldDefinition{
			{Name: "name", Type: domain.FieldString, Searchable: true, Embeddable: true},
		},
	}
}

func newService(reg *mockRegistry, text *mockTextEngine, vector *mockVectorEngine, res *mockResolver) *Service {
	return New(reg, text, vector, res, zap.NewNop())
}

func defaultFixture() (*mockRegistry, *mockTextEngine, *mockVectorEngine, *mockResolver) {
	reg := &mockRegistry{
		tenant:   domain.Tenant{ID: "demo"},
		entities: []domain.EntityDefinition{embeddableContact()},
	}
	text := &mockTextEngine{}
	vector := &mockVectorEngine{}
	res := &mockResolver{provider: &staticProvider{vec: []float32{0.1}}}
	return reg, text, vector, res
}

var demoCtx = domain.TenantContext{TenantID: "demo", UnitID: "sales"}

// --- Hybrid ---

func TestHybrid_UnknownEntity_FailsFast(t *testing.T) {
	reg, text, vector, res := defaultFixture()
	svc := newService(reg, text, vector, res)

	_, err := svc.Hybrid(context.Background(), demoCtx, "nope", "q", HybridOptions{})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
	if text.called || vector.called {
		t.Error("engines called despite unknown entity")
	}
}

func TestHybrid_MergesBothSides(t *testing.T) {
	reg, text, vector, res := defaultFixture()
	vector.points = []qdrant.ScoredPoint{
		{ID: "a", Score: 0.9, Payload: map[string]any{"name": "A"}},
		{ID: "b", Score: 0.5, Payload: map[string]any{"name": "B"}},
	}
	text.result = typesense.Result{
		Hits:  []map[string]any{{"id": "b", "name": "B full"}, {"id": "c", "name": "C"}},
		Found: 2,
	}
	svc := newService(reg, text, vector, res)

	page, err := svc.Hybrid(context.Background(), demoCtx, "contact", "q", HybridOptions{})
	if err != nil {
		t.Fatalf("Hybrid() error = %v", err)
	}
	if page.Total != 3 || len(page.Results) != 3 {
		t.Fatalf("page = %+v", page)
	}

	// b matched both sides: 0.5*0.7 + 0.8*0.3 = 0.59 < a's 0.63.
	if page.Results[0].ID != "a" || page.Results[1].ID != "b" || page.Results[2].ID != "c" {
		t.Errorf("order = %s,%s,%s", page.Results[0].ID, page.Results[1].ID, page.Results[2].ID)
	}

	b := page.Results[1]
	if b.SemanticScore != 0.5 || b.TextScore != 0.8 {
		t.Errorf("b scores = %+v", b)
	}
	// The text document wins over the vector payload.
	if b.Document["name"] != "B full" {
		t.Errorf("b document = %v", b.Document)
	}
}

func TestHybrid_SemanticFailure_DegradesToTextOnly(t *testing.T) {
	reg, text, vector, res := defaultFixture()
	vector.err = errors.New("qdrant down")
	text.result = typesense.Result{Hits: []map[string]any{{"id": "c1"}}, Found: 1}
	svc := newService(reg, text, vector, res)

	page, err := svc.Hybrid(context.Background(), demoCtx, "contact", "q", HybridOptions{})
	if err != nil {
		t.Fatalf("Hybrid() error = %v, want degraded success", err)
	}
	if page.Total != 1 || page.Results[0].ID != "c1" {
		t.Errorf("page = %+v", page)
	}
}

func TestHybrid_TextFailure_DegradesToSemanticOnly(t *testing.T) {
	reg, text, vector, res := defaultFixture()
	text.err = errors.New("typesense down")
	vector.points = []qdrant.ScoredPoint{{ID: "a", Score: 0.9}}
	svc := newService(reg, text, vector, res)

	page, err := svc.Hybrid(context.Background(), demoCtx, "contact", "q", HybridOptions{})
	if err != nil {
		t.Fatalf("Hybrid() error = %v, want degraded success", err)
	}
	if page.Total != 1 || page.Results[0].ID != "a" {
		t.Errorf("page = %+v", page)
	}
}

func TestHybrid_BothFail_EmptyPage(t *testing.T) {
	reg, text, vector, res := defaultFixture()
	text.err = errors.New("down")
	vector.err = errors.New("down")
	svc := newService(reg, text, vector, res)

	page, err := svc.Hybrid(context.Background(), demoCtx, "contact", "q", HybridOptions{})
	if err != nil {
		t.Fatalf("Hybrid() error = %v", err)
	}
	if page.Total != 0 || len(page.Results) != 0 {
		t.Errorf("page = %+v", page)
	}
}

func TestHybrid_ZeroSemanticWeight_SkipsVectorSide(t *testing.T) {
	reg, text, vector, res := defaultFixture()
	vector.points = []qdrant.ScoredPoint{{ID: "a", Score: 0.99}}
	svc := newService(reg, text, vector, res)

	page, err := svc.Hybrid(context.Background(), demoCtx, "contact", "q",
		HybridOptions{SemanticWeight: 0, TextWeight: 1})
	if err != nil {
		t.Fatalf("Hybrid() error = %v", err)
	}
	if vector.called {
		t.Error("vector engine called with zero semantic weight")
	}
	if page.Total != 0 {
		t.Errorf("page = %+v", page)
	}
}

func TestHybrid_ZeroTextWeight_SkipsTextSide(t *testing.T) {
	reg, text, vector, res := defaultFixture()
	vector.points = []qdrant.ScoredPoint{{ID: "a", Score: 0.9}}
	svc := newService(reg, text, vector, res)

	_, err := svc.Hybrid(context.Background(), demoCtx, "contact", "q",
		HybridOptions{SemanticWeight: 1, TextWeight: 0})
	if err != nil {
		t.Fatalf("Hybrid() error = %v", err)
	}
	if text.called {
		t.Error("text engine called with zero text weight")
	}
}

func TestHybrid_NoEmbeddableFields_TextOnly(t *testing.T) {
	reg, text, vector, res := defaultFixture()
	reg.entities = []domain.EntityDefinition{{
		Name:   "task",
		Fields: []domain.FieldDefinition{{Name: "title", Type: domain.FieldString, Searchable: true}},
	}}
	text.result = typesense.Result{Hits: []map[string]any{{"id": "t1"}}, Found: 1}
	svc := newService(reg, text, vector, res)

	page, err := svc.Hybrid(context.Background(), demoCtx, "task", "q", HybridOptions{})
	if err != nil {
		t.Fatalf("Hybrid() error = %v", err)
	}
	if vector.called {
		t.Error("vector engine called for entity without embeddable fields")
	}
	if page.Total != 1 {
		t.Errorf("page = %+v", page)
	}
}

func TestHybrid_NegativeWeight_Rejected(t *testing.T) {
	reg, text, vector, res := defaultFixture()
	svc := newService(reg, text, vector, res)

	_, err := svc.Hybrid(context.Background(), demoCtx, "contact", "q",
		HybridOptions{SemanticWeight: -1, TextWeight: 1})
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("error = %v, want ErrValidation", err)
	}
}

func TestHybrid_Truncation(t *testing.T) {
	reg, text, vector, res := defaultFixture()
	for i := 0; i < 25; i++ {
		vector.points = append(vector.points, qdrant.ScoredPoint{
			ID: fmt.Sprintf("p%d", i), Score: 1 - float64(i)*0.01,
		})
	}
	svc := newService(reg, text, vector, res)

	page, err := svc.Hybrid(context.Background(), demoCtx, "contact", "q", HybridOptions{Limit: 10})
	if err != nil {
		t.Fatalf("Hybrid() error = %v", err)
	}
	if len(page.Results) != 10 || page.Total != 10 {
		t.Errorf("results=%d total=%d, want 10/10", len(page.Results), page.Total)
	}
	if page.Results[0].ID != "p0" {
		t.Errorf("top = %s", page.Results[0].ID)
	}
}

func TestHybrid_ConfiguredDefaults(t *testing.T) {
	reg, text, vector, res := defaultFixture()
	for i := 0; i < 8; i++ {
		vector.points = append(vector.points, qdrant.ScoredPoint{
			ID: fmt.Sprintf("p%d", i), Score: 1 - float64(i)*0.01,
		})
	}
	svc := newService(reg, text, vector, res).
		WithDefaults(Defaults{SemanticWeight: 1, TextWeight: 0, Limit: 3})

	page, err := svc.Hybrid(context.Background(), demoCtx, "contact", "q", HybridOptions{})
	if err != nil {
		t.Fatalf("Hybrid() error = %v", err)
	}
	if text.called {
		t.Error("text engine called despite zero configured text weight")
	}
	if len(page.Results) != 3 || page.Total != 3 {
		t.Errorf("results=%d total=%d, want configured limit 3", len(page.Results), page.Total)
	}
	// Candidate fetch stays limit*2 on the configured limit.
	if vector.lastQuery.Limit != 6 {
		t.Errorf("vector candidate limit = %d, want 6", vector.lastQuery.Limit)
	}
}

func TestHybrid_TenantIsolationFilter(t *testing.T) {
	reg, text, vector, res := defaultFixture()
	vector.points = []qdrant.ScoredPoint{{ID: "a", Score: 0.9}}
	svc := newService(reg, text, vector, res)

	if _, err := svc.Hybrid(context.Background(), demoCtx, "contact", "q", HybridOptions{}); err != nil {
		t.Fatal(err)
	}

	if vector.collection != "demo_contact_vectors" {
		t.Errorf("collection = %q", vector.collection)
	}
	must := vector.lastQuery.Filter.Must
	if len(must) != 2 || must[0].Key != "tenant_id" || must[1].Key != "unit_id" {
		t.Errorf("filter = %+v", must)
	}
	if must[0].Match.Value != "demo" || must[1].Match.Value != "sales" {
		t.Errorf("filter values = %+v", must)
	}
}

func TestHybrid_TenantScopedEntity_NoUnitClause(t *testing.T) {
	reg, text, vector, res := defaultFixture()
	reg.entities = []domain.EntityDefinition{{
		Name:  "product",
		Scope: domain.ScopeTenant,
		Fields: []domain.FieldDefinition{
			{Name: "name", Type: domain.FieldString, Embeddable: true},
		},
	}}
	vector.points = []qdrant.ScoredPoint{{ID: "a", Score: 0.9}}
	svc := newService(reg, text, vector, res)

	if _, err := svc.Hybrid(context.Background(), demoCtx, "product", "q", HybridOptions{}); err != nil {
		t.Fatal(err)
	}
	must := vector.lastQuery.Filter.Must
	if len(must) != 1 || must[0].Key != "tenant_id" {
		t.Errorf("filter = %+v", must)
	}
}

// --- Text / Semantic / Global ---

func TestText_ErrorPropagates(t *testing.T) {
	reg, text, vector, res := defaultFixture()
	text.err = errors.New("down")
	svc := newService(reg, text, vector, res)

	if _, err := svc.Text(context.Background(), demoCtx, "contact", typesense.SearchOptions{}); err == nil {
		t.Error("expected error")
	}
}

func TestSemantic_ResolverErrorPropagates(t *testing.T) {
	reg, text, vector, res := defaultFixture()
	res.err = embedding.ErrMissingKey(domain.EmbeddingSettings{Provider: "openai"})
	svc := newService(reg, text, vector, res)

	_, err := svc.Semantic(context.Background(), demoCtx, "contact", "q", 5)
	if !errors.Is(err, domain.ErrMissingAPIKey) {
		t.Errorf("error = %v, want ErrMissingAPIKey", err)
	}
}

func TestGlobal_SkipsFailingEntity(t *testing.T) {
	reg, text, vector, res := defaultFixture()
	reg.entities = []domain.EntityDefinition{
		embeddableContact(),
		{Name: "task", Fields: []domain.FieldDefinition{
			{Name: "title", Type: domain.FieldString, Searchable: true},
		}},
	}
	reg.failEntity = "task"
	text.result = typesense.Result{Hits: []map[string]any{{"id": "x"}}, Found: 1}
	svc := newService(reg, text, vector, res)

	pages, err := svc.Global(context.Background(), demoCtx, "q", 5)
	if err != nil {
		t.Fatalf("Global() error = %v", err)
	}
	if len(pages) != 1 {
		t.Errorf("pages = %v, want contact only", pages)
	}
	if page, ok := pages["contact"]; !ok || page.Total != 1 {
		t.Errorf("contact page = %+v, ok=%v", page, ok)
	}
}

func TestGlobal_AllEntitiesSearched(t *testing.T) {
	reg, text, vector, res := defaultFixture()
	reg.entities = []domain.EntityDefinition{
		embeddableContact(),
		{Name: "task", Fields: []domain.FieldDefinition{
			{Name: "title", Type: domain.FieldString, Searchable: true},
		}},
	}
	text.result = typesense.Result{Hits: []map[string]any{{"id": "x"}}, Found: 1}
	svc := newService(reg, text, vector, res)

	pages, err := svc.Global(context.Background(), demoCtx, "q", 5)
	if err != nil {
		t.Fatalf("Global() error = %v", err)
	}
	if len(pages) != 2 {
		t.Errorf("pages = %v", pages)
	}
}
