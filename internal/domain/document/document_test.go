package document

import (
	"reflect"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/kailas-cloud/crmdex/internal/domain"
)

func TestNormalize(t *testing.T) {
	oid := primitive.NewObjectID()
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	raw := map[string]any{
		"_id":        oid,
		"name":       "Acme Corp",
		"created_at": created,
		"updated_at": primitive.NewDateTimeFromTime(created),
		"owner_id":   oid,
		"tags":       []any{"crm", created},
		"score":      3.14,
	}

	flat := Normalize(raw)

	if _, ok := flat["_id"]; ok {
		t.Error("Normalize kept _id")
	}
	if flat["name"] != "Acme Corp" {
		t.Errorf("name = %v", flat["name"])
	}
	if flat["created_at"] != created.Unix() {
		t.Errorf("created_at = %v, want %d", flat["created_at"], created.Unix())
	}
	if flat["updated_at"] != created.Unix() {
		t.Errorf("updated_at = %v, want %d", flat["updated_at"], created.Unix())
	}
	if flat["owner_id"] != oid.Hex() {
		t.Errorf("owner_id = %v, want %s", flat["owner_id"], oid.Hex())
	}
	wantTags := []any{"crm", created.Unix()}
	if !reflect.DeepEqual(flat["tags"], wantTags) {
		t.Errorf("tags = %v, want %v", flat["tags"], wantTags)
	}
	if flat["score"] != 3.14 {
		t.Errorf("score = %v", flat["score"])
	}
}

func TestNormalize_DecodedStoreDocument(t *testing.T) {
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	src := bson.M{
		"_id":    primitive.NewObjectID(),
		"name":   "Acme Corp",
		"opened": primitive.NewDateTimeFromTime(created),
		"tags":   bson.A{"crm", primitive.NewDateTimeFromTime(created)},
	}
	data, err := bson.Marshal(src)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var raw map[string]any
	if err := bson.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	flat := Normalize(raw)

	if flat["opened"] != created.Unix() {
		t.Errorf("opened = %v, want %d", flat["opened"], created.Unix())
	}
	// The driver decodes arrays as primitive.A, not []any.
	wantTags := []any{"crm", created.Unix()}
	if !reflect.DeepEqual(flat["tags"], wantTags) {
		t.Errorf("tags = %v (%T), want %v", flat["tags"], flat["tags"], wantTags)
	}
}

func TestProject_UnitScoped(t *testing.T) {
	tctx := domain.TenantContext{TenantID: "demo", UnitID: "sales"}
	def := domain.EntityDefinition{Name: "contact"}
	flat := map[string]any{"name": "John Doe", "id": "stale"}

	text, payload := Project(flat, "abc123", tctx, def)

	if text["id"] != "abc123" {
		t.Errorf("text id = %v", text["id"])
	}
	if text["tenant_id"] != "demo" || text["unit_id"] != "sales" {
		t.Errorf("text scoping = %v/%v", text["tenant_id"], text["unit_id"])
	}
	if text["name"] != "John Doe" {
		t.Errorf("text name = %v", text["name"])
	}

	// The point id travels outside the payload.
	if _, ok := payload["id"]; ok {
		t.Error("payload kept id")
	}
	if payload["tenant_id"] != "demo" || payload["unit_id"] != "sales" {
		t.Errorf("payload scoping = %v/%v", payload["tenant_id"], payload["unit_id"])
	}
	if payload["name"] != "John Doe" {
		t.Errorf("payload name = %v", payload["name"])
	}
}

func TestProject_TenantScoped_NoUnit(t *testing.T) {
	tctx := domain.TenantContext{TenantID: "demo", UnitID: "global"}
	def := domain.EntityDefinition{Name: "product", Scope: domain.ScopeTenant}

	text, payload := Project(map[string]any{"sku": "X-1"}, "p1", tctx, def)

	if _, ok := text["unit_id"]; ok {
		t.Error("tenant-scoped text document carries unit_id")
	}
	if _, ok := payload["unit_id"]; ok {
		t.Error("tenant-scoped payload carries unit_id")
	}
	if text["tenant_id"] != "demo" || payload["tenant_id"] != "demo" {
		t.Error("tenant_id missing")
	}
}

func TestProject_DoesNotMutateInput(t *testing.T) {
	flat := map[string]any{"name": "x"}
	_, _ = Project(flat, "id1", domain.TenantContext{TenantID: "t", UnitID: "u"}, domain.EntityDefinition{})
	if len(flat) != 1 {
		t.Errorf("input mutated: %v", flat)
	}
}
