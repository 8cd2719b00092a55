// Package document converts primary-store records into the engine-specific
// write shapes.
package document

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/kailas-cloud/crmdex/internal/domain"
)

// internalIDField is the primary store's identifier key. It is stripped from
// every projection so it cannot collide with the engine-level "id" field.
const internalIDField = "_id"

// Normalize flattens a primary-store record: the internal identifier is
// dropped, date values (top-level or inside arrays) become epoch seconds,
// object ids become their hex form, everything else passes through unchanged.
func Normalize(raw map[string]any) map[string]any {
	flat := make(map[string]any, len(raw))
	for k, v := range raw {
		if k == internalIDField {
			continue
		}
		flat[k] = normalizeValue(v)
	}
	return flat
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case time.Time:
		return t.Unix()
	case primitive.DateTime:
		return t.Time().Unix()
	case primitive.ObjectID:
		return t.Hex()
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalizeValue(e)
		}
		return out
	case primitive.A:
		// The mongo driver decodes arrays as primitive.A, which a []any
		// case does not match.
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalizeValue(e)
		}
		return out
	default:
		return v
	}
}

// Project builds the two engine write shapes from a normalized document.
// The text document carries id and tenant_id, plus unit_id unless the entity
// is tenant-scoped. The vector payload carries the same flattened fields and
// scoping but no "id" key: the identifier travels as the point id, not inside
// the payload.
func Project(
	flat map[string]any, id string,
	tctx domain.TenantContext, def domain.EntityDefinition,
) (text map[string]any, payload map[string]any) {
	text = make(map[string]any, len(flat)+3)
	payload = make(map[string]any, len(flat)+2)
	for k, v := range flat {
		if k == internalIDField {
			continue
		}
		text[k] = v
		payload[k] = v
	}

	text["id"] = id
	text["tenant_id"] = tctx.TenantID

	delete(payload, "id")
	payload["tenant_id"] = tctx.TenantID

	if !def.TenantScoped() {
		text["unit_id"] = tctx.UnitID
		payload["unit_id"] = tctx.UnitID
	}
	return text, payload
}
