package typesense

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/kailas-cloud/crmdex/internal/domain"
)

// BuildFilter renders the engine's filter_by expression for a partition.
// tenant_id is always AND-combined; unit_id is added unless the entity is
// tenant-scoped. Extra filters follow, AND-combined in field-name order so
// the output is deterministic.
func BuildFilter(
	tctx domain.TenantContext, def domain.EntityDefinition, extra map[string]any,
) string {
	clauses := []string{"tenant_id:=" + renderValue(tctx.TenantID)}
	if !def.TenantScoped() {
		clauses = append(clauses, "unit_id:="+renderValue(tctx.UnitID))
	}

	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		clauses = append(clauses, renderClause(k, extra[k]))
	}

	return strings.Join(clauses, " && ")
}

// renderClause renders one equality clause. Slice values become an OR-set:
// field:=[v1,v2].
func renderClause(field string, value any) string {
	rv := reflect.ValueOf(value)
	if value != nil && (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) {
		parts := make([]string, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			parts[i] = renderValue(rv.Index(i).Interface())
		}
		return field + ":=[" + strings.Join(parts, ",") + "]"
	}
	return field + ":=" + renderValue(value)
}

// renderValue renders numerics and booleans bare; everything else is quoted
// with internal quotes escaped.
func renderValue(v any) string {
	switch t := v.(type) {
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case string:
		return quote(t)
	default:
		return quote(fmt.Sprint(v))
	}
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}
