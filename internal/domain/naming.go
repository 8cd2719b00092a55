package domain

import "strings"

// CollectionName derives the text-engine collection name for a partition.
// Tenant-scoped entities share one collection per tenant; unit-scoped
// entities get one collection per (tenant, unit). This function is the single
// source of truth for naming — writers and readers must never derive names
// themselves.
func CollectionName(tenantID, unitID, entity string, tenantScoped bool) string {
	if tenantScoped {
		return sanitizeName(tenantID + "_" + entity)
	}
	return sanitizeName(tenantID + "_" + unitID + "_" + entity)
}

// VectorCollectionName derives the vector-engine collection name. Vector
// collections are always tenant-wide, regardless of entity scope: one
// semantic index per (tenant, entity) shared by all units, with unit
// isolation enforced via a payload filter at query time.
func VectorCollectionName(tenantID, entity string) string {
	return sanitizeName(tenantID + "_" + entity + "_vectors")
}

// sanitizeName lowercases and replaces every character outside [a-z0-9_]
// with an underscore.
func sanitizeName(s string) string {
	s = strings.ToLower(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
