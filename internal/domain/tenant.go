package domain

// GlobalUnit is the sentinel unit id used for tenant-scoped entities that are
// shared across all units of a tenant.
const GlobalUnit = "global"

// TenantContext is the isolation boundary passed through every operation.
type TenantContext struct {
	TenantID string
	UnitID   string
}

// Global returns the same tenant context with the unit replaced by the
// tenant-wide sentinel.
func (t TenantContext) Global() TenantContext {
	return TenantContext{TenantID: t.TenantID, UnitID: GlobalUnit}
}

// EmbeddingSettings selects an embeddings backend. A tenant-level value, when
// present with a non-empty Provider, fully replaces the global default — no
// field-level merging.
type EmbeddingSettings struct {
	Provider string `bson:"provider" yaml:"provider"`
	Model    string `bson:"model" yaml:"model"`
	APIKey   string `bson:"api_key" yaml:"api_key"`
	BaseURL  string `bson:"base_url" yaml:"base_url"`
}

// Tenant is a tenant's configuration record as served by the registry.
type Tenant struct {
	ID        string             `bson:"_id"`
	Name      string             `bson:"name"`
	Units     []string           `bson:"units"`
	Embedding *EmbeddingSettings `bson:"embedding,omitempty"`
}
