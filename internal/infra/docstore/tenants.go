package docstore

import (
	"context"
	"fmt"
	"sort"

	"github.com/boddenberg/agency-portal-bfa-go/internal/domain"
	"github.com/boddenberg/agency-portal-bfa-go/internal/infra/observability"
	"github.com/boddenberg/agency-portal-bfa-go/internal/port"
)

const tenantCacheName = "tenant"

// Tenants implements port.TenantStore over the empresas collection.
// Existence checks run on every impersonation request and are cached.
type Tenants struct {
	store   port.DocumentStore
	exists  port.Cache[bool]
	metrics *observability.Metrics
}

// NewTenants creates the tenant repository.
func NewTenants(store port.DocumentStore, exists port.Cache[bool], metrics *observability.Metrics) *Tenants {
	return &Tenants{store: store, exists: exists, metrics: metrics}
}

func (t *Tenants) Exists(ctx context.Context, id string) (bool, error) {
	if ok, hit := t.exists.Get(id); hit {
		t.metrics.IncrCacheHit(tenantCacheName)
		return ok, nil
	}
	t.metrics.IncrCacheMiss(tenantCacheName)

	ctx, span := tracer.Start(ctx, "Tenants.Exists")
	defer span.End()

	doc, err := t.store.Get(ctx, port.RootScope, TenantsCollection, id)
	if err != nil {
		return false, fmt.Errorf("get tenant %s: %w", id, err)
	}
	found := doc != nil
	t.exists.Set(id, found)
	return found, nil
}

// List returns every tenant ordered by id.
func (t *Tenants) List(ctx context.Context) ([]domain.Tenant, error) {
	ctx, span := tracer.Start(ctx, "Tenants.List")
	defer span.End()

	docs, err := t.store.ListAll(ctx, port.RootScope, TenantsCollection)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	out := make([]domain.Tenant, 0, len(docs))
	for _, doc := range docs {
		name := stringField(doc.Fields, "nome")
		if name == "" {
			name = doc.ID
		}
		out = append(out, domain.Tenant{ID: doc.ID, DisplayName: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Create stores the tenant under its id. Re-creating an existing tenant
// only refreshes its display name.
func (t *Tenants) Create(ctx context.Context, tenant domain.Tenant) error {
	ctx, span := tracer.Start(ctx, "Tenants.Create")
	defer span.End()

	if err := t.store.Merge(ctx, port.RootScope, TenantsCollection, tenant.ID, map[string]any{"nome": tenant.DisplayName}); err != nil {
		return fmt.Errorf("create tenant %s: %w", tenant.ID, err)
	}
	t.exists.Set(tenant.ID, true)
	return nil
}

func (t *Tenants) Delete(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "Tenants.Delete")
	defer span.End()

	if err := t.store.Delete(ctx, port.RootScope, TenantsCollection, id); err != nil {
		return fmt.Errorf("delete tenant %s: %w", id, err)
	}
	t.exists.Delete(id)
	return nil
}
