package docstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/boddenberg/agency-portal-bfa-go/internal/domain"
	"github.com/boddenberg/agency-portal-bfa-go/internal/infra/cache"
	"github.com/boddenberg/agency-portal-bfa-go/internal/infra/docstore"
	"github.com/boddenberg/agency-portal-bfa-go/internal/infra/memory"
	"github.com/boddenberg/agency-portal-bfa-go/internal/infra/observability"
	"github.com/boddenberg/agency-portal-bfa-go/internal/port"
)

func TestProfiles_CreateGetMerge(t *testing.T) {
	ctx := context.Background()
	profiles := docstore.NewProfiles(memory.NewStore())

	err := profiles.Create(ctx, "u1", domain.Profile{Email: "ana@acme.com", Role: domain.RoleClient, TenantID: domain.StringPtr("acme")})
	if err != nil {
		t.Fatalf("expected create, got %v", err)
	}

	agency := domain.RoleAgency
	if err := profiles.Merge(ctx, "u1", domain.ProfilePatch{Role: &agency, ClearTenant: true}); err != nil {
		t.Fatalf("expected merge, got %v", err)
	}

	got, err := profiles.Get(ctx, "u1")
	if err != nil || got == nil {
		t.Fatalf("expected profile, got %v %v", got, err)
	}
	if got.Role != domain.RoleAgency {
		t.Errorf("expected role agencia, got %s", got.Role)
	}
	if got.TenantID != nil {
		t.Errorf("expected tenant cleared, got %v", *got.TenantID)
	}
	if got.Email != "ana@acme.com" {
		t.Errorf("expected email preserved, got %s", got.Email)
	}
}

func TestProfiles_MalformedRoleIsEmpty(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	_ = store.Set(ctx, port.RootScope, docstore.ProfilesCollection, "u1", map[string]any{"email": "a@b.com", "role": 42})

	got, _ := docstore.NewProfiles(store).Get(ctx, "u1")
	if got.Role != "" {
		t.Errorf("expected empty role for malformed value, got %q", got.Role)
	}
}

func TestProfiles_EmptyMergeIsNoop(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	profiles := docstore.NewProfiles(store)

	if err := profiles.Merge(ctx, "u1", domain.ProfilePatch{}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got, _ := profiles.Get(ctx, "u1"); got != nil {
		t.Errorf("expected no document created, got %+v", got)
	}
}

func TestTenants_ExistsUsesCache(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	metrics := observability.NewMetrics()
	c := cache.New[bool](time.Minute)
	defer c.Close()
	tenants := docstore.NewTenants(store, c, metrics)

	if err := tenants.Create(ctx, domain.Tenant{ID: "acme", DisplayName: "Acme"}); err != nil {
		t.Fatalf("expected create, got %v", err)
	}

	ok, err := tenants.Exists(ctx, "acme")
	if err != nil || !ok {
		t.Fatalf("expected acme to exist, got %v %v", ok, err)
	}
	ok, _ = tenants.Exists(ctx, "globex")
	if ok {
		t.Error("expected globex to be missing")
	}

	if err := tenants.Delete(ctx, "acme"); err != nil {
		t.Fatalf("expected delete, got %v", err)
	}
	ok, _ = tenants.Exists(ctx, "acme")
	if ok {
		t.Error("expected deleted tenant to be missing")
	}

	snap := metrics.GetSyncSnapshot()
	if snap.TenantCacheHitRate != 1.0/3.0 {
		t.Errorf("expected hit rate 1/3, got %v", snap.TenantCacheHitRate)
	}
}

func TestTenants_ListFallsBackToID(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	_ = store.Set(ctx, port.RootScope, docstore.TenantsCollection, "globex", map[string]any{})
	c := cache.New[bool](time.Minute)
	defer c.Close()

	list, err := docstore.NewTenants(store, c, observability.NewMetrics()).List(ctx)
	if err != nil {
		t.Fatalf("expected list, got %v", err)
	}
	if len(list) != 1 || list[0].DisplayName != "globex" {
		t.Errorf("expected display name to default to id, got %+v", list)
	}
}

func TestEntryCodec(t *testing.T) {
	at := time.Date(2025, 10, 20, 0, 0, 0, 0, time.UTC)
	owner := "Carlos"
	entry := domain.ScheduledEntry{
		ID: "e1", Title: "Novo post", ScheduledAt: at, Kind: domain.KindPost,
		Status: domain.StatusPending, Owner: &owner, Channel: "Blog", Body: "texto",
	}

	decoded := docstore.EntryFromDocument("acme", domain.Document{ID: "e1", Fields: docstore.EntryFields(entry)}, time.UTC)

	if !decoded.ScheduledAt.Equal(at) {
		t.Errorf("expected %v, got %v", at, decoded.ScheduledAt)
	}
	if decoded.Owner == nil || *decoded.Owner != "Carlos" {
		t.Errorf("expected owner Carlos, got %v", decoded.Owner)
	}
	if decoded.TenantID != "acme" || decoded.Body != "texto" {
		t.Errorf("unexpected decoded entry: %+v", decoded)
	}

	mirror := docstore.MirrorFromDocument(domain.Document{ID: "e1", Fields: docstore.MirrorFields(entry.Mirror())}, time.UTC)
	if mirror.Title != "Novo post" || mirror.Body != "texto" || !mirror.ScheduledAt.Equal(at) {
		t.Errorf("unexpected mirror: %+v", mirror)
	}
}

func TestEntryCodec_DateOnlyIsLocalMidnight(t *testing.T) {
	loc := time.FixedZone("BRT", -3*60*60)
	want := time.Date(2025, 10, 20, 0, 0, 0, 0, loc)

	entry := docstore.EntryFromDocument("acme", domain.Document{ID: "legacy", Fields: map[string]any{"title": "x", "date": "2025-10-20"}}, loc)
	if !entry.ScheduledAt.Equal(want) {
		t.Errorf("expected %v, got %v", want, entry.ScheduledAt)
	}

	mirror := docstore.MirrorFromDocument(domain.Document{ID: "legacy", Fields: map[string]any{"titulo": "x", "data_agendada": "2025-10-20"}}, loc)
	if !mirror.ScheduledAt.Equal(want) {
		t.Errorf("expected %v, got %v", want, mirror.ScheduledAt)
	}
}

func TestEntryPatchFields_ClearOwner(t *testing.T) {
	fields := docstore.EntryPatchFields(domain.EntryPatch{ClearOwner: true, Owner: domain.StringPtr("x")})

	v, ok := fields["proprietario"]
	if !ok || v != nil {
		t.Errorf("expected explicit null owner, got %v (present=%v)", v, ok)
	}
	if len(fields) != 1 {
		t.Errorf("expected only the owner field, got %v", fields)
	}
}
