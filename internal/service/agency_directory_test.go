package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/boddenberg/agency-portal-bfa-go/internal/domain"
	"github.com/boddenberg/agency-portal-bfa-go/internal/infra/memory"
	"github.com/boddenberg/agency-portal-bfa-go/internal/service"

	"go.uber.org/zap"
)

func agencySession() domain.ResolvedSession {
	role := domain.RoleAgency
	return domain.ResolvedSession{State: domain.StateResolved, UID: "ops", Email: agencyEmail, Verified: true, Role: &role}
}

func clientSession() domain.ResolvedSession {
	role := domain.RoleClient
	return domain.ResolvedSession{State: domain.StateResolved, UID: "ana", Role: &role, TenantID: domain.StringPtr("acme")}
}

func newDirectory(t *testing.T, h *harness) *service.AgencyDirectory {
	t.Helper()
	ctx := context.Background()
	_ = h.profiles.Create(ctx, "ops", domain.Profile{Email: agencyEmail, Role: domain.RoleAgency})
	_ = h.profiles.Create(ctx, "ana", domain.Profile{Email: "ana@acme.com", Role: domain.RoleClient})
	_ = h.tenants.Create(ctx, domain.Tenant{ID: "acme", DisplayName: "Acme"})
	return service.NewAgencyDirectory(h.profiles, h.tenants, h.dir.Factory(), zap.NewNop())
}

func TestDirectory_RequiresAgency(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	d := newDirectory(t, h)

	calls := map[string]func(domain.ResolvedSession) error{
		"load": func(s domain.ResolvedSession) error { _, err := d.Load(ctx, s); return err },
		"assign": func(s domain.ResolvedSession) error {
			_, err := d.AssignTenant(ctx, s, "ana", domain.StringPtr("acme"))
			return err
		},
		"role":          func(s domain.ResolvedSession) error { _, err := d.ChangeRole(ctx, s, "ana", domain.RoleAgency); return err },
		"create tenant": func(s domain.ResolvedSession) error { _, err := d.CreateTenantFor(ctx, s, "ana", "new"); return err },
		"delete tenant": func(s domain.ResolvedSession) error { return d.DeleteTenant(ctx, s, "acme") },
		"delete user":   func(s domain.ResolvedSession) error { return d.DeleteProfile(ctx, s, "ana") },
		"reset":         func(s domain.ResolvedSession) error { return d.SendPasswordReset(ctx, s, "ana@acme.com") },
	}

	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			for _, s := range []domain.ResolvedSession{clientSession(), {State: domain.StateUnauthenticated}} {
				var forbidden *domain.ErrForbidden
				if err := call(s); !errors.As(err, &forbidden) {
					t.Errorf("expected ErrForbidden for %v, got %v", s.State, err)
				}
			}
		})
	}
}

func TestDirectory_Load(t *testing.T) {
	h := newHarness(t)
	d := newDirectory(t, h)

	dir, err := d.Load(context.Background(), agencySession())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(dir.Profiles) != 2 || len(dir.Tenants) != 1 || dir.Tenants[0].DisplayName != "Acme" {
		t.Errorf("unexpected directory: %+v", dir)
	}
}

func TestDirectory_AssignTenant(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	d := newDirectory(t, h)

	p, err := d.AssignTenant(ctx, agencySession(), "ana", domain.StringPtr("acme"))
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if p.TenantID == nil || *p.TenantID != "acme" {
		t.Errorf("expected acme, got %+v", p)
	}

	stored, _ := h.profiles.Get(ctx, "ana")
	if stored.TenantID == nil || *stored.TenantID != "acme" {
		t.Errorf("expected stored tenant, got %+v", stored)
	}

	if _, err := d.AssignTenant(ctx, agencySession(), "ana", nil); err != nil {
		t.Fatalf("unassign: %v", err)
	}
	stored, _ = h.profiles.Get(ctx, "ana")
	if stored.TenantID != nil {
		t.Errorf("expected tenant cleared, got %v", *stored.TenantID)
	}
}

func TestDirectory_AssignTenantErrors(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	d := newDirectory(t, h)

	var nf *domain.ErrNotFound
	if _, err := d.AssignTenant(ctx, agencySession(), "ana", domain.StringPtr("globex")); !errors.As(err, &nf) || nf.Resource != "tenant" {
		t.Errorf("expected unknown tenant, got %v", err)
	}
	if _, err := d.AssignTenant(ctx, agencySession(), "ghost", domain.StringPtr("acme")); !errors.As(err, &nf) || nf.Resource != "profile" {
		t.Errorf("expected unknown profile, got %v", err)
	}

	var conflict *domain.ErrConflict
	if _, err := d.AssignTenant(ctx, agencySession(), "ops", domain.StringPtr("acme")); !errors.As(err, &conflict) {
		t.Errorf("expected conflict for agency profile, got %v", err)
	}
}

func TestDirectory_ChangeRoleToAgencyClearsTenant(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	d := newDirectory(t, h)
	_, _ = d.AssignTenant(ctx, agencySession(), "ana", domain.StringPtr("acme"))

	p, err := d.ChangeRole(ctx, agencySession(), "ana", domain.RoleAgency)
	if err != nil {
		t.Fatalf("change role: %v", err)
	}
	if p.Role != domain.RoleAgency || p.TenantID != nil {
		t.Errorf("unexpected profile: %+v", p)
	}
	stored, _ := h.profiles.Get(ctx, "ana")
	if stored.Role != domain.RoleAgency || stored.TenantID != nil {
		t.Errorf("unexpected stored profile: %+v", stored)
	}

	var verr *domain.ErrValidation
	if _, err := d.ChangeRole(ctx, agencySession(), "ana", domain.Role("admin")); !errors.As(err, &verr) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestDirectory_CreateTenantFor(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	d := newDirectory(t, h)

	p, err := d.CreateTenantFor(ctx, agencySession(), "ana", " globex ")
	if err != nil {
		t.Fatalf("create tenant: %v", err)
	}
	if p.TenantID == nil || *p.TenantID != "globex" {
		t.Errorf("expected globex, got %+v", p)
	}
	if ok, _ := h.tenants.Exists(ctx, "globex"); !ok {
		t.Error("expected tenant stored")
	}

	var verr *domain.ErrValidation
	if _, err := d.CreateTenantFor(ctx, agencySession(), "ana", " "); !errors.As(err, &verr) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestDirectory_DeleteTenant(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	d := newDirectory(t, h)
	_, _ = d.AssignTenant(ctx, agencySession(), "ana", domain.StringPtr("acme"))

	var conflict *domain.ErrConflict
	if err := d.DeleteTenant(ctx, agencySession(), "acme"); !errors.As(err, &conflict) {
		t.Fatalf("expected conflict while referenced, got %v", err)
	}

	_, _ = d.AssignTenant(ctx, agencySession(), "ana", nil)
	if err := d.DeleteTenant(ctx, agencySession(), "acme"); err != nil {
		t.Fatalf("delete tenant: %v", err)
	}
	if ok, _ := h.tenants.Exists(ctx, "acme"); ok {
		t.Error("expected tenant gone")
	}
}

func TestDirectory_DeleteProfile(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	d := newDirectory(t, h)

	var conflict *domain.ErrConflict
	if err := d.DeleteProfile(ctx, agencySession(), "ops"); !errors.As(err, &conflict) {
		t.Errorf("expected self-deletion conflict, got %v", err)
	}
	if err := d.DeleteProfile(ctx, agencySession(), "ana"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if p, _ := h.profiles.Get(ctx, "ana"); p != nil {
		t.Errorf("expected profile gone, got %+v", p)
	}
}

func TestDirectory_SendPasswordReset(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	d := newDirectory(t, h)
	h.register(t, "ana@acme.com", true)

	if err := d.SendPasswordReset(ctx, agencySession(), "ana@acme.com"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	outbox := h.dir.Outbox()
	if len(outbox) != 1 || outbox[0].Kind != memory.MailPasswordReset || outbox[0].To != "ana@acme.com" {
		t.Errorf("unexpected outbox: %+v", outbox)
	}

	var idErr *domain.ErrIdentity
	if err := d.SendPasswordReset(ctx, agencySession(), "nobody@acme.com"); !errors.As(err, &idErr) || idErr.Code != domain.IdentityUserNotFound {
		t.Errorf("expected user-not-found, got %v", err)
	}
}
