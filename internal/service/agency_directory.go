package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/boddenberg/agency-portal-bfa-go/internal/domain"
	"github.com/boddenberg/agency-portal-bfa-go/internal/port"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// AgencyDirectory is the agency operator's administration of profiles and
// tenants. Every call requires a resolved agency session.
type AgencyDirectory struct {
	profiles port.ProfileStore
	tenants  port.TenantStore
	identity port.IdentityProviderFactory
	logger   *zap.Logger
}

func NewAgencyDirectory(profiles port.ProfileStore, tenants port.TenantStore, identity port.IdentityProviderFactory, logger *zap.Logger) *AgencyDirectory {
	return &AgencyDirectory{profiles: profiles, tenants: tenants, identity: identity, logger: logger}
}

func requireAgency(s domain.ResolvedSession, action string) error {
	if !s.IsAgency() {
		return &domain.ErrForbidden{Action: action}
	}
	return nil
}

// Load returns every profile and tenant, fetched concurrently.
func (d *AgencyDirectory) Load(ctx context.Context, s domain.ResolvedSession) (*domain.Directory, error) {
	if err := requireAgency(s, "list directory"); err != nil {
		return nil, err
	}
	ctx, span := tracer.Start(ctx, "AgencyDirectory.Load")
	defer span.End()

	var dir domain.Directory
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		profiles, err := d.profiles.List(gCtx)
		if err != nil {
			return fmt.Errorf("list profiles: %w", err)
		}
		dir.Profiles = profiles
		return nil
	})
	g.Go(func() error {
		tenants, err := d.tenants.List(gCtx)
		if err != nil {
			return fmt.Errorf("list tenants: %w", err)
		}
		dir.Tenants = tenants
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &dir, nil
}

func (d *AgencyDirectory) profile(ctx context.Context, uid string) (*domain.Profile, error) {
	p, err := d.profiles.Get(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("get profile %s: %w", uid, err)
	}
	if p == nil {
		return nil, &domain.ErrNotFound{Resource: "profile", ID: uid}
	}
	return p, nil
}

// AssignTenant binds a client profile to an existing tenant, or unbinds
// it when tenantID is nil.
func (d *AgencyDirectory) AssignTenant(ctx context.Context, s domain.ResolvedSession, uid string, tenantID *string) (*domain.Profile, error) {
	if err := requireAgency(s, "assign tenant"); err != nil {
		return nil, err
	}
	ctx, span := tracer.Start(ctx, "AgencyDirectory.AssignTenant")
	defer span.End()
	span.SetAttributes(attribute.String("profile.uid", uid))

	p, err := d.profile(ctx, uid)
	if err != nil {
		return nil, err
	}
	if p.Role == domain.RoleAgency {
		return nil, &domain.ErrConflict{Message: "contas da agência não pertencem a uma empresa"}
	}

	patch := domain.ProfilePatch{ClearTenant: true}
	if tenantID != nil && strings.TrimSpace(*tenantID) != "" {
		id := strings.TrimSpace(*tenantID)
		ok, err := d.tenants.Exists(ctx, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &domain.ErrNotFound{Resource: "tenant", ID: id}
		}
		patch = domain.ProfilePatch{TenantID: &id}
		p.TenantID = &id
	} else {
		p.TenantID = nil
	}

	if err := d.profiles.Merge(ctx, uid, patch); err != nil {
		return nil, fmt.Errorf("assign tenant: %w", err)
	}
	d.logger.Info("tenant assigned", zap.String("uid", uid), zap.Stringp("tenant", p.TenantID), zap.String("by", s.UID))
	return p, nil
}

// ChangeRole sets a profile's role. Promoting to agency drops the tenant.
func (d *AgencyDirectory) ChangeRole(ctx context.Context, s domain.ResolvedSession, uid string, role domain.Role) (*domain.Profile, error) {
	if err := requireAgency(s, "change role"); err != nil {
		return nil, err
	}
	ctx, span := tracer.Start(ctx, "AgencyDirectory.ChangeRole")
	defer span.End()

	parsed, ok := domain.ParseRole(string(role))
	if !ok {
		return nil, &domain.ErrValidation{Field: "role", Message: "deve ser agencia ou cliente"}
	}
	p, err := d.profile(ctx, uid)
	if err != nil {
		return nil, err
	}

	patch := domain.ProfilePatch{Role: &parsed}
	if parsed == domain.RoleAgency {
		patch.ClearTenant = true
		p.TenantID = nil
	}
	if err := d.profiles.Merge(ctx, uid, patch); err != nil {
		return nil, fmt.Errorf("change role: %w", err)
	}
	p.Role = parsed
	d.logger.Info("role changed", zap.String("uid", uid), zap.String("role", string(parsed)), zap.String("by", s.UID))
	return p, nil
}

// CreateTenantFor creates a tenant named after its id and binds the
// client profile to it.
func (d *AgencyDirectory) CreateTenantFor(ctx context.Context, s domain.ResolvedSession, uid, tenantID string) (*domain.Profile, error) {
	if err := requireAgency(s, "create tenant"); err != nil {
		return nil, err
	}
	ctx, span := tracer.Start(ctx, "AgencyDirectory.CreateTenantFor")
	defer span.End()

	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return nil, &domain.ErrValidation{Field: "tenant_id", Message: "obrigatório"}
	}
	p, err := d.profile(ctx, uid)
	if err != nil {
		return nil, err
	}
	if p.Role == domain.RoleAgency {
		return nil, &domain.ErrConflict{Message: "contas da agência não pertencem a uma empresa"}
	}

	if err := d.tenants.Create(ctx, domain.Tenant{ID: tenantID, DisplayName: tenantID}); err != nil {
		return nil, err
	}
	if err := d.profiles.Merge(ctx, uid, domain.ProfilePatch{TenantID: &tenantID}); err != nil {
		return nil, fmt.Errorf("assign new tenant: %w", err)
	}
	p.TenantID = &tenantID
	d.logger.Info("tenant created", zap.String("tenant", tenantID), zap.String("uid", uid), zap.String("by", s.UID))
	return p, nil
}

// DeleteTenant removes a tenant no profile references.
func (d *AgencyDirectory) DeleteTenant(ctx context.Context, s domain.ResolvedSession, tenantID string) error {
	if err := requireAgency(s, "delete tenant"); err != nil {
		return err
	}
	ctx, span := tracer.Start(ctx, "AgencyDirectory.DeleteTenant")
	defer span.End()

	profiles, err := d.profiles.List(ctx)
	if err != nil {
		return fmt.Errorf("list profiles: %w", err)
	}
	for _, p := range profiles {
		if p.TenantID != nil && *p.TenantID == tenantID {
			return &domain.ErrConflict{Message: fmt.Sprintf("a empresa %s ainda possui usuários vinculados", tenantID)}
		}
	}
	if err := d.tenants.Delete(ctx, tenantID); err != nil {
		return err
	}
	d.logger.Info("tenant deleted", zap.String("tenant", tenantID), zap.String("by", s.UID))
	return nil
}

// DeleteProfile removes a profile record. The identity account itself is
// left to the identity provider's own administration.
func (d *AgencyDirectory) DeleteProfile(ctx context.Context, s domain.ResolvedSession, uid string) error {
	if err := requireAgency(s, "delete profile"); err != nil {
		return err
	}
	if uid == s.UID {
		return &domain.ErrConflict{Message: "não é possível excluir a própria conta"}
	}
	ctx, span := tracer.Start(ctx, "AgencyDirectory.DeleteProfile")
	defer span.End()

	if err := d.profiles.Delete(ctx, uid); err != nil {
		return fmt.Errorf("delete profile %s: %w", uid, err)
	}
	d.logger.Info("profile deleted", zap.String("uid", uid), zap.String("by", s.UID))
	return nil
}

// SendPasswordReset mails a reset link to a client.
func (d *AgencyDirectory) SendPasswordReset(ctx context.Context, s domain.ResolvedSession, email string) error {
	if err := requireAgency(s, "send password reset"); err != nil {
		return err
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return &domain.ErrValidation{Field: "email", Message: "obrigatório"}
	}
	return d.identity().SendPasswordReset(ctx, email)
}
