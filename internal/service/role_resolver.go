package service

import (
	"context"
	"strings"

	"github.com/boddenberg/agency-portal-bfa-go/internal/domain"
	"github.com/boddenberg/agency-portal-bfa-go/internal/infra/observability"
	"github.com/boddenberg/agency-portal-bfa-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("service")

// Resolution is the role and tenant binding of a principal.
type Resolution struct {
	Role     domain.Role
	TenantID *string
}

// RoleResolver maps a principal to its role and keeps the stored profile
// in line with the agency allow-list.
type RoleResolver struct {
	profiles     port.ProfileStore
	agencyEmails map[string]struct{}
	metrics      *observability.Metrics
	logger       *zap.Logger
}

// NewRoleResolver creates a resolver. Allow-list entries are matched
// case-insensitively.
func NewRoleResolver(profiles port.ProfileStore, agencyEmails []string, metrics *observability.Metrics, logger *zap.Logger) *RoleResolver {
	allow := make(map[string]struct{}, len(agencyEmails))
	for _, e := range agencyEmails {
		if e = normalizeEmail(e); e != "" {
			allow[e] = struct{}{}
		}
	}
	return &RoleResolver{profiles: profiles, agencyEmails: allow, metrics: metrics, logger: logger}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsAgencyEmail reports whether email is on the allow-list.
func (r *RoleResolver) IsAgencyEmail(email string) bool {
	_, ok := r.agencyEmails[normalizeEmail(email)]
	return ok
}

// Resolve returns the binding for p. Allow-listed principals are always
// agency without a tenant. Everyone else gets the stored profile, or a
// freshly created client profile when none exists.
func (r *RoleResolver) Resolve(ctx context.Context, p domain.Principal) (*Resolution, error) {
	ctx, span := tracer.Start(ctx, "RoleResolver.Resolve")
	defer span.End()
	span.SetAttributes(attribute.String("principal.uid", p.UID))

	if r.IsAgencyEmail(p.Email) {
		r.reconcileAgency(ctx, p)
		return &Resolution{Role: domain.RoleAgency}, nil
	}

	profile, err := r.profiles.Get(ctx, p.UID)
	if err != nil {
		return nil, &domain.ErrProfileResolution{UID: p.UID, Err: err}
	}

	if profile == nil {
		created := domain.Profile{UID: p.UID, Email: p.Email, Role: domain.RoleClient}
		if err := r.profiles.Create(ctx, p.UID, created); err != nil {
			return nil, &domain.ErrProfileResolution{UID: p.UID, Err: err}
		}
		r.logger.Info("profile created", zap.String("uid", p.UID), zap.String("role", string(domain.RoleClient)))
		return &Resolution{Role: domain.RoleClient}, nil
	}

	role, ok := domain.ParseRole(string(profile.Role))
	if !ok {
		role = domain.RoleClient
	}
	res := &Resolution{Role: role, TenantID: profile.TenantID}
	if role == domain.RoleAgency {
		res.TenantID = nil
	}
	return res, nil
}

// reconcileAgency corrects a stored profile that disagrees with the
// allow-list. Failures are logged and counted only.
func (r *RoleResolver) reconcileAgency(ctx context.Context, p domain.Principal) {
	profile, err := r.profiles.Get(ctx, p.UID)
	if err != nil {
		r.logger.Warn("agency profile read failed, correcting anyway", zap.String("uid", p.UID), zap.Error(err))
	}
	if err == nil && profile != nil && profile.Role == domain.RoleAgency && profile.TenantID == nil {
		return
	}

	role := domain.RoleAgency
	patch := domain.ProfilePatch{Role: &role, ClearTenant: true}
	if profile == nil {
		patch.Email = domain.StringPtr(p.Email)
	}
	if err := r.profiles.Merge(ctx, p.UID, patch); err != nil {
		r.metrics.IncrRoleReconcile("failed")
		r.logger.Error("agency profile correction failed", zap.String("uid", p.UID), zap.Error(err))
		return
	}
	r.metrics.IncrRoleReconcile("corrected")
	r.logger.Info("agency profile corrected", zap.String("uid", p.UID))
}
