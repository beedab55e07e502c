package docstore

import (
	"context"
	"fmt"
	"sort"

	"github.com/boddenberg/agency-portal-bfa-go/internal/domain"
	"github.com/boddenberg/agency-portal-bfa-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("docstore")

// Profiles implements port.ProfileStore over the usuarios collection.
type Profiles struct {
	store port.DocumentStore
}

// NewProfiles creates the profile repository.
func NewProfiles(store port.DocumentStore) *Profiles {
	return &Profiles{store: store}
}

func (p *Profiles) Get(ctx context.Context, uid string) (*domain.Profile, error) {
	ctx, span := tracer.Start(ctx, "Profiles.Get")
	defer span.End()
	span.SetAttributes(attribute.String("profile.uid", uid))

	doc, err := p.store.Get(ctx, port.RootScope, ProfilesCollection, uid)
	if err != nil {
		return nil, fmt.Errorf("get profile %s: %w", uid, err)
	}
	if doc == nil {
		return nil, nil
	}
	profile := profileFromFields(doc.ID, doc.Fields)
	return &profile, nil
}

func (p *Profiles) Create(ctx context.Context, uid string, profile domain.Profile) error {
	ctx, span := tracer.Start(ctx, "Profiles.Create")
	defer span.End()
	span.SetAttributes(attribute.String("profile.uid", uid))

	fields := map[string]any{
		"email":     profile.Email,
		"empresaId": nullable(profile.TenantID),
		"role":      string(profile.Role),
	}
	if err := p.store.Set(ctx, port.RootScope, ProfilesCollection, uid, fields); err != nil {
		return fmt.Errorf("create profile %s: %w", uid, err)
	}
	return nil
}

func (p *Profiles) Merge(ctx context.Context, uid string, patch domain.ProfilePatch) error {
	ctx, span := tracer.Start(ctx, "Profiles.Merge")
	defer span.End()
	span.SetAttributes(attribute.String("profile.uid", uid))

	fields := make(map[string]any, 3)
	if patch.Email != nil {
		fields["email"] = *patch.Email
	}
	if patch.Role != nil {
		fields["role"] = string(*patch.Role)
	}
	switch {
	case patch.ClearTenant:
		fields["empresaId"] = nil
	case patch.TenantID != nil:
		fields["empresaId"] = *patch.TenantID
	}
	if len(fields) == 0 {
		return nil
	}

	if err := p.store.Merge(ctx, port.RootScope, ProfilesCollection, uid, fields); err != nil {
		return fmt.Errorf("merge profile %s: %w", uid, err)
	}
	return nil
}

// List returns every profile ordered by e-mail.
func (p *Profiles) List(ctx context.Context) ([]domain.Profile, error) {
	ctx, span := tracer.Start(ctx, "Profiles.List")
	defer span.End()

	docs, err := p.store.ListAll(ctx, port.RootScope, ProfilesCollection)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	out := make([]domain.Profile, 0, len(docs))
	for _, doc := range docs {
		out = append(out, profileFromFields(doc.ID, doc.Fields))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (p *Profiles) Delete(ctx context.Context, uid string) error {
	ctx, span := tracer.Start(ctx, "Profiles.Delete")
	defer span.End()

	if err := p.store.Delete(ctx, port.RootScope, ProfilesCollection, uid); err != nil {
		return fmt.Errorf("delete profile %s: %w", uid, err)
	}
	return nil
}

// profileFromFields leaves Role empty when the stored value is missing or
// malformed; callers pick the default.
func profileFromFields(uid string, fields map[string]any) domain.Profile {
	role, _ := domain.ParseRole(stringField(fields, "role"))
	return domain.Profile{
		UID:      uid,
		Email:    stringField(fields, "email"),
		TenantID: optionalString(fields, "empresaId"),
		Role:     role,
	}
}
