// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"

	"github.com/boddenberg/agency-portal-bfa-go/internal/domain"
)

// RootScope addresses collections that are not nested under a tenant
// (profiles and tenants themselves).
const RootScope = ""

// DocumentStore is a schemaless store of per-tenant sub-collections.
// Documents are addressed by (scope, collection, id) where scope is a
// tenant id or RootScope.
type DocumentStore interface {
	ListAll(ctx context.Context, scope, collection string) ([]domain.Document, error)
	// Get returns nil, nil when the document does not exist.
	Get(ctx context.Context, scope, collection, id string) (*domain.Document, error)
	// Set replaces the document, creating it when absent.
	Set(ctx context.Context, scope, collection, id string, fields map[string]any) error
	// Update changes the given fields of an existing document and returns
	// *domain.ErrNotFound when it does not exist.
	Update(ctx context.Context, scope, collection, id string, fields map[string]any) error
	// Merge changes the given fields, creating the document with only
	// those fields when absent.
	Merge(ctx context.Context, scope, collection, id string, fields map[string]any) error
	// Delete removes the document. Deleting an absent document is not an error.
	Delete(ctx context.Context, scope, collection, id string) error
	// Add inserts a document under a store-allocated id.
	Add(ctx context.Context, scope, collection string, fields map[string]any) (string, error)
}

// ProfileStore persists the principal to role/tenant binding.
type ProfileStore interface {
	// Get returns nil, nil when the principal has no profile.
	Get(ctx context.Context, uid string) (*domain.Profile, error)
	Create(ctx context.Context, uid string, profile domain.Profile) error
	// Merge is a non-destructive field-level upsert.
	Merge(ctx context.Context, uid string, patch domain.ProfilePatch) error
	List(ctx context.Context) ([]domain.Profile, error)
	Delete(ctx context.Context, uid string) error
}

// TenantStore persists tenant records.
type TenantStore interface {
	Exists(ctx context.Context, id string) (bool, error)
	List(ctx context.Context) ([]domain.Tenant, error)
	Create(ctx context.Context, tenant domain.Tenant) error
	Delete(ctx context.Context, id string) error
}

// IdentityProvider is one browser session's view of the external identity
// service. Listeners registered with Subscribe are invoked synchronously
// after SignIn, SignUp and SignOut change the current principal.
type IdentityProvider interface {
	Subscribe(fn func(*domain.Principal)) (unsubscribe func())
	Current() *domain.Principal
	SignUp(ctx context.Context, creds domain.Credentials) (*domain.Principal, error)
	SignIn(ctx context.Context, creds domain.Credentials) (*domain.Principal, error)
	SignOut(ctx context.Context) error
	SendVerificationEmail(ctx context.Context) error
	SendPasswordReset(ctx context.Context, email string) error
	// Reload fetches the current principal again, bypassing any cached
	// verification flag.
	Reload(ctx context.Context) (*domain.Principal, error)
}

// IdentityProviderFactory opens a fresh provider session.
type IdentityProviderFactory func() IdentityProvider

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}
