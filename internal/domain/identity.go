package domain

import "strings"

// Principal is an authenticated end-user as reported by the identity provider.
// EmailVerified is re-read from the provider on every session restore.
type Principal struct {
	UID           string `json:"uid"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
}

// Role is the privilege level bound to a profile.
// Persisted values keep the legacy portal spelling.
type Role string

const (
	RoleAgency Role = "agencia"
	RoleClient Role = "cliente"
)

// ParseRole accepts the stored spelling as well as the english aliases.
// The second return is false for empty or unknown input.
func ParseRole(s string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(RoleAgency), "agency":
		return RoleAgency, true
	case string(RoleClient), "client":
		return RoleClient, true
	}
	return "", false
}

// Profile binds a principal to a role and, for clients, a tenant.
// A profile with RoleAgency never carries a tenant.
type Profile struct {
	UID      string  `json:"uid"`
	Email    string  `json:"email"`
	TenantID *string `json:"tenant_id"`
	Role     Role    `json:"role"`
}

// ProfilePatch is a field-level partial update. Nil fields are left
// untouched; ClearTenant writes an explicit null tenant.
type ProfilePatch struct {
	Email       *string
	Role        *Role
	TenantID    *string
	ClearTenant bool
}

// Tenant is a client company of the agency.
type Tenant struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// Credentials carries an email/password pair for the identity provider.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// StringPtr is a small helper for optional string fields.
func StringPtr(s string) *string { return &s }
