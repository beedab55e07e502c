package domain

import "strings"

// SessionState is the lifecycle position of one signed-in browser session.
type SessionState int

const (
	StateUnauthenticated SessionState = iota
	StateVerifyingIdentity
	StatePendingVerification
	StateResolving
	StateResolved
	StateResolutionFailed
)

var sessionStateNames = map[SessionState]string{
	StateUnauthenticated:     "unauthenticated",
	StateVerifyingIdentity:   "verifying_identity",
	StatePendingVerification: "pending_verification",
	StateResolving:           "resolving",
	StateResolved:            "resolved",
	StateResolutionFailed:    "resolution_failed",
}

func (s SessionState) String() string {
	if name, ok := sessionStateNames[s]; ok {
		return name
	}
	return "unknown"
}

// MarshalText renders the state by name in JSON payloads.
func (s SessionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Loading reports whether the state is one the UI presents as a spinner.
func (s SessionState) Loading() bool {
	return s == StateVerifyingIdentity || s == StateResolving
}

// ResolvedSession is the immutable snapshot a controller exposes to the
// view layer. Role and TenantID are nil unless State is StateResolved.
type ResolvedSession struct {
	State                SessionState `json:"state"`
	UID                  string       `json:"uid,omitempty"`
	Email                string       `json:"email,omitempty"`
	Verified             bool         `json:"verified"`
	Role                 *Role        `json:"role"`
	TenantID             *string      `json:"tenant_id"`
	ImpersonatedTenantID *string      `json:"impersonated_tenant_id,omitempty"`
}

// IsAgency reports a resolved agency session.
func (s ResolvedSession) IsAgency() bool {
	return s.State == StateResolved && s.Role != nil && *s.Role == RoleAgency
}

// ActiveTenantID is the tenant every tenant-scoped read or write must use:
// the impersonation override when set, otherwise the session's own tenant.
func (s ResolvedSession) ActiveTenantID() *string {
	if s.ImpersonatedTenantID != nil {
		return s.ImpersonatedTenantID
	}
	return s.TenantID
}

// View is the tab selected in the tenant portal.
type View int

const (
	ViewCalendar View = iota
	ViewWeeklyFocus
	ViewFilesHub
)

// ParseView maps the query value used by the HTTP layer to a View.
// Unknown values fall back to the calendar.
func ParseView(s string) View {
	switch strings.ToLower(s) {
	case "weekly", "updates", "weekly_focus":
		return ViewWeeklyFocus
	case "files", "ideas", "files_hub":
		return ViewFilesHub
	default:
		return ViewCalendar
	}
}

// Screen is what the view layer renders for a given session and tab.
type Screen string

const (
	ScreenLoading             Screen = "loading"
	ScreenSignIn              Screen = "sign_in"
	ScreenVerificationPending Screen = "verification_pending"
	ScreenDataUnavailable     Screen = "data_unavailable"
	ScreenAgencyDashboard     Screen = "agency_dashboard"
	ScreenAwaitingTenant      Screen = "awaiting_tenant"
	ScreenCalendar            Screen = "calendar"
	ScreenWeeklyFocus         Screen = "weekly_focus"
	ScreenFilesHub            Screen = "files_hub"
)

// ScreenSelection is the outcome of view dispatch.
type ScreenSelection struct {
	Screen        Screen  `json:"screen"`
	TenantID      *string `json:"tenant_id,omitempty"`
	Impersonating bool    `json:"impersonating"`
}
