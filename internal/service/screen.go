package service

import "github.com/boddenberg/agency-portal-bfa-go/internal/domain"

// audience is the resolved-session variant that decides what a tab shows.
type audience int

const (
	audienceAgency audience = iota
	audienceAgencyImpersonating
	audienceClient
	audienceClientUnassigned
)

// unresolvedScreens covers every state before Resolved.
var unresolvedScreens = map[domain.SessionState]domain.Screen{
	domain.StateUnauthenticated:     domain.ScreenSignIn,
	domain.StateVerifyingIdentity:   domain.ScreenLoading,
	domain.StatePendingVerification: domain.ScreenVerificationPending,
	domain.StateResolving:           domain.ScreenLoading,
	domain.StateResolutionFailed:    domain.ScreenDataUnavailable,
}

var tabScreens = map[domain.View]domain.Screen{
	domain.ViewCalendar:    domain.ScreenCalendar,
	domain.ViewWeeklyFocus: domain.ScreenWeeklyFocus,
	domain.ViewFilesHub:    domain.ScreenFilesHub,
}

// audienceScreens maps each audience to its screen for a tab.
var audienceScreens = map[audience]func(domain.View) domain.Screen{
	audienceAgency:              func(domain.View) domain.Screen { return domain.ScreenAgencyDashboard },
	audienceAgencyImpersonating: tabScreen,
	audienceClient:              tabScreen,
	audienceClientUnassigned:    func(domain.View) domain.Screen { return domain.ScreenAwaitingTenant },
}

func tabScreen(v domain.View) domain.Screen {
	if s, ok := tabScreens[v]; ok {
		return s
	}
	return domain.ScreenCalendar
}

func audienceOf(s domain.ResolvedSession) audience {
	switch {
	case s.IsAgency() && s.ImpersonatedTenantID != nil:
		return audienceAgencyImpersonating
	case s.IsAgency():
		return audienceAgency
	case s.TenantID != nil && *s.TenantID != "":
		return audienceClient
	default:
		return audienceClientUnassigned
	}
}

// SelectScreen decides what the view layer renders for a session and tab.
func SelectScreen(s domain.ResolvedSession, v domain.View) domain.ScreenSelection {
	if s.State != domain.StateResolved || s.Role == nil {
		screen, ok := unresolvedScreens[s.State]
		if !ok {
			screen = domain.ScreenLoading
		}
		return domain.ScreenSelection{Screen: screen}
	}

	aud := audienceOf(s)
	sel := domain.ScreenSelection{Screen: audienceScreens[aud](v)}
	if aud == audienceAgencyImpersonating || aud == audienceClient {
		sel.TenantID = s.ActiveTenantID()
		sel.Impersonating = aud == audienceAgencyImpersonating
	}
	return sel
}
