package service

import (
	"context"
	"strings"

	"github.com/boddenberg/agency-portal-bfa-go/internal/domain"
	"github.com/boddenberg/agency-portal-bfa-go/internal/port"

	"go.uber.org/zap"
)

const minPasswordLength = 6

// AccountService runs the user-initiated identity flows. Identity errors
// reach the caller as *domain.ErrIdentity carrying a user-facing message.
type AccountService struct {
	sessions *SessionManager
	resolver *RoleResolver
	profiles port.ProfileStore
	identity port.IdentityProviderFactory
	logger   *zap.Logger
}

func NewAccountService(sessions *SessionManager, resolver *RoleResolver, profiles port.ProfileStore, identity port.IdentityProviderFactory, logger *zap.Logger) *AccountService {
	return &AccountService{sessions: sessions, resolver: resolver, profiles: profiles, identity: identity, logger: logger}
}

// SignUp registers the account, mails the verification link and stores
// the initial profile. The new session waits in PendingVerification.
func (a *AccountService) SignUp(ctx context.Context, email, password, confirm string) (*Session, error) {
	ctx, span := tracer.Start(ctx, "AccountService.SignUp")
	defer span.End()

	email = strings.TrimSpace(email)
	if password != confirm {
		return nil, &domain.ErrValidation{Field: "confirm_password", Message: "As senhas não coincidem."}
	}
	if len(password) < minPasswordLength {
		return nil, &domain.ErrIdentity{Code: domain.IdentityWeakPassword}
	}

	sess := a.sessions.Open(ctx)
	p, err := sess.Provider().SignUp(ctx, domain.Credentials{Email: email, Password: password})
	if err != nil {
		a.sessions.Close(sess.ID)
		return nil, err
	}

	if err := sess.Provider().SendVerificationEmail(ctx); err != nil {
		a.logger.Warn("verification e-mail not sent", zap.String("uid", p.UID), zap.Error(err))
	}

	role := domain.RoleClient
	if a.resolver.IsAgencyEmail(p.Email) {
		role = domain.RoleAgency
	}
	if err := a.profiles.Create(ctx, p.UID, domain.Profile{UID: p.UID, Email: p.Email, Role: role}); err != nil {
		a.logger.Error("initial profile not stored", zap.String("uid", p.UID), zap.Error(err))
	}

	a.logger.Info("account registered", zap.String("uid", p.UID), zap.String("role", string(role)))
	return sess, nil
}

// SignIn opens a session and authenticates it. The returned session has
// already been driven through verification and resolution.
func (a *AccountService) SignIn(ctx context.Context, creds domain.Credentials) (*Session, error) {
	ctx, span := tracer.Start(ctx, "AccountService.SignIn")
	defer span.End()

	creds.Email = strings.TrimSpace(creds.Email)
	if creds.Email == "" || creds.Password == "" {
		return nil, &domain.ErrIdentity{Code: domain.IdentityInvalidCredentials}
	}

	sess := a.sessions.Open(ctx)
	if _, err := sess.Provider().SignIn(ctx, creds); err != nil {
		a.sessions.Close(sess.ID)
		a.logger.Warn("sign in rejected", zap.String("email", creds.Email), zap.Error(err))
		return nil, err
	}
	return sess, nil
}

// SignOut signs the provider out and tears the session down. The session
// is closed even when the provider call fails.
func (a *AccountService) SignOut(ctx context.Context, sess *Session) error {
	ctx, span := tracer.Start(ctx, "AccountService.SignOut")
	defer span.End()

	err := sess.Provider().SignOut(ctx)
	a.sessions.Close(sess.ID)
	if err != nil {
		a.logger.Warn("provider sign out failed", zap.String("session", sess.ID), zap.Error(err))
	}
	return nil
}

// SendPasswordReset mails a reset link. It needs no session.
func (a *AccountService) SendPasswordReset(ctx context.Context, email string) error {
	ctx, span := tracer.Start(ctx, "AccountService.SendPasswordReset")
	defer span.End()

	email = strings.TrimSpace(email)
	if email == "" {
		return &domain.ErrIdentity{Code: domain.IdentityInvalidEmail}
	}
	return a.identity().SendPasswordReset(ctx, email)
}

// ResendVerification mails the verification link again.
func (a *AccountService) ResendVerification(ctx context.Context, sess *Session) error {
	ctx, span := tracer.Start(ctx, "AccountService.ResendVerification")
	defer span.End()

	if sess.Controller.Snapshot().State != domain.StatePendingVerification {
		return &domain.ErrConflict{Message: "o e-mail já foi verificado"}
	}
	return sess.Provider().SendVerificationEmail(ctx)
}

// Recheck re-reads the verification flag after the user confirmed it.
func (a *AccountService) Recheck(ctx context.Context, sess *Session) domain.ResolvedSession {
	return sess.Controller.Recheck(ctx)
}
