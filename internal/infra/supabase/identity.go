package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/boddenberg/agency-portal-bfa-go/internal/domain"
	"github.com/boddenberg/agency-portal-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/agency-portal-bfa-go/internal/port"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ============================================================
// Identity provider over Supabase GoTrue (/auth/v1)
// ============================================================

// IdentityClient talks to GoTrue. Each browser session gets its own
// provider from NewSession; the client itself is shared.
type IdentityClient struct {
	httpClient     *http.Client
	baseURL        string
	anonKey        string
	serviceRoleKey string
	cb             *gobreaker.CircuitBreaker
	cfg            resilience.Config
	logger         *zap.Logger
}

// NewIdentityClient creates a GoTrue client.
func NewIdentityClient(httpClient *http.Client, baseURL, anonKey, serviceRoleKey string, cb *gobreaker.CircuitBreaker, cfg resilience.Config, logger *zap.Logger) *IdentityClient {
	return &IdentityClient{
		httpClient:     httpClient,
		baseURL:        baseURL,
		anonKey:        anonKey,
		serviceRoleKey: serviceRoleKey,
		cb:             cb,
		cfg:            cfg,
		logger:         logger,
	}
}

// NewSession opens a provider session.
func (c *IdentityClient) NewSession() port.IdentityProvider {
	return &identitySession{client: c, listeners: make(map[int]func(*domain.Principal))}
}

type gotrueUser struct {
	ID               string  `json:"id"`
	Email            string  `json:"email"`
	EmailConfirmedAt *string `json:"email_confirmed_at"`
}

func (u gotrueUser) principal() *domain.Principal {
	return &domain.Principal{
		UID:           u.ID,
		Email:         u.Email,
		EmailVerified: u.EmailConfirmedAt != nil && *u.EmailConfirmedAt != "",
	}
}

// gotrueSession is returned by the token and signup endpoints. Signup
// without auto-confirm returns a bare user instead, which decodes into the
// embedded fields.
type gotrueSession struct {
	AccessToken string      `json:"access_token"`
	User        *gotrueUser `json:"user"`
	gotrueUser
}

func (s gotrueSession) user() gotrueUser {
	if s.User != nil {
		return *s.User
	}
	return s.gotrueUser
}

// gotrueError covers both the legacy and the current error envelopes.
type gotrueError struct {
	status           int
	ErrorCode        string `json:"error_code"`
	Err              string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
}

func (e *gotrueError) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.ErrorDescription
	}
	return fmt.Sprintf("gotrue %d %s%s: %s", e.status, e.ErrorCode, e.Err, msg)
}

// IsRejection reports a GoTrue 4xx answer (bad credentials, weak
// password...). Rejections do not count against the circuit breaker.
func IsRejection(err error) bool {
	var ge *gotrueError
	return errors.As(err, &ge) && ge.status < 500 && ge.status != http.StatusTooManyRequests
}

// identityCode maps a GoTrue failure onto the portal identity codes.
func identityCode(err error) string {
	var ge *gotrueError
	if !errors.As(err, &ge) {
		return domain.IdentityUnavailable
	}
	text := strings.ToLower(ge.ErrorCode + " " + ge.Err + " " + ge.Msg + " " + ge.ErrorDescription)
	switch {
	case ge.status == http.StatusTooManyRequests || strings.Contains(text, "rate_limit"):
		return domain.IdentityTooManyRequests
	case strings.Contains(text, "weak_password") || strings.Contains(text, "password should be"):
		return domain.IdentityWeakPassword
	case strings.Contains(text, "email_exists") || strings.Contains(text, "already registered") || strings.Contains(text, "user_already_exists"):
		return domain.IdentityEmailInUse
	case strings.Contains(text, "email_address_invalid") || strings.Contains(text, "validation_failed") || strings.Contains(text, "invalid format"):
		return domain.IdentityInvalidEmail
	case strings.Contains(text, "user_not_found"):
		return domain.IdentityUserNotFound
	case strings.Contains(text, "invalid_credentials") || strings.Contains(text, "invalid_grant") || strings.Contains(text, "invalid login"):
		return domain.IdentityInvalidCredentials
	case ge.status >= 500:
		return domain.IdentityUnavailable
	}
	return domain.IdentityInvalidCredentials
}

// call performs one GoTrue request behind the breaker and retry loop.
// bearer selects the Authorization token; empty means the anon key.
func (c *IdentityClient) call(ctx context.Context, method, path, bearer string, in, out any) error {
	ctx, span := tracer.Start(ctx, "GoTrue "+method+" "+path)
	defer span.End()

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			err := c.do(ctx, method, path, bearer, in, out)
			if IsRejection(err) {
				return &resilience.Permanent{Err: err}
			}
			return err
		})
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &domain.ErrIdentity{Code: domain.IdentityUnavailable, Err: err}
	}
	return &domain.ErrIdentity{Code: identityCode(err), Err: err}
}

func (c *IdentityClient) do(ctx context.Context, method, path, bearer string, in, out any) error {
	var body *bytes.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/auth/v1/"+path, body)
	if err != nil {
		return err
	}
	if bearer == "" {
		bearer = c.anonKey
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("gotrue: request failed", zap.String("path", path), zap.Error(err))
		return err
	}
	defer resp.Body.Close()

	raw, err := readBody(resp)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		ge := &gotrueError{status: resp.StatusCode}
		_ = json.Unmarshal(raw, ge)
		c.logger.Warn("gotrue: non-2xx",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("error_code", ge.ErrorCode+ge.Err),
		)
		return ge
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode gotrue %s: %w", path, err)
		}
	}
	return nil
}

// identitySession implements port.IdentityProvider for one browser session.
type identitySession struct {
	client *IdentityClient

	mu          sync.Mutex
	current     *domain.Principal
	accessToken string
	listeners   map[int]func(*domain.Principal)
	nextID      int
}

func (s *identitySession) Subscribe(fn func(*domain.Principal)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

func (s *identitySession) Current() *domain.Principal {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	p := *s.current
	return &p
}

func (s *identitySession) SignUp(ctx context.Context, creds domain.Credentials) (*domain.Principal, error) {
	var out gotrueSession
	if err := s.client.call(ctx, http.MethodPost, "signup", "", creds, &out); err != nil {
		return nil, err
	}
	p := out.user().principal()
	s.set(p, out.AccessToken)
	return p, nil
}

func (s *identitySession) SignIn(ctx context.Context, creds domain.Credentials) (*domain.Principal, error) {
	var out gotrueSession
	if err := s.client.call(ctx, http.MethodPost, "token?grant_type=password", "", creds, &out); err != nil {
		return nil, err
	}
	p := out.user().principal()
	s.set(p, out.AccessToken)
	return p, nil
}

// SignOut revokes the access token when there is one. The local session
// is cleared even if revocation fails.
func (s *identitySession) SignOut(ctx context.Context) error {
	s.mu.Lock()
	token := s.accessToken
	s.mu.Unlock()

	var err error
	if token != "" {
		err = s.client.call(ctx, http.MethodPost, "logout", token, nil, nil)
	}
	s.set(nil, "")
	return err
}

func (s *identitySession) SendVerificationEmail(ctx context.Context) error {
	p := s.Current()
	if p == nil {
		return &domain.ErrIdentity{Code: domain.IdentityUserNotFound}
	}
	return s.client.call(ctx, http.MethodPost, "resend", "", map[string]string{"type": "signup", "email": p.Email}, nil)
}

func (s *identitySession) SendPasswordReset(ctx context.Context, email string) error {
	return s.client.call(ctx, http.MethodPost, "recover", "", map[string]string{"email": email}, nil)
}

// Reload reads the user through the admin API, which works before the
// e-mail is confirmed and no user token exists yet.
func (s *identitySession) Reload(ctx context.Context) (*domain.Principal, error) {
	cur := s.Current()
	if cur == nil {
		return nil, nil
	}

	var user gotrueUser
	if err := s.client.call(ctx, http.MethodGet, "admin/users/"+cur.UID, s.client.serviceRoleKey, nil, &user); err != nil {
		return nil, err
	}
	fresh := user.principal()

	s.mu.Lock()
	if s.current != nil && s.current.UID == fresh.UID {
		s.current = fresh
	}
	s.mu.Unlock()

	p := *fresh
	return &p, nil
}

// set swaps the principal and notifies listeners outside the lock.
func (s *identitySession) set(p *domain.Principal, access string) {
	s.mu.Lock()
	s.current = p
	s.accessToken = access
	fns := make([]func(*domain.Principal), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		if p == nil {
			fn(nil)
			continue
		}
		cp := *p
		fn(&cp)
	}
}
