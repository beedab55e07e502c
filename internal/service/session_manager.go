package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/boddenberg/agency-portal-bfa-go/internal/domain"
	"github.com/boddenberg/agency-portal-bfa-go/internal/infra/observability"
	"github.com/boddenberg/agency-portal-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/agency-portal-bfa-go/internal/port"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const tokenIssuer = "agency-portal"

// Session is one signed-in browser session.
type Session struct {
	ID         string
	Controller *SessionController

	lastSeen time.Time
}

// Provider is the identity provider session behind the controller.
func (s *Session) Provider() port.IdentityProvider {
	return s.Controller.Provider()
}

// SessionClaims are carried in the access token.
type SessionClaims struct {
	SessionID string `json:"sid"`
	Type      string `json:"type"`
	jwt.RegisteredClaims
}

// SessionManager owns the controllers of every live browser session.
// Sessions idle for longer than idleTTL are closed lazily on the next
// Open or Lookup.
type SessionManager struct {
	newProvider port.IdentityProviderFactory
	resolver    *RoleResolver
	tenants     port.TenantStore
	retry       resilience.Config
	jwtSecret   []byte
	accessTTL   time.Duration
	idleTTL     time.Duration
	metrics     *observability.Metrics
	logger      *zap.Logger
	now         func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSessionManager creates the manager. retry drives each controller's
// resubscription backoff.
func NewSessionManager(
	newProvider port.IdentityProviderFactory,
	resolver *RoleResolver,
	tenants port.TenantStore,
	retry resilience.Config,
	jwtSecret string,
	accessTTL, idleTTL time.Duration,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *SessionManager {
	return &SessionManager{
		newProvider: newProvider,
		resolver:    resolver,
		tenants:     tenants,
		retry:       retry,
		jwtSecret:   []byte(jwtSecret),
		accessTTL:   accessTTL,
		idleTTL:     idleTTL,
		metrics:     metrics,
		logger:      logger,
		now:         time.Now,
		sessions:    make(map[string]*Session),
	}
}

// Open creates a session with a fresh provider and a started controller.
func (m *SessionManager) Open(ctx context.Context) *Session {
	m.sweep()

	ctrl := NewSessionController(m.newProvider(), m.resolver, m.tenants, m.retry, m.metrics, m.logger)
	ctrl.Start(ctx)

	sess := &Session{ID: uuid.NewString(), Controller: ctrl, lastSeen: m.now()}
	m.mu.Lock()
	m.sessions[sess.ID] = sess
	n := len(m.sessions)
	m.mu.Unlock()

	m.metrics.SetActiveSessions(n)
	return sess
}

// Close tears a session down. Closing an unknown id is a no-op.
func (m *SessionManager) Close(id string) {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	delete(m.sessions, id)
	n := len(m.sessions)
	m.mu.Unlock()

	if ok {
		sess.Controller.Close()
		m.metrics.SetActiveSessions(n)
	}
}

// CloseAll tears every session down.
func (m *SessionManager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, sess := range sessions {
		sess.Controller.Close()
	}
	m.metrics.SetActiveSessions(0)
}

// Issue signs an access token for the session.
func (m *SessionManager) Issue(sess *Session) (string, time.Time, error) {
	now := m.now()
	exp := now.Add(m.accessTTL)
	claims := SessionClaims{
		SessionID: sess.ID,
		Type:      "access",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sess.Controller.Snapshot().UID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			Issuer:    tokenIssuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.jwtSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session token: %w", err)
	}
	return signed, exp, nil
}

// Lookup validates a token and returns its live session.
func (m *SessionManager) Lookup(tokenString string) (*Session, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.jwtSecret, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithTimeFunc(m.now))
	if err != nil {
		return nil, &domain.ErrUnauthorized{Message: "Sessão inválida ou expirada"}
	}
	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid || claims.Type != "access" {
		return nil, &domain.ErrUnauthorized{Message: "Sessão inválida"}
	}

	m.sweep()

	m.mu.Lock()
	sess, ok := m.sessions[claims.SessionID]
	if ok {
		sess.lastSeen = m.now()
	}
	m.mu.Unlock()
	if !ok {
		return nil, &domain.ErrUnauthorized{Message: "Sessão encerrada"}
	}
	return sess, nil
}

// Active reports the number of live sessions.
func (m *SessionManager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// sweep closes sessions idle past idleTTL.
func (m *SessionManager) sweep() {
	if m.idleTTL <= 0 {
		return
	}
	cutoff := m.now().Add(-m.idleTTL)

	m.mu.Lock()
	var expired []*Session
	for id, sess := range m.sessions {
		if sess.lastSeen.Before(cutoff) {
			expired = append(expired, sess)
			delete(m.sessions, id)
		}
	}
	n := len(m.sessions)
	m.mu.Unlock()

	if len(expired) == 0 {
		return
	}
	for _, sess := range expired {
		sess.Controller.Close()
	}
	m.metrics.SetActiveSessions(n)
	m.logger.Info("idle sessions expired", zap.Int("count", len(expired)))
}
