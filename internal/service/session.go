package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/boddenberg/agency-portal-bfa-go/internal/domain"
	"github.com/boddenberg/agency-portal-bfa-go/internal/infra/observability"
	"github.com/boddenberg/agency-portal-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/agency-portal-bfa-go/internal/port"

	"go.uber.org/zap"
)

// operationTimeout bounds one verify/resolve pass driven by a provider
// notification, which carries no caller context.
const operationTimeout = 30 * time.Second

// SessionController follows one browser session's identity provider and
// derives the resolved role and tenant from it.
//
// Every principal notification bumps a generation counter. A pass that
// finds the generation moved on discards its result, so a sign-out during
// a slow resolve can never be overwritten by a late Resolved.
type SessionController struct {
	provider port.IdentityProvider
	resolver *RoleResolver
	tenants  port.TenantStore
	retry    resilience.Config
	metrics  *observability.Metrics
	logger   *zap.Logger

	// opMu serializes verify/resolve passes and impersonation changes.
	opMu sync.Mutex

	mu           sync.Mutex
	ctx          context.Context
	cancel       context.CancelFunc
	snap         domain.ResolvedSession
	gen          uint64
	started      bool
	closed       bool
	done         chan struct{}
	unsubscribe  func()
	retryAttempt int
	retryTimer   *time.Timer
	// override outlives re-announcements of the same principal; only
	// BackToDashboard, sign-out or a different principal clear it.
	override     *string
	overrideUID  string
	listeners    map[int]func(domain.ResolvedSession)
	nextListener int
}

// NewSessionController creates a controller in the Unauthenticated state.
// retry drives the resubscription backoff after identity provider errors.
func NewSessionController(
	provider port.IdentityProvider,
	resolver *RoleResolver,
	tenants port.TenantStore,
	retry resilience.Config,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *SessionController {
	return &SessionController{
		provider:  provider,
		resolver:  resolver,
		tenants:   tenants,
		retry:     retry,
		metrics:   metrics,
		logger:    logger,
		snap:      domain.ResolvedSession{State: domain.StateUnauthenticated},
		done:      make(chan struct{}),
		listeners: make(map[int]func(domain.ResolvedSession)),
	}
}

// Start subscribes to the provider and handles the principal it already
// holds, if any. Calling Start twice is a no-op.
func (c *SessionController) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started || c.closed {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.ctx, c.cancel = context.WithCancel(context.WithoutCancel(ctx))
	c.mu.Unlock()

	c.subscribe()
}

// Close releases the provider subscription and any pending retry.
func (c *SessionController) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.gen++
	unsub := c.unsubscribe
	c.unsubscribe = nil
	if c.retryTimer != nil {
		c.retryTimer.Stop()
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.listeners = make(map[int]func(domain.ResolvedSession))
	close(c.done)
	c.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

// Done is closed once the controller is closed.
func (c *SessionController) Done() <-chan struct{} {
	return c.done
}

// Provider is the identity provider session this controller follows.
func (c *SessionController) Provider() port.IdentityProvider {
	return c.provider
}

// Snapshot returns the current resolved session.
func (c *SessionController) Snapshot() domain.ResolvedSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// CurrentTenantID is the tenant tenant-scoped reads and writes must use.
func (c *SessionController) CurrentTenantID() *string {
	return c.Snapshot().ActiveTenantID()
}

// Watch registers fn for every snapshot change and returns a function
// that removes it.
func (c *SessionController) Watch(fn func(domain.ResolvedSession)) func() {
	c.mu.Lock()
	id := c.nextListener
	c.nextListener++
	c.listeners[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

// Recheck re-enters verification after the user confirmed their e-mail
// elsewhere. It also retries a failed resolution.
func (c *SessionController) Recheck(ctx context.Context) domain.ResolvedSession {
	c.mu.Lock()
	state := c.snap.State
	c.mu.Unlock()

	if state != domain.StatePendingVerification && state != domain.StateResolutionFailed {
		return c.Snapshot()
	}
	if p := c.provider.Current(); p != nil {
		c.handle(ctx, p)
	}
	return c.Snapshot()
}

// ViewTenant sets the impersonation override. Only a resolved agency
// session may impersonate, and only an existing tenant.
func (c *SessionController) ViewTenant(ctx context.Context, tenantID string) (domain.ResolvedSession, error) {
	ctx, span := tracer.Start(ctx, "SessionController.ViewTenant")
	defer span.End()

	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return c.Snapshot(), &domain.ErrValidation{Field: "tenant_id", Message: "obrigatório"}
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	snap, gen := c.snap, c.gen
	c.mu.Unlock()
	if !snap.IsAgency() {
		return snap, &domain.ErrForbidden{Action: "impersonate tenant"}
	}

	ok, err := c.tenants.Exists(ctx, tenantID)
	if err != nil {
		return snap, err
	}
	if !ok {
		return snap, &domain.ErrNotFound{Resource: "tenant", ID: tenantID}
	}

	id := tenantID
	if !c.update(gen, func(s *domain.ResolvedSession) bool {
		if !s.IsAgency() {
			return false
		}
		s.ImpersonatedTenantID = &id
		c.override, c.overrideUID = &id, s.UID
		return true
	}) {
		return c.Snapshot(), &domain.ErrForbidden{Action: "impersonate tenant"}
	}
	c.logger.Info("impersonation started", zap.String("uid", snap.UID), zap.String("tenant", id))
	return c.Snapshot(), nil
}

// BackToDashboard clears the impersonation override.
func (c *SessionController) BackToDashboard() domain.ResolvedSession {
	c.mu.Lock()
	gen := c.gen
	c.override = nil
	c.mu.Unlock()

	c.update(gen, func(s *domain.ResolvedSession) bool {
		if s.ImpersonatedTenantID == nil {
			return false
		}
		s.ImpersonatedTenantID = nil
		return true
	})
	return c.Snapshot()
}

// subscribe (re)establishes the provider watch and replays the current
// principal through the state machine.
func (c *SessionController) subscribe() {
	unsub := c.provider.Subscribe(c.onPrincipal)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		unsub()
		return
	}
	old := c.unsubscribe
	c.unsubscribe = unsub
	ctx := c.ctx
	c.mu.Unlock()

	if old != nil {
		old()
	}
	if p := c.provider.Current(); p != nil {
		c.handle(ctx, p)
	}
}

// onPrincipal is the provider callback.
func (c *SessionController) onPrincipal(p *domain.Principal) {
	if p == nil {
		c.signedOut()
		return
	}
	c.mu.Lock()
	ctx := c.ctx
	c.mu.Unlock()
	c.handle(ctx, p)
}

// signedOut drops every derived value, impersonation included.
func (c *SessionController) signedOut() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.gen++
	c.retryAttempt = 0
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	changed := c.snap.State != domain.StateUnauthenticated || c.snap.ImpersonatedTenantID != nil
	c.override = nil
	c.snap = domain.ResolvedSession{State: domain.StateUnauthenticated}
	snap, fns := c.snap, c.listenerList()
	c.mu.Unlock()

	if changed {
		c.metrics.IncrSessionTransition(domain.StateUnauthenticated)
		c.logger.Info("session signed out")
		notify(fns, snap)
	}
}

// handle runs one verify/resolve pass for p.
func (c *SessionController) handle(ctx context.Context, p *domain.Principal) {
	if ctx == nil {
		ctx = context.Background()
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.gen++
	gen := c.gen
	if c.overrideUID != p.UID {
		c.override = nil
	}
	c.mu.Unlock()

	c.opMu.Lock()
	defer c.opMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()
	ctx, span := tracer.Start(ctx, "SessionController.handle")
	defer span.End()

	if !c.transition(gen, domain.ResolvedSession{State: domain.StateVerifyingIdentity, UID: p.UID, Email: p.Email}) {
		return
	}

	fresh, err := c.provider.Reload(ctx)
	if err != nil {
		c.logger.Warn("identity reload failed, resubscribing", zap.String("uid", p.UID), zap.Error(err))
		c.scheduleResubscribe(gen)
		return
	}
	if fresh == nil {
		return
	}

	if !fresh.EmailVerified {
		c.transition(gen, domain.ResolvedSession{State: domain.StatePendingVerification, UID: fresh.UID, Email: fresh.Email})
		return
	}

	if !c.transition(gen, domain.ResolvedSession{State: domain.StateResolving, UID: fresh.UID, Email: fresh.Email, Verified: true}) {
		return
	}

	res, err := c.resolver.Resolve(ctx, *fresh)
	if err != nil {
		var resErr *domain.ErrProfileResolution
		if errors.As(err, &resErr) {
			c.logger.Error("role resolution failed", zap.String("uid", fresh.UID), zap.Error(err))
			c.transition(gen, domain.ResolvedSession{State: domain.StateResolutionFailed, UID: fresh.UID, Email: fresh.Email, Verified: true})
			return
		}
		c.logger.Warn("role resolution interrupted, resubscribing", zap.String("uid", fresh.UID), zap.Error(err))
		c.scheduleResubscribe(gen)
		return
	}

	role := res.Role
	next := domain.ResolvedSession{
		State:    domain.StateResolved,
		UID:      fresh.UID,
		Email:    fresh.Email,
		Verified: true,
		Role:     &role,
		TenantID: res.TenantID,
	}
	if c.update(gen, func(s *domain.ResolvedSession) bool {
		*s = next
		if role == domain.RoleAgency && c.override != nil && c.overrideUID == fresh.UID {
			id := *c.override
			s.ImpersonatedTenantID = &id
		} else {
			c.override = nil
		}
		return true
	}) {
		c.mu.Lock()
		c.retryAttempt = 0
		c.mu.Unlock()
	}
}

// transition replaces the snapshot when gen is still current.
func (c *SessionController) transition(gen uint64, next domain.ResolvedSession) bool {
	return c.update(gen, func(s *domain.ResolvedSession) bool {
		*s = next
		return true
	})
}

// update applies fn to the snapshot if gen is current and notifies
// listeners when fn reports a change.
func (c *SessionController) update(gen uint64, fn func(*domain.ResolvedSession) bool) bool {
	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		return false
	}
	prev := c.snap.State
	if !fn(&c.snap) {
		c.mu.Unlock()
		return false
	}
	snap, fns := c.snap, c.listenerList()
	c.mu.Unlock()

	if snap.State != prev {
		c.metrics.IncrSessionTransition(snap.State)
		c.logger.Debug("session transition",
			zap.String("uid", snap.UID),
			zap.Stringer("from", prev),
			zap.Stringer("to", snap.State),
		)
	}
	notify(fns, snap)
	return true
}

// scheduleResubscribe drops the subscription and re-establishes it after
// a backoff. The session stays in its loading state meanwhile.
func (c *SessionController) scheduleResubscribe(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || gen != c.gen {
		return
	}

	delay := resilience.Backoff(c.retry, c.retryAttempt)
	c.retryAttempt++
	if c.retryTimer != nil {
		c.retryTimer.Stop()
	}
	c.retryTimer = time.AfterFunc(delay, func() {
		c.mu.Lock()
		stale := c.closed || gen != c.gen
		c.mu.Unlock()
		if stale {
			return
		}
		c.subscribe()
	})
}

func (c *SessionController) listenerList() []func(domain.ResolvedSession) {
	fns := make([]func(domain.ResolvedSession), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	return fns
}

func notify(fns []func(domain.ResolvedSession), snap domain.ResolvedSession) {
	for _, fn := range fns {
		fn(snap)
	}
}
