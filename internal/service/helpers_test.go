package service_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/boddenberg/agency-portal-bfa-go/internal/domain"
	"github.com/boddenberg/agency-portal-bfa-go/internal/infra/cache"
	"github.com/boddenberg/agency-portal-bfa-go/internal/infra/docstore"
	"github.com/boddenberg/agency-portal-bfa-go/internal/infra/memory"
	"github.com/boddenberg/agency-portal-bfa-go/internal/infra/observability"
	"github.com/boddenberg/agency-portal-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/agency-portal-bfa-go/internal/port"
	"github.com/boddenberg/agency-portal-bfa-go/internal/service"

	"go.uber.org/zap"
)

const agencyEmail = "ops@agency.example"

var errBoom = errors.New("store unavailable")

// --- Mocks ---

// faultyStore wraps a DocumentStore and fails chosen (op, collection) pairs.
type faultyStore struct {
	port.DocumentStore

	mu   sync.Mutex
	fail map[string]error
}

func newFaultyStore(inner port.DocumentStore) *faultyStore {
	return &faultyStore{DocumentStore: inner, fail: make(map[string]error)}
}

func (f *faultyStore) failOn(op, collection string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[op+":"+collection] = err
}

func (f *faultyStore) err(op, collection string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fail[op+":"+collection]
}

func (f *faultyStore) ListAll(ctx context.Context, scope, collection string) ([]domain.Document, error) {
	if err := f.err("list", collection); err != nil {
		return nil, err
	}
	return f.DocumentStore.ListAll(ctx, scope, collection)
}

func (f *faultyStore) Get(ctx context.Context, scope, collection, id string) (*domain.Document, error) {
	if err := f.err("get", collection); err != nil {
		return nil, err
	}
	return f.DocumentStore.Get(ctx, scope, collection, id)
}

func (f *faultyStore) Set(ctx context.Context, scope, collection, id string, fields map[string]any) error {
	if err := f.err("set", collection); err != nil {
		return err
	}
	return f.DocumentStore.Set(ctx, scope, collection, id, fields)
}

func (f *faultyStore) Update(ctx context.Context, scope, collection, id string, fields map[string]any) error {
	if err := f.err("update", collection); err != nil {
		return err
	}
	return f.DocumentStore.Update(ctx, scope, collection, id, fields)
}

func (f *faultyStore) Merge(ctx context.Context, scope, collection, id string, fields map[string]any) error {
	if err := f.err("merge", collection); err != nil {
		return err
	}
	return f.DocumentStore.Merge(ctx, scope, collection, id, fields)
}

func (f *faultyStore) Delete(ctx context.Context, scope, collection, id string) error {
	if err := f.err("delete", collection); err != nil {
		return err
	}
	return f.DocumentStore.Delete(ctx, scope, collection, id)
}

func (f *faultyStore) Add(ctx context.Context, scope, collection string, fields map[string]any) (string, error) {
	if err := f.err("add", collection); err != nil {
		return "", err
	}
	return f.DocumentStore.Add(ctx, scope, collection, fields)
}

// flakyProvider fails the first n reloads and counts subscriptions.
type flakyProvider struct {
	port.IdentityProvider

	reloadFailures atomic.Int32
	subscriptions  atomic.Int32
}

func (f *flakyProvider) Subscribe(fn func(*domain.Principal)) func() {
	f.subscriptions.Add(1)
	return f.IdentityProvider.Subscribe(fn)
}

func (f *flakyProvider) Reload(ctx context.Context) (*domain.Principal, error) {
	if f.reloadFailures.Add(-1) >= 0 {
		return nil, &domain.ErrIdentity{Code: domain.IdentityUnavailable}
	}
	return f.IdentityProvider.Reload(ctx)
}

// --- Harness ---

type harness struct {
	store    *faultyStore
	profiles *docstore.Profiles
	tenants  *docstore.Tenants
	metrics  *observability.Metrics
	resolver *service.RoleResolver
	dir      *memory.Directory
	retry    resilience.Config
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	store := newFaultyStore(memory.NewStore())
	exists := cache.New[bool](time.Minute)
	t.Cleanup(exists.Close)

	metrics := observability.NewMetrics()
	profiles := docstore.NewProfiles(store)
	return &harness{
		store:    store,
		profiles: profiles,
		tenants:  docstore.NewTenants(store, exists, metrics),
		metrics:  metrics,
		resolver: service.NewRoleResolver(profiles, []string{agencyEmail}, metrics, zap.NewNop()),
		dir:      memory.NewDirectory(),
		retry:    resilience.Config{InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond},
	}
}

func (h *harness) controller(t *testing.T, provider port.IdentityProvider) *service.SessionController {
	t.Helper()
	ctrl := service.NewSessionController(provider, h.resolver, h.tenants, h.retry, h.metrics, zap.NewNop())
	ctrl.Start(context.Background())
	t.Cleanup(ctrl.Close)
	return ctrl
}

func (h *harness) register(t *testing.T, email string, verified bool) domain.Credentials {
	t.Helper()
	if _, err := h.dir.Register(email, "secret1", verified); err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	return domain.Credentials{Email: email, Password: "secret1"}
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
