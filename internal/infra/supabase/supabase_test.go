package supabase_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/boddenberg/agency-portal-bfa-go/internal/domain"
	"github.com/boddenberg/agency-portal-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/agency-portal-bfa-go/internal/infra/supabase"

	"go.uber.org/zap"
)

// fakePostgREST serves the documents table from memory.
type fakePostgREST struct {
	mu    sync.Mutex
	rows  map[string]map[string]any // scope|collection|id -> data
	fails int                       // remaining requests answered with 503
}

func newFakePostgREST() *fakePostgREST {
	return &fakePostgREST{rows: make(map[string]map[string]any)}
}

func eq(v string) string { return strings.TrimPrefix(v, "eq.") }

func (f *fakePostgREST) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fails > 0 {
		f.fails--
		http.Error(w, `{"message":"unavailable"}`, http.StatusServiceUnavailable)
		return
	}
	if r.Header.Get("apikey") == "" || !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
		http.Error(w, "missing auth", http.StatusUnauthorized)
		return
	}

	q := r.URL.Query()
	scope, collection, id := eq(q.Get("scope")), eq(q.Get("collection")), eq(q.Get("id"))
	prefix := scope + "|" + collection + "|"

	type row struct {
		Scope      string         `json:"scope,omitempty"`
		Collection string         `json:"collection,omitempty"`
		ID         string         `json:"id"`
		Data       map[string]any `json:"data"`
	}
	matching := func() []row {
		var out []row
		for k, data := range f.rows {
			if !strings.HasPrefix(k, prefix) {
				continue
			}
			rowID := strings.TrimPrefix(k, prefix)
			if id != "" && rowID != id {
				continue
			}
			out = append(out, row{ID: rowID, Data: data})
		}
		return out
	}

	switch r.Method {
	case http.MethodGet:
		rows := matching()
		if rows == nil {
			rows = []row{}
		}
		_ = json.NewEncoder(w).Encode(rows)
	case http.MethodPost:
		var in row
		_ = json.NewDecoder(r.Body).Decode(&in)
		f.rows[in.Scope+"|"+in.Collection+"|"+in.ID] = in.Data
		w.WriteHeader(http.StatusCreated)
	case http.MethodPatch:
		var in struct {
			Data map[string]any `json:"data"`
		}
		_ = json.NewDecoder(r.Body).Decode(&in)
		rows := matching()
		for _, rw := range rows {
			f.rows[prefix+rw.ID] = in.Data
		}
		if rows == nil {
			rows = []row{}
		}
		_ = json.NewEncoder(w).Encode(rows)
	case http.MethodDelete:
		for _, rw := range matching() {
			delete(f.rows, prefix+rw.ID)
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func newTestClient(t *testing.T, h http.Handler) *supabase.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	cfg := resilience.Config{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxConcurrency: 4}
	return supabase.NewClient(srv.Client(), srv.URL, "anon", "service", resilience.NewCircuitBreaker("test", supabase.IsNotFound), cfg, zap.NewNop())
}

func TestDocuments_RoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t, newFakePostgREST())

	id, err := c.Add(ctx, "acme", "events", map[string]any{"title": "Post", "status": "Pendente"})
	if err != nil {
		t.Fatalf("expected add, got %v", err)
	}

	if err := c.Set(ctx, "acme", "Agenciaapk", id, map[string]any{"titulo": "Post"}); err != nil {
		t.Fatalf("expected set, got %v", err)
	}

	if err := c.Update(ctx, "acme", "events", id, map[string]any{"status": "Concluído"}); err != nil {
		t.Fatalf("expected update, got %v", err)
	}

	doc, err := c.Get(ctx, "acme", "events", id)
	if err != nil || doc == nil {
		t.Fatalf("expected document, got %v %v", doc, err)
	}
	if doc.Fields["status"] != "Concluído" || doc.Fields["title"] != "Post" {
		t.Errorf("expected merged update, got %v", doc.Fields)
	}

	list, err := c.ListAll(ctx, "acme", "events")
	if err != nil || len(list) != 1 {
		t.Fatalf("expected 1 document, got %d (%v)", len(list), err)
	}

	if err := c.Delete(ctx, "acme", "events", id); err != nil {
		t.Fatalf("expected delete, got %v", err)
	}
	if doc, _ := c.Get(ctx, "acme", "events", id); doc != nil {
		t.Errorf("expected document gone, got %v", doc)
	}
}

func TestDocuments_UpdateMissingIsNotFound(t *testing.T) {
	c := newTestClient(t, newFakePostgREST())

	err := c.Update(context.Background(), "acme", "Agenciaapk", "ghost", map[string]any{"titulo": "x"})

	var nf *domain.ErrNotFound
	if !errors.As(err, &nf) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDocuments_MergeCreatesAndPreserves(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t, newFakePostgREST())

	_ = c.Merge(ctx, "", "usuarios", "u1", map[string]any{"email": "a@b.com", "role": "cliente"})
	_ = c.Merge(ctx, "", "usuarios", "u1", map[string]any{"role": "agencia"})

	doc, _ := c.Get(ctx, "", "usuarios", "u1")
	if doc == nil || doc.Fields["email"] != "a@b.com" || doc.Fields["role"] != "agencia" {
		t.Errorf("expected merged profile, got %v", doc)
	}
}

func TestDocuments_RetriesTransientFailures(t *testing.T) {
	fake := newFakePostgREST()
	fake.fails = 2
	c := newTestClient(t, fake)

	if _, err := c.ListAll(context.Background(), "acme", "tasks"); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
}

func TestDocuments_ExhaustedRetriesAreExternalErrors(t *testing.T) {
	fake := newFakePostgREST()
	fake.fails = 10
	c := newTestClient(t, fake)

	_, err := c.ListAll(context.Background(), "acme", "tasks")

	var ext *domain.ErrExternalService
	if !errors.As(err, &ext) {
		t.Fatalf("expected ErrExternalService, got %v", err)
	}
}

// ============================================================
// GoTrue
// ============================================================

func newGoTrue(t *testing.T, confirmed *atomic.Bool) *supabase.IdentityClient {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		var creds domain.Credentials
		_ = json.NewDecoder(r.Body).Decode(&creds)
		if creds.Password != "secret1" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"code":400,"error_code":"invalid_credentials","msg":"Invalid login credentials"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"tok","user":{"id":"u1","email":"` + creds.Email + `","email_confirmed_at":null}}`))
	})
	mux.HandleFunc("/auth/v1/admin/users/u1", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer service" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		at := "null"
		if confirmed.Load() {
			at = `"2025-10-20T10:00:00Z"`
		}
		_, _ = w.Write([]byte(`{"id":"u1","email":"ana@acme.com","email_confirmed_at":` + at + `}`))
	})
	mux.HandleFunc("/auth/v1/logout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/auth/v1/signup", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"code":422,"error_code":"weak_password","msg":"Password should be at least 6 characters."}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	cfg := resilience.Config{MaxRetries: 1, InitialBackoff: time.Millisecond}
	return supabase.NewIdentityClient(srv.Client(), srv.URL, "anon", "service", resilience.NewCircuitBreaker("gotrue", supabase.IsRejection), cfg, zap.NewNop())
}

func TestIdentity_SignInReloadSignOut(t *testing.T) {
	ctx := context.Background()
	var confirmed atomic.Bool
	sess := newGoTrue(t, &confirmed).NewSession()

	var notified []*domain.Principal
	sess.Subscribe(func(p *domain.Principal) { notified = append(notified, p) })

	p, err := sess.SignIn(ctx, domain.Credentials{Email: "ana@acme.com", Password: "secret1"})
	if err != nil {
		t.Fatalf("expected sign in, got %v", err)
	}
	if p.UID != "u1" || p.EmailVerified {
		t.Errorf("unexpected principal: %+v", p)
	}

	confirmed.Store(true)
	fresh, err := sess.Reload(ctx)
	if err != nil {
		t.Fatalf("expected reload, got %v", err)
	}
	if !fresh.EmailVerified {
		t.Error("expected reload to see confirmation")
	}

	if err := sess.SignOut(ctx); err != nil {
		t.Fatalf("expected sign out, got %v", err)
	}
	if len(notified) != 2 || notified[1] != nil {
		t.Errorf("expected sign in and sign out notifications, got %v", notified)
	}
}

func TestIdentity_ErrorMapping(t *testing.T) {
	ctx := context.Background()
	var confirmed atomic.Bool
	client := newGoTrue(t, &confirmed)

	_, err := client.NewSession().SignIn(ctx, domain.Credentials{Email: "ana@acme.com", Password: "wrong"})
	var idErr *domain.ErrIdentity
	if !errors.As(err, &idErr) || idErr.Code != domain.IdentityInvalidCredentials {
		t.Fatalf("expected invalid_credentials, got %v", err)
	}

	_, err = client.NewSession().SignUp(ctx, domain.Credentials{Email: "ana@acme.com", Password: "1"})
	if !errors.As(err, &idErr) || idErr.Code != domain.IdentityWeakPassword {
		t.Fatalf("expected weak_password, got %v", err)
	}
}
