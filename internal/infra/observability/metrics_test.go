package observability_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/boddenberg/agency-portal-bfa-go/internal/domain"
	"github.com/boddenberg/agency-portal-bfa-go/internal/infra/observability"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestGetSyncSnapshot(t *testing.T) {
	m := observability.NewMetrics()

	m.IncrMirrorFailure("create")
	m.IncrMirrorFailure("update")
	m.IncrMirrorFailure("update")
	m.IncrSyncFatal(domain.SideMirror)
	m.IncrSeedRun("events")
	m.IncrSeedRun("tasks")
	m.IncrRoleReconcile("corrected")
	m.IncrCacheHit("tenant")
	m.IncrCacheHit("tenant")
	m.IncrCacheHit("tenant")
	m.IncrCacheMiss("tenant")

	snap := m.GetSyncSnapshot()

	if snap.MirrorPartialFailures != 3 {
		t.Errorf("expected 3 mirror failures, got %v", snap.MirrorPartialFailures)
	}
	if snap.SyncFatalFailures != 1 {
		t.Errorf("expected 1 fatal failure, got %v", snap.SyncFatalFailures)
	}
	if snap.SeedRuns != 2 {
		t.Errorf("expected 2 seed runs, got %v", snap.SeedRuns)
	}
	if snap.RoleCorrections != 1 || snap.RoleCorrectionErrors != 0 {
		t.Errorf("unexpected role counters: %+v", snap)
	}
	if snap.TenantCacheHitRate != 0.75 {
		t.Errorf("expected hit rate 0.75, got %v", snap.TenantCacheHitRate)
	}
}

func TestNewMetrics_IndependentRegistries(t *testing.T) {
	a := observability.NewMetrics()
	b := observability.NewMetrics()

	a.IncrSeedRun("events")

	if got := b.GetSyncSnapshot().SeedRuns; got != 0 {
		t.Errorf("expected isolated registries, got %v seed runs", got)
	}
}

func TestZapLoggerMiddleware_LevelsAndExtraFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)

	extra := func(r *http.Request) []zap.Field {
		return []zap.Field{zap.String("session_id", "sid-1")}
	}
	h := observability.ZapLoggerMiddleware(logger, extra)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/tasks", nil))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	if entries[0].Level != zap.WarnLevel {
		t.Errorf("expected warn level for 404, got %s", entries[0].Level)
	}
	if entries[0].ContextMap()["session_id"] != "sid-1" {
		t.Errorf("expected session_id field, got %v", entries[0].ContextMap())
	}
}
