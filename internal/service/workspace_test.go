package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/boddenberg/agency-portal-bfa-go/internal/domain"
	"github.com/boddenberg/agency-portal-bfa-go/internal/infra/docstore"
	"github.com/boddenberg/agency-portal-bfa-go/internal/seed"
	"github.com/boddenberg/agency-portal-bfa-go/internal/service"

	"go.uber.org/zap"
)

func newWorkspace(t *testing.T, h *harness) *service.Workspace {
	t.Helper()
	tpl, err := seed.Load("")
	if err != nil {
		t.Fatalf("load templates: %v", err)
	}
	return service.NewWorkspace(h.store, tpl.TaskList(), tpl.IdeaList(saoPaulo(t)), h.metrics, zap.NewNop())
}

func TestWorkspace_WeeklyFocusSeedsAndReportsProgress(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	ws := newWorkspace(t, h)

	focus, err := ws.WeeklyFocus(ctx, "acme")
	if err != nil {
		t.Fatalf("weekly focus: %v", err)
	}
	if focus.Total != 5 || len(focus.Tasks) != 5 {
		t.Fatalf("expected 5 seeded tasks, got %+v", focus)
	}

	if _, err := ws.ToggleTask(ctx, "acme", focus.Tasks[0].ID); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if _, err := ws.ToggleTask(ctx, "acme", focus.Tasks[1].ID); err != nil {
		t.Fatalf("toggle: %v", err)
	}

	focus, _ = ws.WeeklyFocus(ctx, "acme")
	wantDone := 0
	for _, task := range focus.Tasks {
		if task.Completed {
			wantDone++
		}
	}
	if focus.Done != wantDone {
		t.Errorf("expected done %d, got %d", wantDone, focus.Done)
	}
	wantProgress := map[int]int{0: 0, 1: 20, 2: 40, 3: 60, 4: 80, 5: 100}[wantDone]
	if focus.Progress != wantProgress {
		t.Errorf("expected progress %d, got %d", wantProgress, focus.Progress)
	}
}

func TestWorkspace_TaskLifecycle(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	ws := newWorkspace(t, h)
	_, _ = ws.WeeklyFocus(ctx, "acme")

	task, err := ws.AddTask(ctx, "acme", "  Revisar roteiro ")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if task.Text != "Revisar roteiro" || task.Completed {
		t.Errorf("unexpected task: %+v", task)
	}

	toggled, err := ws.ToggleTask(ctx, "acme", task.ID)
	if err != nil || !toggled.Completed {
		t.Fatalf("expected completed task, got %+v %v", toggled, err)
	}

	if err := ws.DeleteTask(ctx, "acme", task.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	focus, _ := ws.WeeklyFocus(ctx, "acme")
	for _, got := range focus.Tasks {
		if got.ID == task.ID {
			t.Error("expected deleted task gone")
		}
	}
}

func TestWorkspace_EmptyTextIsRejected(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	ws := newWorkspace(t, h)

	var verr *domain.ErrValidation
	if _, err := ws.AddTask(ctx, "acme", "   "); !errors.As(err, &verr) {
		t.Errorf("expected ErrValidation for task, got %v", err)
	}
	if _, err := ws.SubmitIdea(ctx, "acme", "", domain.AuthorClient); !errors.As(err, &verr) {
		t.Errorf("expected ErrValidation for idea, got %v", err)
	}
}

func TestWorkspace_ToggleMissingTask(t *testing.T) {
	h := newHarness(t)
	ws := newWorkspace(t, h)

	_, err := ws.ToggleTask(context.Background(), "acme", "ghost")
	var nf *domain.ErrNotFound
	if !errors.As(err, &nf) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestWorkspace_IdeasNewestFirst(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	ws := newWorkspace(t, h)

	ideas, err := ws.Ideas(ctx, "acme")
	if err != nil {
		t.Fatalf("ideas: %v", err)
	}
	if len(ideas) != 3 {
		t.Fatalf("expected 3 seeded ideas, got %d", len(ideas))
	}

	posted, err := ws.SubmitIdea(ctx, "acme", "Live de lançamento", domain.AuthorAgency)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	ideas, _ = ws.Ideas(ctx, "acme")
	if ideas[0].ID != posted.ID || ideas[0].Author != domain.AuthorAgency {
		t.Errorf("expected the new idea first, got %+v", ideas[0])
	}
	for i := 1; i < len(ideas); i++ {
		if ideas[i].Timestamp.After(ideas[i-1].Timestamp) {
			t.Fatalf("ideas out of order at %d", i)
		}
	}
}

func TestWorkspace_SeedFailureSurfaces(t *testing.T) {
	h := newHarness(t)
	ws := newWorkspace(t, h)
	h.store.failOn("set", docstore.TasksCollection, errBoom)

	if _, err := ws.WeeklyFocus(context.Background(), "acme"); !errors.Is(err, errBoom) {
		t.Errorf("expected seeding error, got %v", err)
	}

	h.store.failOn("set", docstore.TasksCollection, nil)
	focus, err := ws.WeeklyFocus(context.Background(), "acme")
	if err != nil {
		t.Fatalf("weekly focus after recovery: %v", err)
	}
	if focus.Total != 5 {
		t.Errorf("expected the seed to complete on retry, got %d tasks", focus.Total)
	}
}

func TestAuthorFor(t *testing.T) {
	agency, client := domain.RoleAgency, domain.RoleClient
	if got := service.AuthorFor(domain.ResolvedSession{State: domain.StateResolved, Role: &agency}); got != domain.AuthorAgency {
		t.Errorf("expected agency author, got %q", got)
	}
	if got := service.AuthorFor(domain.ResolvedSession{State: domain.StateResolved, Role: &client}); got != domain.AuthorClient {
		t.Errorf("expected client author, got %q", got)
	}
}
