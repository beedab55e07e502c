package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/boddenberg/agency-portal-bfa-go/internal/domain"
	"github.com/boddenberg/agency-portal-bfa-go/internal/infra/docstore"
	"github.com/boddenberg/agency-portal-bfa-go/internal/infra/observability"
	"github.com/boddenberg/agency-portal-bfa-go/internal/port"

	"go.uber.org/zap"
)

// Workspace serves a tenant's weekly focus tasks and files hub ideas.
// Both collections are seeded like the calendar.
type Workspace struct {
	store     port.DocumentStore
	taskSeeds []map[string]any
	ideaSeeds []map[string]any
	seeds     *seedTracker
	now       func() time.Time
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// NewWorkspace creates the workspace service.
func NewWorkspace(store port.DocumentStore, tasks []domain.Task, ideas []domain.Idea, metrics *observability.Metrics, logger *zap.Logger) *Workspace {
	taskSeeds := make([]map[string]any, 0, len(tasks))
	for _, t := range tasks {
		taskSeeds = append(taskSeeds, docstore.TaskFields(t))
	}
	ideaSeeds := make([]map[string]any, 0, len(ideas))
	for _, i := range ideas {
		ideaSeeds = append(ideaSeeds, docstore.IdeaFields(i))
	}
	return &Workspace{
		store:     store,
		taskSeeds: taskSeeds,
		ideaSeeds: ideaSeeds,
		seeds:     newSeedTracker(),
		now:       time.Now,
		metrics:   metrics,
		logger:    logger,
	}
}

// WeeklyFocus lists the tasks with their completion progress.
func (w *Workspace) WeeklyFocus(ctx context.Context, tenantID string) (*domain.WeeklyFocus, error) {
	ctx, span := tracer.Start(ctx, "Workspace.WeeklyFocus")
	defer span.End()

	docs, err := listOrSeed(ctx, w.store, w.seeds, tenantID, docstore.TasksCollection, w.taskSeeds, w.metrics, w.logger)
	if err != nil {
		return nil, err
	}

	focus := &domain.WeeklyFocus{Tasks: make([]domain.Task, 0, len(docs))}
	for _, doc := range docs {
		t := docstore.TaskFromDocument(doc)
		if t.Completed {
			focus.Done++
		}
		focus.Tasks = append(focus.Tasks, t)
	}
	focus.Total = len(focus.Tasks)
	if focus.Total > 0 {
		focus.Progress = int(math.Round(float64(focus.Done) * 100 / float64(focus.Total)))
	}
	return focus, nil
}

// AddTask appends an open task.
func (w *Workspace) AddTask(ctx context.Context, tenantID, text string) (*domain.Task, error) {
	ctx, span := tracer.Start(ctx, "Workspace.AddTask")
	defer span.End()

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, &domain.ErrValidation{Field: "text", Message: "obrigatório"}
	}
	task := domain.Task{Text: text}
	id, err := w.store.Add(ctx, tenantID, docstore.TasksCollection, docstore.TaskFields(task))
	if err != nil {
		return nil, fmt.Errorf("add task: %w", err)
	}
	task.ID = id
	return &task, nil
}

// ToggleTask flips a task's completed flag.
func (w *Workspace) ToggleTask(ctx context.Context, tenantID, id string) (*domain.Task, error) {
	ctx, span := tracer.Start(ctx, "Workspace.ToggleTask")
	defer span.End()

	doc, err := w.store.Get(ctx, tenantID, docstore.TasksCollection, id)
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	if doc == nil {
		return nil, &domain.ErrNotFound{Resource: "task", ID: id}
	}
	task := docstore.TaskFromDocument(*doc)
	task.Completed = !task.Completed
	if err := w.store.Update(ctx, tenantID, docstore.TasksCollection, id, map[string]any{"completed": task.Completed}); err != nil {
		return nil, fmt.Errorf("toggle task %s: %w", id, err)
	}
	return &task, nil
}

func (w *Workspace) DeleteTask(ctx context.Context, tenantID, id string) error {
	ctx, span := tracer.Start(ctx, "Workspace.DeleteTask")
	defer span.End()

	if err := w.store.Delete(ctx, tenantID, docstore.TasksCollection, id); err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	return nil
}

// Ideas lists the files hub ideas, newest first.
func (w *Workspace) Ideas(ctx context.Context, tenantID string) ([]domain.Idea, error) {
	ctx, span := tracer.Start(ctx, "Workspace.Ideas")
	defer span.End()

	docs, err := listOrSeed(ctx, w.store, w.seeds, tenantID, docstore.IdeasCollection, w.ideaSeeds, w.metrics, w.logger)
	if err != nil {
		return nil, err
	}
	ideas := make([]domain.Idea, 0, len(docs))
	for _, doc := range docs {
		ideas = append(ideas, docstore.IdeaFromDocument(doc))
	}
	sort.SliceStable(ideas, func(i, j int) bool { return ideas[i].Timestamp.After(ideas[j].Timestamp) })
	return ideas, nil
}

// SubmitIdea posts an idea under the given author label.
func (w *Workspace) SubmitIdea(ctx context.Context, tenantID, text, author string) (*domain.Idea, error) {
	ctx, span := tracer.Start(ctx, "Workspace.SubmitIdea")
	defer span.End()

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, &domain.ErrValidation{Field: "text", Message: "obrigatório"}
	}
	idea := domain.Idea{Text: text, Author: author, Timestamp: w.now()}
	id, err := w.store.Add(ctx, tenantID, docstore.IdeasCollection, docstore.IdeaFields(idea))
	if err != nil {
		return nil, fmt.Errorf("submit idea: %w", err)
	}
	idea.ID = id
	return &idea, nil
}

// AuthorFor labels ideas by who is posting.
func AuthorFor(s domain.ResolvedSession) string {
	if s.IsAgency() {
		return domain.AuthorAgency
	}
	return domain.AuthorClient
}
