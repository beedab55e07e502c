package handler

import (
	"net/http"

	"github.com/boddenberg/agency-portal-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ============================================================
// Foco semanal & central de arquivos
// ============================================================

type textRequest struct {
	Text string `json:"text"`
}

func weeklyFocusHandler(ws *service.Workspace, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/tasks")
		defer span.End()

		_, tenantID, err := tenantScope(SessionFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		focus, err := ws.WeeklyFocus(ctx, tenantID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, focus)
	}
}

func addTaskHandler(ws *service.Workspace, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/tasks")
		defer span.End()

		_, tenantID, err := tenantScope(SessionFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		var req textRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		task, err := ws.AddTask(detached(ctx), tenantID, req.Text)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, task)
	}
}

func toggleTaskHandler(ws *service.Workspace, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/tasks/{taskId}/toggle")
		defer span.End()

		_, tenantID, err := tenantScope(SessionFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		task, err := ws.ToggleTask(detached(ctx), tenantID, chi.URLParam(r, "taskId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, task)
	}
}

func deleteTaskHandler(ws *service.Workspace, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/tasks/{taskId}")
		defer span.End()

		_, tenantID, err := tenantScope(SessionFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		if err := ws.DeleteTask(detached(ctx), tenantID, chi.URLParam(r, "taskId")); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func listIdeasHandler(ws *service.Workspace, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/ideas")
		defer span.End()

		_, tenantID, err := tenantScope(SessionFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		ideas, err := ws.Ideas(ctx, tenantID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, ideas)
	}
}

func submitIdeaHandler(ws *service.Workspace, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/ideas")
		defer span.End()

		snap, tenantID, err := tenantScope(SessionFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		var req textRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		idea, err := ws.SubmitIdea(detached(ctx), tenantID, req.Text, service.AuthorFor(snap))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, idea)
	}
}
