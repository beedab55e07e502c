package handler

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/boddenberg/agency-portal-bfa-go/internal/domain"
	"github.com/boddenberg/agency-portal-bfa-go/internal/export"
	"github.com/boddenberg/agency-portal-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Calendário
// ============================================================

type entryRequest struct {
	Title        string  `json:"title"`
	ScheduledAt  string  `json:"scheduled_at"`
	Kind         string  `json:"kind"`
	Status       string  `json:"status"`
	Owner        *string `json:"owner"`
	Channel      string  `json:"channel"`
	ReferenceURL string  `json:"reference_url"`
	Body         string  `json:"body"`
	Description  string  `json:"description"`
}

type entryPatchRequest struct {
	Title        *string `json:"title"`
	ScheduledAt  *string `json:"scheduled_at"`
	Kind         *string `json:"kind"`
	Status       *string `json:"status"`
	Owner        *string `json:"owner"`
	ClearOwner   bool    `json:"clear_owner"`
	Channel      *string `json:"channel"`
	ReferenceURL *string `json:"reference_url"`
	Body         *string `json:"body"`
	Description  *string `json:"description"`
}

func (req entryRequest) input(loc *time.Location) (domain.EntryInput, error) {
	in := domain.EntryInput{
		Title:        req.Title,
		Kind:         domain.EntryKind(req.Kind),
		Status:       domain.EntryStatus(req.Status),
		Owner:        req.Owner,
		Channel:      req.Channel,
		ReferenceURL: req.ReferenceURL,
		Body:         req.Body,
		Description:  req.Description,
	}
	if req.ScheduledAt != "" {
		at, err := service.ParseScheduledAt(req.ScheduledAt, loc)
		if err != nil {
			return in, err
		}
		in.ScheduledAt = at
	}
	return in, nil
}

func (req entryPatchRequest) patch(loc *time.Location) (domain.EntryPatch, error) {
	p := domain.EntryPatch{
		Title:        req.Title,
		Owner:        req.Owner,
		ClearOwner:   req.ClearOwner,
		Channel:      req.Channel,
		ReferenceURL: req.ReferenceURL,
		Body:         req.Body,
		Description:  req.Description,
	}
	if req.Kind != nil {
		kind := domain.EntryKind(*req.Kind)
		p.Kind = &kind
	}
	if req.Status != nil {
		status := domain.EntryStatus(*req.Status)
		p.Status = &status
	}
	if req.ScheduledAt != nil {
		at, err := service.ParseScheduledAt(*req.ScheduledAt, loc)
		if err != nil {
			return p, err
		}
		p.ScheduledAt = &at
	}
	return p, nil
}

func listEntriesHandler(cal *service.CalendarSync, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/calendar/entries")
		defer span.End()

		_, tenantID, err := tenantScope(SessionFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.String("tenant", tenantID))

		entries, err := cal.List(ctx, tenantID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

func createEntryHandler(cal *service.CalendarSync, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/calendar/entries")
		defer span.End()

		_, tenantID, err := tenantScope(SessionFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		var req entryRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		in, err := req.input(cal.Location())
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		entry, err := cal.Create(detached(ctx), tenantID, in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, entry)
	}
}

func updateEntryHandler(cal *service.CalendarSync, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PATCH /v1/calendar/entries/{entryId}")
		defer span.End()

		_, tenantID, err := tenantScope(SessionFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		entryID := chi.URLParam(r, "entryId")

		var req entryPatchRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		patch, err := req.patch(cal.Location())
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		entry, err := cal.Update(detached(ctx), tenantID, entryID, patch)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, entry)
	}
}

func deleteEntryHandler(cal *service.CalendarSync, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/calendar/entries/{entryId}")
		defer span.End()

		_, tenantID, err := tenantScope(SessionFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		if err := cal.Delete(detached(ctx), tenantID, chi.URLParam(r, "entryId")); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func toggleEntryHandler(cal *service.CalendarSync, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/calendar/entries/{entryId}/toggle")
		defer span.End()

		_, tenantID, err := tenantScope(SessionFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		entry, err := cal.ToggleCompleted(detached(ctx), tenantID, chi.URLParam(r, "entryId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, entry)
	}
}

func listMirrorHandler(cal *service.CalendarSync, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/calendar/mirror")
		defer span.End()

		_, tenantID, err := tenantScope(SessionFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		records, err := cal.ListMirror(ctx, tenantID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, records)
	}
}

func exportCalendarHandler(cal *service.CalendarSync, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/calendar/export.ics")
		defer span.End()

		_, tenantID, err := tenantScope(SessionFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		entries, err := cal.List(ctx, tenantID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		var buf bytes.Buffer
		if err := export.WriteICS(&buf, "Calendário "+tenantID, cal.Location(), entries); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", tenantID+".ics"))
		w.WriteHeader(http.StatusOK)
		w.Write(buf.Bytes())
	}
}
