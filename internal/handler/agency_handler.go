package handler

import (
	"net/http"

	"github.com/boddenberg/agency-portal-bfa-go/internal/domain"
	"github.com/boddenberg/agency-portal-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Agência
// ============================================================

type assignTenantRequest struct {
	TenantID *string `json:"tenant_id"`
}

type createTenantRequest struct {
	TenantID string `json:"tenant_id"`
}

type changeRoleRequest struct {
	Role string `json:"role"`
}

func snapshotOf(r *http.Request) domain.ResolvedSession {
	return SessionFromContext(r.Context()).Controller.Snapshot()
}

func directoryHandler(dir *service.AgencyDirectory, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/agency/directory")
		defer span.End()

		d, err := dir.Load(ctx, snapshotOf(r))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}

func assignTenantHandler(dir *service.AgencyDirectory, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/agency/profiles/{uid}/tenant")
		defer span.End()

		uid := chi.URLParam(r, "uid")
		span.SetAttributes(attribute.String("profile.uid", uid))

		var req assignTenantRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		p, err := dir.AssignTenant(detached(ctx), snapshotOf(r), uid, req.TenantID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func createTenantForHandler(dir *service.AgencyDirectory, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/agency/profiles/{uid}/tenant")
		defer span.End()

		var req createTenantRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		p, err := dir.CreateTenantFor(detached(ctx), snapshotOf(r), chi.URLParam(r, "uid"), req.TenantID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, p)
	}
}

func changeRoleHandler(dir *service.AgencyDirectory, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/agency/profiles/{uid}/role")
		defer span.End()

		var req changeRoleRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		p, err := dir.ChangeRole(detached(ctx), snapshotOf(r), chi.URLParam(r, "uid"), domain.Role(req.Role))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func deleteProfileHandler(dir *service.AgencyDirectory, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/agency/profiles/{uid}")
		defer span.End()

		if err := dir.DeleteProfile(detached(ctx), snapshotOf(r), chi.URLParam(r, "uid")); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func deleteTenantHandler(dir *service.AgencyDirectory, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/agency/tenants/{tenantId}")
		defer span.End()

		if err := dir.DeleteTenant(detached(ctx), snapshotOf(r), chi.URLParam(r, "tenantId")); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func agencyPasswordResetHandler(dir *service.AgencyDirectory, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/agency/password-reset")
		defer span.End()

		var req emailRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if err := dir.SendPasswordReset(ctx, snapshotOf(r), req.Email); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"message": "E-mail de redefinição enviado."})
	}
}
