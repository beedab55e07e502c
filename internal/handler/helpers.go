package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/boddenberg/agency-portal-bfa-go/internal/domain"

	"go.uber.org/zap"
)

// ============================================================
// Shared helper functions
// ============================================================

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return &domain.ErrValidation{Field: "body", Message: "invalid request body"}
	}
	return nil
}

// detached keeps a write running after the client goes away. The span
// and request values of ctx are preserved.
func detached(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

var identityStatus = map[string]int{
	domain.IdentityInvalidCredentials: http.StatusUnauthorized,
	domain.IdentityEmailInUse:         http.StatusConflict,
	domain.IdentityWeakPassword:       http.StatusBadRequest,
	domain.IdentityInvalidEmail:       http.StatusBadRequest,
	domain.IdentityUserNotFound:       http.StatusNotFound,
	domain.IdentityTooManyRequests:    http.StatusTooManyRequests,
	domain.IdentityUnavailable:        http.StatusServiceUnavailable,
}

// handleServiceError maps domain errors to HTTP responses.
func handleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var identity *domain.ErrIdentity
	var notFound *domain.ErrNotFound
	var circuitOpen *domain.ErrCircuitOpen
	var timeout *domain.ErrTimeout
	var validation *domain.ErrValidation
	var forbidden *domain.ErrForbidden
	var unauthorized *domain.ErrUnauthorized
	var conflict *domain.ErrConflict
	var resolution *domain.ErrProfileResolution
	var syncFatal *domain.ErrSyncFatal
	var external *domain.ErrExternalService

	switch {
	case errors.As(err, &identity):
		status, ok := identityStatus[identity.Code]
		if !ok {
			status = http.StatusBadGateway
		}
		if identity.Retryable() {
			logger.Error("identity provider unavailable", zap.Error(err))
		} else {
			logger.Debug("identity rejection", zap.String("code", identity.Code))
		}
		writeJSON(w, status, errorResponse{Error: identity.UserMessage(), Code: identity.Code})
	case errors.As(err, &resolution):
		logger.Error("profile resolution failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "Não foi possível carregar seus dados.")
	case errors.As(err, &syncFatal):
		logger.Error("calendar sync failed", zap.Error(err))
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error(), Code: "sync_" + syncFatal.Side})
	case errors.As(err, &notFound):
		logger.Debug("not found", zap.String("error", err.Error()))
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &circuitOpen):
		logger.Error("circuit breaker open", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &timeout):
		logger.Error("request timeout", zap.Error(err))
		writeError(w, http.StatusGatewayTimeout, err.Error())
	case errors.As(err, &validation):
		logger.Debug("validation error", zap.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &forbidden):
		logger.Warn("forbidden access", zap.String("error", err.Error()))
		writeError(w, http.StatusForbidden, err.Error())
	case errors.As(err, &unauthorized):
		logger.Warn("unauthorized", zap.String("error", err.Error()))
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.As(err, &conflict):
		logger.Debug("conflict", zap.String("error", err.Error()))
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &external):
		logger.Error("external service error", zap.Error(err))
		writeError(w, http.StatusBadGateway, "external service unavailable")
	default:
		logger.Error("unhandled error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
