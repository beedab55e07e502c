package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/boddenberg/agency-portal-bfa-go/internal/domain"

	"go.uber.org/zap"
)

func TestHandleServiceError(t *testing.T) {
	cause := errors.New("boom")

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid credentials", &domain.ErrIdentity{Code: domain.IdentityInvalidCredentials}, http.StatusUnauthorized},
		{"email in use", &domain.ErrIdentity{Code: domain.IdentityEmailInUse}, http.StatusConflict},
		{"too many requests", &domain.ErrIdentity{Code: domain.IdentityTooManyRequests}, http.StatusTooManyRequests},
		{"provider down", &domain.ErrIdentity{Code: domain.IdentityUnavailable, Err: cause}, http.StatusServiceUnavailable},
		{"unknown identity code", &domain.ErrIdentity{Code: "mystery"}, http.StatusBadGateway},
		{"profile resolution", &domain.ErrProfileResolution{UID: "u1", Err: cause}, http.StatusServiceUnavailable},
		{"sync fatal", &domain.ErrSyncFatal{TenantID: "acme", EntryID: "e1", Side: domain.SideMirror, Err: cause}, http.StatusBadGateway},
		{"wrapped not found", fmt.Errorf("get: %w", &domain.ErrNotFound{Resource: "entry", ID: "e1"}), http.StatusNotFound},
		{"circuit open", &domain.ErrCircuitOpen{Service: "store"}, http.StatusServiceUnavailable},
		{"timeout", &domain.ErrTimeout{Operation: "list"}, http.StatusGatewayTimeout},
		{"validation", &domain.ErrValidation{Field: "title", Message: "obrigatório"}, http.StatusBadRequest},
		{"forbidden", &domain.ErrForbidden{Action: "impersonate tenant"}, http.StatusForbidden},
		{"unauthorized", &domain.ErrUnauthorized{}, http.StatusUnauthorized},
		{"conflict", &domain.ErrConflict{Message: "in use"}, http.StatusConflict},
		{"external", &domain.ErrExternalService{Service: "supabase", Err: cause}, http.StatusBadGateway},
		{"unknown", cause, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handleServiceError(rec, tt.err, zap.NewNop())
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, rec.Code)
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		query  string
		want   string
		ok     bool
	}{
		{"header", "Bearer abc", "", "abc", true},
		{"lower-case scheme", "bearer abc", "", "abc", true},
		{"wrong scheme", "Basic abc", "", "", false},
		{"query fallback", "", "xyz", "xyz", true},
		{"header wins", "Bearer abc", "xyz", "abc", true},
		{"missing", "", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/v1/session/stream?access_token="+tt.query, nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			got, ok := bearerToken(r)
			if got != tt.want || ok != tt.ok {
				t.Errorf("expected (%q, %v), got (%q, %v)", tt.want, tt.ok, got, ok)
			}
		})
	}
}
