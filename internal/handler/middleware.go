package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/boddenberg/agency-portal-bfa-go/internal/domain"
	"github.com/boddenberg/agency-portal-bfa-go/internal/infra/observability"
	"github.com/boddenberg/agency-portal-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type contextKey string

const (
	sessionKey     contextKey = "session"
	requestInfoKey contextKey = "requestInfo"
)

// requestInfo is filled in by later middleware so the request logger,
// which runs outermost, can report who made the call.
type requestInfo struct {
	sessionID string
	uid       string
}

func requestInfoMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), requestInfoKey, &requestInfo{})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// sessionLogFields adds the session to the request log line.
func sessionLogFields(r *http.Request) []zap.Field {
	info, _ := r.Context().Value(requestInfoKey).(*requestInfo)
	if info == nil || info.sessionID == "" {
		return nil
	}
	return []zap.Field{zap.String("session_id", info.sessionID), zap.String("uid", info.uid)}
}

// metricsMiddleware records request duration by route pattern.
func metricsMiddleware(metrics *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)

			pattern := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				pattern = rctx.RoutePattern()
			}
			metrics.RecordRequestDuration(r.Method+" "+pattern, time.Since(start))
		})
	}
}

// bearerToken reads the Authorization header. Browsers cannot set headers
// on a websocket handshake, so the access_token query parameter is
// accepted as well.
func bearerToken(r *http.Request) (string, bool) {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			return "", false
		}
		return parts[1], true
	}
	if token := r.URL.Query().Get("access_token"); token != "" {
		return token, true
	}
	return "", false
}

// SessionMiddleware validates the session token and injects the live
// session into the request context.
func SessionMiddleware(sessions *service.SessionManager, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := bearerToken(r)
			if !ok {
				logger.Warn("auth: missing or malformed token",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				writeError(w, http.StatusUnauthorized, "Token de autenticação não fornecido")
				return
			}

			sess, err := sessions.Lookup(tokenString)
			if err != nil {
				logger.Warn("auth: invalid or expired token",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
					zap.Error(err),
				)
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}

			if info, _ := r.Context().Value(requestInfoKey).(*requestInfo); info != nil {
				info.sessionID = sess.ID
				info.uid = sess.Controller.Snapshot().UID
			}
			ctx := context.WithValue(r.Context(), sessionKey, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionFromContext returns the authenticated session, or nil.
func SessionFromContext(ctx context.Context) *service.Session {
	sess, _ := ctx.Value(sessionKey).(*service.Session)
	return sess
}

// tenantScope returns the snapshot and the tenant every tenant-scoped
// read or write of the session must use.
func tenantScope(sess *service.Session) (domain.ResolvedSession, string, error) {
	snap := sess.Controller.Snapshot()
	if snap.State != domain.StateResolved {
		return snap, "", &domain.ErrForbidden{Action: "access tenant data before the session is resolved"}
	}
	id := snap.ActiveTenantID()
	if id == nil || *id == "" {
		return snap, "", &domain.ErrForbidden{Action: "access tenant data without an assigned tenant"}
	}
	return snap, *id, nil
}
