package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/boddenberg/agency-portal-bfa-go/internal/domain"
	"github.com/boddenberg/agency-portal-bfa-go/internal/service"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// ============================================================
// Sessão & navegação
// ============================================================

const streamWriteTimeout = 5 * time.Second

type impersonateRequest struct {
	TenantID string `json:"tenant_id"`
}

func sessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, SessionFromContext(r.Context()).Controller.Snapshot())
	}
}

func viewHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := SessionFromContext(r.Context()).Controller.Snapshot()
		writeJSON(w, http.StatusOK, service.SelectScreen(snap, domain.ParseView(r.URL.Query().Get("tab"))))
	}
}

func impersonateHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/session/impersonation")
		defer span.End()

		var req impersonateRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		snap, err := SessionFromContext(ctx).Controller.ViewTenant(ctx, req.TenantID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

func backToDashboardHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, SessionFromContext(r.Context()).Controller.BackToDashboard())
	}
}

// sessionStreamHandler pushes every snapshot change of the session over a
// websocket, starting with the current one. The stream ends when the
// session signs out or is closed.
func sessionStreamHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := SessionFromContext(r.Context())

		// The server WriteTimeout would otherwise cut long-lived streams.
		_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			logger.Warn("session stream: handshake failed", zap.String("session", sess.ID), zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusInternalError, "")

		updates := make(chan domain.ResolvedSession, 16)
		stop := sess.Controller.Watch(func(s domain.ResolvedSession) {
			select {
			case updates <- s:
			default:
				logger.Warn("session stream: slow consumer, update dropped", zap.String("session", sess.ID))
			}
		})
		defer stop()

		ctx := conn.CloseRead(r.Context())
		send := func(s domain.ResolvedSession) error {
			wctx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
			defer cancel()
			return wsjson.Write(wctx, conn, s)
		}

		if err := send(sess.Controller.Snapshot()); err != nil {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-sess.Controller.Done():
				for pending := len(updates); pending > 0; pending-- {
					if err := send(<-updates); err != nil {
						return
					}
				}
				conn.Close(websocket.StatusGoingAway, "session closed")
				return
			case s := <-updates:
				if err := send(s); err != nil {
					logger.Debug("session stream: write failed", zap.String("session", sess.ID), zap.Error(err))
					return
				}
				if s.State == domain.StateUnauthenticated {
					conn.Close(websocket.StatusNormalClosure, "signed out")
					return
				}
			}
		}
	}
}
