package handler

import (
	"net/http"
	"time"

	"github.com/boddenberg/agency-portal-bfa-go/internal/domain"
	"github.com/boddenberg/agency-portal-bfa-go/internal/service"

	"go.uber.org/zap"
)

// ============================================================
// Autenticação
// ============================================================

type signUpRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type tokenResponse struct {
	AccessToken string                 `json:"access_token"`
	TokenType   string                 `json:"token_type"`
	ExpiresAt   time.Time              `json:"expires_at"`
	Session     domain.ResolvedSession `json:"session"`
}

func issueToken(w http.ResponseWriter, status int, sessions *service.SessionManager, sess *service.Session, logger *zap.Logger) {
	token, exp, err := sessions.Issue(sess)
	if err != nil {
		sessions.Close(sess.ID)
		handleServiceError(w, err, logger)
		return
	}
	writeJSON(w, status, tokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   exp,
		Session:     sess.Controller.Snapshot(),
	})
}

func signUpHandler(sessions *service.SessionManager, accounts *service.AccountService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/auth/signup")
		defer span.End()

		var req signUpRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		sess, err := accounts.SignUp(detached(ctx), req.Email, req.Password, req.ConfirmPassword)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		issueToken(w, http.StatusCreated, sessions, sess, logger)
	}
}

func loginHandler(sessions *service.SessionManager, accounts *service.AccountService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/auth/login")
		defer span.End()

		var req loginRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		sess, err := accounts.SignIn(ctx, domain.Credentials{Email: req.Email, Password: req.Password})
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		issueToken(w, http.StatusOK, sessions, sess, logger)
	}
}

func logoutHandler(accounts *service.AccountService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/auth/logout")
		defer span.End()

		if err := accounts.SignOut(detached(ctx), SessionFromContext(ctx)); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func passwordResetHandler(accounts *service.AccountService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/auth/password/reset")
		defer span.End()

		var req emailRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if err := accounts.SendPasswordReset(ctx, req.Email); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"message": "E-mail de redefinição enviado."})
	}
}

func resendVerificationHandler(accounts *service.AccountService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/auth/verification/resend")
		defer span.End()

		if err := accounts.ResendVerification(ctx, SessionFromContext(ctx)); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"message": "E-mail de verificação reenviado."})
	}
}

func recheckHandler(accounts *service.AccountService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/auth/verification/recheck")
		defer span.End()

		writeJSON(w, http.StatusOK, accounts.Recheck(ctx, SessionFromContext(ctx)))
	}
}
