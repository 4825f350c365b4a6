package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/bizboard/auth-server/internal/api/http/middleware"
	"github.com/bizboard/auth-server/internal/logger"
	"github.com/bizboard/auth-server/internal/metrics"
	"github.com/bizboard/auth-server/internal/model"
	"github.com/bizboard/auth-server/internal/service"
)

// AuthService is the subset of the auth service the handler needs.
type AuthService interface {
	Login(ctx context.Context, creds model.Credentials, deviceInfo map[string]string) (service.LoginResult, error)
	Logout(ctx context.Context, sessionID string)
	RevokeAll(ctx context.Context, userID uuid.UUID) (int, error)
}

// Auth exposes the session lifecycle over HTTP.
type Auth struct {
	auth           AuthService
	refresher      service.Refresher
	users          model.UserStore
	contextManager model.ContextManager
	secureCookies  bool
	logger         *logger.Logger
}

func NewAuth(
	auth AuthService,
	refresher service.Refresher,
	users model.UserStore,
	contextManager model.ContextManager,
	secureCookies bool,
	logger *logger.Logger,
) *Auth {
	return &Auth{
		auth:           auth,
		refresher:      refresher,
		users:          users,
		contextManager: contextManager,
		secureCookies:  secureCookies,
		logger:         logger,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
}

type loginResponse struct {
	AccessToken string       `json:"access_token"`
	SessionID   string       `json:"session_id"`
	TokenType   string       `json:"token_type"`
	ExpiresIn   int          `json:"expires_in"`
	User        userResponse `json:"user"`
}

// Login handles POST /auth/login.
func (h *Auth) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	result, err := h.auth.Login(r.Context(), model.Credentials{
		Email:    req.Email,
		Password: req.Password,
	}, map[string]string{
		"ip_address": middleware.ClientIP(r),
		"user_agent": r.UserAgent(),
	})
	if err != nil {
		if errors.Is(err, model.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		h.logger.Error("login failed", "error", err)
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	h.setSessionCookies(w, result.AccessToken, result.SessionID, result.ExpiresIn)
	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: result.AccessToken,
		SessionID:   result.SessionID,
		TokenType:   "Bearer",
		ExpiresIn:   result.ExpiresIn,
		User: userResponse{
			ID:          result.User.ID,
			Email:       result.User.Email,
			DisplayName: result.User.DisplayName,
			Role:        result.User.Role,
		},
	})
}

type refreshRequest struct {
	SessionID string `json:"session_id"`
}

type refreshResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// Refresh handles POST /auth/refresh. The session ID comes from the body or
// falls back to the session cookie.
func (h *Auth) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if req.SessionID == "" {
		if c, err := r.Cookie("session_id"); err == nil {
			req.SessionID = c.Value
		}
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	result, err := h.refresher.Refresh(r.Context(), req.SessionID)
	if err != nil {
		h.refreshFailure(w, req.SessionID, err)
		return
	}

	metrics.ObserveRefresh("success")
	h.setSessionCookies(w, result.AccessToken, req.SessionID, result.ExpiresIn)
	writeJSON(w, http.StatusOK, refreshResponse{
		AccessToken: result.AccessToken,
		TokenType:   "Bearer",
		ExpiresIn:   result.ExpiresIn,
	})
}

func (h *Auth) refreshFailure(w http.ResponseWriter, sessionID string, err error) {
	switch {
	case errors.Is(err, model.ErrSessionNotFound):
		metrics.ObserveRefresh("not_found")
		writeError(w, http.StatusUnauthorized, "session not found")
	case errors.Is(err, model.ErrSessionExpired):
		metrics.ObserveRefresh("expired")
		writeError(w, http.StatusUnauthorized, "session expired")
	case errors.Is(err, model.ErrRefreshRejected):
		metrics.ObserveRefresh("rejected")
		writeError(w, http.StatusUnauthorized, "refresh rejected")
	case errors.Is(err, model.ErrRefreshUnavailable):
		metrics.ObserveRefresh("unavailable")
		writeError(w, http.StatusServiceUnavailable, "refresh temporarily unavailable")
	default:
		metrics.ObserveRefresh("error")
		h.logger.Error("refresh failed", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "refresh failed")
	}
}

// Logout handles POST /auth/logout. It always reports success.
func (h *Auth) Logout(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.contextManager.GetPrincipal(r.Context())
	if ok {
		h.auth.Logout(r.Context(), principal.SessionID)
	}

	h.clearSessionCookies(w)
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// RevokeAll handles POST /auth/revoke-all.
func (h *Auth) RevokeAll(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.contextManager.GetPrincipal(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	count, err := h.auth.RevokeAll(r.Context(), principal.UserID)
	if err != nil {
		h.logger.Error("revoke all failed", "user_id", principal.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "revocation failed")
		return
	}

	h.clearSessionCookies(w)
	writeJSON(w, http.StatusOK, map[string]int{"revoked": count})
}

// Me handles GET /auth/me.
func (h *Auth) Me(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.contextManager.GetPrincipal(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	user, err := h.users.GetByID(r.Context(), principal.UserID)
	if err != nil {
		h.logger.Error("failed to load user", "user_id", principal.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user": userResponse{
			ID:          user.ID,
			Email:       user.Email,
			DisplayName: user.DisplayName,
			Role:        user.Role,
		},
		"session_id": principal.SessionID,
		"roles":      principal.Roles,
	})
}

// Health handles GET /healthz.
func (h *Auth) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Auth) setSessionCookies(w http.ResponseWriter, accessToken, sessionID string, expiresIn int) {
	http.SetCookie(w, &http.Cookie{
		Name:     "access_token",
		Value:    accessToken,
		Path:     "/",
		MaxAge:   expiresIn,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     "session_id",
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Auth) clearSessionCookies(w http.ResponseWriter) {
	for _, name := range []string{"access_token", "session_id"} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   h.secureCookies,
			SameSite: http.SameSiteLaxMode,
		})
	}
}
