package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/bizboard/auth-server/internal/logger"
	"github.com/bizboard/auth-server/internal/metrics"
	"github.com/bizboard/auth-server/internal/model"
	"github.com/bizboard/auth-server/internal/service"
)

// Resolver resolves presented credentials into an identity.
type Resolver interface {
	Resolve(ctx context.Context, sources ...service.IdentitySource) service.Identity
}

// Authenticate resolves request credentials and attaches the principal to
// the request context. An access credential that expired mid-session is
// renewed transparently: the caller receives the replacement in both the
// cookie and the X-New-Access-Token header.
type Authenticate struct {
	resolver       Resolver
	contextManager model.ContextManager
	secureCookies  bool
	logger         *logger.Logger
}

func NewAuthenticate(resolver Resolver, contextManager model.ContextManager, secureCookies bool, logger *logger.Logger) *Authenticate {
	return &Authenticate{
		resolver:       resolver,
		contextManager: contextManager,
		secureCookies:  secureCookies,
		logger:         logger,
	}
}

func (a *Authenticate) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := a.resolver.Resolve(r.Context(), credentialSources(r)...)
		if !identity.Authenticated {
			a.reject(w, r, identity.Reason)
			return
		}

		if identity.NewAccessToken != "" {
			metrics.ObserveRefresh("renewed")
			w.Header().Set("X-New-Access-Token", identity.NewAccessToken)
			http.SetCookie(w, &http.Cookie{
				Name:     "access_token",
				Value:    identity.NewAccessToken,
				Path:     "/",
				MaxAge:   identity.ExpiresIn,
				HttpOnly: true,
				Secure:   a.secureCookies,
				SameSite: http.SameSiteLaxMode,
			})
		}

		ctx := a.contextManager.SetPrincipal(r.Context(), model.Principal{
			UserID:    identity.UserID,
			SessionID: identity.SessionID,
			Roles:     identity.Roles,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// credentialSources lists every channel a caller can present credentials
// through, most specific first. All of them resolve identically.
func credentialSources(r *http.Request) []service.IdentitySource {
	var sources []service.IdentitySource

	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		sources = append(sources, service.StructuredSource{
			AccessToken: strings.TrimPrefix(auth, "Bearer "),
			SessionID:   r.Header.Get("X-Session-ID"),
		})
	}

	var accessCookie, sessionCookie string
	if c, err := r.Cookie("access_token"); err == nil {
		accessCookie = c.Value
	}
	if c, err := r.Cookie("session_id"); err == nil {
		sessionCookie = c.Value
	}
	sources = append(sources, service.StructuredSource{
		AccessToken: accessCookie,
		SessionID:   sessionCookie,
	})

	// Clients assembling the Cookie header by hand are still served even
	// when the result would not survive a cookie jar round-trip.
	if raw := r.Header.Get("Cookie"); raw != "" {
		sources = append(sources, service.RawSerializedSource{Raw: raw})
	}

	return sources
}

func (a *Authenticate) reject(w http.ResponseWriter, r *http.Request, reason string) {
	switch reason {
	case service.ReasonSessionExpired, service.ReasonRefreshRejected, service.ReasonRefreshUnavailable:
		metrics.ObserveRefresh(reason)
	}
	a.logger.Info("rejected request",
		"path", r.URL.Path,
		"reason", reason)

	status := http.StatusUnauthorized
	if reason == service.ReasonRefreshUnavailable {
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": reason})
}
