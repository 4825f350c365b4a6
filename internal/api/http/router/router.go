package router

import (
	"net/http"

	"github.com/bizboard/auth-server/internal/api/http/handler"
	"github.com/bizboard/auth-server/internal/api/http/middleware"
	"github.com/bizboard/auth-server/internal/logger"
	"github.com/bizboard/auth-server/internal/metrics"
	"github.com/bizboard/auth-server/internal/model"
	"github.com/bizboard/auth-server/internal/service"
)

// Router assembles the HTTP surface: handlers plus the middleware chain.
type Router struct {
	auth           handler.AuthService
	refresher      service.Refresher
	resolver       *service.Resolver
	users          model.UserStore
	contextManager model.ContextManager
	secureCookies  bool
	loginPerSecond int
	loginBurst     int
	logger         *logger.Logger
}

func New(
	auth handler.AuthService,
	refresher service.Refresher,
	resolver *service.Resolver,
	users model.UserStore,
	contextManager model.ContextManager,
	secureCookies bool,
	loginPerSecond int,
	loginBurst int,
	logger *logger.Logger,
) *Router {
	return &Router{
		auth:           auth,
		refresher:      refresher,
		resolver:       resolver,
		users:          users,
		contextManager: contextManager,
		secureCookies:  secureCookies,
		loginPerSecond: loginPerSecond,
		loginBurst:     loginBurst,
		logger:         logger,
	}
}

// Register builds the handler tree. Authentication wraps only the routes
// that need a principal; login and refresh stay open by definition.
func (r *Router) Register() http.Handler {
	authHandler := handler.NewAuth(r.auth, r.refresher, r.users, r.contextManager, r.secureCookies, r.logger)

	logging := middleware.NewLogging(r.logger)
	authenticate := middleware.NewAuthenticate(r.resolver, r.contextManager, r.secureCookies, r.logger)
	loginLimit := middleware.NewRateLimit(r.loginPerSecond, r.loginBurst)

	mux := http.NewServeMux()
	mux.Handle("POST /auth/login", loginLimit.Handle(http.HandlerFunc(authHandler.Login)))
	mux.Handle("POST /auth/refresh", http.HandlerFunc(authHandler.Refresh))
	mux.Handle("POST /auth/logout", authenticate.Handle(http.HandlerFunc(authHandler.Logout)))
	mux.Handle("POST /auth/revoke-all", authenticate.Handle(http.HandlerFunc(authHandler.RevokeAll)))
	mux.Handle("GET /auth/me", authenticate.Handle(http.HandlerFunc(authHandler.Me)))
	mux.Handle("GET /healthz", http.HandlerFunc(authHandler.Health))
	mux.Handle("GET /metrics", metrics.Handler())

	return logging.Handle(metrics.Instrument(mux))
}
