package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	httpctx "github.com/bizboard/auth-server/internal/api/http/context"
	"github.com/bizboard/auth-server/internal/api/http/router"
	httpServer "github.com/bizboard/auth-server/internal/api/http/server"
	rediscache "github.com/bizboard/auth-server/internal/cache/redis"
	"github.com/bizboard/auth-server/internal/config"
	"github.com/bizboard/auth-server/internal/identity"
	"github.com/bizboard/auth-server/internal/logger"
	"github.com/bizboard/auth-server/internal/metrics"
	"github.com/bizboard/auth-server/internal/model"
	"github.com/bizboard/auth-server/internal/repository/postgres"
	"github.com/bizboard/auth-server/internal/secret"
	"github.com/bizboard/auth-server/internal/server"
	"github.com/bizboard/auth-server/internal/service"
	"github.com/bizboard/auth-server/internal/token"
)

var (
	buildVersion = "N/A" // set by ldflags
	buildDate    = "N/A" // set by ldflags
	buildCommit  = "N/A" // set by ldflags
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, os.Interrupt)
	defer stop()

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	logger := logger.New(cfg.LogLevel)

	db, err := postgres.NewConnection(ctx, cfg.Database.DSN)
	if err != nil {
		logger.Fatal("failed to initialize storage", "error", err)
	}
	defer db.Close()

	redisClient := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		// The cache tier is best-effort; sessions still work off the store.
		logger.Error("cache tier unreachable at startup", "error", err)
	}
	defer redisClient.Close()

	userRepo := postgres.NewUserRepository(db)
	sessionRepo := postgres.NewSessionRepository(db)
	sessionCache := rediscache.NewSessionCache(redisClient, cfg.Redis.OpTimeout)
	sessionLock := rediscache.NewLock(redisClient)
	failureCounter := rediscache.NewFailureCounter(redisClient)

	codec, err := secret.NewCodec(cfg.Crypto.EncryptionKey, cfg.Crypto.Salt, cfg.Crypto.Iterations)
	if err != nil {
		logger.Fatal("failed to initialize secret codec", "error", err)
	}

	tokenManager, err := token.NewJWT(cfg.JWT.PrivateKeyPEM, cfg.JWT.PublicKeyPEM, cfg.JWT.Issuer, cfg.JWT.Audience)
	if err != nil {
		logger.Fatal("failed to initialize token manager", "error", err)
	}

	provider := identity.NewProvider(
		cfg.Identity.BaseURL,
		cfg.Identity.ClientID,
		cfg.Identity.ClientSecret,
		cfg.Identity.Timeout,
		logger,
	)

	policy := service.NewPolicy(cfg.Session.Policy, cfg.Session.MaxSessions, sessionRepo, sessionCache, logger)
	authService := service.NewAuth(service.AuthConfig{
		IdentityProvider: provider,
		Users:            userRepo,
		Sessions:         sessionRepo,
		Cache:            sessionCache,
		Codec:            codec,
		Tokens:           tokenManager,
		Policy:           policy,
		RefreshTTL:       cfg.Session.RefreshTTL,
		AccessTTL:        cfg.JWT.AccessTTL,
		Logger:           logger,
	})
	refreshService := service.NewRefresh(service.RefreshConfig{
		Sessions:             sessionRepo,
		Cache:                sessionCache,
		Users:                userRepo,
		Codec:                codec,
		IdentityProvider:     provider,
		Tokens:               tokenManager,
		Locker:               sessionLock,
		Failures:             failureCounter,
		AccessTTL:            cfg.JWT.AccessTTL,
		RefreshTTL:           cfg.Session.RefreshTTL,
		RenewThreshold:       cfg.Session.RenewThreshold,
		LockTTL:              cfg.Session.LockTTL,
		MaxTransientFailures: cfg.Session.MaxTransientFailures,
		Logger:               logger,
	})
	resolver := service.NewResolver(tokenManager, sessionRepo, refreshService, logger)
	ctxMgr := httpctx.NewManager()

	metrics.Init()

	r := router.New(
		authService,
		refreshService,
		resolver,
		userRepo,
		ctxMgr,
		cfg.HTTP.EnableHTTPS,
		cfg.HTTP.LoginRatePerSecond,
		cfg.HTTP.LoginRateBurst,
		logger,
	)
	srv := httpServer.NewHTTPServer(r.Register(), fmt.Sprintf(":%s", cfg.HTTP.Port))

	var sl model.SecurityLayer
	if cfg.HTTP.EnableHTTPS {
		sl = server.NewTLSListener(cfg.HTTP.CertFileName, cfg.HTTP.PrivateKeyFileName)
	} else {
		sl = server.NewPlainListener()
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func(s model.Server) {
		defer wg.Done()
		logger.Info("Starting server on", "address", s.Address())
		err := s.Start(sl)
		if err != nil {
			logger.Error("failed to start server", "error", err)
		}
	}(srv)

	logAppVersion()

	<-ctx.Done()
	logger.Info("received interruption signal, shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("error during server shutdown", "error", err, "address", srv.Address())
	}

	wg.Wait()
	logger.Info("shutdown complete")
}

func logAppVersion() {
	tmpl := `
Build version: %s
Build date: %s
Build commit: %s
`

	fmt.Printf(tmpl, buildVersion, buildDate, buildCommit)
}
