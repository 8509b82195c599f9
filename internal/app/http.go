package app

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/whart-vanterra/vanterra-reporting-sub001/internal/audit"
	"github.com/whart-vanterra/vanterra-reporting-sub001/internal/auth"
	"github.com/whart-vanterra/vanterra-reporting-sub001/internal/auth/handler"
	"github.com/whart-vanterra/vanterra-reporting-sub001/internal/config"
	"github.com/whart-vanterra/vanterra-reporting-sub001/internal/identity"
	"github.com/whart-vanterra/vanterra-reporting-sub001/internal/identity/oidc"
	"github.com/whart-vanterra/vanterra-reporting-sub001/internal/identity/supabase"
	"github.com/whart-vanterra/vanterra-reporting-sub001/internal/middleware"
	"github.com/whart-vanterra/vanterra-reporting-sub001/internal/ratelimit"
	"github.com/whart-vanterra/vanterra-reporting-sub001/internal/session"
)

func setupHTTP(ctx context.Context, cfg *config.Config, log *zap.Logger) (*gin.Engine, func() error, error) {

	infra, err := setupInfra(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}

	// ----------------------------
	// Dependencies
	// ----------------------------

	provider, err := buildProvider(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}

	sessions := session.NewManager(provider, session.CookieOptions{
		Secure:   cfg.Cookie.Secure,
		SameSite: http.SameSiteLaxMode,
		Domain:   cfg.Cookie.Domain,
	})

	var limitStore ratelimit.Store = ratelimit.NewMemoryStore()
	if infra.Redis != nil {
		limitStore = ratelimit.NewRedisStore(infra.Redis.Client)
	}
	limiter := ratelimit.New(limitStore)
	callbackPolicy := ratelimit.Policy{
		Limit:  cfg.RateLimit.CallbackLimit,
		Window: cfg.RateLimit.CallbackWindow,
	}

	var recorder audit.Recorder = audit.Nop{}
	if infra.DB != nil {
		recorder = audit.NewPostgresRecorder(infra.DB)
	}

	authHandler := handler.NewHandler(
		provider,
		sessions,
		limiter,
		callbackPolicy,
		recorder,
		log,
		cfg.Auth.Domain,
	)

	gate := middleware.NewGate(
		sessions,
		cfg.Auth.Domain,
		cfg.Auth.RefreshThreshold,
		recorder,
		log,
	)

	// ----------------------------
	// Router
	// ----------------------------

	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLog(log))
	router.Use(middleware.GinGate(gate))

	// ----------------------------
	// Public Routes
	// ----------------------------

	authHandler.RegisterRoutes(router)

	router.GET("/auth/login", func(c *gin.Context) {
		c.Redirect(http.StatusFound, auth.LoginURL(cfg.Auth.Domain, auth.OriginalURL(c.Request), ""))
	})

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.Static("/static", "./static")

	// ----------------------------
	// Protected Routes
	// ----------------------------
	// The dashboard itself lives in the frontend deployment; these
	// placeholders demonstrate the gate and give monitors something to
	// hit end to end.

	for _, route := range []string{"/", "/dashboard", "/reports", "/insights", "/settings", "/admin"} {
		router.GET(route, whoami)
	}

	// ----------------------------
	// Cleanup
	// ----------------------------

	return router, infra.close, nil
}

func whoami(c *gin.Context) {
	userID, _ := middleware.UserIDFromContext(c.Request.Context())
	email, _ := middleware.UserEmailFromContext(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"user_id": userID,
		"email":   email,
		"path":    c.Request.URL.Path,
	})
}

func buildProvider(ctx context.Context, cfg *config.Config, log *zap.Logger) (identity.Provider, error) {
	var list []identity.Provider

	if cfg.Supabase.URL != "" {
		p, err := supabase.New(cfg.Supabase.URL, cfg.Supabase.AnonKey, cfg.Supabase.Timeout, log)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}

	if cfg.OIDC.Issuer != "" {
		p, err := oidc.New(
			ctx,
			cfg.OIDC.Issuer,
			cfg.OIDC.ClientID,
			cfg.OIDC.ClientSecret,
			cfg.OIDC.RedirectURL,
			log,
		)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}

	return identity.NewRegistry(list...).Get(cfg.Auth.Provider)
}
