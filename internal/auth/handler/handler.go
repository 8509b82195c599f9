package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/whart-vanterra/vanterra-reporting-sub001/internal/audit"
	"github.com/whart-vanterra/vanterra-reporting-sub001/internal/auth"
	"github.com/whart-vanterra/vanterra-reporting-sub001/internal/identity"
	"github.com/whart-vanterra/vanterra-reporting-sub001/internal/logger"
	"github.com/whart-vanterra/vanterra-reporting-sub001/internal/ratelimit"
	"github.com/whart-vanterra/vanterra-reporting-sub001/internal/session"
)

// Handler owns the token exchange endpoint: it converts an authorization
// code or a URL-carried token pair into a provider-managed session, then
// redirects to a validated internal target.
type Handler struct {
	provider   identity.Provider
	sessions   *session.Manager
	limiter    *ratelimit.Limiter
	policy     ratelimit.Policy
	recorder   audit.Recorder
	log        *zap.Logger
	authDomain string
}

func NewHandler(
	provider identity.Provider,
	sessions *session.Manager,
	limiter *ratelimit.Limiter,
	policy ratelimit.Policy,
	recorder audit.Recorder,
	log *zap.Logger,
	authDomain string,
) *Handler {
	if recorder == nil {
		recorder = audit.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		provider:   provider,
		sessions:   sessions,
		limiter:    limiter,
		policy:     policy,
		recorder:   recorder,
		log:        log,
		authDomain: authDomain,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/auth/callback", h.Callback)
	r.POST("/auth/logout", h.Logout)
}

// Callback is the SSO hand-off endpoint. It accepts either a single-use
// authorization code or an access/refresh pair passed via URL. Tokens
// travel through the URL only because cross-subdomain cookie sharing is
// unreliable; the first thing this handler does is convert them into a
// provider-managed session and redirect to a clean URL.
func (h *Handler) Callback(c *gin.Context) {
	// The request URL may have carried credentials; it must not be
	// retained by shared caches or history beyond the initial navigation.
	setNoCache(c)

	ctx := c.Request.Context()
	clientID := clientIdentifier(c)

	decision, err := h.limiter.Check(ctx, clientID, h.policy)
	if err != nil {
		h.log.Warn("rate limit store unavailable, failing open", zap.Error(err))
	}
	if !decision.Allowed {
		h.record(c, audit.KindRateLimited, "", "auth callback over limit")
		writeRateLimited(c, decision)
		return
	}

	code := c.Query("code")
	accessToken := c.Query("access_token")
	refreshToken := c.Query("refresh_token")

	var sess *identity.Session
	switch {
	case code != "":
		sess, err = h.provider.ExchangeCode(ctx, code)
	case accessToken != "" && refreshToken != "":
		sess, err = h.provider.InstallSession(ctx, accessToken, refreshToken)
	default:
		// No credentials at all is a normal unauthenticated visit.
		c.Redirect(http.StatusFound, auth.LoginURL(h.authDomain, auth.OriginalURL(c.Request), ""))
		return
	}

	if err != nil {
		logger.WithRequestID(ctx, h.log).Warn("token exchange failed",
			zap.String("provider", h.provider.Name()),
			zap.Error(err),
		)
		h.record(c, audit.KindAuthFailed, "", err.Error())
		c.Redirect(http.StatusFound, auth.LoginURL(h.authDomain, "", auth.MarkerAuthFailed))
		return
	}

	h.sessions.Save(c.Writer, *sess)

	target := auth.ValidateRedirect(c.Query("redirect"))
	h.record(c, audit.KindLogin, sess.UserID, "")

	logger.WithRequestID(ctx, h.log).Info("session established",
		zap.String("provider", h.provider.Name()),
		zap.String("user_id", sess.UserID),
		zap.String("redirect", target),
	)

	c.Redirect(http.StatusFound, target)
}

// Logout invalidates the session at the authority (best effort), clears
// the cookies and returns 204. Idempotent.
func (h *Handler) Logout(c *gin.Context) {
	ctx := c.Request.Context()

	if sess, ok := h.sessions.Load(c.Request); ok {
		h.sessions.SignOut(ctx, c.Writer, sess)
		h.record(c, audit.KindLogout, sess.UserID, "")
	} else {
		h.sessions.Clear(c.Writer)
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) record(c *gin.Context, kind, subject, detail string) {
	err := h.recorder.Record(c.Request.Context(), audit.Event{
		Kind:     kind,
		Subject:  subject,
		ClientIP: c.ClientIP(),
		Detail:   detail,
		At:       time.Now(),
	})
	if err != nil {
		h.log.Warn("audit record failed", zap.String("kind", kind), zap.Error(err))
	}
}

func clientIdentifier(c *gin.Context) string {
	if ip := c.ClientIP(); ip != "" {
		return ip
	}
	return ratelimit.SharedIdentifier
}

func setNoCache(c *gin.Context) {
	c.Header("Cache-Control", "no-store, no-cache")
	c.Header("Pragma", "no-cache")
}

func writeRateLimited(c *gin.Context, d ratelimit.Decision) {
	now := time.Now()
	retryAfter := int(d.RetryAfter(now) / time.Second)
	if retryAfter < 1 {
		retryAfter = 1
	}

	c.Header("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
	c.Header("Retry-After", strconv.Itoa(retryAfter))

	c.JSON(http.StatusTooManyRequests, gin.H{
		"error": "too many requests",
	})
}
