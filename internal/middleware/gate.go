package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/whart-vanterra/vanterra-reporting-sub001/internal/audit"
	"github.com/whart-vanterra/vanterra-reporting-sub001/internal/auth"
	"github.com/whart-vanterra/vanterra-reporting-sub001/internal/identity"
	"github.com/whart-vanterra/vanterra-reporting-sub001/internal/session"
)

// unexported, collision-proof context keys
type userIDContextKeyType struct{}
type userEmailContextKeyType struct{}

var (
	userIDKey    = userIDContextKeyType{}
	userEmailKey = userEmailContextKeyType{}
)

// UserIDFromContext extracts the authenticated user ID from context.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok
}

// UserEmailFromContext extracts the authenticated user email from context.
func UserEmailFromContext(ctx context.Context) (string, bool) {
	email, ok := ctx.Value(userEmailKey).(string)
	return email, ok
}

// Paths that never pay a session cost: the SSO hand-off itself, the
// login/logout surface, static assets, API routes that manage their own
// auth, and the favicon. Fixed at build time.
var (
	publicExact = []string{
		"/auth/callback",
		"/auth/login",
		"/auth/logout",
		"/favicon.ico",
		"/healthz",
	}
	publicPrefixes = []string{
		"/static/",
		"/api/",
	}
)

// PublicPath reports whether the gate must pass the path untouched.
func PublicPath(path string) bool {
	for _, p := range publicExact {
		if path == p {
			return true
		}
	}
	for _, p := range publicPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// Gate is the per-request authentication middleware. Every non-public
// request is verified against the authority, forced out on expiry, and
// transparently refreshed near expiry.
type Gate struct {
	sessions         *session.Manager
	authDomain       string
	refreshThreshold time.Duration
	recorder         audit.Recorder
	log              *zap.Logger

	now func() time.Time
}

func NewGate(
	sessions *session.Manager,
	authDomain string,
	refreshThreshold time.Duration,
	recorder audit.Recorder,
	log *zap.Logger,
) *Gate {
	if recorder == nil {
		recorder = audit.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Gate{
		sessions:         sessions,
		authDomain:       authDomain,
		refreshThreshold: refreshThreshold,
		recorder:         recorder,
		log:              log,
		now:              time.Now,
	}
}

func (g *Gate) Protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 1. Public paths pass through untouched.
		if PublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()

		// 2. No session handle at all: send to the central login.
		sess, ok := g.sessions.Load(r)
		if !ok {
			g.redirectToLogin(w, r, "")
			return
		}

		// 3. Trust-but-verify: a cookie can be forged or stale; only a
		// round trip to the authority proves current validity.
		user, err := g.sessions.Verify(ctx, sess)
		if err != nil || user == nil {
			if err != nil && !errors.Is(err, identity.ErrUnauthenticated) {
				g.log.Warn("session verification failed", zap.Error(err))
			}
			g.sessions.Clear(w)
			g.redirectToLogin(w, r, "")
			return
		}

		// 4. The absolute expiry is authoritative. A request never
		// proceeds on an expired session, even if verification nominally
		// succeeded on stale data moments earlier.
		now := g.now()
		if sess.Expired(now) {
			g.sessions.SignOut(ctx, w, sess)
			g.record(r, audit.KindSessionExpired, user.ID)
			g.redirectToLogin(w, r, auth.MarkerSessionExpired)
			return
		}

		// 5. Near expiry: rotate the credentials before they lapse.
		if sess.ExpiresAt.Sub(now) < g.refreshThreshold {
			rotated, err := g.sessions.Refresh(ctx, sess)
			if err != nil {
				g.log.Warn("session refresh failed",
					zap.String("user_id", user.ID),
					zap.Error(err),
				)
				g.sessions.SignOut(ctx, w, sess)
				g.record(r, audit.KindRefreshFailed, user.ID)
				g.redirectToLogin(w, r, auth.MarkerRefreshFailed)
				return
			}

			g.sessions.Save(w, *rotated)
			// Downstream reads within this request must see the rotated
			// credentials, consistent with the response cookies.
			r = session.AttachToRequest(r, *rotated)
			ctx = r.Context()
		}

		// 6. Attach identity facts and continue.
		ctx = context.WithValue(ctx, userIDKey, user.ID)
		ctx = context.WithValue(ctx, userEmailKey, user.Email)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (g *Gate) redirectToLogin(w http.ResponseWriter, r *http.Request, marker string) {
	origin := ""
	if marker == "" {
		origin = auth.OriginalURL(r)
	}
	http.Redirect(w, r, auth.LoginURL(g.authDomain, origin, marker), http.StatusFound)
}

func (g *Gate) record(r *http.Request, kind, subject string) {
	err := g.recorder.Record(r.Context(), audit.Event{
		Kind:     kind,
		Subject:  subject,
		ClientIP: clientIP(r),
		At:       g.now(),
	})
	if err != nil {
		g.log.Warn("audit record failed", zap.String("kind", kind), zap.Error(err))
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host := r.RemoteAddr
	if i := strings.LastIndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	return host
}
