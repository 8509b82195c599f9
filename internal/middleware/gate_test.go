package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/whart-vanterra/vanterra-reporting-sub001/internal/identity"
	"github.com/whart-vanterra/vanterra-reporting-sub001/internal/session"
)

const testAuthDomain = "https://auth.vanterra.com"

type fakeProvider struct {
	user       *identity.User
	verifyErr  error
	rotated    *identity.Session
	refreshErr error

	verifyCalls  int
	refreshCalls int
	signOutCalls int
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) VerifyUser(context.Context, string) (*identity.User, error) {
	f.verifyCalls++
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	return f.user, nil
}

func (f *fakeProvider) ExchangeCode(context.Context, string) (*identity.Session, error) {
	return nil, identity.ErrUnauthenticated
}

func (f *fakeProvider) InstallSession(context.Context, string, string) (*identity.Session, error) {
	return nil, identity.ErrUnauthenticated
}

func (f *fakeProvider) RefreshSession(context.Context, identity.Session) (*identity.Session, error) {
	f.refreshCalls++
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return f.rotated, nil
}

func (f *fakeProvider) SignOut(context.Context, identity.Session) error {
	f.signOutCalls++
	return nil
}

var gateNow = time.Unix(1_700_000_000, 0)

func newTestGate(fp *fakeProvider, threshold time.Duration) *Gate {
	sessions := session.NewManager(fp, session.CookieOptions{Secure: true})
	gate := NewGate(sessions, testAuthDomain, threshold, nil, zap.NewNop())
	gate.now = func() time.Time { return gateNow }
	return gate
}

type nextRecorder struct {
	called bool
	userID string
	req    *http.Request
}

func (n *nextRecorder) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n.called = true
		n.userID, _ = UserIDFromContext(r.Context())
		n.req = r
		w.WriteHeader(http.StatusOK)
	})
}

func addSessionCookies(r *http.Request, s identity.Session) {
	r.AddCookie(&http.Cookie{Name: session.AccessCookieName, Value: s.AccessToken})
	r.AddCookie(&http.Cookie{Name: session.RefreshCookieName, Value: s.RefreshToken})
	r.AddCookie(&http.Cookie{Name: session.ExpiryCookieName, Value: strconv.FormatInt(s.ExpiresAt.Unix(), 10)})
}

func TestPublicPathsPassWithoutVerification(t *testing.T) {
	fp := &fakeProvider{}
	gate := newTestGate(fp, 5*time.Minute)
	next := &nextRecorder{}

	for _, path := range []string{
		"/auth/callback",
		"/auth/login",
		"/favicon.ico",
		"/healthz",
		"/static/app.css",
		"/api/v1/reports",
	} {
		w := httptest.NewRecorder()
		r := httptest.NewRequest("GET", "http://app.local"+path, nil)
		gate.Protect(next.handler()).ServeHTTP(w, r)
		assert.Equal(t, http.StatusOK, w.Code, "path %s", path)
	}

	assert.Zero(t, fp.verifyCalls, "public paths pay no session cost")
}

func TestUnauthenticatedRedirectCarriesOrigin(t *testing.T) {
	fp := &fakeProvider{}
	gate := newTestGate(fp, 5*time.Minute)
	next := &nextRecorder{}

	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "http://app.local/dashboard", nil)
	gate.Protect(next.handler()).ServeHTTP(w, r)

	assert.False(t, next.called)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t,
		testAuthDomain+"/login?origin="+url.QueryEscape("http://app.local/dashboard"),
		w.Header().Get("Location"),
	)
}

func TestRejectedCredentialRedirectsAndClearsCookies(t *testing.T) {
	fp := &fakeProvider{verifyErr: identity.ErrUnauthenticated}
	gate := newTestGate(fp, 5*time.Minute)
	next := &nextRecorder{}

	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "http://app.local/reports", nil)
	addSessionCookies(r, identity.Session{
		AccessToken:  "forged",
		RefreshToken: "forged",
		ExpiresAt:    gateNow.Add(time.Hour),
	})
	gate.Protect(next.handler()).ServeHTTP(w, r)

	assert.False(t, next.called)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, 1, fp.verifyCalls)

	cleared := w.Result().Cookies()
	require.NotEmpty(t, cleared)
	for _, c := range cleared {
		assert.Negative(t, c.MaxAge)
	}
}

func TestExpiredSessionForcesLogout(t *testing.T) {
	fp := &fakeProvider{user: &identity.User{ID: "user-1"}}
	gate := newTestGate(fp, 5*time.Minute)
	next := &nextRecorder{}

	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "http://app.local/dashboard", nil)
	addSessionCookies(r, identity.Session{
		AccessToken:  "stale",
		RefreshToken: "stale",
		ExpiresAt:    gateNow.Add(-time.Minute),
	})
	gate.Protect(next.handler()).ServeHTTP(w, r)

	// Verification nominally succeeded, but expiry is authoritative.
	assert.False(t, next.called)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, testAuthDomain+"/login?error=session_expired", w.Header().Get("Location"))
	assert.Equal(t, 1, fp.signOutCalls)
	assert.Zero(t, fp.refreshCalls)
}

func TestValidSessionOutsideThresholdPassesWithoutRefresh(t *testing.T) {
	fp := &fakeProvider{user: &identity.User{ID: "user-1", Email: "ops@vanterra.com"}}
	gate := newTestGate(fp, 5*time.Minute)
	next := &nextRecorder{}

	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "http://app.local/dashboard", nil)
	addSessionCookies(r, identity.Session{
		AccessToken:  "live",
		RefreshToken: "live",
		ExpiresAt:    gateNow.Add(10 * time.Minute),
	})
	gate.Protect(next.handler()).ServeHTTP(w, r)

	assert.True(t, next.called)
	assert.Equal(t, "user-1", next.userID)
	assert.Zero(t, fp.refreshCalls)
	assert.Empty(t, w.Result().Cookies(), "no rotation means no cookie writes")
}

func TestNearExpiryRefreshesOnceAndRotatesCookies(t *testing.T) {
	rotated := &identity.Session{
		UserID:       "user-1",
		AccessToken:  "rotated-access",
		RefreshToken: "rotated-refresh",
		ExpiresAt:    gateNow.Add(time.Hour),
	}
	fp := &fakeProvider{user: &identity.User{ID: "user-1"}, rotated: rotated}
	gate := newTestGate(fp, 5*time.Minute)
	next := &nextRecorder{}

	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "http://app.local/dashboard", nil)
	addSessionCookies(r, identity.Session{
		AccessToken:  "old-access",
		RefreshToken: "old-refresh",
		ExpiresAt:    gateNow.Add(2 * time.Minute),
	})
	gate.Protect(next.handler()).ServeHTTP(w, r)

	assert.True(t, next.called)
	assert.Equal(t, 1, fp.refreshCalls)

	var gotAccess string
	for _, c := range w.Result().Cookies() {
		if c.Name == session.AccessCookieName {
			gotAccess = c.Value
		}
	}
	assert.Equal(t, "rotated-access", gotAccess)

	// Downstream reads see the rotated credentials too.
	require.NotNil(t, next.req)
	fwd, err := next.req.Cookie(session.AccessCookieName)
	require.NoError(t, err)
	assert.Equal(t, "rotated-access", fwd.Value)
}

func TestRefreshFailureForcesLogout(t *testing.T) {
	fp := &fakeProvider{
		user:       &identity.User{ID: "user-1"},
		refreshErr: identity.ErrUnauthenticated,
	}
	gate := newTestGate(fp, 5*time.Minute)
	next := &nextRecorder{}

	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "http://app.local/dashboard", nil)
	addSessionCookies(r, identity.Session{
		AccessToken:  "old",
		RefreshToken: "old",
		ExpiresAt:    gateNow.Add(time.Minute),
	})
	gate.Protect(next.handler()).ServeHTTP(w, r)

	assert.False(t, next.called)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, testAuthDomain+"/login?error=session_refresh_failed", w.Header().Get("Location"))
	assert.Equal(t, 1, fp.signOutCalls)
}

func TestPublicPathMatching(t *testing.T) {
	assert.True(t, PublicPath("/auth/callback"))
	assert.True(t, PublicPath("/api/v2/brands"))
	assert.True(t, PublicPath("/static/logo.svg"))
	assert.False(t, PublicPath("/dashboard"))
	assert.False(t, PublicPath("/apiary")) // prefix match requires the slash
	assert.False(t, PublicPath("/"))
}
