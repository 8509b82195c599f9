package session

import (
	"context"
	"net/http"

	"github.com/whart-vanterra/vanterra-reporting-sub001/internal/identity"
)

// Manager wraps the identity authority's session primitives and owns
// cookie read/write. Sessions live at the authority; the manager only
// shuttles the opaque handle between cookies and provider calls.
type Manager struct {
	provider identity.Provider
	opts     CookieOptions
}

func NewManager(provider identity.Provider, opts CookieOptions) *Manager {
	return &Manager{
		provider: provider,
		opts:     opts,
	}
}

// Load reconstructs the session handle from the inbound request.
func (m *Manager) Load(r *http.Request) (identity.Session, bool) {
	return ReadCookies(r)
}

// Save issues the session cookies on the outgoing response.
func (m *Manager) Save(w http.ResponseWriter, s identity.Session) {
	WriteCookies(w, s, m.opts)
}

// Clear drops the session cookies without contacting the authority.
func (m *Manager) Clear(w http.ResponseWriter) {
	ClearCookies(w, m.opts)
}

// Verify confirms the current user with an authoritative round trip.
func (m *Manager) Verify(ctx context.Context, s identity.Session) (*identity.User, error) {
	return m.provider.VerifyUser(ctx, s.AccessToken)
}

// Refresh rotates the credential pair via the authority.
func (m *Manager) Refresh(ctx context.Context, s identity.Session) (*identity.Session, error) {
	return m.provider.RefreshSession(ctx, s)
}

// SignOut invalidates the session at the authority (best effort) and
// clears the cookies. Safe to call with a partially populated session.
func (m *Manager) SignOut(ctx context.Context, w http.ResponseWriter, s identity.Session) {
	_ = m.provider.SignOut(ctx, s)
	ClearCookies(w, m.opts)
}

// AttachToRequest returns a request whose cookie header carries the given
// session, so downstream reads within the same request see rotated
// credentials consistently with the response cookies.
func AttachToRequest(r *http.Request, s identity.Session) *http.Request {
	out := r.Clone(r.Context())

	var others []*http.Cookie
	for _, c := range r.Cookies() {
		switch c.Name {
		case AccessCookieName, RefreshCookieName, ExpiryCookieName:
		default:
			others = append(others, c)
		}
	}

	out.Header.Del("Cookie")
	for _, c := range others {
		out.AddCookie(c)
	}
	for _, nc := range sessionCookies(s) {
		out.AddCookie(&http.Cookie{Name: nc.name, Value: nc.value})
	}

	return out
}
