package session

import (
	"net/http"
	"strconv"
	"time"

	"github.com/whart-vanterra/vanterra-reporting-sub001/internal/identity"
)

const (
	AccessCookieName  = "__Host-vr-access"
	RefreshCookieName = "__Host-vr-refresh"
	ExpiryCookieName  = "__Host-vr-expires"
)

// cookieGrace keeps session cookies alive past absolute expiry so the
// gate can emit a session_expired redirect instead of a bare login
// redirect when an expired session comes back.
const cookieGrace = time.Hour

// CookieOptions defines how session cookies are issued.
type CookieOptions struct {
	Path     string
	HttpOnly bool
	Secure   bool
	SameSite http.SameSite
	Domain   string // should usually be empty for __Host- cookies
}

// normalize applies safe defaults without breaking callers
func (o CookieOptions) normalize() CookieOptions {
	if o.Path == "" {
		o.Path = "/" // required for __Host-
	}
	if !o.HttpOnly {
		o.HttpOnly = true // secure default
	}
	if o.SameSite == 0 {
		o.SameSite = http.SameSiteLaxMode
	}
	return o
}

// WriteCookies issues the session cookies to the client. The values are
// an opaque handle: nothing downstream may trust them without a round
// trip to the authority.
func WriteCookies(w http.ResponseWriter, s identity.Session, opts CookieOptions) {
	opts = opts.normalize()
	expires := s.ExpiresAt.Add(cookieGrace)

	for _, c := range sessionCookies(s) {
		http.SetCookie(w, &http.Cookie{
			Name:     c.name,
			Value:    c.value,
			Path:     opts.Path,
			Domain:   opts.Domain,
			Expires:  expires,
			HttpOnly: opts.HttpOnly,
			Secure:   opts.Secure,
			SameSite: opts.SameSite,
		})
	}
}

// ClearCookies removes the session cookies from the client.
func ClearCookies(w http.ResponseWriter, opts CookieOptions) {
	opts = opts.normalize()

	for _, name := range []string{AccessCookieName, RefreshCookieName, ExpiryCookieName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     opts.Path,
			Domain:   opts.Domain,
			MaxAge:   -1,
			HttpOnly: opts.HttpOnly,
			Secure:   opts.Secure,
			SameSite: opts.SameSite,
		})
	}
}

// ReadCookies reconstructs the session handle from the request. The
// second return is false when no access credential is present at all.
// A present handle with a missing or malformed expiry decodes to the
// zero time, which the gate treats as already expired.
func ReadCookies(r *http.Request) (identity.Session, bool) {
	access := cookieValue(r, AccessCookieName)
	if access == "" {
		return identity.Session{}, false
	}

	s := identity.Session{
		AccessToken:  access,
		RefreshToken: cookieValue(r, RefreshCookieName),
	}

	if raw := cookieValue(r, ExpiryCookieName); raw != "" {
		if unix, err := strconv.ParseInt(raw, 10, 64); err == nil {
			s.ExpiresAt = time.Unix(unix, 0)
		}
	}

	return s, true
}

type namedCookie struct {
	name  string
	value string
}

func sessionCookies(s identity.Session) []namedCookie {
	return []namedCookie{
		{AccessCookieName, s.AccessToken},
		{RefreshCookieName, s.RefreshToken},
		{ExpiryCookieName, strconv.FormatInt(s.ExpiresAt.Unix(), 10)},
	}
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
