// Package auth holds the boundary value objects shared by the token
// exchange handler and the request gate: login redirect construction and
// redirect-target validation.
package auth

import (
	"net/http"
	"net/url"
	"strings"
)

// Error markers carried to the central login UI. Coarse on purpose: no
// provider error detail ever reaches the browser.
const (
	MarkerAuthFailed     = "auth_failed"
	MarkerSessionExpired = "session_expired"
	MarkerRefreshFailed  = "session_refresh_failed"
)

// LoginURL builds the central login redirect. origin, when set, is the
// URL the authority should send the user back to after authentication;
// marker, when set, is a coarse reason code for the login UI to display.
func LoginURL(domain, origin, marker string) string {
	v := url.Values{}
	if origin != "" {
		v.Set("origin", origin)
	}
	if marker != "" {
		v.Set("error", marker)
	}

	u := strings.TrimRight(domain, "/") + "/login"
	if len(v) > 0 {
		u += "?" + v.Encode()
	}
	return u
}

// OriginalURL reconstructs the absolute URL of the inbound request so
// the authority can return the user to where they were headed.
func OriginalURL(r *http.Request) string {
	scheme := "https"
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	} else if r.TLS == nil {
		scheme = "http"
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
