package auth

import "strings"

// DefaultRedirect is where invalid or absent targets collapse to.
const DefaultRedirect = "/"

// redirectAllowList enumerates the top-level application routes a
// post-login redirect may land on. Fixed at build time.
var redirectAllowList = []string{
	"/dashboard",
	"/reports",
	"/insights",
	"/settings",
	"/admin",
}

// ValidateRedirect collapses anything that is not the root or an
// allow-listed route (or a sub-path of one) to the default root path.
// Invalid targets are corrected silently: an attacker probing for an
// open redirect learns nothing.
func ValidateRedirect(target string) string {
	if target == "" || target == DefaultRedirect {
		return DefaultRedirect
	}

	// Absolute URLs, protocol-relative (//host) and backslash tricks all
	// fail the rooted-path shape check.
	if !strings.HasPrefix(target, "/") ||
		strings.HasPrefix(target, "//") ||
		strings.Contains(target, "\\") {
		return DefaultRedirect
	}

	for _, allowed := range redirectAllowList {
		if target == allowed ||
			strings.HasPrefix(target, allowed+"/") ||
			strings.HasPrefix(target, allowed+"?") {
			return target
		}
	}

	return DefaultRedirect
}
