package identity

import (
	"context"
	"errors"
	"time"
)

// User represents a verified subject as asserted by the identity
// authority. It contains facts only, no decisions.
type User struct {
	ID            string // authority-scoped unique identifier (sub)
	Email         string
	EmailVerified bool
}

// Session is the authenticated-identity artifact held on behalf of a
// client: credential pair plus the authoritative absolute expiry.
// The application only ever holds it as an opaque cookie handle; all
// trust decisions re-verify against the authority.
type Session struct {
	UserID       string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Expired reports whether the session's absolute expiry has passed.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// ErrUnauthenticated is returned when the authority rejects a credential
// outright, as opposed to a transport failure reaching the authority.
var ErrUnauthenticated = errors.New("identity: credential rejected by authority")

// Provider defines the contract the external identity authority must
// satisfy. Implementations return identity facts and sessions only and
// must not make routing or cookie decisions.
type Provider interface {
	// Name returns the provider identifier (e.g. "supabase", "oidc").
	Name() string

	// VerifyUser confirms the current user behind an access credential
	// with an authoritative round trip. A nil error implies a non-nil user.
	VerifyUser(ctx context.Context, accessToken string) (*User, error)

	// ExchangeCode exchanges a single-use authorization code for a session.
	ExchangeCode(ctx context.Context, code string) (*Session, error)

	// InstallSession converts a raw access/refresh pair (as handed off
	// through the SSO callback URL) into a provider-managed session.
	InstallSession(ctx context.Context, accessToken, refreshToken string) (*Session, error)

	// RefreshSession rotates the credential pair before expiry.
	RefreshSession(ctx context.Context, s Session) (*Session, error)

	// SignOut invalidates the session at the authority. Best effort.
	SignOut(ctx context.Context, s Session) error
}
