// Package audit records authentication boundary events. Recording is
// never on the critical path: failures are the caller's to log, not to
// surface.
package audit

import (
	"context"
	"time"
)

const (
	KindLogin          = "login"
	KindAuthFailed     = "auth_failed"
	KindSessionExpired = "session_expired"
	KindRefreshFailed  = "session_refresh_failed"
	KindRateLimited    = "rate_limited"
	KindLogout         = "logout"
)

// Event is one auth boundary occurrence. Subject may be empty when the
// event happened before a user was established.
type Event struct {
	Kind     string
	Subject  string
	ClientIP string
	Detail   string
	At       time.Time
}

type Recorder interface {
	Record(ctx context.Context, e Event) error
}

// Nop discards events. Used when no database is configured.
type Nop struct{}

func (Nop) Record(context.Context, Event) error { return nil }
