package backup

import (
	"context"
	"net"
	"time"

	"github.com/starford/notesync/internal/apperr"
)

// Session resolves the signed-in user.
type Session interface {
	// CurrentUser returns the user of the active session, or "" if there is none.
	CurrentUser(ctx context.Context) (string, error)
	// Refresh renews the session and returns its user.
	Refresh(ctx context.Context) (string, error)
}

// StaticSession always reports the same configured user.
type StaticSession struct {
	UserID string
}

func (s StaticSession) CurrentUser(context.Context) (string, error) {
	return s.UserID, nil
}

func (s StaticSession) Refresh(context.Context) (string, error) {
	if s.UserID == "" {
		return "", apperr.ErrNotAuthenticated
	}
	return s.UserID, nil
}

// Connectivity reports whether the remote is reachable.
type Connectivity interface {
	Online(ctx context.Context) bool
}

// AlwaysOnline is used when the remote is local.
type AlwaysOnline struct{}

func (AlwaysOnline) Online(context.Context) bool { return true }

// DialProbe reports online when a TCP connection to Address succeeds.
type DialProbe struct {
	Address string
	Timeout time.Duration
}

func (p DialProbe) Online(ctx context.Context) bool {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", p.Address)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
