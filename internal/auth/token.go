package auth

import (
	"context"
	"errors"
	"time"
)

// DefaultSkew is how early an access token is treated as expired.
const DefaultSkew = 30 * time.Second

var (
	ErrNoToken         = errors.New("auth: no stored token")
	ErrRefreshRejected = errors.New("auth: refresh token rejected")
)

// Token is the client's credential pair for the REST API.
type Token struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	ExpiresAt        time.Time `json:"expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at,omitempty"`
}

// Expired reports whether the access token is unusable at now (minus skew).
// A zero ExpiresAt means the server did not say, so it never expires locally.
func (t Token) Expired(now time.Time, skew time.Duration) bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(skew).Before(t.ExpiresAt)
}

// Store persists a single token locally.
type Store interface {
	Load(ctx context.Context) (Token, error)
	Save(ctx context.Context, t Token) error
	Clear(ctx context.Context) error
}
