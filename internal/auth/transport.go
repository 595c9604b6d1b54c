package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// TokenRefresher is the part of Refresher the transport needs.
type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (Token, error)
}

// Transport attaches the stored bearer token and silently refreshes it,
// either ahead of expiry or after a 401, replaying the request once.
type Transport struct {
	Base      http.RoundTripper
	Store     Store
	Refresher TokenRefresher
	Skew      time.Duration
	Now       func() time.Time

	group singleflight.Group
}

func NewTransport(base http.RoundTripper, store Store, refresher TokenRefresher) *Transport {
	return &Transport{Base: base, Store: store, Refresher: refresher, Skew: DefaultSkew, Now: time.Now}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	tok, err := t.Store.Load(ctx)
	if errors.Is(err, ErrNoToken) {
		return t.base().RoundTrip(req)
	}
	if err != nil {
		return nil, err
	}

	if tok.Expired(t.Now(), t.Skew) {
		if fresh, err := t.refresh(ctx, tok); err == nil {
			tok = fresh
		} else {
			log.Warn().Err(err).Msg("proactive token refresh failed")
		}
	}

	resp, err := t.send(req, tok)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}
	if req.Body != nil && req.GetBody == nil {
		// cannot replay a consumed body
		return resp, nil
	}

	fresh, rerr := t.refresh(ctx, tok)
	if rerr != nil {
		log.Warn().Err(rerr).Msg("token refresh after 401 failed")
		return resp, nil
	}
	drain(resp)

	retry := req.Clone(ctx)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("rewind request body: %w", err)
		}
		retry.Body = body
	}
	return t.send(retry, fresh)
}

// refresh shares one refresh among concurrent callers. If the store already
// holds a different access token, another request refreshed first.
func (t *Transport) refresh(ctx context.Context, used Token) (Token, error) {
	v, err, _ := t.group.Do("refresh", func() (interface{}, error) {
		current, err := t.Store.Load(ctx)
		if err == nil && current.AccessToken != used.AccessToken && !current.Expired(t.Now(), t.Skew) {
			return current, nil
		}

		fresh, err := t.Refresher.Refresh(ctx, used.RefreshToken)
		if errors.Is(err, ErrRefreshRejected) {
			if cerr := t.Store.Clear(ctx); cerr != nil {
				log.Error().Err(cerr).Msg("failed to clear rejected token")
			}
			return nil, err
		}
		if err != nil {
			return nil, err
		}
		if err := t.Store.Save(ctx, fresh); err != nil {
			return nil, fmt.Errorf("save refreshed token: %w", err)
		}
		log.Info().Time("expires_at", fresh.ExpiresAt).Msg("access token refreshed")
		return fresh, nil
	})
	if err != nil {
		return Token{}, err
	}
	return v.(Token), nil
}

func (t *Transport) send(req *http.Request, tok Token) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	return t.base().RoundTrip(r)
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
