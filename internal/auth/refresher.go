package auth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"paytrack/internal/provider/base"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

// Refresher exchanges a refresh token for a new token pair.
type Refresher struct {
	http       *base.HTTPClient
	path       string
	now        func() time.Time
	newBackOff func() backoff.BackOff
}

func NewRefresher(baseURL, path string, timeout time.Duration) *Refresher {
	return &Refresher{
		http: base.NewHTTPClient("auth", baseURL, timeout, nil),
		path: path,
		now:  time.Now,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 250 * time.Millisecond
			b.MaxElapsedTime = 10 * time.Second
			return b
		},
	}
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

type refreshResp struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	ExpiresIn        int64  `json:"expires_in"`
	RefreshExpiresIn int64  `json:"refresh_expires_in"`
}

// Refresh retries transient failures with exponential backoff.
// A 401/403 answer is permanent and yields ErrRefreshRejected.
func (r *Refresher) Refresh(ctx context.Context, refreshToken string) (Token, error) {
	if refreshToken == "" {
		return Token{}, ErrRefreshRejected
	}

	var out Token
	op := func() error {
		resp, err := r.http.PostJSON(ctx, r.path, refreshReq{RefreshToken: refreshToken}, nil)
		if err != nil {
			return err
		}
		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return backoff.Permanent(ErrRefreshRejected)
		case resp.StatusCode >= 500:
			return fmt.Errorf("refresh failed: %d", resp.StatusCode)
		case !resp.IsSuccess():
			return backoff.Permanent(fmt.Errorf("refresh failed: %d; body=%s", resp.StatusCode, resp.String()))
		}

		var body refreshResp
		if err := resp.UnmarshalJSON(&body); err != nil {
			return backoff.Permanent(fmt.Errorf("decode refresh response: %w", err))
		}
		if body.AccessToken == "" {
			return backoff.Permanent(fmt.Errorf("refresh response missing access_token"))
		}
		now := r.now()
		out = Token{AccessToken: body.AccessToken, RefreshToken: body.RefreshToken}
		if out.RefreshToken == "" {
			out.RefreshToken = refreshToken
		}
		if body.ExpiresIn > 0 {
			out.ExpiresAt = now.Add(time.Duration(body.ExpiresIn) * time.Second)
		}
		if body.RefreshExpiresIn > 0 {
			out.RefreshExpiresAt = now.Add(time.Duration(body.RefreshExpiresIn) * time.Second)
		}
		return nil
	}
	notify := func(err error, wait time.Duration) {
		log.Warn().Err(err).Dur("retry_in", wait).Msg("token refresh failed, retrying")
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(r.newBackOff(), ctx), notify); err != nil {
		return Token{}, err
	}
	return out, nil
}
