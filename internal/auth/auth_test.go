package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu      sync.Mutex
	tok     *Token
	cleared int
}

func (m *memStore) Load(context.Context) (Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tok == nil {
		return Token{}, ErrNoToken
	}
	return *m.tok, nil
}

func (m *memStore) Save(_ context.Context, t Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tok = &t
	return nil
}

func (m *memStore) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tok = nil
	m.cleared++
	return nil
}

type fakeRefresher struct {
	calls     atomic.Int32
	refreshFn func(refreshToken string) (Token, error)
}

func (f *fakeRefresher) Refresh(_ context.Context, rt string) (Token, error) {
	f.calls.Add(1)
	return f.refreshFn(rt)
}

func TestTokenExpired(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	require.False(t, Token{}.Expired(now, DefaultSkew))
	require.False(t, Token{ExpiresAt: now.Add(time.Minute)}.Expired(now, DefaultSkew))
	require.True(t, Token{ExpiresAt: now.Add(10 * time.Second)}.Expired(now, DefaultSkew))
	require.True(t, Token{ExpiresAt: now.Add(-time.Second)}.Expired(now, 0))
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token")
	s := NewFileStore(path, []byte("secret"))
	ctx := context.Background()

	_, err := s.Load(ctx)
	require.ErrorIs(t, err, ErrNoToken)

	want := Token{AccessToken: "a1", RefreshToken: "r1", ExpiresAt: time.Unix(1_900_000_000, 0).UTC()}
	require.NoError(t, s.Save(ctx, want))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotContains(t, string(raw), "a1")

	got, err := s.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, want.AccessToken, got.AccessToken)
	require.True(t, want.ExpiresAt.Equal(got.ExpiresAt))

	_, err = NewFileStore(path, []byte("other")).Load(ctx)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrNoToken)

	require.NoError(t, s.Clear(ctx))
	require.NoError(t, s.Clear(ctx))
	_, err = s.Load(ctx)
	require.ErrorIs(t, err, ErrNoToken)
}

func TestRedisStoreTTL(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewRedisStore(nil, "k", []byte("s"))
	s.now = func() time.Time { return now }

	require.Equal(t, time.Duration(0), s.ttl(Token{}))
	require.Equal(t, time.Hour, s.ttl(Token{RefreshExpiresAt: now.Add(time.Hour)}))
	require.Equal(t, time.Second, s.ttl(Token{RefreshExpiresAt: now.Add(-time.Hour)}))
}

func TestRedisStoreRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	ctx := context.Background()

	s := NewRedisStore(rdb, "paytrack:auth:token", []byte("secret"))
	_, err := s.Load(ctx)
	require.ErrorIs(t, err, ErrNoToken)

	in := Token{AccessToken: "a1", RefreshToken: "r1", RefreshExpiresAt: time.Now().Add(time.Hour).UTC().Truncate(time.Second)}
	require.NoError(t, s.Save(ctx, in))

	raw, err := mr.Get("paytrack:auth:token")
	require.NoError(t, err)
	require.NotContains(t, raw, "a1")
	require.Greater(t, mr.TTL("paytrack:auth:token"), 59*time.Minute)

	out, err := s.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, in.AccessToken, out.AccessToken)
	require.True(t, in.RefreshExpiresAt.Equal(out.RefreshExpiresAt))

	_, err = NewRedisStore(rdb, "paytrack:auth:token", []byte("other")).Load(ctx)
	require.Error(t, err)

	require.NoError(t, s.Clear(ctx))
	_, err = s.Load(ctx)
	require.ErrorIs(t, err, ErrNoToken)
}

func newTestRefresher(url string) *Refresher {
	r := NewRefresher(url, "/auth/refresh", time.Second)
	r.newBackOff = func() backoff.BackOff { return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 3) }
	return r
}

func TestRefresherSuccess(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var got refreshReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"access_token":"a2","refresh_token":"r2","expires_in":900,"refresh_expires_in":86400}`))
	}))
	defer srv.Close()

	r := newTestRefresher(srv.URL)
	r.now = func() time.Time { return now }
	tok, err := r.Refresh(context.Background(), "r1")
	require.NoError(t, err)
	require.Equal(t, "r1", got.RefreshToken)
	require.Equal(t, "a2", tok.AccessToken)
	require.Equal(t, "r2", tok.RefreshToken)
	require.Equal(t, now.Add(15*time.Minute), tok.ExpiresAt)
	require.Equal(t, now.Add(24*time.Hour), tok.RefreshExpiresAt)
}

func TestRefresherRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"a2"}`))
	}))
	defer srv.Close()

	tok, err := newTestRefresher(srv.URL).Refresh(context.Background(), "r1")
	require.NoError(t, err)
	require.Equal(t, int32(3), calls.Load())
	require.Equal(t, "r1", tok.RefreshToken)
	require.True(t, tok.ExpiresAt.IsZero())
}

func TestRefresherRejectedIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newTestRefresher(srv.URL).Refresh(context.Background(), "r1")
	require.ErrorIs(t, err, ErrRefreshRejected)
	require.Equal(t, int32(1), calls.Load())
}

// apiServer answers 200 only for the accepted bearer token.
func apiServer(t *testing.T, accepted *atomic.Value, seen *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen.Add(1)
		if r.Header.Get("Authorization") != "Bearer "+accepted.Load().(string) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`ok`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTransportRefreshesOn401AndReplays(t *testing.T) {
	var accepted atomic.Value
	accepted.Store("fresh")
	var seen atomic.Int32
	srv := apiServer(t, &accepted, &seen)

	store := &memStore{tok: &Token{AccessToken: "stale", RefreshToken: "r1"}}
	ref := &fakeRefresher{refreshFn: func(rt string) (Token, error) {
		require.Equal(t, "r1", rt)
		return Token{AccessToken: "fresh", RefreshToken: "r2"}, nil
	}}
	client := &http.Client{Transport: NewTransport(nil, store, ref)}

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, int32(2), seen.Load())
	require.Equal(t, int32(1), ref.calls.Load())

	saved, _ := store.Load(context.Background())
	require.Equal(t, "fresh", saved.AccessToken)
}

func TestTransportRejectedRefreshClearsStore(t *testing.T) {
	var accepted atomic.Value
	accepted.Store("never")
	var seen atomic.Int32
	srv := apiServer(t, &accepted, &seen)

	store := &memStore{tok: &Token{AccessToken: "stale", RefreshToken: "r1"}}
	ref := &fakeRefresher{refreshFn: func(string) (Token, error) { return Token{}, ErrRefreshRejected }}
	client := &http.Client{Transport: NewTransport(nil, store, ref)}

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, 1, store.cleared)
	require.Equal(t, int32(1), seen.Load())
}

func TestTransportProactiveRefresh(t *testing.T) {
	var accepted atomic.Value
	accepted.Store("fresh")
	var seen atomic.Int32
	srv := apiServer(t, &accepted, &seen)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := &memStore{tok: &Token{AccessToken: "old", RefreshToken: "r1", ExpiresAt: now.Add(-time.Minute)}}
	ref := &fakeRefresher{refreshFn: func(string) (Token, error) {
		return Token{AccessToken: "fresh", RefreshToken: "r1", ExpiresAt: now.Add(time.Hour)}, nil
	}}
	tr := NewTransport(nil, store, ref)
	tr.Now = func() time.Time { return now }

	resp, err := (&http.Client{Transport: tr}).Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, int32(1), seen.Load())
	require.Equal(t, int32(1), ref.calls.Load())
}

func TestTransportWithoutTokenSendsNoAuth(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	ref := &fakeRefresher{refreshFn: func(string) (Token, error) { return Token{}, errors.New("unused") }}
	resp, err := (&http.Client{Transport: NewTransport(nil, &memStore{}, ref)}).Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	require.Empty(t, auth)
	require.Equal(t, int32(0), ref.calls.Load())
}

func TestTransportSkipsRefreshWhenStoreAlreadyUpdated(t *testing.T) {
	store := &memStore{tok: &Token{AccessToken: "rotated", RefreshToken: "r1"}}
	ref := &fakeRefresher{refreshFn: func(string) (Token, error) { return Token{}, errors.New("should not refresh") }}
	tr := NewTransport(nil, store, ref)

	// Another request already rotated the token between load and 401.
	got, err := tr.refresh(context.Background(), Token{AccessToken: "older", RefreshToken: "r0"})
	require.NoError(t, err)
	require.Equal(t, "rotated", got.AccessToken)
	require.Equal(t, int32(0), ref.calls.Load())
}
