package tracking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"paytrack/internal/domain/payment"
	"paytrack/internal/tracker"

	"github.com/rs/zerolog/log"
)

var (
	ErrSessionExists   = errors.New("tracking: a live session already exists for this token")
	ErrSessionNotFound = errors.New("tracking: no session for this token")
)

// Provider is the Payment Status Provider surface the service needs.
type Provider interface {
	tracker.StatusFetcher
	FetchPayment(ctx context.Context, paymentID string) (*payment.Payload, error)
}

// Service keeps one tracker per payment token, the way one screen owns one tracker.
type Service struct {
	provider Provider
	opts     []tracker.Option

	mu       sync.RWMutex
	sessions map[payment.Token]*tracker.Tracker
	ctx      context.Context
}

// NewService creates a service; ctx bounds every session it starts.
func NewService(ctx context.Context, provider Provider, opts ...tracker.Option) *Service {
	return &Service{
		provider: provider,
		opts:     opts,
		sessions: make(map[payment.Token]*tracker.Tracker),
		ctx:      ctx,
	}
}

// Start begins tracking token. A finished session for the same token is
// replaced; a live one yields ErrSessionExists.
func (s *Service) Start(token payment.Token, phone string) (tracker.Snapshot, error) {
	if token.Empty() {
		return tracker.Snapshot{}, tracker.ErrEmptyToken
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.sessions[token]; ok && !existing.Snapshot().Phase.Terminal() {
		return existing.Snapshot(), ErrSessionExists
	}

	tr := tracker.New(s.provider, phone, s.opts...)
	if err := tr.Start(s.ctx, token); err != nil {
		return tracker.Snapshot{}, fmt.Errorf("start tracker: %w", err)
	}
	s.sessions[token] = tr
	return tr.Snapshot(), nil
}

// Get returns the current read model for token.
func (s *Service) Get(token payment.Token) (tracker.Snapshot, error) {
	s.mu.RLock()
	tr, ok := s.sessions[token]
	s.mu.RUnlock()
	if !ok {
		return tracker.Snapshot{}, ErrSessionNotFound
	}
	return tr.Snapshot(), nil
}

// Stop ends the session for token. Stopping a finished session is a no-op.
func (s *Service) Stop(token payment.Token) (tracker.Snapshot, error) {
	s.mu.RLock()
	tr, ok := s.sessions[token]
	s.mu.RUnlock()
	if !ok {
		return tracker.Snapshot{}, ErrSessionNotFound
	}
	tr.Stop()
	return tr.Snapshot(), nil
}

// List returns all sessions ordered by start time.
func (s *Service) List() []tracker.Snapshot {
	s.mu.RLock()
	out := make([]tracker.Snapshot, 0, len(s.sessions))
	for _, tr := range s.sessions {
		out = append(out, tr.Snapshot())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].Token < out[j].Token
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// StopAll tears down every session; used on shutdown.
func (s *Service) StopAll() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, tr := range s.sessions {
		if !tr.Snapshot().Phase.Terminal() {
			n++
		}
		tr.Stop()
	}
	log.Info().Int("stopped", n).Msg("all tracking sessions stopped")
}

// Sweep forgets finished sessions that ended before cutoff and reports how
// many were removed. Live sessions are never touched.
func (s *Service) Sweep(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for tok, tr := range s.sessions {
		snap := tr.Snapshot()
		if snap.EndedAt == nil || !snap.EndedAt.Before(cutoff) {
			continue
		}
		delete(s.sessions, tok)
		n++
	}
	return n
}

// Receipt fetches the payment by internal id for a receipt view.
func (s *Service) Receipt(ctx context.Context, paymentID string) (*payment.Payload, error) {
	return s.provider.FetchPayment(ctx, paymentID)
}
