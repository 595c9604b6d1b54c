package tracking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"paytrack/internal/domain/payment"
	"paytrack/internal/tracker"
	"paytrack/internal/tracker/trackertest"

	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	mu        sync.Mutex
	statuses  map[payment.Token]payment.State
	paymentFn func(id string) (*payment.Payload, error)
}

func (f *fakeProvider) FetchStatus(_ context.Context, tok payment.Token) (*payment.Payload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.statuses[tok]
	if !ok {
		st = payment.StatePending
	}
	return &payment.Payload{Status: st}, nil
}

func (f *fakeProvider) FetchPayment(_ context.Context, id string) (*payment.Payload, error) {
	return f.paymentFn(id)
}

func newService(t *testing.T, p *fakeProvider) *Service {
	t.Helper()
	s := NewService(context.Background(), p, tracker.WithClock(trackertest.NewFakeClock()))
	t.Cleanup(s.StopAll)
	return s
}

func TestStartAndGet(t *testing.T) {
	s := newService(t, &fakeProvider{})

	snap, err := s.Start("tok_1", "0700")
	require.NoError(t, err)
	require.Equal(t, tracker.PhasePolling, snap.Phase)
	require.Equal(t, "0700", snap.Phone)

	require.Eventually(t, func() bool {
		got, err := s.Get("tok_1")
		return err == nil && got.CurrentState != nil && *got.CurrentState == payment.StatePending
	}, time.Second, 2*time.Millisecond)

	_, err = s.Get("missing")
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestStartRejectsLiveDuplicate(t *testing.T) {
	s := newService(t, &fakeProvider{})
	first, err := s.Start("tok_1", "")
	require.NoError(t, err)

	again, err := s.Start("tok_1", "")
	require.ErrorIs(t, err, ErrSessionExists)
	require.Equal(t, first.SessionID, again.SessionID)

	_, err = s.Start("", "")
	require.ErrorIs(t, err, tracker.ErrEmptyToken)
}

func TestStartReplacesFinishedSession(t *testing.T) {
	p := &fakeProvider{statuses: map[payment.Token]payment.State{"tok_1": payment.StateCompleted}}
	s := newService(t, p)

	first, err := s.Start("tok_1", "")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		got, _ := s.Get("tok_1")
		return got.Phase == tracker.PhaseCompleted
	}, time.Second, 2*time.Millisecond)

	second, err := s.Start("tok_1", "")
	require.NoError(t, err)
	require.NotEqual(t, first.SessionID, second.SessionID)
}

func TestStopAndList(t *testing.T) {
	s := newService(t, &fakeProvider{})
	_, err := s.Start("tok_a", "")
	require.NoError(t, err)
	_, err = s.Start("tok_b", "")
	require.NoError(t, err)

	snap, err := s.Stop("tok_a")
	require.NoError(t, err)
	require.Equal(t, tracker.PhaseStopped, snap.Phase)

	snap, err = s.Stop("tok_a")
	require.NoError(t, err)
	require.Equal(t, tracker.PhaseStopped, snap.Phase)

	_, err = s.Stop("nope")
	require.ErrorIs(t, err, ErrSessionNotFound)

	list := s.List()
	require.Len(t, list, 2)
	require.Equal(t, payment.Token("tok_a"), list[0].Token)

	s.StopAll()
	for _, snap := range s.List() {
		require.True(t, snap.Phase.Terminal())
	}
}

func TestReceipt(t *testing.T) {
	p := &fakeProvider{paymentFn: func(id string) (*payment.Payload, error) {
		if id != "pay_1" {
			return nil, errors.New("not found")
		}
		return &payment.Payload{PaymentID: id, Status: payment.StateCompleted}, nil
	}}
	s := newService(t, p)

	got, err := s.Receipt(context.Background(), "pay_1")
	require.NoError(t, err)
	require.Equal(t, "pay_1", got.PaymentID)

	_, err = s.Receipt(context.Background(), "pay_2")
	require.Error(t, err)
}

func TestSweepDropsOnlyFinishedSessions(t *testing.T) {
	clock := trackertest.NewFakeClock()
	s := NewService(context.Background(), &fakeProvider{}, tracker.WithClock(clock))
	t.Cleanup(s.StopAll)

	_, err := s.Start("tok_done", "")
	require.NoError(t, err)
	_, err = s.Start("tok_live", "")
	require.NoError(t, err)
	_, err = s.Stop("tok_done")
	require.NoError(t, err)

	ended := clock.Now()
	require.Equal(t, 0, s.Sweep(ended), "cutoff equal to end time keeps the session")
	require.Equal(t, 1, s.Sweep(ended.Add(time.Second)))

	_, err = s.Get("tok_done")
	require.ErrorIs(t, err, ErrSessionNotFound)
	live, err := s.Get("tok_live")
	require.NoError(t, err)
	require.False(t, live.Phase.Terminal())
	require.Equal(t, 0, s.Sweep(ended.Add(time.Hour)))
}

func TestJanitorTick(t *testing.T) {
	clock := trackertest.NewFakeClock()
	s := NewService(context.Background(), &fakeProvider{}, tracker.WithClock(clock))
	t.Cleanup(s.StopAll)
	_, err := s.Start("tok_1", "")
	require.NoError(t, err)
	_, err = s.Stop("tok_1")
	require.NoError(t, err)

	j := NewJanitor(s, 10*time.Minute)
	j.now = func() time.Time { return clock.Now().Add(5 * time.Minute) }
	j.tick()
	require.Len(t, s.List(), 1)

	j.now = func() time.Time { return clock.Now().Add(11 * time.Minute) }
	j.tick()
	require.Empty(t, s.List())
}

func TestJanitorRunStopsOnCancel(t *testing.T) {
	s := newService(t, &fakeProvider{})
	j := NewJanitor(s, time.Minute)
	j.sweepEvery = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		j.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}
