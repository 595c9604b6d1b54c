// Package tracker follows one in-flight mobile-money payment from initiation
// to a terminal state by polling the payment status endpoint.
//
// Two independent clocks drive a session: a 3 second poll ticker and a 1 second
// elapsed ticker. A session ends on a terminal payment status, a server stop
// directive, the 300 second expiry, or an explicit Stop. Hitting the 60 poll
// ceiling only stops polling; the elapsed clock keeps running until expiry.
package tracker

import (
	"context"
	"errors"
	"sync"
	"time"

	"paytrack/internal/domain/payment"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	PollInterval  = 3 * time.Second
	TickInterval  = time.Second
	ExpirySeconds = 300
	MaxPolls      = 60
)

var (
	ErrEmptyToken     = errors.New("tracker: payment token is empty")
	ErrAlreadyStarted = errors.New("tracker: session already started")
)

// StatusFetcher is the Payment Status Provider as seen by the tracker.
type StatusFetcher interface {
	FetchStatus(ctx context.Context, token payment.Token) (*payment.Payload, error)
}

type Option func(*Tracker)

// WithClock replaces the wall clock, mostly for tests.
func WithClock(c Clock) Option { return func(t *Tracker) { t.clock = c } }

// WithOnChange registers an observer called, in order and off the tracker's
// lock, after every change to the read model. The last call carries a terminal phase.
func WithOnChange(fn func(Snapshot)) Option { return func(t *Tracker) { t.onChange = fn } }

// WithDropStale ignores a poll response when a later-issued one was already applied.
func WithDropStale() Option { return func(t *Tracker) { t.dropStale = true } }

// Tracker owns a single polling session. Create a new Tracker per payment token.
type Tracker struct {
	fetcher   StatusFetcher
	clock     Clock
	phone     string
	onChange  func(Snapshot)
	dropStale bool

	mu         sync.Mutex
	sessionID  string
	token      payment.Token
	phase      Phase
	state      *payment.State
	elapsed    int
	expired    bool
	pollCount  int
	last       *payment.Payload
	stopReason string
	startedAt  time.Time
	endedAt    time.Time
	issuedSeq  uint64
	appliedSeq uint64

	cancel     context.CancelFunc
	pollTicker Ticker
	tickTicker Ticker
	done       chan struct{}

	outbox       []Snapshot
	signal       chan struct{}
	dispatchDone chan struct{}
}

// New creates an idle tracker. phone is display-only and never used for logic.
func New(fetcher StatusFetcher, phone string, opts ...Option) *Tracker {
	t := &Tracker{
		fetcher: fetcher,
		clock:   RealClock,
		phone:   phone,
		phase:   PhaseIdle,
		done:    make(chan struct{}),
		signal:  make(chan struct{}, 1),

		dispatchDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start issues an immediate status fetch and schedules the poll and elapsed
// tickers. Fetch failures are logged, never returned; only precondition
// violations are errors. Cancelling ctx is equivalent to calling Stop.
func (t *Tracker) Start(ctx context.Context, token payment.Token) error {
	if token.Empty() {
		return ErrEmptyToken
	}

	t.mu.Lock()
	if t.phase != PhaseIdle {
		t.mu.Unlock()
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.sessionID = uuid.NewString()
	t.token = token
	t.startedAt = t.clock.Now()
	t.phase = PhasePolling
	t.pollTicker = t.clock.NewTicker(PollInterval)
	t.tickTicker = t.clock.NewTicker(TickInterval)

	seq := t.issuePollLocked()
	t.publishLocked()
	pollC, tickC := t.pollTicker.C(), t.tickTicker.C()
	t.mu.Unlock()

	log.Info().
		Str("session_id", t.sessionID).
		Str("payment_token", token.String()).
		Msg("payment tracking started")

	if t.onChange != nil {
		go t.dispatch()
	}
	go t.fetch(ctx, token, seq)
	go t.loop(ctx, pollC, tickC)
	return nil
}

// Stop cancels both tickers. It is idempotent and safe on an idle tracker;
// once it returns the read model no longer changes.
func (t *Tracker) Stop() {
	t.mu.Lock()
	stopped := t.stopLocked(PhaseStopped, "stopped by caller")
	if stopped {
		t.publishLocked()
	}
	snap := t.snapshotLocked()
	t.mu.Unlock()

	if stopped {
		logFinished(snap)
	}
}

// Done is closed once a started session has ended, its loop has exited and
// any observer has been handed the terminal snapshot. An observer must not
// wait on Done itself.
func (t *Tracker) Done() <-chan struct{} { return t.done }

// Snapshot returns a copy of the read model.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tracker) loop(ctx context.Context, pollC, tickC <-chan time.Time) {
	for {
		select {
		case <-ctx.Done():
			t.Stop()
			if t.onChange != nil {
				<-t.dispatchDone
			}
			close(t.done)
			return
		case <-pollC:
			t.onPollTick(ctx)
		case <-tickC:
			t.onTick()
		}
	}
}

func (t *Tracker) onPollTick(ctx context.Context) {
	t.mu.Lock()
	if t.phase != PhasePolling {
		t.mu.Unlock()
		return
	}
	seq := t.issuePollLocked()
	token := t.token
	t.publishLocked()
	t.mu.Unlock()

	// Fire and forget: a slow response may overlap the next tick.
	go t.fetch(ctx, token, seq)
}

// issuePollLocked counts one poll attempt and enforces the poll ceiling.
func (t *Tracker) issuePollLocked() uint64 {
	t.pollCount++
	t.issuedSeq++
	if t.pollCount >= MaxPolls {
		t.pollTicker.Stop()
		t.phase = PhasePollingExhausted
		log.Warn().
			Str("session_id", t.sessionID).
			Int("poll_count", t.pollCount).
			Int("elapsed_seconds", t.elapsed).
			Msg("poll ceiling reached, waiting for expiry")
	}
	return t.issuedSeq
}

func (t *Tracker) onTick() {
	t.mu.Lock()
	if t.phase.Terminal() {
		t.mu.Unlock()
		return
	}
	t.elapsed++
	ended := false
	if t.elapsed >= ExpirySeconds {
		t.expired = true
		ended = t.stopLocked(PhaseExpired, "payment confirmation timed out")
	}
	t.publishLocked()
	snap := t.snapshotLocked()
	t.mu.Unlock()

	if ended {
		logFinished(snap)
	}
}

func (t *Tracker) fetch(ctx context.Context, token payment.Token, seq uint64) {
	p, err := t.fetcher.FetchStatus(ctx, token)

	t.mu.Lock()
	if t.phase.Terminal() {
		t.mu.Unlock()
		return
	}
	if err != nil {
		count := t.pollCount
		t.mu.Unlock()
		log.Warn().Err(err).
			Str("session_id", t.sessionID).
			Str("payment_token", token.String()).
			Uint64("seq", seq).
			Int("poll_count", count).
			Msg("payment status poll failed")
		return
	}
	if t.dropStale && seq < t.appliedSeq {
		t.mu.Unlock()
		log.Debug().
			Str("session_id", t.sessionID).
			Uint64("seq", seq).
			Msg("dropping stale poll response")
		return
	}

	t.appliedSeq = seq
	t.last = p
	st := p.Status
	t.state = &st

	ended := false
	switch {
	case st == payment.StateCompleted:
		ended = t.stopLocked(PhaseCompleted, "")
	case st == payment.StateFailed:
		reason := ""
		if p.FailureDetails != nil {
			reason = p.FailureDetails.Message
		}
		ended = t.stopLocked(PhaseFailed, reason)
	case p.Polling.ShouldStop:
		ended = t.stopLocked(PhaseStoppedByServer, p.Polling.Reason)
	}
	t.publishLocked()
	snap := t.snapshotLocked()
	t.mu.Unlock()

	log.Debug().
		Str("session_id", snap.SessionID).
		Str("status", string(st)).
		Bool("should_stop", p.Polling.ShouldStop).
		Int("poll_count", snap.PollCount).
		Msg("payment status received")
	if ended {
		logFinished(snap)
	}
}

// stopLocked moves a running session to a terminal phase and releases its
// tickers. It reports false when there was nothing to stop.
func (t *Tracker) stopLocked(phase Phase, reason string) bool {
	if t.phase == PhaseIdle || t.phase.Terminal() {
		return false
	}
	t.phase = phase
	t.stopReason = reason
	t.endedAt = t.clock.Now()
	t.pollTicker.Stop()
	t.tickTicker.Stop()
	t.cancel()
	return true
}

func (t *Tracker) snapshotLocked() Snapshot {
	s := Snapshot{
		SessionID:      t.sessionID,
		Token:          t.token,
		Phone:          t.phone,
		Phase:          t.phase,
		ElapsedSeconds: t.elapsed,
		Expired:        t.expired,
		PollCount:      t.pollCount,
		StopReason:     t.stopReason,
		StartedAt:      t.startedAt,
	}
	if t.last != nil {
		p := *t.last
		s.LastPollResult = &p
	}
	if !t.endedAt.IsZero() {
		e := t.endedAt
		s.EndedAt = &e
	}
	if t.state != nil {
		st := *t.state
		s.CurrentState = &st
	}
	return s
}

// publishLocked queues the current snapshot for the observer.
func (t *Tracker) publishLocked() {
	if t.onChange == nil {
		return
	}
	t.outbox = append(t.outbox, t.snapshotLocked())
	select {
	case t.signal <- struct{}{}:
	default:
	}
}

// dispatch delivers queued snapshots until the terminal one.
func (t *Tracker) dispatch() {
	defer close(t.dispatchDone)
	for range t.signal {
		t.mu.Lock()
		batch := t.outbox
		t.outbox = nil
		t.mu.Unlock()

		for _, s := range batch {
			t.onChange(s)
			if s.Phase.Terminal() {
				return
			}
		}
	}
}

func logFinished(s Snapshot) {
	ev := log.Info()
	if s.Phase == PhaseFailed || s.Phase == PhaseExpired {
		ev = log.Warn()
	}
	ev.Str("session_id", s.SessionID).
		Str("payment_token", s.Token.String()).
		Str("phase", string(s.Phase)).
		Str("outcome", string(s.Outcome())).
		Str("reason", s.StopReason).
		Int("poll_count", s.PollCount).
		Int("elapsed_seconds", s.ElapsedSeconds).
		Msg("payment tracking finished")
}
