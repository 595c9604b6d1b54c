package tracker

import (
	"time"

	"paytrack/internal/domain/payment"
)

// Phase is the tracker's own lifecycle, separate from the server's PaymentState.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhasePolling Phase = "polling"
	// PhasePollingExhausted: the poll ceiling was hit but the elapsed
	// clock keeps running until expiry.
	PhasePollingExhausted Phase = "polling_exhausted"
	PhaseCompleted        Phase = "completed"
	PhaseFailed           Phase = "failed"
	PhaseExpired          Phase = "expired"
	PhaseStoppedByServer  Phase = "stopped_by_server"
	PhaseStopped          Phase = "stopped"
)

// Terminal reports whether the session has ended.
func (p Phase) Terminal() bool {
	switch p {
	case PhaseCompleted, PhaseFailed, PhaseExpired, PhaseStoppedByServer, PhaseStopped:
		return true
	}
	return false
}

// Outcome is the coarse result a presentation layer renders.
type Outcome string

const (
	OutcomeWaiting         Outcome = "waiting"
	OutcomeSucceeded       Outcome = "succeeded"
	OutcomeFailedByGateway Outcome = "failed_by_gateway"
	OutcomeExpired         Outcome = "expired"
	// OutcomeHalted covers server stop directives and caller stops
	// that ended without a terminal payment state.
	OutcomeHalted Outcome = "halted"
)

// Snapshot is a copy of the tracker's read model.
type Snapshot struct {
	SessionID      string           `json:"session_id"`
	Token          payment.Token    `json:"token"`
	Phone          string           `json:"phone,omitempty"`
	Phase          Phase            `json:"phase"`
	CurrentState   *payment.State   `json:"current_state,omitempty"`
	ElapsedSeconds int              `json:"elapsed_seconds"`
	Expired        bool             `json:"expired"`
	PollCount      int              `json:"poll_count"`
	LastPollResult *payment.Payload `json:"last_poll_result,omitempty"`
	StopReason     string           `json:"stop_reason,omitempty"`
	StartedAt      time.Time        `json:"started_at"`
	EndedAt        *time.Time       `json:"ended_at,omitempty"`
}

// Outcome maps the snapshot to what the user should be told. Expiry wins
// over any last known state because the gateway never confirmed it.
func (s Snapshot) Outcome() Outcome {
	if s.Expired {
		return OutcomeExpired
	}
	if s.CurrentState != nil {
		switch *s.CurrentState {
		case payment.StateCompleted:
			return OutcomeSucceeded
		case payment.StateFailed:
			return OutcomeFailedByGateway
		}
	}
	if s.Phase == PhaseStoppedByServer || s.Phase == PhaseStopped {
		return OutcomeHalted
	}
	return OutcomeWaiting
}
