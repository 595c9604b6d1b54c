package payment

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Token is the opaque identifier the server issues for one payment attempt.
type Token string

func (t Token) String() string { return string(t) }

// Empty reports whether the token is blank after trimming.
func (t Token) Empty() bool { return strings.TrimSpace(string(t)) == "" }

// State represents the server-authoritative payment status
type State string

const (
	StatePending    State = "pending"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
	StateRefunded   State = "refunded"
)

// Valid reports whether s is one of the known states.
func (s State) Valid() bool {
	switch s {
	case StatePending, StateProcessing, StateCompleted, StateFailed, StateRefunded:
		return true
	}
	return false
}

// Terminal reports whether a poll returning s ends tracking.
// Refunded is not terminal; the server ends a refund flow through
// the polling directive.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Currency represents a currency code
type Currency string

const (
	KES Currency = "KES"
	USD Currency = "USD"
)

// Amount is the charged total as reported by the server.
type Amount struct {
	Total    float64  `json:"total"`
	Currency Currency `json:"currency"`
}

func (a Amount) String() string {
	return fmt.Sprintf("%.2f %s", a.Total, a.Currency)
}

// PollingDirective is the server's advice on whether to keep polling.
type PollingDirective struct {
	ShouldStop bool   `json:"should_stop"`
	Reason     string `json:"reason,omitempty"`
}

// UnmarshalJSON accepts both "stop" and "should_stop" for the flag.
func (d *PollingDirective) UnmarshalJSON(b []byte) error {
	var raw struct {
		Stop       *bool  `json:"stop"`
		ShouldStop *bool  `json:"should_stop"`
		Reason     string `json:"reason"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	d.Reason = raw.Reason
	d.ShouldStop = (raw.Stop != nil && *raw.Stop) || (raw.ShouldStop != nil && *raw.ShouldStop)
	return nil
}

// Gateway carries the mobile-money gateway metadata on terminal states.
type Gateway struct {
	Provider      string `json:"provider,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
	Reference     string `json:"reference,omitempty"`
	Message       string `json:"message,omitempty"`
}

// Escrow describes where captured funds are being held.
type Escrow struct {
	Status     string     `json:"status,omitempty"`
	HeldAmount float64    `json:"held_amount,omitempty"`
	ReleaseAt  *time.Time `json:"release_at,omitempty"`
}

// FailureDetails explains a failed state for display.
type FailureDetails struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	RetryAllowed bool   `json:"retry_allowed"`
}

// Payload is the body returned by the payment status endpoints.
type Payload struct {
	PaymentID      string           `json:"payment_id,omitempty"`
	Status         State            `json:"status"`
	Polling        PollingDirective `json:"polling"`
	Amount         Amount           `json:"amount"`
	Gateway        *Gateway         `json:"gateway,omitempty"`
	Escrow         *Escrow          `json:"escrow,omitempty"`
	FailureDetails *FailureDetails  `json:"failure_details,omitempty"`
	UpdatedAt      *time.Time       `json:"updated_at,omitempty"`
}

// Validate checks the fields the tracker relies on.
func (p *Payload) Validate() error {
	if !p.Status.Valid() {
		return DomainError{Code: ErrInvalidStatus, Message: fmt.Sprintf("unknown payment status %q", p.Status)}
	}
	return nil
}

// DomainError represents a domain-level error
type DomainError struct {
	Message string
	Code    string
}

func (e DomainError) Error() string {
	return fmt.Sprintf("domain error [%s]: %s", e.Code, e.Message)
}

// Domain error codes
const (
	ErrInvalidStatus = "INVALID_STATUS"
	ErrInvalidPhone  = "INVALID_PHONE"
)
