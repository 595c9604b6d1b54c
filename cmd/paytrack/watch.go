package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"paytrack/internal/domain/payment"
	"paytrack/internal/tracker"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	watchToken string
	watchPhone string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Track one payment until it reaches a final state",
	Long:  "Poll the payment status endpoint for a token. Exit code is 0 on completed, 1 on failed, 2 on expiry or any other halt.",
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchToken, "token", "", "payment token issued when the payment was initiated")
	watchCmd.Flags().StringVar(&watchPhone, "phone", "", "phone number shown in messages")
	_ = watchCmd.MarkFlagRequired("token")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(_ *cobra.Command, _ []string) error {
	if watchPhone != "" {
		phone, err := payment.NewPhoneValidator(cfg.Tracker.PhoneCountry).Normalize(watchPhone)
		if err != nil {
			return err
		}
		watchPhone = phone
	}

	store, cleanup := newTokenStore()
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var last tracker.Snapshot
	opts := []tracker.Option{tracker.WithOnChange(func(s tracker.Snapshot) {
		if s.Phase != last.Phase || !sameState(s.CurrentState, last.CurrentState) {
			ev := log.Info().
				Str("phase", string(s.Phase)).
				Str("outcome", string(s.Outcome())).
				Int("elapsed_seconds", s.ElapsedSeconds).
				Int("poll_count", s.PollCount)
			if s.CurrentState != nil {
				ev = ev.Str("status", string(*s.CurrentState))
			}
			ev.Msg(message(s, watchPhone))
		}
		last = s
	})}
	if cfg.Tracker.DropStale {
		opts = append(opts, tracker.WithDropStale())
	}

	tr := tracker.New(newStatusClient(store), watchPhone, opts...)
	if err := tr.Start(ctx, payment.Token(watchToken)); err != nil {
		return err
	}
	<-tr.Done()

	s := tr.Snapshot()
	if p := s.LastPollResult; p != nil && p.Gateway != nil && p.Gateway.TransactionID != "" {
		log.Info().Str("transaction_id", p.Gateway.TransactionID).Str("amount", p.Amount.String()).Msg("payment receipt")
	}
	if code := exitCode(s.Outcome()); code != 0 {
		return &exitError{code: code, outcome: s.Outcome()}
	}
	return nil
}

// exitError carries the process exit code for a finished watch.
type exitError struct {
	code    int
	outcome tracker.Outcome
}

func (e *exitError) Error() string { return fmt.Sprintf("payment %s", e.outcome) }

// exitCode maps a session outcome to the watch exit status.
func exitCode(o tracker.Outcome) int {
	switch o {
	case tracker.OutcomeSucceeded:
		return 0
	case tracker.OutcomeFailedByGateway:
		return 1
	default:
		return 2
	}
}

func sameState(a, b *payment.State) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// message is the user-facing line for a snapshot.
func message(s tracker.Snapshot, phone string) string {
	switch s.Outcome() {
	case tracker.OutcomeExpired:
		return "Payment timed out before it was confirmed"
	case tracker.OutcomeSucceeded:
		return "Payment confirmed"
	case tracker.OutcomeFailedByGateway:
		if p := s.LastPollResult; p != nil && p.FailureDetails != nil && p.FailureDetails.Message != "" {
			return "Payment failed: " + p.FailureDetails.Message
		}
		return "Payment failed"
	case tracker.OutcomeHalted:
		return "Payment tracking stopped"
	}
	if s.CurrentState != nil && *s.CurrentState == payment.StateProcessing {
		return "Processing payment"
	}
	if phone != "" {
		return "Approve the payment on " + phone
	}
	return "Approve the payment on your phone"
}
