// Package funding holds the ledger arithmetic applied when a confirmed
// donation reaches a campaign. Everything here is pure; persistence and
// retries live in the campaigns service.
package funding

import (
	"fmt"
	"math"
	"time"

	"kvtogether_backend/internals/features/campaigns/lifecycle"
)

const CeilingPercent = 105

// MaxTarget is the largest target whose ceiling still fits in an int64.
const MaxTarget int64 = math.MaxInt64 / CeilingPercent

// State is the funding-relevant slice of a campaign.
type State struct {
	Target  int64
	Current int64
	Status  lifecycle.State
}

// Decision is the outcome of applying one donation to a State.
type Decision struct {
	Amount          int64
	PreviousCurrent int64
	NewCurrent      int64
	Ceiling         int64
	MaxAccepted     int64
	Completes       bool
	Event           EventKind
}

// Ceiling is floor(target * 105 / 100). Targets above MaxTarget saturate
// at math.MaxInt64 instead of wrapping.
func Ceiling(target int64) int64 {
	if target <= 0 {
		return 0
	}
	if target > MaxTarget {
		return math.MaxInt64
	}
	return target * CeilingPercent / 100
}

// ValidateTarget accepts targets in (0, MaxTarget].
func ValidateTarget(target int64) error {
	switch {
	case target <= 0:
		return ErrInvalidAmount
	case target > MaxTarget:
		return fmt.Errorf("%w: %d > %d", ErrTargetTooLarge, target, MaxTarget)
	}
	return nil
}

// MaxAcceptable is the largest single donation the campaign can take now.
func MaxAcceptable(s State) int64 {
	if !s.Status.AcceptsDonations() {
		return 0
	}
	remainingToTarget := s.Target - s.Current
	remainingToCeiling := Ceiling(s.Target) - s.Current
	return max(0, min(remainingToTarget, remainingToCeiling))
}

// Plan applies amount to s. On success the returned Decision carries the
// new running total and whether the campaign completes.
func Plan(s State, amount int64) (Decision, error) {
	if !s.Status.AcceptsDonations() {
		return Decision{}, ErrInvalidState
	}
	if amount <= 0 {
		return Decision{}, &RejectionError{Reason: ErrInvalidAmount, Requested: amount}
	}

	ceiling := Ceiling(s.Target)
	remainingToTarget := s.Target - s.Current
	if remainingToTarget <= 0 {
		return Decision{}, &RejectionError{Reason: ErrAlreadyFunded, Requested: amount}
	}
	remainingToCeiling := ceiling - s.Current
	if remainingToCeiling <= 0 {
		return Decision{}, &RejectionError{Reason: ErrCeilingReached, Requested: amount}
	}

	maxAccepted := min(remainingToTarget, remainingToCeiling)
	if amount > maxAccepted {
		return Decision{}, &RejectionError{Reason: ErrExceedsMaximum, Requested: amount, MaxAccepted: maxAccepted}
	}

	d := Decision{
		Amount:          amount,
		PreviousCurrent: s.Current,
		NewCurrent:      s.Current + amount,
		Ceiling:         ceiling,
		MaxAccepted:     maxAccepted,
	}
	if d.NewCurrent >= s.Target {
		d.Completes = true
		d.Event = EventCampaignCompleted
	}
	return d, nil
}

// Quote tells a donor how much of a requested amount the campaign can take.
// It never fails; Excess is the part that would be refused.
type Quote struct {
	Requested   int64 `json:"requested"`
	MaxAccepted int64 `json:"max_accepted"`
	Accepted    int64 `json:"accepted"`
	Excess      int64 `json:"excess"`
}

func QuoteFor(s State, requested int64) Quote {
	m := MaxAcceptable(s)
	q := Quote{Requested: requested, MaxAccepted: m}
	if requested <= 0 {
		return q
	}
	q.Accepted = min(requested, m)
	q.Excess = requested - q.Accepted
	return q
}

// Intake bundles the pre-payment guards applied before a donation is
// created and money is requested from the donor.
type Intake struct {
	Amount  int64
	Minimum int64
	EndDate *time.Time
	Now     time.Time
}

// CheckIntake runs the caller-side guards, then the same arithmetic Plan uses.
// When the remaining capacity is below the configured minimum, the exact
// remaining amount is still accepted so the campaign can close.
func CheckIntake(s State, in Intake) error {
	if s.Status == lifecycle.Completed {
		return &RejectionError{Reason: ErrAlreadyFunded, Requested: in.Amount}
	}
	if !s.Status.AcceptsDonations() {
		return ErrInvalidState
	}
	if in.EndDate != nil && !in.Now.Before(*in.EndDate) {
		return &RejectionError{Reason: ErrCampaignEnded, Requested: in.Amount}
	}
	if in.Amount <= 0 {
		return &RejectionError{Reason: ErrInvalidAmount, Requested: in.Amount}
	}
	minimum := in.Minimum
	if m := MaxAcceptable(s); m > 0 && m < minimum {
		minimum = m
	}
	if in.Amount < minimum {
		return &RejectionError{Reason: ErrBelowMinimum, Requested: in.Amount, Minimum: minimum, MaxAccepted: MaxAcceptable(s)}
	}
	_, err := Plan(s, in.Amount)
	return err
}
