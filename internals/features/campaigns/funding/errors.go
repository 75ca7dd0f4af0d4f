package funding

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidState: reconcile called on a campaign that is not active.
	ErrInvalidState = errors.New("campaign is not accepting donations")
	// ErrAlreadyFunded: current amount already reached the target.
	ErrAlreadyFunded = errors.New("campaign already reached its target")
	// ErrCeilingReached: current amount already reached the 105% ceiling.
	ErrCeilingReached = errors.New("campaign reached its funding ceiling")
	// ErrExceedsMaximum: donation is larger than the remaining capacity.
	ErrExceedsMaximum = errors.New("donation exceeds the maximum acceptable amount")
	// ErrDuplicateReconciliation: the donation was applied before; the prior result stands.
	ErrDuplicateReconciliation = errors.New("donation already reconciled")
	// ErrConcurrencyConflict: the campaign row changed under us; retry with fresh state.
	ErrConcurrencyConflict = errors.New("campaign changed concurrently")

	ErrInvalidAmount = errors.New("donation amount must be positive")
	ErrBelowMinimum  = errors.New("donation is below the minimum amount")
	ErrCampaignEnded = errors.New("campaign end date has passed")

	ErrTargetTooLarge = errors.New("target amount exceeds the supported maximum")
)

// RejectionError is a business rejection raised before any money is taken.
// MaxAccepted is what the caller should quote back to the donor.
type RejectionError struct {
	Reason      error
	Requested   int64
	MaxAccepted int64
	Minimum     int64
}

func (e *RejectionError) Error() string {
	switch {
	case errors.Is(e.Reason, ErrExceedsMaximum):
		return fmt.Sprintf("%v: requested %d, maximum acceptable is %d", e.Reason, e.Requested, e.MaxAccepted)
	case errors.Is(e.Reason, ErrBelowMinimum):
		return fmt.Sprintf("%v: requested %d, minimum is %d", e.Reason, e.Requested, e.Minimum)
	default:
		return e.Reason.Error()
	}
}

func (e *RejectionError) Unwrap() error { return e.Reason }

// IsBusinessRejection reports whether err is a donor-facing rejection
// rather than a storage or state fault.
func IsBusinessRejection(err error) bool {
	var rej *RejectionError
	return errors.As(err, &rej)
}
