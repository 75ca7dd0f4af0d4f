// Package lifecycle holds the campaign state machine. It is pure: callers
// persist the resulting state with a conditional update on the previous one.
package lifecycle

import (
	"errors"
	"fmt"
	"strings"
)

type State string

const (
	Draft        State = "draft"
	Pending      State = "pending"
	Active       State = "active"
	Completed    State = "completed"
	EndedPartial State = "ended_partial"
	Cancelled    State = "cancelled"
	Rejected     State = "rejected"
)

var AllStates = []State{Draft, Pending, Active, Completed, EndedPartial, Cancelled, Rejected}

type Event string

const (
	Submit        Event = "submit"
	Approve       Event = "approve"
	Reject        Event = "reject"
	TargetReached Event = "target_reached"
	ExpireRetain  Event = "expire_retain" // end_date passed, target unmet, funds kept
	ExpireRefund  Event = "expire_refund" // end_date passed, target unmet, refund donors
	Cancel        Event = "cancel"
)

var ErrInvalidTransition = errors.New("invalid campaign transition")

type TransitionError struct {
	From  State
	Event Event
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s a campaign in status %s", e.Event, e.From)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

var transitions = map[State]map[Event]State{
	Draft: {
		Submit: Pending,
	},
	Pending: {
		Approve: Active,
		Reject:  Rejected,
	},
	Active: {
		TargetReached: Completed,
		ExpireRetain:  EndedPartial,
		ExpireRefund:  Cancelled,
		Cancel:        Cancelled,
	},
}

// Next returns the state reached by applying ev to from.
func Next(from State, ev Event) (State, error) {
	if to, ok := transitions[from][ev]; ok {
		return to, nil
	}
	return from, &TransitionError{From: from, Event: ev}
}

func Can(from State, ev Event) bool {
	_, ok := transitions[from][ev]
	return ok
}

func ParseState(s string) (State, error) {
	st := State(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("unknown campaign status %q", s)
	}
	return st, nil
}

func (s State) Valid() bool {
	for _, st := range AllStates {
		if s == st {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition leaves s.
func (s State) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// Editable reports whether campaign details (including target) may still change.
func (s State) Editable() bool {
	return s == Draft || s == Pending
}

// AcceptsDonations is true only for active campaigns.
func (s State) AcceptsDonations() bool { return s == Active }

// ExpiryEvent picks the transition for an active campaign whose end_date
// passed with the target unmet.
func ExpiryEvent(refund bool) Event {
	if refund {
		return ExpireRefund
	}
	return ExpireRetain
}
