package domain

import "time"

// State is the delivery lifecycle state of a scheduled notification.
type State string

const (
	StatePending   State = "PENDING"   // eligible to run as soon as picked up
	StateScheduled State = "SCHEDULED" // has a future due instant
	StateQueued    State = "QUEUED"    // attempt in flight
	StateRetrying  State = "RETRYING"  // transient failure, will be retried
	StateSent      State = "SENT"      // terminal success
	StateFailed    State = "FAILED"    // terminal, retries exhausted
	StateCanceled  State = "CANCELED"  // terminal, user/operator aborted
)

// transitions lists the legal target states for each non-terminal state.
// Terminal states have no entries: nothing leaves SENT, FAILED or CANCELED.
var transitions = map[State][]State{
	StatePending:   {StateQueued, StateCanceled},
	StateScheduled: {StateQueued, StateCanceled},
	StateRetrying:  {StateQueued, StateCanceled},
	// QUEUED -> QUEUED covers a re-claim of a stuck in-flight record.
	StateQueued: {StateQueued, StateSent, StateRetrying, StateFailed, StateCanceled},
}

// Terminal reports whether the state permits no further transitions.
func (s State) Terminal() bool {
	return s == StateSent || s == StateFailed || s == StateCanceled
}

// AttemptEligible reports whether a delivery worker may pick the record up.
func (s State) AttemptEligible() bool {
	return s == StatePending || s == StateScheduled || s == StateRetrying || s == StateQueued
}

// CanTransition reports whether moving from s to target is a legal transition.
func (s State) CanTransition(target State) bool {
	for _, t := range transitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// InitialState returns the state a freshly created record starts in:
// SCHEDULED when the effective instant is strictly in the future, else PENDING.
func InitialState(sendAt, now time.Time) State {
	if sendAt.After(now) {
		return StateScheduled
	}
	return StatePending
}
