package crawler

import "time"

// State is the crawl driver's state tag.
type State string

const (
	StatePaging      State = "paging"
	StateWindowShift State = "window_shift"
	StateKeyRotate   State = "key_rotate"
	StateDone        State = "done"
)

// ValidTransitions defines allowed state transitions.
// Key is the current state, value is the list of valid next states.
var ValidTransitions = map[State][]State{
	StatePaging:      {StateWindowShift, StateKeyRotate, StateDone},
	StateWindowShift: {StatePaging, StateDone},
	StateKeyRotate:   {StatePaging, StateDone},
}

// CanTransition checks if a transition from one state to another is valid.
func CanTransition(from, to State) bool {
	for _, target := range ValidTransitions[from] {
		if target == to {
			return true
		}
	}
	return false
}

// Transition represents a state change with metadata.
type Transition struct {
	From      State
	To        State
	Reason    string
	Timestamp time.Time
}

// NewTransition creates a new transition record.
func NewTransition(from, to State, reason string) Transition {
	return Transition{
		From:      from,
		To:        to,
		Reason:    reason,
		Timestamp: time.Now(),
	}
}

// IsValid returns true if this transition is allowed by the state machine.
func (t Transition) IsValid() bool {
	return CanTransition(t.From, t.To)
}

// StopReason explains why a crawl reached StateDone.
type StopReason string

const (
	StopNone               StopReason = ""
	StopEmptyPage          StopReason = "empty_page"
	StopRangeExhausted     StopReason = "range_exhausted"
	StopPageBudget         StopReason = "page_budget"
	StopPoolExhausted      StopReason = "pool_exhausted"
	StopWindowUnshrinkable StopReason = "window_unshrinkable"
	StopRetriesExceeded    StopReason = "retries_exceeded"
	StopCanceled           StopReason = "canceled"
)

// Abnormal reports whether the crawl ended on a failure rather than exhaustion.
func (r StopReason) Abnormal() bool {
	switch r {
	case StopPoolExhausted, StopWindowUnshrinkable, StopRetriesExceeded, StopCanceled:
		return true
	default:
		return false
	}
}
