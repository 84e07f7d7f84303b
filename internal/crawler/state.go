package crawler

import "sync/atomic"

// State is the lifecycle stage of a crawl.
type State string

// Crawl states. Done, Capped and Canceled are terminal.
const (
	StateSeeded   State = "seeded"
	StateRunning  State = "running"
	StateDraining State = "draining"
	StateDone     State = "done"
	StateCapped   State = "capped"
	StateCanceled State = "canceled"
)

var stateNames = [...]State{StateSeeded, StateRunning, StateDraining, StateDone, StateCapped, StateCanceled}

// StateTracker holds the crawl state and enforces legal transitions. Workers
// flip between running and draining; capped sticks once set.
type StateTracker struct {
	v atomic.Int32
}

// NewStateTracker starts in the seeded state.
func NewStateTracker() *StateTracker {
	return &StateTracker{}
}

// Current returns the current state.
func (s *StateTracker) Current() State {
	return stateNames[s.v.Load()]
}

// MarkRunning records that a worker picked up work.
func (s *StateTracker) MarkRunning() {
	s.v.CompareAndSwap(index(StateSeeded), index(StateRunning))
	s.v.CompareAndSwap(index(StateDraining), index(StateRunning))
}

// MarkDraining records that the queue ran dry while fetches are in flight.
func (s *StateTracker) MarkDraining() {
	s.v.CompareAndSwap(index(StateRunning), index(StateDraining))
}

// MarkCapped records that the page cap was hit. It reports whether this call
// performed the transition.
func (s *StateTracker) MarkCapped() bool {
	for {
		cur := s.v.Load()
		if stateNames[cur] == StateCapped || isTerminal(stateNames[cur]) {
			return false
		}
		if s.v.CompareAndSwap(cur, index(StateCapped)) {
			return true
		}
	}
}

// Finish moves to the terminal state. canceled wins over everything but capped.
func (s *StateTracker) Finish(canceled bool) State {
	for {
		cur := s.v.Load()
		state := stateNames[cur]
		if state == StateCapped || isTerminal(state) {
			return state
		}
		next := StateDone
		if canceled {
			next = StateCanceled
		}
		if s.v.CompareAndSwap(cur, index(next)) {
			return next
		}
	}
}

func isTerminal(s State) bool {
	return s == StateDone || s == StateCanceled
}

func index(s State) int32 {
	for i, name := range stateNames {
		if name == s {
			return int32(i)
		}
	}
	return 0
}
