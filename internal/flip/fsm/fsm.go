package fsm

import "fmt"

// Purchase modes a flip session can be in.
const (
	ModeStandard = "standard"
	ModeFlip     = "flip"
)

// Request statuses of the single pricing request a session may own.
const (
	RequestIdle     = "idle"
	RequestPending  = "pending"
	RequestResolved = "resolved"
	RequestFailed   = "failed"
)

var transitions = map[string]map[string]struct{}{
	RequestIdle:     {RequestPending: {}},
	RequestPending:  {RequestResolved: {}, RequestFailed: {}},
	RequestResolved: {RequestIdle: {}},
	RequestFailed:   {RequestIdle: {}},
}

// CanTransition reports whether the request may move from one status to another.
// Unlike order statuses, a request never transitions to itself: a second
// Pending would mean a second outstanding call.
func CanTransition(from, to string) bool {
	allowed, ok := transitions[from]
	if !ok {
		return false
	}
	_, ok = allowed[to]
	return ok
}

// Validate returns an error describing a forbidden transition.
func Validate(from, to string) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("invalid request transition %s -> %s", from, to)
	}
	return nil
}

// Locked reports whether a request in this status holds the mode lock.
func Locked(status string) bool {
	return status != RequestIdle
}

// Terminal reports whether the request has an answer awaiting accept or cancel.
func Terminal(status string) bool {
	return status == RequestResolved || status == RequestFailed
}

// ValidMode reports whether mode names a known purchase mode.
func ValidMode(mode string) bool {
	return mode == ModeStandard || mode == ModeFlip
}
