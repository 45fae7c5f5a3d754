package models

import "time"

// Action is what the agent decided to do with a poll result.
type Action int

// Actions the request router can produce.
const (
	ActionNone Action = iota
	ActionWake
	ActionShutdown
)

// String returns the wire name of the action, as used in acknowledgments.
func (a Action) String() string {
	switch a {
	case ActionWake:
		return "wake"
	case ActionShutdown:
		return "shutdown"
	default:
		return "none"
	}
}

// ControllerState is the agent's mutable state for the lifetime of the process.
// It is owned by the control loop and never shared between goroutines.
type ControllerState struct {
	LastProcessedRequestID string
	ShutdownMode           bool
	LastShutdownAttempt    time.Time
}

// ActionEvent describes an executed action, used for notifications.
type ActionEvent struct {
	Action    Action
	RequestID string
	Retry     bool // true for shutdown re-issues from the retry timer
	Time      time.Time
	Error     error // dispatch failure, if any
}
