// Package router decides what the agent does with each poll result and when
// an outstanding shutdown is re-issued. It performs no I/O.
package router

import (
	"time"

	"github.com/fgeck/powerctl/internal/models"
)

// Reasons reported alongside ActionNone.
const (
	ReasonNoRequest = "no pending request"
	ReasonDuplicate = "duplicate request"
	ReasonNoAction  = "request carries no action"
)

// Decision is the outcome of evaluating one poll result.
type Decision struct {
	Action    models.Action
	RequestID string
	Reason    string // set when Action is ActionNone
}

// Evaluate routes a poll result against the current state and returns the
// action to dispatch together with the state to adopt before dispatching.
// Wake takes priority when both flags are set.
func Evaluate(poll models.PollResult, state models.ControllerState, now time.Time) (Decision, models.ControllerState) {
	id := poll.RequestID

	switch {
	case id == "":
		return Decision{Action: models.ActionNone, Reason: ReasonNoRequest}, state
	case id == state.LastProcessedRequestID:
		return Decision{Action: models.ActionNone, RequestID: id, Reason: ReasonDuplicate}, state
	case poll.Wake:
		state.ShutdownMode = false
		state.LastProcessedRequestID = id
		return Decision{Action: models.ActionWake, RequestID: id}, state
	case poll.Shutdown:
		state.ShutdownMode = true
		state.LastProcessedRequestID = id
		state.LastShutdownAttempt = now
		return Decision{Action: models.ActionShutdown, RequestID: id}, state
	default:
		return Decision{Action: models.ActionNone, RequestID: id, Reason: ReasonNoAction}, state
	}
}

// RetryDue reports whether an outstanding shutdown should be re-issued.
func RetryDue(state models.ControllerState, now time.Time, interval time.Duration) bool {
	return state.ShutdownMode && now.Sub(state.LastShutdownAttempt) >= interval
}

// MarkRetry records a shutdown re-issue at now. The processed request id is
// left untouched.
func MarkRetry(state models.ControllerState, now time.Time) models.ControllerState {
	state.LastShutdownAttempt = now
	return state
}
