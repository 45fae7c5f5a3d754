package models

// PollResult is the command state returned by the control server on each poll.
type PollResult struct {
	Wake      bool   `json:"wake"`
	Shutdown  bool   `json:"shutdown"`
	RequestID string `json:"id"` // empty when no request is pending
}

// Ack is the acknowledgment body sent back to the control server.
type Ack struct {
	RequestID string `json:"id"`
	Status    string `json:"status"`
	Action    string `json:"action"`
}

// AckStatusSent is the only status the agent reports.
const AckStatusSent = "sent"

// PollOutcome holds the result of a single poll.
type PollOutcome struct {
	Result     PollResult
	StatusCode int
	Error      error
}

// AckResult holds the result of an acknowledgment call.
type AckResult struct {
	Sent       bool
	StatusCode int
	Error      error
}
