package handlers

import (
	"errors"
	"fmt"
)

// Phase is the state of the current submission.
type Phase string

const (
	// PhaseIdle is the state before the first submission.
	PhaseIdle Phase = "idle"
	// PhaseAwaitingResponse is entered on submission and lasts until the backend answers.
	PhaseAwaitingResponse Phase = "awaiting-response"
	// PhaseStreaming is entered once the backend answered with a success status.
	PhaseStreaming Phase = "streaming"
	// PhaseDone is entered when the response stream ended.
	PhaseDone Phase = "done"
	// PhaseFailed is entered when the request or the stream failed.
	PhaseFailed Phase = "failed"
)

// ErrInvalidTransition is returned when a phase change is not allowed from the current phase.
var ErrInvalidTransition = errors.New("invalid phase transition")

var transitions = map[Phase][]Phase{
	PhaseIdle:             {PhaseAwaitingResponse},
	PhaseDone:             {PhaseAwaitingResponse},
	PhaseFailed:           {PhaseAwaitingResponse},
	PhaseAwaitingResponse: {PhaseStreaming, PhaseFailed},
	PhaseStreaming:        {PhaseStreaming, PhaseDone, PhaseFailed},
}

// Loading reports whether a submission is in flight.
func (p Phase) Loading() bool {
	return p == PhaseAwaitingResponse || p == PhaseStreaming
}

// Next returns to if the transition from p is allowed.
func (p Phase) Next(to Phase) (Phase, error) {
	for _, allowed := range transitions[p] {
		if allowed == to {
			return to, nil
		}
	}
	return p, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p, to)
}
