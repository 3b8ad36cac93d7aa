package transloadit

import (
	"errors"
	"slices"
)

// State is the client-side lifecycle state of an assembly request.
type State string

const (
	// StateSubmitted indicates the create request is being sent (possibly retried).
	StateSubmitted State = "SUBMITTED"
	// StatePolling indicates the assembly was accepted and is being polled.
	StatePolling State = "POLLING"
	// StateSucceeded indicates the assembly completed.
	StateSucceeded State = "SUCCEEDED"
	// StateFailed indicates the service reported an error or rejected the request.
	StateFailed State = "FAILED"
	// StateRetriesExhausted indicates the attempt or poll budget ran out.
	StateRetriesExhausted State = "RETRIES_EXHAUSTED"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("transloadit: invalid state transition")

// validTransitions defines which state transitions are allowed.
// Self transitions record a retried submit or another poll round.
var validTransitions = map[State][]State{
	StateSubmitted:        {StateSubmitted, StatePolling, StateSucceeded, StateFailed, StateRetriesExhausted},
	StatePolling:          {StatePolling, StateSucceeded, StateFailed, StateRetriesExhausted},
	StateSucceeded:        {},
	StateFailed:           {},
	StateRetriesExhausted: {},
}

// IsTerminal returns true if the state is a terminal state.
func (s State) IsTerminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateRetriesExhausted
}

// Execution records how an assembly request progressed. It is returned
// alongside any error so callers can inspect how far the request got.
type Execution struct {
	// State is the current state.
	State State
	// Transitions counts every state change, including self transitions.
	Transitions int
	// Attempts counts create requests sent.
	Attempts int
	// Failures counts retryable failures across create and poll requests.
	// The request gives up once Failures reaches the client's attempt budget.
	Failures int
	// Polls counts status requests issued after submission.
	Polls int
	// History lists every state entered, starting with StateSubmitted.
	History []State
	// Response is the last status document received, if any.
	Response *Response
}

func newExecution() *Execution {
	return &Execution{
		State:   StateSubmitted,
		History: []State{StateSubmitted},
	}
}

// transition moves the execution to the given state.
func (e *Execution) transition(to State) error {
	if !slices.Contains(validTransitions[e.State], to) {
		return ErrInvalidTransition
	}
	e.State = to
	e.Transitions++
	e.History = append(e.History, to)
	return nil
}
