package executor

import "time"

// State is a step of the retry state machine driving Execute.
type State int

const (
	StateAttempting      State = iota // an attempt is in flight
	StateBackoff                      // waiting before the next attempt
	StateSucceeded                    // a 2xx/3xx response was received
	StateFailedTerminal               // stop now, retrying cannot help
	StateFailedExhausted              // a transient failure on the last allowed attempt
)

func (s State) String() string {
	switch s {
	case StateAttempting:
		return "ATTEMPTING"
	case StateBackoff:
		return "BACKOFF"
	case StateSucceeded:
		return "SUCCEEDED"
	case StateFailedTerminal:
		return "FAILED-TERMINAL"
	case StateFailedExhausted:
		return "FAILED-EXHAUSTED"
	default:
		return "UNKNOWN"
	}
}

// Done reports whether s ends the call.
func (s State) Done() bool {
	return s == StateSucceeded || s == StateFailedTerminal || s == StateFailedExhausted
}

// Outcome is the classification of a single attempt.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeClientError
	OutcomeServerError
	OutcomeTimeout
	OutcomeNetworkFailure
	OutcomeUnrecognized
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeClientError:
		return "client_error"
	case OutcomeServerError:
		return "server_error"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeNetworkFailure:
		return "network_failure"
	case OutcomeUnrecognized:
		return "unrecognized"
	default:
		return "unknown"
	}
}

// Transient reports whether the outcome may be retried.
func (o Outcome) Transient() bool {
	return o == OutcomeServerError || o == OutcomeTimeout || o == OutcomeNetworkFailure
}

// ClassifyStatus maps a received status code to an outcome.
func ClassifyStatus(status int) Outcome {
	switch {
	case status >= 200 && status < 400:
		return OutcomeSuccess
	case status >= 400 && status < 500:
		return OutcomeClientError
	case status >= 500:
		return OutcomeServerError
	default:
		// 1xx never reaches the caller from net/http.
		return OutcomeUnrecognized
	}
}

// Next returns the state that follows an attempt. attempt is zero-based and
// maxRetries+1 attempts are allowed in total.
func Next(attempt, maxRetries int, outcome Outcome) State {
	switch {
	case outcome == OutcomeSuccess:
		return StateSucceeded
	case outcome.Transient():
		if attempt >= maxRetries {
			return StateFailedExhausted
		}
		return StateBackoff
	default:
		return StateFailedTerminal
	}
}

// Backoff is the delay before the given attempt: 0, d, 2d, 3d, ...
func Backoff(attempt int, unit time.Duration) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return time.Duration(attempt) * unit
}
