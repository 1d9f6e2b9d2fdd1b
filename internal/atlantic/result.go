package atlantic

import (
	"fmt"
	"net/http"
)

// Outcome classifies a provider call. Every call site must handle all three.
type Outcome int

const (
	// OutcomeOK means the provider accepted the request (status=true).
	OutcomeOK Outcome = iota
	// OutcomeRejected means the provider answered with an explicit failure payload.
	OutcomeRejected
	// OutcomeTransport means the provider could not be reached or its reply could not be read.
	OutcomeTransport
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeRejected:
		return "rejected"
	default:
		return "transport"
	}
}

// Result carries the value of a successful call or the reason it failed.
type Result[T any] struct {
	Outcome Outcome
	Value   T
	// Message is the provider message, present for accepted and rejected calls.
	Message string
	// Err is set for OutcomeTransport only.
	Err error
}

// Failure returns nil for accepted calls and a typed error otherwise.
func (r Result[T]) Failure() error {
	switch r.Outcome {
	case OutcomeOK:
		return nil
	case OutcomeRejected:
		return &RejectedError{Message: r.Message}
	default:
		if r.Err == nil {
			return &TransportError{Err: fmt.Errorf("unknown transport failure")}
		}
		return r.Err
	}
}

func accepted[T any](value T, message string) Result[T] {
	return Result[T]{Outcome: OutcomeOK, Value: value, Message: message}
}

func rejected[T any](message string) Result[T] {
	return Result[T]{Outcome: OutcomeRejected, Message: message}
}

func unreachable[T any](err error) Result[T] {
	return Result[T]{Outcome: OutcomeTransport, Err: err}
}

// RejectedError is a business-level failure reported by the provider.
type RejectedError struct {
	Message string
}

func (e *RejectedError) Error() string {
	if e.Message == "" {
		return "provider rejected request"
	}
	return "provider rejected request: " + e.Message
}

// TransportError wraps network failures, non-2xx replies without a readable
// envelope, and undecodable bodies.
type TransportError struct {
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("atlantic %s: http %d %s: %v", e.Endpoint, e.StatusCode, http.StatusText(e.StatusCode), e.Err)
	case e.Endpoint != "":
		return fmt.Sprintf("atlantic %s: %v", e.Endpoint, e.Err)
	default:
		return fmt.Sprintf("atlantic: %v", e.Err)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }
