package relay

import (
	"fmt"
)

// ValidationKind describes why an inbound event was rejected
type ValidationKind string

const (
	ValidationNotMessage      ValidationKind = "not_message"
	ValidationUnsupportedType ValidationKind = "unsupported_type"
)

// ValidationError is returned for inbound events that are malformed or that we can't handle. These
// are dropped and never retried.
type ValidationError struct {
	Kind   ValidationKind
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid event (%s): %s", e.Kind, e.Detail)
}

// NewValidationError creates a new validation error of the given kind
func NewValidationError(kind ValidationKind, format string, args ...any) *ValidationError {
	return &ValidationError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// MediaStep is the step of media normalization which failed
type MediaStep string

const (
	MediaStepResolve    MediaStep = "resolve"
	MediaStepFetch      MediaStep = "fetch"
	MediaStepConvert    MediaStep = "convert"
	MediaStepTranscribe MediaStep = "transcribe"
)

// MediaError is returned when we fail to turn a voice or audio message into text
type MediaError struct {
	Step MediaStep
	Err  error
}

func (e *MediaError) Error() string {
	return fmt.Sprintf("media %s failed: %s", e.Step, e.Err)
}

func (e *MediaError) Unwrap() error { return e.Err }

// StoreError is returned when the thread store can't be read from or written to. These are
// potentially transient.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("thread store %s failed: %s", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// AssistantError is returned when a run doesn't complete, either because it reached a terminal
// status other than completed or because we gave up waiting for it
type AssistantError struct {
	Status  RunStatus
	Timeout bool
	Err     error
}

func (e *AssistantError) Error() string {
	if e.Timeout {
		if e.Status == "" && e.Err != nil {
			return fmt.Sprintf("timed out before assistant run: %s", e.Err)
		}
		return fmt.Sprintf("assistant run timed out in status '%s'", e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("assistant request failed: %s", e.Err)
	}
	return fmt.Sprintf("assistant run ended with status '%s'", e.Status)
}

func (e *AssistantError) Unwrap() error { return e.Err }

// DeliveryError is returned alongside a non-delivered outcome
type DeliveryError struct {
	Outcome DeliveryOutcome
	Reason  string
	Err     error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery %s: %s", e.Outcome, e.Reason)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
