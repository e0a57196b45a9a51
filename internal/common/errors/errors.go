// Package errors provides the standardized error taxonomy for the
// monitoring pipeline. Per-item and per-entity errors stay inside the
// entity boundary; only ORCHESTRATION_FAILED fails a whole run.
package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Transient source failures: timeouts, 5xx. Retryable, feed the breaker.
	ErrCodeTransientSource ErrorCode = "TRANSIENT_SOURCE_ERROR"
	// 429 from a source. Aborts the retry loop, feeds the breaker.
	ErrCodeSourceRateLimited ErrorCode = "SOURCE_RATE_LIMITED"
	// Bad credentials. Feeds the breaker and should surface as a config alert.
	ErrCodeAuth ErrorCode = "AUTH_ERROR"
	// Provider or source returned an invalid shape. Not retried.
	ErrCodeMalformedResponse ErrorCode = "MALFORMED_RESPONSE"

	// Local gates, not source failures.
	ErrCodeCircuitOpen         ErrorCode = "CIRCUIT_OPEN"
	ErrCodeRateBudgetExhausted ErrorCode = "RATE_BUDGET_EXHAUSTED"

	ErrCodeClassificationFailed   ErrorCode = "CLASSIFICATION_FAILED"
	ErrCodeEnrichmentFailed       ErrorCode = "ENRICHMENT_FAILED"
	ErrCodeNotificationSendFailed ErrorCode = "NOTIFICATION_SEND_FAILED"
	ErrCodeEventStoreFailed       ErrorCode = "EVENT_STORE_FAILED"
	ErrCodeRawStoreFailed         ErrorCode = "RAW_STORE_FAILED"

	// Cannot even list entities: the only code that fails the JobRun.
	ErrCodeOrchestrationFailed ErrorCode = "ORCHESTRATION_FAILED"
)

// PipelineError is a structured application error.
type PipelineError struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Source    string    `json:"source,omitempty"` // source name when source-scoped
	Retryable bool      `json:"retryable"`
	Timestamp time.Time `json:"timestamp"`
	cause     error
}

func (e *PipelineError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("%s[%s]: %s", e.Code, e.Source, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *PipelineError) Unwrap() error { return e.cause }

// NewTransientSourceError creates a retryable source error (timeout, 5xx).
func NewTransientSourceError(source string, err error) *PipelineError {
	return &PipelineError{
		Code:      ErrCodeTransientSource,
		Message:   "transient source failure",
		Details:   err.Error(),
		Source:    source,
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewSourceRateLimitedError creates a 429 error; the retry loop must not
// continue after seeing one.
func NewSourceRateLimitedError(source string) *PipelineError {
	return &PipelineError{
		Code:      ErrCodeSourceRateLimited,
		Message:   "source returned 429",
		Source:    source,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewAuthError creates a credentials error for a source.
func NewAuthError(source, details string) *PipelineError {
	return &PipelineError{
		Code:      ErrCodeAuth,
		Message:   "authentication failed",
		Details:   details,
		Source:    source,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewMalformedResponseError creates a non-retryable invalid-shape error.
func NewMalformedResponseError(source string, err error) *PipelineError {
	return &PipelineError{
		Code:      ErrCodeMalformedResponse,
		Message:   "response failed shape validation",
		Details:   err.Error(),
		Source:    source,
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewCircuitOpenError reports a call blocked by an open breaker.
func NewCircuitOpenError(source, reason string) *PipelineError {
	return &PipelineError{
		Code:      ErrCodeCircuitOpen,
		Message:   "circuit breaker open",
		Details:   reason,
		Source:    source,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewRateBudgetExhaustedError reports a call blocked by the local call budget.
func NewRateBudgetExhaustedError(source string) *PipelineError {
	return &PipelineError{
		Code:      ErrCodeRateBudgetExhausted,
		Message:   "daily call budget exhausted",
		Source:    source,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewClassificationFailedError wraps a classifier provider failure.
func NewClassificationFailedError(provider string, err error) *PipelineError {
	return &PipelineError{
		Code:      ErrCodeClassificationFailed,
		Message:   fmt.Sprintf("classifier provider '%s' failed", provider),
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewEnrichmentFailedError wraps a CRM enrichment failure; callers degrade
// to no enrichment.
func NewEnrichmentFailedError(err error) *PipelineError {
	return &PipelineError{
		Code:      ErrCodeEnrichmentFailed,
		Message:   "CRM enrichment failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewNotificationSendFailedError wraps a dispatch failure for one channel.
func NewNotificationSendFailedError(channel string, err error) *PipelineError {
	return &PipelineError{
		Code:      ErrCodeNotificationSendFailed,
		Message:   fmt.Sprintf("notification delivery failed on %s", channel),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewEventStoreFailedError wraps a record-store write failure.
func NewEventStoreFailedError(err error) *PipelineError {
	return &PipelineError{
		Code:      ErrCodeEventStoreFailed,
		Message:   "event store write failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewRawStoreFailedError wraps a raw-data store failure.
func NewRawStoreFailedError(err error) *PipelineError {
	return &PipelineError{
		Code:      ErrCodeRawStoreFailed,
		Message:   "raw-data store write failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewOrchestrationError creates the run-fatal error.
func NewOrchestrationError(message string, err error) *PipelineError {
	details := ""
	if err != nil {
		details = err.Error()
	}
	return &PipelineError{
		Code:      ErrCodeOrchestrationFailed,
		Message:   message,
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// KindOf extracts the ErrorCode from err, or "" when it carries none.
func KindOf(err error) ErrorCode {
	var pe *PipelineError
	if stderrors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// IsRetryable reports whether err is worth retrying within the same call.
func IsRetryable(err error) bool {
	var pe *PipelineError
	if stderrors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// IsOrchestration reports whether err must fail the whole run.
func IsOrchestration(err error) bool {
	return KindOf(err) == ErrCodeOrchestrationFailed
}
