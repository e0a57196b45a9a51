// internal/pipeline/resilience/breaker.go
package resilience

import (
	"time"

	"clientpulse/internal/common/metrics"
)

// CircuitStatus is the breaker state for one source.
type CircuitStatus string

const (
	CircuitClosed   CircuitStatus = "CLOSED"
	CircuitOpen     CircuitStatus = "OPEN"
	CircuitHalfOpen CircuitStatus = "HALF_OPEN"
)

// ErrorKind tags a recorded failure for diagnostics. All kinds count the
// same toward opening the circuit.
type ErrorKind string

const (
	KindRateLimit       ErrorKind = "rate_limit"
	KindTimeout         ErrorKind = "timeout"
	KindAuthError       ErrorKind = "auth_error"
	KindGenericAPIError ErrorKind = "generic_api_error"
)

// CircuitState is the per-source breaker record. Mutated only through the
// Registry. A circuit never goes OPEN -> CLOSED directly; it must pass
// through HALF_OPEN.
type CircuitState struct {
	Status              CircuitStatus `json:"status"`
	ConsecutiveFailures int           `json:"consecutiveFailures"`
	LastFailureAt       time.Time     `json:"lastFailureAt,omitempty"`
	LastFailureKind     ErrorKind     `json:"lastFailureKind,omitempty"`
	OpenedAt            time.Time     `json:"openedAt,omitempty"`
	ProbeInFlight       bool          `json:"probeInFlight"`
}

// ShouldAllow reports whether a call to the source may proceed, with a
// human-readable reason when blocked. An OPEN circuit whose cooldown has
// elapsed moves to HALF_OPEN here and admits exactly one probe; concurrent
// callers see the in-flight flag and are turned away.
func (r *Registry) ShouldAllow(sourceID string) (bool, string) {
	st := r.state(sourceID)
	st.mu.Lock()
	defer st.mu.Unlock()

	now := r.now()

	switch st.circuit.Status {
	case CircuitClosed:
		return true, ""

	case CircuitOpen:
		if now.Sub(st.circuit.OpenedAt) < r.opts.Cooldown {
			return false, "circuit open, cooling down"
		}
		r.transitionLocked(sourceID, st, CircuitHalfOpen)
		st.circuit.ProbeInFlight = true
		return true, "half-open probe"

	case CircuitHalfOpen:
		if st.circuit.ProbeInFlight {
			return false, "half-open probe already in flight"
		}
		st.circuit.ProbeInFlight = true
		return true, "half-open probe"
	}

	return false, "unknown circuit state"
}

// RecordSuccess resets the failure streak. A successful HALF_OPEN probe
// closes the circuit.
func (r *Registry) RecordSuccess(sourceID string) {
	st := r.state(sourceID)
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.circuit.Status == CircuitHalfOpen {
		r.transitionLocked(sourceID, st, CircuitClosed)
	}
	st.circuit.ConsecutiveFailures = 0
	st.circuit.ProbeInFlight = false
}

// RecordFailure counts a failure toward opening the circuit. Failures
// older than the lookback window start a fresh streak. A failed HALF_OPEN
// probe re-opens immediately and restarts the cooldown.
func (r *Registry) RecordFailure(sourceID string, err error, kind ErrorKind) {
	st := r.state(sourceID)
	st.mu.Lock()
	defer st.mu.Unlock()

	now := r.now()

	if !st.circuit.LastFailureAt.IsZero() && now.Sub(st.circuit.LastFailureAt) > r.opts.Lookback {
		st.circuit.ConsecutiveFailures = 0
	}
	st.circuit.ConsecutiveFailures++
	st.circuit.LastFailureAt = now
	st.circuit.LastFailureKind = kind

	switch st.circuit.Status {
	case CircuitHalfOpen:
		r.transitionLocked(sourceID, st, CircuitOpen)
		st.circuit.OpenedAt = now
		st.circuit.ProbeInFlight = false

	case CircuitClosed:
		if st.circuit.ConsecutiveFailures >= r.opts.FailureThreshold {
			r.transitionLocked(sourceID, st, CircuitOpen)
			st.circuit.OpenedAt = now
		}
	}

	if err != nil {
		r.log.Debug("source failure recorded", map[string]interface{}{
			"source":   sourceID,
			"kind":     string(kind),
			"failures": st.circuit.ConsecutiveFailures,
			"status":   string(st.circuit.Status),
			"error":    err.Error(),
		})
	}
}

// CircuitStatusOf returns the current breaker state for a source.
func (r *Registry) CircuitStatusOf(sourceID string) CircuitStatus {
	st := r.state(sourceID)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.circuit.Status
}

// transitionLocked changes the circuit status. Caller holds st.mu.
func (r *Registry) transitionLocked(sourceID string, st *sourceState, to CircuitStatus) {
	from := st.circuit.Status
	if from == to {
		return
	}
	st.circuit.Status = to
	metrics.CircuitTransitions.WithLabelValues(sourceID, string(to)).Inc()
	r.log.Info("circuit transition", map[string]interface{}{
		"source": sourceID,
		"from":   string(from),
		"to":     string(to),
	})
}
