// internal/pipeline/resilience/ratelimit.go
package resilience

// CanCall reports whether the source still has call budget in the trailing
// rate window. Expired timestamps are pruned before the comparison; the
// call count itself is untouched.
func (r *Registry) CanCall(sourceID string) bool {
	st := r.state(sourceID)
	st.mu.Lock()
	defer st.mu.Unlock()

	r.pruneLocked(st)
	if st.budget <= 0 {
		// Unregistered or zero-budget sources are not rate limited here;
		// the breaker still applies.
		return true
	}
	return len(st.window) < st.budget
}

// RecordCall appends the current timestamp to the source's window. Every
// attempted call counts against the budget, successful or not.
func (r *Registry) RecordCall(sourceID string) {
	st := r.state(sourceID)
	st.mu.Lock()
	defer st.mu.Unlock()

	r.pruneLocked(st)
	st.window = append(st.window, r.now())
}

// RemainingCalls returns how many calls the source may still make in the
// trailing window. Sources without a budget report -1.
func (r *Registry) RemainingCalls(sourceID string) int {
	st := r.state(sourceID)
	st.mu.Lock()
	defer st.mu.Unlock()

	r.pruneLocked(st)
	if st.budget <= 0 {
		return -1
	}
	remaining := st.budget - len(st.window)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// pruneLocked drops timestamps older than the rate window. Caller holds
// st.mu. Windows are appended in time order, so the first retained index
// bounds the cut.
func (r *Registry) pruneLocked(st *sourceState) {
	cutoff := r.now().Add(-r.opts.RateWindow)
	i := 0
	for i < len(st.window) && !st.window[i].After(cutoff) {
		i++
	}
	if i > 0 {
		st.window = append(st.window[:0:0], st.window[i:]...)
	}
}
