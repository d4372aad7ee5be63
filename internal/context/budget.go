package context

// autoPool returns the token allowance for auto-selected features: what
// remains of the total budget once the preamble and the pinned features are
// paid for, clamped to the configured limit when that limit is bounded.
//
// A negative configured limit means unbounded. A zero result is the signal
// to skip auto-selection entirely and assemble pinned features only; it is
// not an error even when pinned content alone overruns the total budget.
func autoPool(total, preamble, pinned, configuredLimit int) int {
	remaining := total - preamble - pinned
	if remaining < 0 {
		remaining = 0
	}
	if configuredLimit < 0 || remaining < configuredLimit {
		return remaining
	}
	return configuredLimit
}
