package acmeorder

import "time"

// PollPolicy bounds a polling loop: at most MaxAttempts polls spaced by
// Interval. Policies are plain configuration so tests can inject near-zero
// intervals.
type PollPolicy struct {
	MaxAttempts int
	Interval    time.Duration
}

// DefaultValidationPolicy bounds authorization polling to roughly 2.5
// minutes: 30 attempts at 5-second spacing.
func DefaultValidationPolicy() PollPolicy {
	return PollPolicy{MaxAttempts: 30, Interval: 5 * time.Second}
}

// DefaultFinalizePolicy bounds order finalization to 20 attempts at 3-second
// spacing.
func DefaultFinalizePolicy() PollPolicy {
	return PollPolicy{MaxAttempts: 20, Interval: 3 * time.Second}
}

// Bound converts the policy into a wall-clock deadline for protocol calls
// that poll internally.
func (p PollPolicy) Bound() time.Duration {
	if p.MaxAttempts <= 0 || p.Interval <= 0 {
		return time.Minute
	}
	return time.Duration(p.MaxAttempts) * p.Interval
}
