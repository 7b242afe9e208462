package acmeorder

import (
	"errors"
	"fmt"
)

var (
	// ErrPollingTimeout is returned when a poll loop exhausts its attempt
	// budget without reaching a terminal state. The outer renewal
	// workflow may still re-attempt the whole cycle.
	ErrPollingTimeout = errors.New("polling attempt budget exhausted")

	// ErrOrderInvalid is returned when the CA reports the order itself as
	// invalid. Terminal for the order attempt.
	ErrOrderInvalid = errors.New("acme order invalid")

	// ErrNoDNSChallenge is returned when an authorization offers no dns-01
	// challenge.
	ErrNoDNSChallenge = errors.New("authorization offers no dns-01 challenge")

	// ErrRootSavePath is returned when a certificate save path points at a
	// filesystem root.
	ErrRootSavePath = errors.New("refusing to save certificates at a filesystem root")

	// ErrNoCertificate is returned when a revoke is requested for an order
	// that has no certificate payload.
	ErrNoCertificate = errors.New("order has no certificate to revoke")
)

// ChallengeInvalidError reports a challenge the CA rejected. It carries the
// CA's problem detail so operators see the real reason (CAA forbids, wrong
// TXT value, and so on). Never retried within the same order attempt.
type ChallengeInvalidError struct {
	Domain string
	Detail string
}

func (e *ChallengeInvalidError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("challenge invalid for %s", e.Domain)
	}
	return fmt.Sprintf("challenge invalid for %s: %s", e.Domain, e.Detail)
}
