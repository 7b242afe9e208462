package renewal

import (
	"errors"
	"fmt"
)

var (
	// ErrNoDomains is returned when an order request names no domains.
	ErrNoDomains = errors.New("renewal: order has no domains")

	// ErrNotRenewable is returned when an order was not persisted for
	// renewal, or its stored account key is missing.
	ErrNotRenewable = errors.New("renewal: order is not renewable")

	// ErrRenewalInProgress is returned when another renewal already holds
	// the per-order guard.
	ErrRenewalInProgress = errors.New("renewal: renewal already in progress")

	// ErrSessionNotFound is returned when no manual renewal session exists
	// for the order, or it has expired.
	ErrSessionNotFound = errors.New("renewal: session not found")
)

// PropagationError reports a TXT record that never became visible on the
// public resolvers within the propagation window. It is transient: the
// record may still be propagating, and a later attempt can succeed.
type PropagationError struct {
	Domain string
	FQDN   string
}

func (e *PropagationError) Error() string {
	return fmt.Sprintf("renewal: txt record %s for %s not visible on public resolvers", e.FQDN, e.Domain)
}
