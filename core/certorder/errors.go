package certorder

import "errors"

var (
	// ErrOrderNotFound is returned when no order exists for an identifier.
	ErrOrderNotFound = errors.New("certificate order not found")

	// ErrProviderConfigNotFound is returned when no DNS provider
	// configuration exists for an identifier.
	ErrProviderConfigNotFound = errors.New("dns provider config not found")
)
