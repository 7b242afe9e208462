package dnspublisher

import (
	"errors"
	"fmt"

	"github.com/certflow/certflow/core/certorder"
)

var (
	// ErrUnknownProvider is returned when no adapter is registered for a
	// provider type.
	ErrUnknownProvider = errors.New("unknown dns provider type")

	// ErrZoneNotFound is returned when no hosted zone owns the requested
	// domain. Not retryable: the account simply does not manage the zone.
	ErrZoneNotFound = errors.New("dns zone not found")
)

// CredentialFormatError reports a credential string that does not match the
// shape the provider requires. It is raised before any network call and is
// never retried.
type CredentialFormatError struct {
	Provider certorder.ProviderType
	Want     string
}

func (e *CredentialFormatError) Error() string {
	return fmt.Sprintf("%s: malformed credential, want %s", e.Provider, e.Want)
}

// APIError reports a failed vendor API call. The caller decides whether to
// retry; adapters report it once and give up.
type APIError struct {
	Provider   certorder.ProviderType
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s api: %v", e.Provider, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s api: status %d: %s", e.Provider, e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("%s api: status %d", e.Provider, e.StatusCode)
	}
}

func (e *APIError) Unwrap() error { return e.Err }
