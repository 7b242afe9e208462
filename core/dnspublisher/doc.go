// Package dnspublisher defines the uniform contract for publishing DNS-01
// challenge TXT records across heterogeneous DNS vendors, and the registry
// that maps a provider type to its adapter.
//
// Adapters live under integration/dns and are registered at startup;
// resolving an unregistered provider type fails fast with ErrUnknownProvider
// rather than silently doing nothing.
//
// Failure policy: adapters never retry. Malformed credentials surface as
// *CredentialFormatError before any network call, vendor HTTP failures as
// *APIError, and missing zones as ErrZoneNotFound. Retrying is the renewal
// workflow's responsibility.
package dnspublisher
