// Package certorder defines the data model shared by the certificate
// issuance and renewal packages: orders, their per-domain DNS-01 challenges,
// DNS provider configurations, and the persistence and notification
// collaborator interfaces the core consumes.
//
// The package holds no business logic beyond bookkeeping helpers on the
// model types. Persistence lives behind the Store interface; implementations
// are provided under integration/storage.
package certorder
