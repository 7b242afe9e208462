package certorder

import (
	"context"
	"time"
)

// Store is the persistence collaborator. The core reads and writes orders
// through this interface only; implementations decide where records live.
type Store interface {
	// GetOrder returns the order with the given identifier or ErrOrderNotFound.
	GetOrder(ctx context.Context, orderID string) (*CertificateOrder, error)

	// SaveOrder inserts or replaces an order together with its challenges.
	SaveOrder(ctx context.Context, order *CertificateOrder) error

	// ListDueForRenewal returns persisted orders whose expiry falls within
	// [notBefore, notAfter].
	ListDueForRenewal(ctx context.Context, notBefore, notAfter time.Time) ([]*CertificateOrder, error)

	// GetProviderConfig returns the DNS provider configuration with the given
	// identifier or ErrProviderConfigNotFound.
	GetProviderConfig(ctx context.Context, providerID string) (*DNSProviderConfig, error)

	// ListProviderConfigs returns all provider configurations owned by a user.
	ListProviderConfigs(ctx context.Context, ownerID string) ([]*DNSProviderConfig, error)
}
