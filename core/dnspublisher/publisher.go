package dnspublisher

import (
	"context"
	"fmt"
	"sync"

	"github.com/certflow/certflow/core/certorder"
)

// ChallengeLabel is the record name prefix mandated by RFC 8555 for DNS-01
// validation.
const ChallengeLabel = "_acme-challenge"

// ChallengeFQDN returns the fully qualified record name for a domain,
// e.g. "_acme-challenge.www.example.com".
func ChallengeFQDN(domain string) string {
	return ChallengeLabel + "." + domain
}

// Publisher publishes and removes DNS-01 challenge TXT records for one
// configured provider account. Publishing upserts: an existing record of the
// same name is replaced, never duplicated.
type Publisher interface {
	// Publish upserts the _acme-challenge TXT record for domain and returns
	// the provider-specific zone handle used for cleanup and renewal reuse.
	Publish(ctx context.Context, domain, value string) (zoneHandle string, err error)

	// Remove deletes the _acme-challenge TXT record for domain. The zone
	// handle is the value returned by an earlier Publish; implementations
	// that can rediscover the zone accept an empty handle.
	Remove(ctx context.Context, domain, zoneHandle string) error
}

// Factory builds a Publisher from a provider configuration. It validates the
// credential shape and returns *CredentialFormatError on mismatch without
// performing network calls.
type Factory func(cfg certorder.DNSProviderConfig) (Publisher, error)

// Registry maps provider types to adapter factories. It is safe for
// concurrent use; registration normally happens once at startup.
type Registry struct {
	mu        sync.RWMutex
	factories map[certorder.ProviderType]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[certorder.ProviderType]Factory)}
}

// Register binds a provider type to a factory, replacing any previous
// binding for the same type.
func (r *Registry) Register(t certorder.ProviderType, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[t] = f
}

// New builds a Publisher for the given configuration.
func (r *Registry) New(cfg certorder.DNSProviderConfig) (Publisher, error) {
	r.mu.RLock()
	f, ok := r.factories[cfg.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Type)
	}
	return f(cfg)
}

// Types returns the registered provider types.
func (r *Registry) Types() []certorder.ProviderType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]certorder.ProviderType, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	return types
}
