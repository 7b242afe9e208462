// Package godaddy publishes DNS-01 challenge records through the GoDaddy
// v1 API. The credential is "APIKEY:APISECRET".
package godaddy

import (
	"context"
	"fmt"
	"net/http"

	"github.com/certflow/certflow/core/certorder"
	"github.com/certflow/certflow/core/dnspublisher"
)

const defaultBaseURL = "https://api.godaddy.com"

const credentialFormat = "APIKEY:APISECRET"

// Option configures the publisher.
type Option func(*Publisher)

// WithBaseURL points the adapter at a different API endpoint, used in tests.
func WithBaseURL(baseURL string) Option {
	return func(p *Publisher) { p.baseURL = baseURL }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Publisher) { p.client.HTTP = client }
}

// Publisher manages _acme-challenge TXT records in GoDaddy domains.
type Publisher struct {
	client  *dnspublisher.RESTClient
	baseURL string
	ttl     int
}

// New validates the credential and builds a GoDaddy publisher.
func New(cfg certorder.DNSProviderConfig, opts ...Option) (*Publisher, error) {
	parts, err := dnspublisher.SplitCredential(certorder.ProviderGoDaddy, cfg.Credential, credentialFormat, 2)
	if err != nil {
		return nil, err
	}
	p := &Publisher{
		client: dnspublisher.NewRESTClient(certorder.ProviderGoDaddy, func(r *http.Request) {
			r.Header.Set("Authorization", "sso-key "+parts[0]+":"+parts[1])
		}),
		baseURL: defaultBaseURL,
		ttl:     cfg.TTL(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

type domainEntry struct {
	Domain string `json:"domain"`
}

type record struct {
	Data string `json:"data"`
	TTL  int    `json:"ttl"`
}

// Publish replaces the challenge TXT record set and returns the zone name.
// GoDaddy's PUT on a name/type pair is a full replace, which gives upsert
// semantics for free.
func (p *Publisher) Publish(ctx context.Context, domain, value string) (string, error) {
	zone, err := p.findZone(ctx, domain)
	if err != nil {
		return "", err
	}

	// GoDaddy enforces a 600 second TTL floor.
	ttl := p.ttl
	if ttl < 600 {
		ttl = 600
	}
	body := []record{{Data: value, TTL: ttl}}
	if err := p.client.Do(ctx, http.MethodPut, p.recordURL(zone, domain), body, nil); err != nil {
		return "", err
	}
	return zone, nil
}

// Remove deletes the challenge TXT record set.
func (p *Publisher) Remove(ctx context.Context, domain, zoneHandle string) error {
	zone := zoneHandle
	if zone == "" {
		var err error
		zone, err = p.findZone(ctx, domain)
		if err != nil {
			return err
		}
	}
	return p.client.Do(ctx, http.MethodDelete, p.recordURL(zone, domain), nil, nil)
}

func (p *Publisher) recordURL(zone, domain string) string {
	name := dnspublisher.RelativeChallengeName(domain, zone)
	return fmt.Sprintf("%s/v1/domains/%s/records/TXT/%s", p.baseURL, zone, name)
}

func (p *Publisher) findZone(ctx context.Context, domain string) (string, error) {
	var domains []domainEntry
	if err := p.client.Get(ctx, p.baseURL+"/v1/domains?statuses=ACTIVE", &domains); err != nil {
		return "", err
	}
	names := make([]string, len(domains))
	for i, d := range domains {
		names[i] = d.Domain
	}
	zone, ok := dnspublisher.FindZone(domain, names)
	if !ok {
		return "", fmt.Errorf("%w: no godaddy domain for %s", dnspublisher.ErrZoneNotFound, domain)
	}
	return zone, nil
}
