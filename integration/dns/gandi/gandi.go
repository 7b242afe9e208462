// Package gandi publishes DNS-01 challenge records through the Gandi
// LiveDNS v5 API. The credential is a single personal access token.
package gandi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/certflow/certflow/core/certorder"
	"github.com/certflow/certflow/core/dnspublisher"
)

const defaultBaseURL = "https://api.gandi.net/v5/livedns"

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

// Publisher manages _acme-challenge TXT records in Gandi LiveDNS zones.
type Publisher struct {
	client  *dnspublisher.RESTClient
	baseURL string
	ttl     int
}

// New validates the credential and builds a Gandi publisher.
func New(cfg certorder.DNSProviderConfig, opts ...Option) (*Publisher, error) {
	token, err := dnspublisher.SingleToken(certorder.ProviderGandi, cfg.Credential)
	if err != nil {
		return nil, err
	}
	p := &Publisher{
		client: dnspublisher.NewRESTClient(certorder.ProviderGandi, func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+token)
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
	FQDN string `json:"fqdn"`
}

type rrset struct {
	RRSetValues []string `json:"rrset_values"`
	RRSetTTL    int      `json:"rrset_ttl"`
}

// Publish upserts the challenge TXT record and returns the zone name.
// LiveDNS PUT replaces the whole record set, so no read-before-write is
// needed.
func (p *Publisher) Publish(ctx context.Context, domain, value string) (string, error) {
	zone, err := p.findZone(ctx, domain)
	if err != nil {
		return "", err
	}

	body := rrset{
		RRSetValues: []string{strconv.Quote(value)},
		RRSetTTL:    p.ttl,
	}
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
	return fmt.Sprintf("%s/domains/%s/records/%s/TXT", p.baseURL, zone, name)
}

func (p *Publisher) findZone(ctx context.Context, domain string) (string, error) {
	var domains []domainEntry
	if err := p.client.Get(ctx, p.baseURL+"/domains", &domains); err != nil {
		return "", err
	}
	names := make([]string, len(domains))
	for i, d := range domains {
		names[i] = d.FQDN
	}
	zone, ok := dnspublisher.FindZone(domain, names)
	if !ok {
		return "", fmt.Errorf("%w: no gandi zone for %s", dnspublisher.ErrZoneNotFound, domain)
	}
	return zone, nil
}
