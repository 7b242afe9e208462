// Package digitalocean publishes DNS-01 challenge records through the
// DigitalOcean v2 API. The credential is a single personal access token
// with write scope.
package digitalocean

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/certflow/certflow/core/certorder"
	"github.com/certflow/certflow/core/dnspublisher"
)

const defaultBaseURL = "https://api.digitalocean.com"

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

// Publisher manages _acme-challenge TXT records in DigitalOcean domains.
type Publisher struct {
	client  *dnspublisher.RESTClient
	baseURL string
	ttl     int
}

// New validates the credential and builds a DigitalOcean publisher.
func New(cfg certorder.DNSProviderConfig, opts ...Option) (*Publisher, error) {
	token, err := dnspublisher.SingleToken(certorder.ProviderDigitalOcean, cfg.Credential)
	if err != nil {
		return nil, err
	}
	p := &Publisher{
		client: dnspublisher.NewRESTClient(certorder.ProviderDigitalOcean, func(r *http.Request) {
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

type domainList struct {
	Domains []struct {
		Name string `json:"name"`
	} `json:"domains"`
}

type record struct {
	ID   int    `json:"id,omitempty"`
	Type string `json:"type"`
	Name string `json:"name"`
	Data string `json:"data"`
	TTL  int    `json:"ttl,omitempty"`
}

type recordList struct {
	DomainRecords []record `json:"domain_records"`
}

// Publish upserts the challenge TXT record and returns the zone name.
func (p *Publisher) Publish(ctx context.Context, domain, value string) (string, error) {
	zone, err := p.findZone(ctx, domain)
	if err != nil {
		return "", err
	}

	name := dnspublisher.RelativeChallengeName(domain, zone)
	existing, err := p.findRecord(ctx, zone, domain)
	if err != nil {
		return "", err
	}

	body := record{Type: "TXT", Name: name, Data: value, TTL: p.ttl}
	if existing != nil {
		url := fmt.Sprintf("%s/v2/domains/%s/records/%d", p.baseURL, zone, existing.ID)
		if err := p.client.Do(ctx, http.MethodPut, url, body, nil); err != nil {
			return "", err
		}
		return zone, nil
	}

	url := fmt.Sprintf("%s/v2/domains/%s/records", p.baseURL, zone)
	if err := p.client.Do(ctx, http.MethodPost, url, body, nil); err != nil {
		return "", err
	}
	return zone, nil
}

// Remove deletes the challenge TXT record.
func (p *Publisher) Remove(ctx context.Context, domain, zoneHandle string) error {
	zone := zoneHandle
	if zone == "" {
		var err error
		zone, err = p.findZone(ctx, domain)
		if err != nil {
			return err
		}
	}

	existing, err := p.findRecord(ctx, zone, domain)
	if err != nil {
		return err
	}
	if existing == nil {
		return nil
	}
	url := fmt.Sprintf("%s/v2/domains/%s/records/%d", p.baseURL, zone, existing.ID)
	return p.client.Do(ctx, http.MethodDelete, url, nil, nil)
}

func (p *Publisher) findZone(ctx context.Context, domain string) (string, error) {
	var list domainList
	if err := p.client.Get(ctx, p.baseURL+"/v2/domains?per_page=200", &list); err != nil {
		return "", err
	}
	names := make([]string, len(list.Domains))
	for i, d := range list.Domains {
		names[i] = d.Name
	}
	zone, ok := dnspublisher.FindZone(domain, names)
	if !ok {
		return "", fmt.Errorf("%w: no digitalocean domain for %s", dnspublisher.ErrZoneNotFound, domain)
	}
	return zone, nil
}

func (p *Publisher) findRecord(ctx context.Context, zone, domain string) (*record, error) {
	query := url.Values{
		"type": {"TXT"},
		"name": {dnspublisher.ChallengeFQDN(domain)},
	}
	var list recordList
	if err := p.client.Get(ctx, fmt.Sprintf("%s/v2/domains/%s/records?%s", p.baseURL, zone, query.Encode()), &list); err != nil {
		return nil, err
	}
	if len(list.DomainRecords) == 0 {
		return nil, nil
	}
	return &list.DomainRecords[0], nil
}
