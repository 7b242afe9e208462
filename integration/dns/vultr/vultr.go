// Package vultr publishes DNS-01 challenge records through the Vultr v2
// API. The credential is a single API key.
package vultr

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/certflow/certflow/core/certorder"
	"github.com/certflow/certflow/core/dnspublisher"
)

const defaultBaseURL = "https://api.vultr.com/v2"

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

// Publisher manages _acme-challenge TXT records in Vultr domains.
type Publisher struct {
	client  *dnspublisher.RESTClient
	baseURL string
	ttl     int
}

// New validates the credential and builds a Vultr publisher.
func New(cfg certorder.DNSProviderConfig, opts ...Option) (*Publisher, error) {
	token, err := dnspublisher.SingleToken(certorder.ProviderVultr, cfg.Credential)
	if err != nil {
		return nil, err
	}
	p := &Publisher{
		client: dnspublisher.NewRESTClient(certorder.ProviderVultr, func(r *http.Request) {
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
		Domain string `json:"domain"`
	} `json:"domains"`
}

type record struct {
	ID   string `json:"id,omitempty"`
	Type string `json:"type"`
	Name string `json:"name"`
	Data string `json:"data"`
	TTL  int    `json:"ttl,omitempty"`
}

type recordList struct {
	Records []record `json:"records"`
}

// Publish upserts the challenge TXT record and returns the zone name.
// Vultr stores TXT data with the surrounding quotes included.
func (p *Publisher) Publish(ctx context.Context, domain, value string) (string, error) {
	zone, err := p.findZone(ctx, domain)
	if err != nil {
		return "", err
	}

	name := dnspublisher.RelativeChallengeName(domain, zone)
	existing, err := p.findRecord(ctx, zone, name)
	if err != nil {
		return "", err
	}

	body := record{Type: "TXT", Name: name, Data: strconv.Quote(value), TTL: p.ttl}
	base := fmt.Sprintf("%s/domains/%s/records", p.baseURL, zone)
	if existing != nil {
		if err := p.client.Do(ctx, http.MethodPatch, base+"/"+existing.ID, body, nil); err != nil {
			return "", err
		}
		return zone, nil
	}
	if err := p.client.Do(ctx, http.MethodPost, base, body, nil); err != nil {
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

	existing, err := p.findRecord(ctx, zone, dnspublisher.RelativeChallengeName(domain, zone))
	if err != nil {
		return err
	}
	if existing == nil {
		return nil
	}
	url := fmt.Sprintf("%s/domains/%s/records/%s", p.baseURL, zone, existing.ID)
	return p.client.Do(ctx, http.MethodDelete, url, nil, nil)
}

func (p *Publisher) findZone(ctx context.Context, domain string) (string, error) {
	var list domainList
	if err := p.client.Get(ctx, p.baseURL+"/domains?per_page=500", &list); err != nil {
		return "", err
	}
	names := make([]string, len(list.Domains))
	for i, d := range list.Domains {
		names[i] = d.Domain
	}
	zone, ok := dnspublisher.FindZone(domain, names)
	if !ok {
		return "", fmt.Errorf("%w: no vultr domain for %s", dnspublisher.ErrZoneNotFound, domain)
	}
	return zone, nil
}

func (p *Publisher) findRecord(ctx context.Context, zone, name string) (*record, error) {
	var list recordList
	if err := p.client.Get(ctx, fmt.Sprintf("%s/domains/%s/records?per_page=500", p.baseURL, zone), &list); err != nil {
		return nil, err
	}
	for i := range list.Records {
		if list.Records[i].Type == "TXT" && list.Records[i].Name == name {
			return &list.Records[i], nil
		}
	}
	return nil, nil
}
