// Package linode publishes DNS-01 challenge records through the Linode v4
// API. The credential is a single personal access token with domains
// read/write scope.
package linode

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/certflow/certflow/core/certorder"
	"github.com/certflow/certflow/core/dnspublisher"
)

const defaultBaseURL = "https://api.linode.com/v4"

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

// Publisher manages _acme-challenge TXT records in Linode domains.
type Publisher struct {
	client  *dnspublisher.RESTClient
	baseURL string
	ttl     int
}

// New validates the credential and builds a Linode publisher.
func New(cfg certorder.DNSProviderConfig, opts ...Option) (*Publisher, error) {
	token, err := dnspublisher.SingleToken(certorder.ProviderLinode, cfg.Credential)
	if err != nil {
		return nil, err
	}
	p := &Publisher{
		client: dnspublisher.NewRESTClient(certorder.ProviderLinode, func(r *http.Request) {
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
	ID     int    `json:"id"`
	Domain string `json:"domain"`
}

type domainPage struct {
	Data []domainEntry `json:"data"`
}

type record struct {
	ID     int    `json:"id,omitempty"`
	Type   string `json:"type"`
	Name   string `json:"name"`
	Target string `json:"target"`
	TTLSec int    `json:"ttl_sec,omitempty"`
}

type recordPage struct {
	Data []record `json:"data"`
}

// Publish upserts the challenge TXT record and returns the numeric domain
// ID as the zone handle.
func (p *Publisher) Publish(ctx context.Context, domain, value string) (string, error) {
	entry, err := p.findDomain(ctx, domain)
	if err != nil {
		return "", err
	}

	name := dnspublisher.RelativeChallengeName(domain, entry.Domain)
	existing, err := p.findRecord(ctx, entry.ID, name)
	if err != nil {
		return "", err
	}

	body := record{Type: "TXT", Name: name, Target: value, TTLSec: p.ttl}
	base := fmt.Sprintf("%s/domains/%d/records", p.baseURL, entry.ID)
	if existing != nil {
		if err := p.client.Do(ctx, http.MethodPut, fmt.Sprintf("%s/%d", base, existing.ID), body, nil); err != nil {
			return "", err
		}
		return strconv.Itoa(entry.ID), nil
	}
	if err := p.client.Do(ctx, http.MethodPost, base, body, nil); err != nil {
		return "", err
	}
	return strconv.Itoa(entry.ID), nil
}

// Remove deletes the challenge TXT record.
func (p *Publisher) Remove(ctx context.Context, domain, zoneHandle string) error {
	entry, err := p.findDomain(ctx, domain)
	if err != nil {
		return err
	}
	if zoneHandle != "" {
		if id, convErr := strconv.Atoi(zoneHandle); convErr == nil {
			entry.ID = id
		}
	}

	existing, err := p.findRecord(ctx, entry.ID, dnspublisher.RelativeChallengeName(domain, entry.Domain))
	if err != nil {
		return err
	}
	if existing == nil {
		return nil
	}
	url := fmt.Sprintf("%s/domains/%d/records/%d", p.baseURL, entry.ID, existing.ID)
	return p.client.Do(ctx, http.MethodDelete, url, nil, nil)
}

func (p *Publisher) findDomain(ctx context.Context, domain string) (*domainEntry, error) {
	var page domainPage
	if err := p.client.Get(ctx, p.baseURL+"/domains?page_size=500", &page); err != nil {
		return nil, err
	}
	names := make([]string, len(page.Data))
	byName := make(map[string]domainEntry, len(page.Data))
	for i, d := range page.Data {
		names[i] = d.Domain
		byName[d.Domain] = d
	}
	name, ok := dnspublisher.FindZone(domain, names)
	if !ok {
		return nil, fmt.Errorf("%w: no linode domain for %s", dnspublisher.ErrZoneNotFound, domain)
	}
	entry := byName[name]
	return &entry, nil
}

func (p *Publisher) findRecord(ctx context.Context, domainID int, name string) (*record, error) {
	var page recordPage
	if err := p.client.Get(ctx, fmt.Sprintf("%s/domains/%d/records", p.baseURL, domainID), &page); err != nil {
		return nil, err
	}
	for i := range page.Data {
		if page.Data[i].Type == "TXT" && page.Data[i].Name == name {
			return &page.Data[i], nil
		}
	}
	return nil, nil
}
