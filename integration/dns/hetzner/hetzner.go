// Package hetzner publishes DNS-01 challenge records through the Hetzner
// DNS API. The credential is a single API token.
package hetzner

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/certflow/certflow/core/certorder"
	"github.com/certflow/certflow/core/dnspublisher"
)

const defaultBaseURL = "https://dns.hetzner.com/api/v1"

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

// Publisher manages _acme-challenge TXT records in Hetzner DNS zones.
type Publisher struct {
	client  *dnspublisher.RESTClient
	baseURL string
	ttl     int
}

// New validates the credential and builds a Hetzner publisher.
func New(cfg certorder.DNSProviderConfig, opts ...Option) (*Publisher, error) {
	token, err := dnspublisher.SingleToken(certorder.ProviderHetzner, cfg.Credential)
	if err != nil {
		return nil, err
	}
	p := &Publisher{
		client: dnspublisher.NewRESTClient(certorder.ProviderHetzner, func(r *http.Request) {
			r.Header.Set("Auth-API-Token", token)
		}),
		baseURL: defaultBaseURL,
		ttl:     cfg.TTL(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

type zone struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type zoneList struct {
	Zones []zone `json:"zones"`
}

type record struct {
	ID     string `json:"id,omitempty"`
	ZoneID string `json:"zone_id"`
	Type   string `json:"type"`
	Name   string `json:"name"`
	Value  string `json:"value"`
	TTL    int    `json:"ttl,omitempty"`
}

type recordList struct {
	Records []record `json:"records"`
}

// Publish upserts the challenge TXT record and returns the zone ID.
func (p *Publisher) Publish(ctx context.Context, domain, value string) (string, error) {
	z, err := p.findZone(ctx, domain)
	if err != nil {
		return "", err
	}

	name := dnspublisher.RelativeChallengeName(domain, z.Name)
	existing, err := p.findRecord(ctx, z.ID, name)
	if err != nil {
		return "", err
	}

	body := record{ZoneID: z.ID, Type: "TXT", Name: name, Value: value, TTL: p.ttl}
	if existing != nil {
		if err := p.client.Do(ctx, http.MethodPut, p.baseURL+"/records/"+existing.ID, body, nil); err != nil {
			return "", err
		}
		return z.ID, nil
	}
	if err := p.client.Do(ctx, http.MethodPost, p.baseURL+"/records", body, nil); err != nil {
		return "", err
	}
	return z.ID, nil
}

// Remove deletes the challenge TXT record. Hetzner record names are
// zone-relative, so the zone name is rediscovered when only an ID is held.
func (p *Publisher) Remove(ctx context.Context, domain, zoneHandle string) error {
	z, err := p.findZone(ctx, domain)
	if err != nil {
		return err
	}
	if zoneHandle != "" && zoneHandle != z.ID {
		z.ID = zoneHandle
	}

	existing, err := p.findRecord(ctx, z.ID, dnspublisher.RelativeChallengeName(domain, z.Name))
	if err != nil {
		return err
	}
	if existing == nil {
		return nil
	}
	return p.client.Do(ctx, http.MethodDelete, p.baseURL+"/records/"+existing.ID, nil, nil)
}

func (p *Publisher) findZone(ctx context.Context, domain string) (*zone, error) {
	var list zoneList
	if err := p.client.Get(ctx, p.baseURL+"/zones", &list); err != nil {
		return nil, err
	}
	names := make([]string, len(list.Zones))
	byName := make(map[string]zone, len(list.Zones))
	for i, z := range list.Zones {
		names[i] = z.Name
		byName[z.Name] = z
	}
	name, ok := dnspublisher.FindZone(domain, names)
	if !ok {
		return nil, fmt.Errorf("%w: no hetzner zone for %s", dnspublisher.ErrZoneNotFound, domain)
	}
	z := byName[name]
	return &z, nil
}

func (p *Publisher) findRecord(ctx context.Context, zoneID, name string) (*record, error) {
	var list recordList
	if err := p.client.Get(ctx, p.baseURL+"/records?zone_id="+url.QueryEscape(zoneID), &list); err != nil {
		return nil, err
	}
	for i := range list.Records {
		if list.Records[i].Type == "TXT" && list.Records[i].Name == name {
			return &list.Records[i], nil
		}
	}
	return nil, nil
}
