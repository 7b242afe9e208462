// Package cloudns publishes DNS-01 challenge records through the ClouDNS
// API. The credential is "AUTHID:PASSWORD"; auth travels as query
// parameters on every call, and failures come back as HTTP 200 with an
// in-band status object.
package cloudns

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/certflow/certflow/core/certorder"
	"github.com/certflow/certflow/core/dnspublisher"
)

const defaultBaseURL = "https://api.cloudns.net"

const credentialFormat = "AUTHID:PASSWORD"

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

// Publisher manages _acme-challenge TXT records in ClouDNS zones.
type Publisher struct {
	client  *dnspublisher.RESTClient
	baseURL string
	ttl     int

	authID   string
	password string
}

// New validates the credential and builds a ClouDNS publisher.
func New(cfg certorder.DNSProviderConfig, opts ...Option) (*Publisher, error) {
	parts, err := dnspublisher.SplitCredential(certorder.ProviderCloudns, cfg.Credential, credentialFormat, 2)
	if err != nil {
		return nil, err
	}
	p := &Publisher{
		client:   dnspublisher.NewRESTClient(certorder.ProviderCloudns, nil),
		baseURL:  defaultBaseURL,
		ttl:      cfg.TTL(),
		authID:   parts[0],
		password: parts[1],
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

type status struct {
	Status            string `json:"status"`
	StatusDescription string `json:"statusDescription"`
}

type zoneInfo struct {
	status
	Name string `json:"name"`
}

type recordEntry struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Host   string `json:"host"`
	Record string `json:"record"`
}

// Publish upserts the challenge TXT record and returns the zone name.
func (p *Publisher) Publish(ctx context.Context, domain, value string) (string, error) {
	zone, err := p.findZone(ctx, domain)
	if err != nil {
		return "", err
	}
	host := dnspublisher.RelativeChallengeName(domain, zone)

	existing, err := p.findRecord(ctx, zone, host)
	if err != nil {
		return "", err
	}

	params := p.baseParams()
	params.Set("domain-name", zone)
	params.Set("host", host)
	params.Set("record", value)
	params.Set("ttl", strconv.Itoa(p.ttl))

	endpoint := "/dns/add-record.json"
	params.Set("record-type", "TXT")
	if existing != nil {
		endpoint = "/dns/mod-record.json"
		params.Del("record-type")
		params.Set("record-id", existing.ID)
	}

	var out status
	if err := p.client.Get(ctx, p.baseURL+endpoint+"?"+params.Encode(), &out); err != nil {
		return "", err
	}
	if err := p.checkStatus(out); err != nil {
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

	params := p.baseParams()
	params.Set("domain-name", zone)
	params.Set("record-id", existing.ID)

	var out status
	if err := p.client.Get(ctx, p.baseURL+"/dns/delete-record.json?"+params.Encode(), &out); err != nil {
		return err
	}
	return p.checkStatus(out)
}

// findZone asks get-zone-info for every suffix of the domain; the first
// one ClouDNS knows is the zone.
func (p *Publisher) findZone(ctx context.Context, domain string) (string, error) {
	for _, candidate := range dnspublisher.ZoneCandidates(domain) {
		params := p.baseParams()
		params.Set("domain-name", candidate)

		var info zoneInfo
		if err := p.client.Get(ctx, p.baseURL+"/dns/get-zone-info.json?"+params.Encode(), &info); err != nil {
			return "", err
		}
		if info.Status != "Failed" && info.Name != "" {
			return info.Name, nil
		}
	}
	return "", fmt.Errorf("%w: no cloudns zone for %s", dnspublisher.ErrZoneNotFound, domain)
}

func (p *Publisher) findRecord(ctx context.Context, zone, host string) (*recordEntry, error) {
	params := p.baseParams()
	params.Set("domain-name", zone)
	params.Set("host", host)
	params.Set("type", "TXT")

	// Records come back as a map keyed by record ID, except an empty set,
	// which is an empty JSON array.
	var raw json.RawMessage
	if err := p.client.Get(ctx, p.baseURL+"/dns/records.json?"+params.Encode(), &raw); err != nil {
		return nil, err
	}
	var records map[string]recordEntry
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, nil
	}
	for id, rec := range records {
		if rec.Type == "TXT" && rec.Host == host {
			rec.ID = id
			return &rec, nil
		}
	}
	return nil, nil
}

func (p *Publisher) baseParams() url.Values {
	return url.Values{
		"auth-id":       {p.authID},
		"auth-password": {p.password},
	}
}

func (p *Publisher) checkStatus(s status) error {
	if s.Status == "Failed" {
		return &dnspublisher.APIError{Provider: certorder.ProviderCloudns, Message: s.StatusDescription}
	}
	return nil
}
