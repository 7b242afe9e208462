// Package dnsmadeeasy publishes DNS-01 challenge records through the DNS
// Made Easy v2.0 API. The credential is "APIKEY:SECRETKEY"; every request
// carries an HMAC-SHA1 signature of its request date.
package dnsmadeeasy

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/certflow/certflow/core/certorder"
	"github.com/certflow/certflow/core/dnspublisher"
)

const defaultBaseURL = "https://api.dnsmadeeasy.com/V2.0"

const credentialFormat = "APIKEY:SECRETKEY"

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

// Publisher manages _acme-challenge TXT records in DNS Made Easy domains.
type Publisher struct {
	client  *dnspublisher.RESTClient
	baseURL string
	ttl     int
}

// New validates the credential and builds a DNS Made Easy publisher.
func New(cfg certorder.DNSProviderConfig, opts ...Option) (*Publisher, error) {
	parts, err := dnspublisher.SplitCredential(certorder.ProviderDNSMadeEasy, cfg.Credential, credentialFormat, 2)
	if err != nil {
		return nil, err
	}
	apiKey, secret := parts[0], parts[1]

	p := &Publisher{
		client: dnspublisher.NewRESTClient(certorder.ProviderDNSMadeEasy, func(r *http.Request) {
			date := time.Now().UTC().Format(http.TimeFormat)
			mac := hmac.New(sha1.New, []byte(secret))
			mac.Write([]byte(date))
			r.Header.Set("x-dnsme-apiKey", apiKey)
			r.Header.Set("x-dnsme-requestDate", date)
			r.Header.Set("x-dnsme-hmac", hex.EncodeToString(mac.Sum(nil)))
		}),
		baseURL: defaultBaseURL,
		ttl:     cfg.TTL(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

type managedDomain struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type managedDomainList struct {
	Data []managedDomain `json:"data"`
}

type record struct {
	ID          int    `json:"id,omitempty"`
	Type        string `json:"type"`
	Name        string `json:"name"`
	Value       string `json:"value"`
	TTL         int    `json:"ttl,omitempty"`
	GTDLocation string `json:"gtdLocation,omitempty"`
}

type recordList struct {
	Data []record `json:"data"`
}

// Publish upserts the challenge TXT record and returns the numeric domain
// ID as the zone handle.
func (p *Publisher) Publish(ctx context.Context, domain, value string) (string, error) {
	md, err := p.findDomain(ctx, domain)
	if err != nil {
		return "", err
	}

	name := dnspublisher.RelativeChallengeName(domain, md.Name)
	existing, err := p.findRecord(ctx, md.ID, name)
	if err != nil {
		return "", err
	}

	body := record{Type: "TXT", Name: name, Value: value, TTL: p.ttl, GTDLocation: "DEFAULT"}
	base := fmt.Sprintf("%s/dns/managed/%d/records", p.baseURL, md.ID)
	if existing != nil {
		body.ID = existing.ID
		if err := p.client.Do(ctx, http.MethodPut, fmt.Sprintf("%s/%d", base, existing.ID), body, nil); err != nil {
			return "", err
		}
		return fmt.Sprint(md.ID), nil
	}
	if err := p.client.Do(ctx, http.MethodPost, base+"/", body, nil); err != nil {
		return "", err
	}
	return fmt.Sprint(md.ID), nil
}

// Remove deletes the challenge TXT record.
func (p *Publisher) Remove(ctx context.Context, domain, zoneHandle string) error {
	md, err := p.findDomain(ctx, domain)
	if err != nil {
		return err
	}

	existing, err := p.findRecord(ctx, md.ID, dnspublisher.RelativeChallengeName(domain, md.Name))
	if err != nil {
		return err
	}
	if existing == nil {
		return nil
	}
	url := fmt.Sprintf("%s/dns/managed/%d/records/%d", p.baseURL, md.ID, existing.ID)
	return p.client.Do(ctx, http.MethodDelete, url, nil, nil)
}

func (p *Publisher) findDomain(ctx context.Context, domain string) (*managedDomain, error) {
	var list managedDomainList
	if err := p.client.Get(ctx, p.baseURL+"/dns/managed/", &list); err != nil {
		return nil, err
	}
	names := make([]string, len(list.Data))
	byName := make(map[string]managedDomain, len(list.Data))
	for i, d := range list.Data {
		names[i] = d.Name
		byName[d.Name] = d
	}
	name, ok := dnspublisher.FindZone(domain, names)
	if !ok {
		return nil, fmt.Errorf("%w: no dnsmadeeasy domain for %s", dnspublisher.ErrZoneNotFound, domain)
	}
	md := byName[name]
	return &md, nil
}

func (p *Publisher) findRecord(ctx context.Context, domainID int, name string) (*record, error) {
	query := url.Values{"type": {"TXT"}, "recordName": {name}}
	var list recordList
	u := fmt.Sprintf("%s/dns/managed/%d/records?%s", p.baseURL, domainID, query.Encode())
	if err := p.client.Get(ctx, u, &list); err != nil {
		return nil, err
	}
	if len(list.Data) == 0 {
		return nil, nil
	}
	return &list.Data[0], nil
}
