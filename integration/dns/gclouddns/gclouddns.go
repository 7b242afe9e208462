// Package gclouddns publishes DNS-01 challenge records through the Google
// Cloud DNS REST API. The credential is "PROJECT:TOKEN", where TOKEN is an
// OAuth2 access token authorized for the project's managed zones.
package gclouddns

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/certflow/certflow/core/certorder"
	"github.com/certflow/certflow/core/dnspublisher"
)

const defaultBaseURL = "https://dns.googleapis.com/dns/v1"

const credentialFormat = "PROJECT:TOKEN"

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

// Publisher manages _acme-challenge TXT records in Cloud DNS managed zones.
type Publisher struct {
	client  *dnspublisher.RESTClient
	baseURL string
	project string
	ttl     int
}

// New validates the credential and builds a Cloud DNS publisher.
func New(cfg certorder.DNSProviderConfig, opts ...Option) (*Publisher, error) {
	parts, err := dnspublisher.SplitCredential(certorder.ProviderGoogleCloudDNS, cfg.Credential, credentialFormat, 2)
	if err != nil {
		return nil, err
	}
	project, token := parts[0], parts[1]

	p := &Publisher{
		client: dnspublisher.NewRESTClient(certorder.ProviderGoogleCloudDNS, func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+token)
		}),
		baseURL: defaultBaseURL,
		project: project,
		ttl:     cfg.TTL(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

type managedZone struct {
	Name    string `json:"name"`
	DNSName string `json:"dnsName"`
}

type managedZoneList struct {
	ManagedZones []managedZone `json:"managedZones"`
}

type rrset struct {
	Name    string   `json:"name"`
	Type    string   `json:"type"`
	TTL     int      `json:"ttl"`
	RRDatas []string `json:"rrdatas"`
}

type rrsetList struct {
	RRSets []rrset `json:"rrsets"`
}

type change struct {
	Additions []rrset `json:"additions,omitempty"`
	Deletions []rrset `json:"deletions,omitempty"`
}

// Publish upserts the challenge TXT record and returns the managed zone
// name. Cloud DNS record names are fully qualified with a trailing dot,
// and an upsert is a change that deletes the existing set and adds the new
// one atomically.
func (p *Publisher) Publish(ctx context.Context, domain, value string) (string, error) {
	zone, err := p.findZone(ctx, domain)
	if err != nil {
		return "", err
	}

	existing, err := p.findRRSet(ctx, zone, domain)
	if err != nil {
		return "", err
	}

	ch := change{
		Additions: []rrset{{
			Name:    dnspublisher.ChallengeFQDN(domain) + ".",
			Type:    "TXT",
			TTL:     p.ttl,
			RRDatas: []string{strconv.Quote(value)},
		}},
	}
	if existing != nil {
		ch.Deletions = []rrset{*existing}
	}
	if err := p.applyChange(ctx, zone, ch); err != nil {
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

	existing, err := p.findRRSet(ctx, zone, domain)
	if err != nil {
		return err
	}
	if existing == nil {
		return nil
	}
	return p.applyChange(ctx, zone, change{Deletions: []rrset{*existing}})
}

func (p *Publisher) applyChange(ctx context.Context, zone string, ch change) error {
	url := fmt.Sprintf("%s/projects/%s/managedZones/%s/changes", p.baseURL, p.project, zone)
	return p.client.Do(ctx, http.MethodPost, url, ch, nil)
}

// findZone matches the domain against managed zone dnsNames, which carry a
// trailing dot, and returns the zone's resource name.
func (p *Publisher) findZone(ctx context.Context, domain string) (string, error) {
	var list managedZoneList
	url := fmt.Sprintf("%s/projects/%s/managedZones", p.baseURL, p.project)
	if err := p.client.Get(ctx, url, &list); err != nil {
		return "", err
	}

	dnsNames := make([]string, len(list.ManagedZones))
	byDNSName := make(map[string]string, len(list.ManagedZones))
	for i, z := range list.ManagedZones {
		dnsNames[i] = z.DNSName
		byDNSName[z.DNSName] = z.Name
	}
	name, ok := dnspublisher.FindZone(domain, dnsNames)
	if !ok {
		return "", fmt.Errorf("%w: no cloud dns managed zone for %s", dnspublisher.ErrZoneNotFound, domain)
	}
	return byDNSName[name], nil
}

func (p *Publisher) findRRSet(ctx context.Context, zone, domain string) (*rrset, error) {
	query := url.Values{
		"name": {dnspublisher.ChallengeFQDN(domain) + "."},
		"type": {"TXT"},
	}
	var list rrsetList
	u := fmt.Sprintf("%s/projects/%s/managedZones/%s/rrsets?%s", p.baseURL, p.project, zone, query.Encode())
	if err := p.client.Get(ctx, u, &list); err != nil {
		return nil, err
	}
	if len(list.RRSets) == 0 {
		return nil, nil
	}
	return &list.RRSets[0], nil
}
