// Package duckdns publishes DNS-01 challenge records through the Duck DNS
// update API. The credential is the account token; domains are subdomains
// of duckdns.org.
//
// Duck DNS is not a general DNS host: one TXT record exists per subdomain,
// set or cleared through a single GET endpoint that answers with a plain
// text OK or KO.
package duckdns

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/certflow/certflow/core/certorder"
	"github.com/certflow/certflow/core/dnspublisher"
)

const defaultBaseURL = "https://www.duckdns.org"

// DuckDNS hosts everything under this zone.
const duckZone = "duckdns.org"

// Option configures the publisher.
type Option func(*Publisher)

// WithBaseURL points the adapter at a different API endpoint, used in tests.
func WithBaseURL(baseURL string) Option {
	return func(p *Publisher) { p.baseURL = baseURL }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Publisher) { p.http = client }
}

// Publisher manages the TXT record of Duck DNS subdomains.
type Publisher struct {
	http    *http.Client
	baseURL string
	token   string
}

// New validates the credential and builds a Duck DNS publisher.
func New(cfg certorder.DNSProviderConfig, opts ...Option) (*Publisher, error) {
	token, err := dnspublisher.SingleToken(certorder.ProviderDuckDNS, cfg.Credential)
	if err != nil {
		return nil, err
	}
	p := &Publisher{
		http:    &http.Client{Timeout: dnspublisher.DefaultHTTPTimeout},
		baseURL: defaultBaseURL,
		token:   token,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Publish sets the subdomain's TXT record and returns the Duck DNS zone.
func (p *Publisher) Publish(ctx context.Context, domain, value string) (string, error) {
	sub, err := subdomain(domain)
	if err != nil {
		return "", err
	}
	if err := p.update(ctx, sub, value, false); err != nil {
		return "", err
	}
	return duckZone, nil
}

// Remove clears the subdomain's TXT record.
func (p *Publisher) Remove(ctx context.Context, domain, _ string) error {
	sub, err := subdomain(domain)
	if err != nil {
		return err
	}
	return p.update(ctx, sub, "", true)
}

func (p *Publisher) update(ctx context.Context, sub, txt string, clear bool) error {
	params := url.Values{
		"domains": {sub},
		"token":   {p.token},
		"txt":     {txt},
	}
	if clear {
		params.Set("clear", "true")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/update?"+params.Encode(), nil)
	if err != nil {
		return &dnspublisher.APIError{Provider: certorder.ProviderDuckDNS, Err: err}
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return &dnspublisher.APIError{Provider: certorder.ProviderDuckDNS, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &dnspublisher.APIError{Provider: certorder.ProviderDuckDNS, Err: err}
	}
	if resp.StatusCode != http.StatusOK || strings.TrimSpace(string(body)) != "OK" {
		return &dnspublisher.APIError{
			Provider:   certorder.ProviderDuckDNS,
			StatusCode: resp.StatusCode,
			Message:    "update refused: " + strings.TrimSpace(string(body)),
		}
	}
	return nil
}

// subdomain extracts the Duck DNS subdomain from a domain name, accepting
// both "sub" and "sub.duckdns.org" forms.
func subdomain(domain string) (string, error) {
	domain = strings.TrimSuffix(strings.ToLower(domain), ".")
	domain = strings.TrimSuffix(domain, "."+duckZone)
	if domain == "" || domain == duckZone || strings.Contains(domain, ".") {
		return "", fmt.Errorf("%w: %q is not a duckdns.org subdomain", dnspublisher.ErrZoneNotFound, domain)
	}
	return domain, nil
}
