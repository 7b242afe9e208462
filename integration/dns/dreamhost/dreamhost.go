// Package dreamhost publishes DNS-01 challenge records through the
// DreamHost API. The credential is a single API key.
//
// The DreamHost API is flat: records are added and removed by their full
// name, type, and value, with no zone or record identifiers. Removal
// therefore needs the published value back, which is why Publish returns
// it as the zone handle.
package dreamhost

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/certflow/certflow/core/certorder"
	"github.com/certflow/certflow/core/dnspublisher"
)

const defaultBaseURL = "https://api.dreamhost.com"

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

// Publisher manages _acme-challenge TXT records through DreamHost.
type Publisher struct {
	client  *dnspublisher.RESTClient
	baseURL string
	key     string
}

// New validates the credential and builds a DreamHost publisher.
func New(cfg certorder.DNSProviderConfig, opts ...Option) (*Publisher, error) {
	key, err := dnspublisher.SingleToken(certorder.ProviderDreamHost, cfg.Credential)
	if err != nil {
		return nil, err
	}
	p := &Publisher{
		client:  dnspublisher.NewRESTClient(certorder.ProviderDreamHost, nil),
		baseURL: defaultBaseURL,
		key:     key,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

type apiResponse struct {
	Result string `json:"result"`
	Data   string `json:"data"`
}

// Publish adds the challenge TXT record and returns the published value as
// the handle Remove needs.
func (p *Publisher) Publish(ctx context.Context, domain, value string) (string, error) {
	if err := p.call(ctx, "dns-add_record", domain, value); err != nil {
		return "", err
	}
	return value, nil
}

// Remove deletes the challenge TXT record identified by the value in the
// zone handle.
func (p *Publisher) Remove(ctx context.Context, domain, zoneHandle string) error {
	if zoneHandle == "" {
		return nil
	}
	err := p.call(ctx, "dns-remove_record", domain, zoneHandle)
	var apiErr *dnspublisher.APIError
	if errors.As(err, &apiErr) && apiErr.Message == "no_such_record" {
		return nil
	}
	return err
}

func (p *Publisher) call(ctx context.Context, cmd, domain, value string) error {
	params := url.Values{
		"key":    {p.key},
		"cmd":    {cmd},
		"format": {"json"},
		"record": {dnspublisher.ChallengeFQDN(domain)},
		"type":   {"TXT"},
		"value":  {value},
	}

	var out apiResponse
	if err := p.client.Get(ctx, p.baseURL+"/?"+params.Encode(), &out); err != nil {
		return err
	}
	if out.Result != "success" {
		return &dnspublisher.APIError{Provider: certorder.ProviderDreamHost, Message: out.Data}
	}
	return nil
}
