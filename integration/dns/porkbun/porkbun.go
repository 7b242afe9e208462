// Package porkbun publishes DNS-01 challenge records through the Porkbun
// v3 API. The credential is "APIKEY:SECRETKEY"; every call is a POST with
// both keys in the body.
package porkbun

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/certflow/certflow/core/certorder"
	"github.com/certflow/certflow/core/dnspublisher"
)

const defaultBaseURL = "https://api.porkbun.com/api/json/v3"

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

// Publisher manages _acme-challenge TXT records in Porkbun domains.
type Publisher struct {
	client  *dnspublisher.RESTClient
	baseURL string
	apiKey  string
	secret  string
	ttl     int
}

// New validates the credential and builds a Porkbun publisher.
func New(cfg certorder.DNSProviderConfig, opts ...Option) (*Publisher, error) {
	parts, err := dnspublisher.SplitCredential(certorder.ProviderPorkbun, cfg.Credential, credentialFormat, 2)
	if err != nil {
		return nil, err
	}
	p := &Publisher{
		client:  dnspublisher.NewRESTClient(certorder.ProviderPorkbun, nil),
		baseURL: defaultBaseURL,
		apiKey:  parts[0],
		secret:  parts[1],
		ttl:     cfg.TTL(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

type auth struct {
	APIKey       string `json:"apikey"`
	SecretAPIKey string `json:"secretapikey"`
}

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type domainListResponse struct {
	statusResponse
	Domains []struct {
		Domain string `json:"domain"`
	} `json:"domains"`
}

type retrieveResponse struct {
	statusResponse
	Records []struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		Content string `json:"content"`
	} `json:"records"`
}

type upsertRequest struct {
	auth
	Name    string `json:"name"`
	Type    string `json:"type"`
	Content string `json:"content"`
	TTL     string `json:"ttl"`
}

// Publish upserts the challenge TXT record and returns the zone name.
func (p *Publisher) Publish(ctx context.Context, domain, value string) (string, error) {
	zone, err := p.findZone(ctx, domain)
	if err != nil {
		return "", err
	}

	sub := dnspublisher.RelativeChallengeName(domain, zone)
	recordID, err := p.findRecordID(ctx, zone, sub)
	if err != nil {
		return "", err
	}

	body := upsertRequest{
		auth:    p.auth(),
		Name:    sub,
		Type:    "TXT",
		Content: value,
		TTL:     strconv.Itoa(p.ttl),
	}

	var out statusResponse
	url := p.baseURL + "/dns/create/" + zone
	if recordID != "" {
		url = p.baseURL + "/dns/edit/" + zone + "/" + recordID
	}
	if err := p.client.Do(ctx, http.MethodPost, url, body, &out); err != nil {
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

	recordID, err := p.findRecordID(ctx, zone, dnspublisher.RelativeChallengeName(domain, zone))
	if err != nil {
		return err
	}
	if recordID == "" {
		return nil
	}

	var out statusResponse
	if err := p.client.Do(ctx, http.MethodPost, p.baseURL+"/dns/delete/"+zone+"/"+recordID, p.auth(), &out); err != nil {
		return err
	}
	return p.checkStatus(out)
}

func (p *Publisher) findZone(ctx context.Context, domain string) (string, error) {
	var out domainListResponse
	if err := p.client.Do(ctx, http.MethodPost, p.baseURL+"/domain/listAll", p.auth(), &out); err != nil {
		return "", err
	}
	if err := p.checkStatus(out.statusResponse); err != nil {
		return "", err
	}

	names := make([]string, len(out.Domains))
	for i, d := range out.Domains {
		names[i] = d.Domain
	}
	zone, ok := dnspublisher.FindZone(domain, names)
	if !ok {
		return "", fmt.Errorf("%w: no porkbun domain for %s", dnspublisher.ErrZoneNotFound, domain)
	}
	return zone, nil
}

func (p *Publisher) findRecordID(ctx context.Context, zone, sub string) (string, error) {
	var out retrieveResponse
	url := p.baseURL + "/dns/retrieveByNameType/" + zone + "/TXT/" + sub
	if err := p.client.Do(ctx, http.MethodPost, url, p.auth(), &out); err != nil {
		return "", err
	}
	if err := p.checkStatus(out.statusResponse); err != nil {
		return "", err
	}
	if len(out.Records) == 0 {
		return "", nil
	}
	return out.Records[0].ID, nil
}

func (p *Publisher) auth() auth {
	return auth{APIKey: p.apiKey, SecretAPIKey: p.secret}
}

// checkStatus converts Porkbun's in-band error reporting into *APIError:
// the API answers 200 with status "ERROR" on failures.
func (p *Publisher) checkStatus(s statusResponse) error {
	if s.Status == "SUCCESS" {
		return nil
	}
	return &dnspublisher.APIError{Provider: certorder.ProviderPorkbun, Message: s.Message}
}
