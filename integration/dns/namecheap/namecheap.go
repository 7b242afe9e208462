// Package namecheap publishes DNS-01 challenge records through the
// Namecheap XML API. The credential is "APIUSER:APIKEY:USERNAME:CLIENTIP";
// Namecheap authorizes calls against a whitelisted client IP.
//
// The API has no record-level operations: setHosts replaces the complete
// host list of a domain, so both Publish and Remove read the current hosts
// first and write the full list back.
package namecheap

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/certflow/certflow/core/certorder"
	"github.com/certflow/certflow/core/dnspublisher"
)

const defaultBaseURL = "https://api.namecheap.com/xml.response"

const credentialFormat = "APIUSER:APIKEY:USERNAME:CLIENTIP"

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

// Publisher manages _acme-challenge TXT records in Namecheap domains.
type Publisher struct {
	http    *http.Client
	baseURL string
	ttl     int

	apiUser  string
	apiKey   string
	userName string
	clientIP string
}

// New validates the credential and builds a Namecheap publisher.
func New(cfg certorder.DNSProviderConfig, opts ...Option) (*Publisher, error) {
	parts, err := dnspublisher.SplitCredential(certorder.ProviderNamecheap, cfg.Credential, credentialFormat, 4)
	if err != nil {
		return nil, err
	}
	p := &Publisher{
		http:     &http.Client{Timeout: dnspublisher.DefaultHTTPTimeout},
		baseURL:  defaultBaseURL,
		ttl:      cfg.TTL(),
		apiUser:  parts[0],
		apiKey:   parts[1],
		userName: parts[2],
		clientIP: parts[3],
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

type host struct {
	Name    string `xml:"Name,attr"`
	Type    string `xml:"Type,attr"`
	Address string `xml:"Address,attr"`
	TTL     string `xml:"TTL,attr"`
}

type apiResponse struct {
	Status string `xml:"Status,attr"`
	Errors struct {
		Error []string `xml:"Error"`
	} `xml:"Errors"`
	CommandResponse struct {
		GetHostsResult struct {
			Hosts []host `xml:"host"`
		} `xml:"DomainDNSGetHostsResult"`
	} `xml:"CommandResponse"`
}

// Publish upserts the challenge TXT record and returns the zone name.
func (p *Publisher) Publish(ctx context.Context, domain, value string) (string, error) {
	zone, hosts, err := p.findZoneHosts(ctx, domain)
	if err != nil {
		return "", err
	}

	name := dnspublisher.RelativeChallengeName(domain, zone)
	kept := make([]host, 0, len(hosts)+1)
	for _, h := range hosts {
		if h.Type == "TXT" && h.Name == name {
			continue
		}
		kept = append(kept, h)
	}
	kept = append(kept, host{
		Name:    name,
		Type:    "TXT",
		Address: value,
		TTL:     strconv.Itoa(p.ttl),
	})

	if err := p.setHosts(ctx, zone, kept); err != nil {
		return "", err
	}
	return zone, nil
}

// Remove deletes the challenge TXT record by writing back the host list
// without it.
func (p *Publisher) Remove(ctx context.Context, domain, zoneHandle string) error {
	zone := zoneHandle
	var hosts []host
	var err error
	if zone != "" {
		hosts, err = p.getHosts(ctx, zone)
	} else {
		zone, hosts, err = p.findZoneHosts(ctx, domain)
	}
	if err != nil {
		return err
	}

	name := dnspublisher.RelativeChallengeName(domain, zone)
	kept := make([]host, 0, len(hosts))
	removed := false
	for _, h := range hosts {
		if h.Type == "TXT" && h.Name == name {
			removed = true
			continue
		}
		kept = append(kept, h)
	}
	if !removed {
		return nil
	}
	return p.setHosts(ctx, zone, kept)
}

// findZoneHosts walks the domain's suffixes until getHosts succeeds; the
// first suffix Namecheap accepts is the registered domain.
func (p *Publisher) findZoneHosts(ctx context.Context, domain string) (string, []host, error) {
	for _, candidate := range dnspublisher.ZoneCandidates(domain) {
		hosts, err := p.getHosts(ctx, candidate)
		if err == nil {
			return candidate, hosts, nil
		}
	}
	return "", nil, fmt.Errorf("%w: no namecheap domain for %s", dnspublisher.ErrZoneNotFound, domain)
}

func (p *Publisher) getHosts(ctx context.Context, zone string) ([]host, error) {
	params := p.baseParams("namecheap.domains.dns.getHosts")
	sld, tld, err := splitZone(zone)
	if err != nil {
		return nil, err
	}
	params.Set("SLD", sld)
	params.Set("TLD", tld)

	resp, err := p.call(ctx, params)
	if err != nil {
		return nil, err
	}
	return resp.CommandResponse.GetHostsResult.Hosts, nil
}

func (p *Publisher) setHosts(ctx context.Context, zone string, hosts []host) error {
	params := p.baseParams("namecheap.domains.dns.setHosts")
	sld, tld, err := splitZone(zone)
	if err != nil {
		return err
	}
	params.Set("SLD", sld)
	params.Set("TLD", tld)
	for i, h := range hosts {
		n := strconv.Itoa(i + 1)
		params.Set("HostName"+n, h.Name)
		params.Set("RecordType"+n, h.Type)
		params.Set("Address"+n, h.Address)
		params.Set("TTL"+n, h.TTL)
	}

	_, err = p.call(ctx, params)
	return err
}

func (p *Publisher) baseParams(command string) url.Values {
	return url.Values{
		"ApiUser":  {p.apiUser},
		"ApiKey":   {p.apiKey},
		"UserName": {p.userName},
		"ClientIp": {p.clientIP},
		"Command":  {command},
	}
}

func (p *Publisher) call(ctx context.Context, params url.Values) (*apiResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, &dnspublisher.APIError{Provider: certorder.ProviderNamecheap, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, &dnspublisher.APIError{Provider: certorder.ProviderNamecheap, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &dnspublisher.APIError{Provider: certorder.ProviderNamecheap, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &dnspublisher.APIError{
			Provider:   certorder.ProviderNamecheap,
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(body)),
		}
	}

	var parsed apiResponse
	if err := xml.Unmarshal(body, &parsed); err != nil {
		return nil, &dnspublisher.APIError{Provider: certorder.ProviderNamecheap, Err: fmt.Errorf("decode response: %w", err)}
	}
	if parsed.Status != "OK" {
		return nil, &dnspublisher.APIError{
			Provider: certorder.ProviderNamecheap,
			Message:  strings.Join(parsed.Errors.Error, "; "),
		}
	}
	return &parsed, nil
}

// splitZone splits a registered domain into Namecheap's SLD/TLD pair. The
// TLD is everything after the first label, which also covers multi-label
// suffixes like co.uk.
func splitZone(zone string) (sld, tld string, err error) {
	parts := strings.SplitN(strings.TrimSuffix(zone, "."), ".", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", &dnspublisher.APIError{
			Provider: certorder.ProviderNamecheap,
			Message:  fmt.Sprintf("cannot split %q into SLD and TLD", zone),
		}
	}
	return parts[0], parts[1], nil
}
