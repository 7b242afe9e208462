// Package cloudflare publishes DNS-01 challenge records through the
// Cloudflare v4 API. The credential is a single API token scoped to Zone
// Read and DNS Edit.
package cloudflare

import (
	"context"
	"fmt"

	"github.com/cloudflare/cloudflare-go/v2"
	"github.com/cloudflare/cloudflare-go/v2/dns"
	"github.com/cloudflare/cloudflare-go/v2/option"
	"github.com/cloudflare/cloudflare-go/v2/zones"

	"github.com/certflow/certflow/core/certorder"
	"github.com/certflow/certflow/core/dnspublisher"
)

// Publisher manages _acme-challenge TXT records in Cloudflare zones.
type Publisher struct {
	client *cloudflare.Client
	ttl    int
}

// New validates the credential and builds a Cloudflare publisher. Extra
// request options (custom base URL, HTTP client) are appended after the
// token, so tests can point the client at a stub server.
func New(cfg certorder.DNSProviderConfig, opts ...option.RequestOption) (*Publisher, error) {
	token, err := dnspublisher.SingleToken(certorder.ProviderCloudflare, cfg.Credential)
	if err != nil {
		return nil, err
	}
	clientOpts := append([]option.RequestOption{option.WithAPIToken(token)}, opts...)
	return &Publisher{
		client: cloudflare.NewClient(clientOpts...),
		ttl:    cfg.TTL(),
	}, nil
}

// Publish upserts the challenge TXT record and returns the zone ID.
func (p *Publisher) Publish(ctx context.Context, domain, value string) (string, error) {
	zoneID, err := p.findZoneID(ctx, domain)
	if err != nil {
		return "", err
	}
	fqdn := dnspublisher.ChallengeFQDN(domain)

	record := dns.TXTRecordParam{
		Name:    cloudflare.F(fqdn),
		Type:    cloudflare.F(dns.TXTRecordTypeTXT),
		Content: cloudflare.F(value),
		TTL:     cloudflare.F(dns.TTL(p.ttl)),
	}

	existingID, err := p.findRecordID(ctx, zoneID, fqdn)
	if err != nil {
		return "", err
	}
	if existingID != "" {
		_, err = p.client.DNS.Records.Edit(ctx, existingID, dns.RecordEditParams{
			ZoneID: cloudflare.F(zoneID),
			Record: record,
		})
		if err != nil {
			return "", p.apiError(err)
		}
		return zoneID, nil
	}

	_, err = p.client.DNS.Records.New(ctx, dns.RecordNewParams{
		ZoneID: cloudflare.F(zoneID),
		Record: record,
	})
	if err != nil {
		return "", p.apiError(err)
	}
	return zoneID, nil
}

// Remove deletes the challenge TXT record. An empty zone handle triggers
// zone rediscovery.
func (p *Publisher) Remove(ctx context.Context, domain, zoneHandle string) error {
	zoneID := zoneHandle
	if zoneID == "" {
		var err error
		zoneID, err = p.findZoneID(ctx, domain)
		if err != nil {
			return err
		}
	}

	recordID, err := p.findRecordID(ctx, zoneID, dnspublisher.ChallengeFQDN(domain))
	if err != nil {
		return err
	}
	if recordID == "" {
		return nil
	}
	_, err = p.client.DNS.Records.Delete(ctx, recordID, dns.RecordDeleteParams{
		ZoneID: cloudflare.F(zoneID),
	})
	if err != nil {
		return p.apiError(err)
	}
	return nil
}

func (p *Publisher) findZoneID(ctx context.Context, domain string) (string, error) {
	var (
		names []string
		ids   = make(map[string]string)
	)
	pager := p.client.Zones.ListAutoPaging(ctx, zones.ZoneListParams{})
	for pager.Next() {
		zone := pager.Current()
		names = append(names, zone.Name)
		ids[zone.Name] = zone.ID
	}
	if err := pager.Err(); err != nil {
		return "", p.apiError(err)
	}

	name, ok := dnspublisher.FindZone(domain, names)
	if !ok {
		return "", fmt.Errorf("%w: no cloudflare zone for %s", dnspublisher.ErrZoneNotFound, domain)
	}
	return ids[name], nil
}

func (p *Publisher) findRecordID(ctx context.Context, zoneID, fqdn string) (string, error) {
	list, err := p.client.DNS.Records.List(ctx, dns.RecordListParams{
		ZoneID: cloudflare.F(zoneID),
		Name:   cloudflare.F(fqdn),
		Type:   cloudflare.F(dns.RecordListParamsTypeTXT),
	})
	if err != nil {
		return "", p.apiError(err)
	}
	if len(list.Result) == 0 {
		return "", nil
	}
	return list.Result[0].ID, nil
}

func (p *Publisher) apiError(err error) error {
	return &dnspublisher.APIError{Provider: certorder.ProviderCloudflare, Err: err}
}
