// Package route53 publishes DNS-01 challenge records through AWS Route 53.
// The credential is "ACCESSKEY:SECRETKEY" for an IAM user allowed to list
// hosted zones and change record sets.
package route53

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/route53/types"

	"github.com/certflow/certflow/core/certorder"
	"github.com/certflow/certflow/core/dnspublisher"
)

// Route 53 is a global service; the region only anchors the SDK.
const defaultRegion = "us-east-1"

const credentialFormat = "ACCESSKEY:SECRETKEY"

// Publisher manages _acme-challenge TXT records in Route 53 hosted zones.
type Publisher struct {
	client *route53.Client
	ttl    int64
}

// New validates the credential and builds a Route 53 publisher. Extra
// client option functions run last, so tests can override the endpoint.
func New(cfg certorder.DNSProviderConfig, opts ...func(*route53.Options)) (*Publisher, error) {
	parts, err := dnspublisher.SplitCredential(certorder.ProviderAWSRoute53, cfg.Credential, credentialFormat, 2)
	if err != nil {
		return nil, err
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(defaultRegion),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(parts[0], parts[1], "")),
	)
	if err != nil {
		return nil, &dnspublisher.APIError{Provider: certorder.ProviderAWSRoute53, Err: err}
	}

	return &Publisher{
		client: route53.NewFromConfig(awsCfg, opts...),
		ttl:    int64(cfg.TTL()),
	}, nil
}

// Publish upserts the challenge TXT record and returns the hosted zone ID.
func (p *Publisher) Publish(ctx context.Context, domain, value string) (string, error) {
	zoneID, err := p.findZoneID(ctx, domain)
	if err != nil {
		return "", err
	}
	if err := p.change(ctx, zoneID, types.ChangeActionUpsert, domain, value); err != nil {
		return "", err
	}
	return zoneID, nil
}

// Remove deletes the challenge TXT record. Route 53 deletions must match
// the existing record set exactly, so the current set is fetched first.
func (p *Publisher) Remove(ctx context.Context, domain, zoneHandle string) error {
	zoneID := zoneHandle
	if zoneID == "" {
		var err error
		zoneID, err = p.findZoneID(ctx, domain)
		if err != nil {
			return err
		}
	}

	fqdn := dnspublisher.ChallengeFQDN(domain) + "."
	out, err := p.client.ListResourceRecordSets(ctx, &route53.ListResourceRecordSetsInput{
		HostedZoneId:    aws.String(zoneID),
		StartRecordName: aws.String(fqdn),
		StartRecordType: types.RRTypeTxt,
		MaxItems:        aws.Int32(1),
	})
	if err != nil {
		return &dnspublisher.APIError{Provider: certorder.ProviderAWSRoute53, Err: err}
	}
	if len(out.ResourceRecordSets) == 0 {
		return nil
	}
	existing := out.ResourceRecordSets[0]
	if aws.ToString(existing.Name) != fqdn || existing.Type != types.RRTypeTxt {
		return nil
	}

	_, err = p.client.ChangeResourceRecordSets(ctx, &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: aws.String(zoneID),
		ChangeBatch: &types.ChangeBatch{
			Changes: []types.Change{{
				Action:            types.ChangeActionDelete,
				ResourceRecordSet: &existing,
			}},
		},
	})
	if err != nil {
		return &dnspublisher.APIError{Provider: certorder.ProviderAWSRoute53, Err: err}
	}
	return nil
}

func (p *Publisher) change(ctx context.Context, zoneID string, action types.ChangeAction, domain, value string) error {
	_, err := p.client.ChangeResourceRecordSets(ctx, &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: aws.String(zoneID),
		ChangeBatch: &types.ChangeBatch{
			Changes: []types.Change{{
				Action: action,
				ResourceRecordSet: &types.ResourceRecordSet{
					Name: aws.String(dnspublisher.ChallengeFQDN(domain) + "."),
					Type: types.RRTypeTxt,
					TTL:  aws.Int64(p.ttl),
					ResourceRecords: []types.ResourceRecord{
						{Value: aws.String(strconv.Quote(value))},
					},
				},
			}},
		},
	})
	if err != nil {
		return &dnspublisher.APIError{Provider: certorder.ProviderAWSRoute53, Err: err}
	}
	return nil
}

// findZoneID lists hosted zones and picks the longest-suffix match. Zone
// names come back fully qualified with a trailing dot.
func (p *Publisher) findZoneID(ctx context.Context, domain string) (string, error) {
	var (
		names []string
		ids   = make(map[string]string)
	)

	input := &route53.ListHostedZonesInput{}
	for {
		out, err := p.client.ListHostedZones(ctx, input)
		if err != nil {
			return "", &dnspublisher.APIError{Provider: certorder.ProviderAWSRoute53, Err: err}
		}
		for _, zone := range out.HostedZones {
			name := aws.ToString(zone.Name)
			names = append(names, name)
			ids[name] = strings.TrimPrefix(aws.ToString(zone.Id), "/hostedzone/")
		}
		if !out.IsTruncated {
			break
		}
		input.Marker = out.NextMarker
	}

	name, ok := dnspublisher.FindZone(domain, names)
	if !ok {
		return "", fmt.Errorf("%w: no route53 hosted zone for %s", dnspublisher.ErrZoneNotFound, domain)
	}
	return ids[name], nil
}
