package certorder

// ProviderType identifies a supported DNS vendor. The value is stored with
// the provider configuration and resolved to an adapter through the
// dnspublisher registry; unknown values fail fast at lookup time.
type ProviderType string

const (
	ProviderCloudflare     ProviderType = "cloudflare"
	ProviderDigitalOcean   ProviderType = "digitalocean"
	ProviderAWSRoute53     ProviderType = "route53"
	ProviderGoogleCloudDNS ProviderType = "gclouddns"
	ProviderHetzner        ProviderType = "hetzner"
	ProviderNamecheap      ProviderType = "namecheap"
	ProviderGoDaddy        ProviderType = "godaddy"
	ProviderDNSMadeEasy    ProviderType = "dnsmadeeasy"
	ProviderLinode         ProviderType = "linode"
	ProviderVultr          ProviderType = "vultr"
	ProviderPorkbun        ProviderType = "porkbun"
	ProviderGandi          ProviderType = "gandi"
	ProviderDuckDNS        ProviderType = "duckdns"
	ProviderCloudns        ProviderType = "cloudns"
	ProviderDreamHost      ProviderType = "dreamhost"
)

// DefaultRecordTTL is used when a provider configuration does not specify
// a TTL for published challenge records.
const DefaultRecordTTL = 120

// DNSProviderConfig is one user's credentials for one DNS vendor. The
// credential string's internal structure (single token, KEY:SECRET, or a
// multi-part tuple) is provider-specific and validated by the adapter.
type DNSProviderConfig struct {
	ID          string
	OwnerID     string
	DisplayName string
	Type        ProviderType
	Credential  string
	TTLSeconds  int
}

// TTL returns the configured record TTL in seconds, falling back to
// DefaultRecordTTL when unset.
func (c DNSProviderConfig) TTL() int {
	if c.TTLSeconds <= 0 {
		return DefaultRecordTTL
	}
	return c.TTLSeconds
}
