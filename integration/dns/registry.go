// Package dns wires every supported DNS vendor adapter into a publisher
// registry. Applications that only need a subset can build their own
// registry and register adapters individually.
package dns

import (
	"github.com/certflow/certflow/core/certorder"
	"github.com/certflow/certflow/core/dnspublisher"
	"github.com/certflow/certflow/integration/dns/cloudflare"
	"github.com/certflow/certflow/integration/dns/cloudns"
	"github.com/certflow/certflow/integration/dns/digitalocean"
	"github.com/certflow/certflow/integration/dns/dnsmadeeasy"
	"github.com/certflow/certflow/integration/dns/dreamhost"
	"github.com/certflow/certflow/integration/dns/duckdns"
	"github.com/certflow/certflow/integration/dns/gandi"
	"github.com/certflow/certflow/integration/dns/gclouddns"
	"github.com/certflow/certflow/integration/dns/godaddy"
	"github.com/certflow/certflow/integration/dns/hetzner"
	"github.com/certflow/certflow/integration/dns/linode"
	"github.com/certflow/certflow/integration/dns/namecheap"
	"github.com/certflow/certflow/integration/dns/porkbun"
	"github.com/certflow/certflow/integration/dns/route53"
	"github.com/certflow/certflow/integration/dns/vultr"
)

// DefaultRegistry returns a registry with every supported vendor bound to
// its adapter.
func DefaultRegistry() *dnspublisher.Registry {
	r := dnspublisher.NewRegistry()
	r.Register(certorder.ProviderCloudflare, func(cfg certorder.DNSProviderConfig) (dnspublisher.Publisher, error) {
		return cloudflare.New(cfg)
	})
	r.Register(certorder.ProviderAWSRoute53, func(cfg certorder.DNSProviderConfig) (dnspublisher.Publisher, error) {
		return route53.New(cfg)
	})
	r.Register(certorder.ProviderGoogleCloudDNS, func(cfg certorder.DNSProviderConfig) (dnspublisher.Publisher, error) {
		return gclouddns.New(cfg)
	})
	r.Register(certorder.ProviderDigitalOcean, func(cfg certorder.DNSProviderConfig) (dnspublisher.Publisher, error) {
		return digitalocean.New(cfg)
	})
	r.Register(certorder.ProviderHetzner, func(cfg certorder.DNSProviderConfig) (dnspublisher.Publisher, error) {
		return hetzner.New(cfg)
	})
	r.Register(certorder.ProviderLinode, func(cfg certorder.DNSProviderConfig) (dnspublisher.Publisher, error) {
		return linode.New(cfg)
	})
	r.Register(certorder.ProviderVultr, func(cfg certorder.DNSProviderConfig) (dnspublisher.Publisher, error) {
		return vultr.New(cfg)
	})
	r.Register(certorder.ProviderPorkbun, func(cfg certorder.DNSProviderConfig) (dnspublisher.Publisher, error) {
		return porkbun.New(cfg)
	})
	r.Register(certorder.ProviderGandi, func(cfg certorder.DNSProviderConfig) (dnspublisher.Publisher, error) {
		return gandi.New(cfg)
	})
	r.Register(certorder.ProviderGoDaddy, func(cfg certorder.DNSProviderConfig) (dnspublisher.Publisher, error) {
		return godaddy.New(cfg)
	})
	r.Register(certorder.ProviderDNSMadeEasy, func(cfg certorder.DNSProviderConfig) (dnspublisher.Publisher, error) {
		return dnsmadeeasy.New(cfg)
	})
	r.Register(certorder.ProviderNamecheap, func(cfg certorder.DNSProviderConfig) (dnspublisher.Publisher, error) {
		return namecheap.New(cfg)
	})
	r.Register(certorder.ProviderCloudns, func(cfg certorder.DNSProviderConfig) (dnspublisher.Publisher, error) {
		return cloudns.New(cfg)
	})
	r.Register(certorder.ProviderDuckDNS, func(cfg certorder.DNSProviderConfig) (dnspublisher.Publisher, error) {
		return duckdns.New(cfg)
	})
	r.Register(certorder.ProviderDreamHost, func(cfg certorder.DNSProviderConfig) (dnspublisher.Publisher, error) {
		return dreamhost.New(cfg)
	})
	return r
}
