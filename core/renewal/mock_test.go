package renewal_test

import (
	"context"
	"sync"
	"time"

	"github.com/certflow/certflow/core/certorder"
	"github.com/certflow/certflow/core/dnspublisher"
)

// memStore is an in-memory certorder.Store for tests.
type memStore struct {
	mu        sync.Mutex
	orders    map[string]*certorder.CertificateOrder
	providers map[string]*certorder.DNSProviderConfig
}

func newMemStore() *memStore {
	return &memStore{
		orders:    make(map[string]*certorder.CertificateOrder),
		providers: make(map[string]*certorder.DNSProviderConfig),
	}
}

func (m *memStore) GetOrder(_ context.Context, orderID string) (*certorder.CertificateOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[orderID]
	if !ok {
		return nil, certorder.ErrOrderNotFound
	}
	return order.Clone(), nil
}

func (m *memStore) SaveOrder(_ context.Context, order *certorder.CertificateOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[order.ID] = order.Clone()
	return nil
}

func (m *memStore) ListDueForRenewal(_ context.Context, notBefore, notAfter time.Time) ([]*certorder.CertificateOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []*certorder.CertificateOrder
	for _, order := range m.orders {
		if order.ExpiresAt.After(notBefore) && order.ExpiresAt.Before(notAfter) {
			due = append(due, order.Clone())
		}
	}
	return due, nil
}

func (m *memStore) GetProviderConfig(_ context.Context, providerID string) (*certorder.DNSProviderConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, ok := m.providers[providerID]
	if !ok {
		return nil, certorder.ErrProviderConfigNotFound
	}
	cp := *cfg
	return &cp, nil
}

func (m *memStore) ListProviderConfigs(_ context.Context, ownerID string) ([]*certorder.DNSProviderConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var configs []*certorder.DNSProviderConfig
	for _, cfg := range m.providers {
		if cfg.OwnerID == ownerID {
			cp := *cfg
			configs = append(configs, &cp)
		}
	}
	return configs, nil
}

func (m *memStore) putProvider(cfg certorder.DNSProviderConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers[cfg.ID] = &cfg
}

// fakeDNS is the shared record state the fake publisher writes and the fake
// verifier reads.
type fakeDNS struct {
	mu      sync.Mutex
	records map[string]string
}

func newFakeDNS() *fakeDNS {
	return &fakeDNS{records: make(map[string]string)}
}

func (d *fakeDNS) set(fqdn, value string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.records[fqdn] = value
}

func (d *fakeDNS) get(fqdn string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.records[fqdn]
	return v, ok
}

func (d *fakeDNS) delete(fqdn string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.records, fqdn)
}

func (d *fakeDNS) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.records)
}

// fakePublisher writes records into a fakeDNS and can be told to fail its
// first publishes.
type fakePublisher struct {
	dns *fakeDNS

	mu            sync.Mutex
	publishCalls  int
	removeCalls   int
	failPublishes int
	failWith      error
}

func (p *fakePublisher) Publish(_ context.Context, domain, value string) (string, error) {
	p.mu.Lock()
	p.publishCalls++
	if p.failPublishes > 0 {
		p.failPublishes--
		err := p.failWith
		p.mu.Unlock()
		return "", err
	}
	p.mu.Unlock()
	p.dns.set(dnspublisher.ChallengeFQDN(domain), value)
	return "zone-" + domain, nil
}

func (p *fakePublisher) Remove(_ context.Context, domain, _ string) error {
	p.mu.Lock()
	p.removeCalls++
	p.mu.Unlock()
	p.dns.delete(dnspublisher.ChallengeFQDN(domain))
	return nil
}

func (p *fakePublisher) publishes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.publishCalls
}

func (p *fakePublisher) removes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.removeCalls
}

// dnsVerifier reports a record visible as soon as it is in the fakeDNS.
type dnsVerifier struct {
	dns *fakeDNS
}

func (v *dnsVerifier) Verify(_ context.Context, fqdn, expected string) bool {
	got, ok := v.dns.get(fqdn)
	return ok && got == expected
}

// neverVerifier never sees any record.
type neverVerifier struct{}

func (neverVerifier) Verify(context.Context, string, string) bool { return false }
