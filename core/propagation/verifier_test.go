package propagation_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/certflow/certflow/core/propagation"
)

// startTXTServer runs a local DNS server answering TXT queries for fqdn with
// the given values, quoted as a real resolver would return them.
func startTXTServer(t *testing.T, fqdn string, values []string) string {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := &dns.Server{
		PacketConn: pc,
		Handler: dns.HandlerFunc(func(w dns.ResponseWriter, r *dns.Msg) {
			m := new(dns.Msg)
			m.SetReply(r)
			q := r.Question[0]
			if q.Qtype == dns.TypeTXT && q.Name == dns.Fqdn(fqdn) {
				for _, v := range values {
					m.Answer = append(m.Answer, &dns.TXT{
						Hdr: dns.RR_Header{
							Name:   q.Name,
							Rrtype: dns.TypeTXT,
							Class:  dns.ClassINET,
							Ttl:    1,
						},
						Txt: []string{v},
					})
				}
			}
			_ = w.WriteMsg(m)
		}),
	}
	go func() { _ = srv.ActivateAndServe() }()
	t.Cleanup(func() { _ = srv.Shutdown() })

	return pc.LocalAddr().String()
}

func TestVerifyMatch(t *testing.T) {
	t.Parallel()

	const fqdn = "_acme-challenge.example.com"
	addr := startTXTServer(t, fqdn, []string{"expected-value"})

	v := propagation.NewVerifier(
		propagation.WithResolvers([]propagation.Resolver{{Name: "local", Addr: addr}}),
		propagation.WithQueryTimeout(time.Second),
	)
	assert.True(t, v.Verify(context.Background(), fqdn, "expected-value"))
}

func TestVerifyNoMatch(t *testing.T) {
	t.Parallel()

	const fqdn = "_acme-challenge.example.com"
	addr := startTXTServer(t, fqdn, []string{"some-other-value"})

	v := propagation.NewVerifier(
		propagation.WithResolvers([]propagation.Resolver{{Name: "local", Addr: addr}}),
		propagation.WithQueryTimeout(time.Second),
	)
	assert.False(t, v.Verify(context.Background(), fqdn, "expected-value"))
}

func TestVerifyTrimsQuotes(t *testing.T) {
	t.Parallel()

	const fqdn = "_acme-challenge.example.com"
	addr := startTXTServer(t, fqdn, []string{`"expected-value"`})

	v := propagation.NewVerifier(
		propagation.WithResolvers([]propagation.Resolver{{Name: "local", Addr: addr}}),
		propagation.WithQueryTimeout(time.Second),
	)
	assert.True(t, v.Verify(context.Background(), fqdn, "expected-value"))
}

func TestVerifyAnyOneAgrees(t *testing.T) {
	t.Parallel()

	const fqdn = "_acme-challenge.example.com"
	good := startTXTServer(t, fqdn, []string{"expected-value"})

	// One resolver is unreachable, one answers: the erroring resolver is
	// skipped and the answering one decides.
	v := propagation.NewVerifier(
		propagation.WithResolvers([]propagation.Resolver{
			{Name: "dead", Addr: "127.0.0.1:1"},
			{Name: "good", Addr: good},
		}),
		propagation.WithQueryTimeout(time.Second),
	)
	assert.True(t, v.Verify(context.Background(), fqdn, "expected-value"))
}

func TestVerifyAllResolversFail(t *testing.T) {
	t.Parallel()

	v := propagation.NewVerifier(
		propagation.WithResolvers([]propagation.Resolver{
			{Name: "dead1", Addr: "127.0.0.1:1"},
			{Name: "dead2", Addr: "127.0.0.1:2"},
		}),
		propagation.WithQueryTimeout(200*time.Millisecond),
	)
	assert.False(t, v.Verify(context.Background(), "_acme-challenge.example.com", "x"))
}
