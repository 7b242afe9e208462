// Package propagation confirms that a published DNS-01 TXT record is visible
// to the public internet before ACME validation is requested.
//
// The verifier queries a set of independent resolvers concurrently and
// accepts the first one that returns the expected value. This any-one-agrees
// policy trades strictness for availability: a record cached by a single
// resolver can pass while propagation is still partial. Callers compensate
// with their outer retry loop, and the resolver set and per-query timeout are
// injectable for stricter deployments.
package propagation

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/certflow/certflow/pkg/logger"
)

// Resolver is one public DNS resolver to query.
type Resolver struct {
	Name string
	Addr string // host:port, UDP
}

// DefaultResolvers spans four independent operators so that a single
// operator's caching behavior cannot decide verification alone.
func DefaultResolvers() []Resolver {
	return []Resolver{
		{Name: "google", Addr: "8.8.8.8:53"},
		{Name: "cloudflare", Addr: "1.1.1.1:53"},
		{Name: "quad9", Addr: "9.9.9.9:53"},
		{Name: "opendns", Addr: "208.67.222.222:53"},
	}
}

const defaultQueryTimeout = 5 * time.Second

// Option configures a Verifier.
type Option func(*Verifier)

// WithResolvers replaces the resolver set.
func WithResolvers(resolvers []Resolver) Option {
	return func(v *Verifier) {
		if len(resolvers) > 0 {
			v.resolvers = resolvers
		}
	}
}

// WithQueryTimeout sets the per-resolver query timeout.
func WithQueryTimeout(timeout time.Duration) Option {
	return func(v *Verifier) {
		if timeout > 0 {
			v.timeout = timeout
		}
	}
}

// WithLogger sets the logger. By default queries are not logged.
func WithLogger(log *slog.Logger) Option {
	return func(v *Verifier) {
		if log != nil {
			v.log = log
		}
	}
}

// Verifier checks TXT record visibility against public resolvers.
type Verifier struct {
	resolvers []Resolver
	timeout   time.Duration
	log       *slog.Logger
}

// NewVerifier creates a verifier with the default resolver set.
func NewVerifier(opts ...Option) *Verifier {
	v := &Verifier{
		resolvers: DefaultResolvers(),
		timeout:   defaultQueryTimeout,
		log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify reports whether at least one resolver returns a TXT record at fqdn
// equal to expected. Resolver errors and timeouts skip that resolver rather
// than failing verification; only a full sweep with no match returns false.
func (v *Verifier) Verify(ctx context.Context, fqdn, expected string) bool {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan bool, len(v.resolvers))
	for _, resolver := range v.resolvers {
		go func(r Resolver) {
			results <- v.queryOne(ctx, r, fqdn, expected)
		}(resolver)
	}

	for range v.resolvers {
		select {
		case <-ctx.Done():
			return false
		case matched := <-results:
			if matched {
				// First agreeing resolver wins; remaining queries are
				// cancelled via ctx.
				return true
			}
		}
	}
	return false
}

func (v *Verifier) queryOne(ctx context.Context, r Resolver, fqdn, expected string) bool {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(fqdn), dns.TypeTXT)
	msg.RecursionDesired = true

	client := &dns.Client{Timeout: v.timeout}
	resp, _, err := client.ExchangeContext(ctx, msg, r.Addr)
	if err != nil {
		v.log.DebugContext(ctx, "resolver query failed",
			slog.String("resolver", r.Name),
			logger.Error(err))
		return false
	}

	for _, rr := range resp.Answer {
		txt, ok := rr.(*dns.TXT)
		if !ok {
			continue
		}
		value := strings.Trim(unescapeTXT(strings.Join(txt.Txt, "")), `"`)
		if value == expected {
			v.log.DebugContext(ctx, "txt record confirmed",
				slog.String("resolver", r.Name),
				slog.String("fqdn", fqdn))
			return true
		}
	}
	return false
}

// unescapeTXT decodes the presentation form miekg/dns keeps unpacked TXT
// strings in: \" and \\ become the literal character, \DDD a decimal byte
// value.
func unescapeTXT(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 == len(s) {
			b.WriteByte(s[i])
			continue
		}
		i++
		if i+2 < len(s) && isDigit(s[i]) && isDigit(s[i+1]) && isDigit(s[i+2]) {
			b.WriteByte((s[i]-'0')*100 + (s[i+1]-'0')*10 + (s[i+2] - '0'))
			i += 2
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
