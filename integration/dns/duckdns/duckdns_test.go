package duckdns_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/certflow/certflow/core/certorder"
	"github.com/certflow/certflow/core/dnspublisher"
	"github.com/certflow/certflow/integration/dns/duckdns"
)

type fakeDuck struct {
	mu  sync.Mutex
	txt map[string]string
}

func startServer(t *testing.T) (*fakeDuck, *duckdns.Publisher) {
	t.Helper()
	duck := &fakeDuck{txt: make(map[string]string)}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("token") != "duck-token" || q.Get("domains") == "" {
			_, _ = w.Write([]byte("KO"))
			return
		}
		duck.mu.Lock()
		if q.Get("clear") == "true" {
			delete(duck.txt, q.Get("domains"))
		} else {
			duck.txt[q.Get("domains")] = q.Get("txt")
		}
		duck.mu.Unlock()
		_, _ = w.Write([]byte("OK"))
	}))
	t.Cleanup(srv.Close)

	pub, err := duckdns.New(certorder.DNSProviderConfig{
		Type:       certorder.ProviderDuckDNS,
		Credential: "duck-token",
	}, duckdns.WithBaseURL(srv.URL))
	require.NoError(t, err)
	return duck, pub
}

func (f *fakeDuck) get(sub string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.txt[sub]
	return v, ok
}

func TestPublishRemoveRoundTrip(t *testing.T) {
	t.Parallel()

	duck, pub := startServer(t)
	ctx := context.Background()

	zone, err := pub.Publish(ctx, "myhost.duckdns.org", "value-1")
	require.NoError(t, err)
	assert.Equal(t, "duckdns.org", zone)

	v, ok := duck.get("myhost")
	require.True(t, ok)
	assert.Equal(t, "value-1", v)

	require.NoError(t, pub.Remove(ctx, "myhost.duckdns.org", zone))
	_, ok = duck.get("myhost")
	assert.False(t, ok)
}

func TestRejectsForeignDomains(t *testing.T) {
	t.Parallel()

	_, pub := startServer(t)

	_, err := pub.Publish(context.Background(), "www.example.com", "v")
	assert.ErrorIs(t, err, dnspublisher.ErrZoneNotFound)
}

func TestBadTokenBecomesAPIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("KO"))
	}))
	t.Cleanup(srv.Close)

	pub, err := duckdns.New(certorder.DNSProviderConfig{
		Type:       certorder.ProviderDuckDNS,
		Credential: "wrong",
	}, duckdns.WithBaseURL(srv.URL))
	require.NoError(t, err)

	_, err = pub.Publish(context.Background(), "myhost.duckdns.org", "v")
	var apiErr *dnspublisher.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Contains(t, apiErr.Message, "KO")
}
