package namecheap_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/certflow/certflow/core/certorder"
	"github.com/certflow/certflow/core/dnspublisher"
	"github.com/certflow/certflow/integration/dns/namecheap"
)

type fakeHost struct {
	name    string
	rtype   string
	address string
	ttl     string
}

type fakeAPI struct {
	mu    sync.Mutex
	sld   string
	tld   string
	hosts []fakeHost
}

func startServer(t *testing.T) (*fakeAPI, *namecheap.Publisher) {
	t.Helper()
	api := &fakeAPI{
		sld: "example",
		tld: "com",
		hosts: []fakeHost{
			{name: "@", rtype: "A", address: "203.0.113.10", ttl: "1800"},
			{name: "www", rtype: "CNAME", address: "example.com.", ttl: "1800"},
		},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.Form.Get("ApiKey") != "apikey" || r.Form.Get("ClientIp") != "198.51.100.7" {
			fmt.Fprint(w, `<ApiResponse Status="ERROR"><Errors><Error>API key is invalid</Error></Errors></ApiResponse>`)
			return
		}
		if r.Form.Get("SLD") != api.sld || r.Form.Get("TLD") != api.tld {
			fmt.Fprint(w, `<ApiResponse Status="ERROR"><Errors><Error>Domain name not found</Error></Errors></ApiResponse>`)
			return
		}

		api.mu.Lock()
		defer api.mu.Unlock()
		switch r.Form.Get("Command") {
		case "namecheap.domains.dns.getHosts":
			fmt.Fprint(w, `<ApiResponse Status="OK"><CommandResponse><DomainDNSGetHostsResult>`)
			for _, h := range api.hosts {
				fmt.Fprintf(w, `<host Name=%q Type=%q Address=%q TTL=%q/>`, h.name, h.rtype, h.address, h.ttl)
			}
			fmt.Fprint(w, `</DomainDNSGetHostsResult></CommandResponse></ApiResponse>`)
		case "namecheap.domains.dns.setHosts":
			// Full replace: the submitted list becomes the host list.
			api.hosts = nil
			for i := 1; ; i++ {
				name := r.Form.Get(fmt.Sprintf("HostName%d", i))
				if name == "" {
					break
				}
				api.hosts = append(api.hosts, fakeHost{
					name:    name,
					rtype:   r.Form.Get(fmt.Sprintf("RecordType%d", i)),
					address: r.Form.Get(fmt.Sprintf("Address%d", i)),
					ttl:     r.Form.Get(fmt.Sprintf("TTL%d", i)),
				})
			}
			fmt.Fprint(w, `<ApiResponse Status="OK"><CommandResponse/></ApiResponse>`)
		default:
			fmt.Fprint(w, `<ApiResponse Status="ERROR"><Errors><Error>Unknown command</Error></Errors></ApiResponse>`)
		}
	}))
	t.Cleanup(srv.Close)

	pub, err := namecheap.New(certorder.DNSProviderConfig{
		Type:       certorder.ProviderNamecheap,
		Credential: "apiuser:apikey:username:198.51.100.7",
	}, namecheap.WithBaseURL(srv.URL))
	require.NoError(t, err)
	return api, pub
}

func (f *fakeAPI) find(name, rtype string) (fakeHost, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, h := range f.hosts {
		if h.name == name && h.rtype == rtype {
			return h, true
		}
	}
	return fakeHost{}, false
}

func (f *fakeAPI) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.hosts)
}

func TestPublishKeepsExistingHosts(t *testing.T) {
	t.Parallel()

	api, pub := startServer(t)
	ctx := context.Background()

	zone, err := pub.Publish(ctx, "www.example.com", "value-1")
	require.NoError(t, err)
	assert.Equal(t, "example.com", zone)

	// setHosts is a full replace; the pre-existing A and CNAME records must
	// survive the write.
	assert.Equal(t, 3, api.count())
	txt, ok := api.find("_acme-challenge.www", "TXT")
	require.True(t, ok)
	assert.Equal(t, "value-1", txt.address)
	_, ok = api.find("@", "A")
	assert.True(t, ok)

	// Upsert: publishing again replaces the TXT record instead of stacking.
	_, err = pub.Publish(ctx, "www.example.com", "value-2")
	require.NoError(t, err)
	assert.Equal(t, 3, api.count())
	txt, _ = api.find("_acme-challenge.www", "TXT")
	assert.Equal(t, "value-2", txt.address)
}

func TestRemoveLeavesOtherHosts(t *testing.T) {
	t.Parallel()

	api, pub := startServer(t)
	ctx := context.Background()

	zone, err := pub.Publish(ctx, "www.example.com", "value-1")
	require.NoError(t, err)

	require.NoError(t, pub.Remove(ctx, "www.example.com", zone))
	assert.Equal(t, 2, api.count())
	_, ok := api.find("_acme-challenge.www", "TXT")
	assert.False(t, ok)

	// Removing a record that is already gone writes nothing.
	assert.NoError(t, pub.Remove(ctx, "www.example.com", zone))
}

func TestUnknownZone(t *testing.T) {
	t.Parallel()

	_, pub := startServer(t)
	_, err := pub.Publish(context.Background(), "www.example.org", "v")
	assert.ErrorIs(t, err, dnspublisher.ErrZoneNotFound)
}

func TestAPIErrorSurfacesErrorText(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<ApiResponse Status="ERROR"><Errors><Error>API key is invalid</Error></Errors></ApiResponse>`)
	}))
	t.Cleanup(srv.Close)

	pub, err := namecheap.New(certorder.DNSProviderConfig{
		Type:       certorder.ProviderNamecheap,
		Credential: "apiuser:bad:username:198.51.100.7",
	}, namecheap.WithBaseURL(srv.URL))
	require.NoError(t, err)

	// Every suffix probe fails the same way, so zone discovery gives up.
	_, err = pub.Publish(context.Background(), "www.example.com", "v")
	assert.ErrorIs(t, err, dnspublisher.ErrZoneNotFound)
}
