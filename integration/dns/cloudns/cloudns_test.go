package cloudns_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/certflow/certflow/core/certorder"
	"github.com/certflow/certflow/core/dnspublisher"
	"github.com/certflow/certflow/integration/dns/cloudns"
)

type fakeRecord struct {
	Type   string `json:"type"`
	Host   string `json:"host"`
	Record string `json:"record"`
}

type fakeAPI struct {
	mu      sync.Mutex
	zone    string
	records map[string]fakeRecord
	nextID  int
}

func startServer(t *testing.T) (*fakeAPI, *cloudns.Publisher) {
	t.Helper()
	api := &fakeAPI{zone: "example.com", records: make(map[string]fakeRecord), nextID: 1}

	authorized := func(r *http.Request) bool {
		q := r.URL.Query()
		return q.Get("auth-id") == "authid" && q.Get("auth-password") == "password"
	}
	fail := func(w http.ResponseWriter, desc string) {
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "Failed", "statusDescription": desc})
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/dns/get-zone-info.json", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(r) {
			fail(w, "invalid authentication")
			return
		}
		if r.URL.Query().Get("domain-name") != api.zone {
			fail(w, "missing domain")
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"name": api.zone, "type": "master"})
	})
	mux.HandleFunc("/dns/records.json", func(w http.ResponseWriter, r *http.Request) {
		api.mu.Lock()
		defer api.mu.Unlock()
		if len(api.records) == 0 {
			_ = json.NewEncoder(w).Encode([]any{})
			return
		}
		_ = json.NewEncoder(w).Encode(api.records)
	})
	mux.HandleFunc("/dns/add-record.json", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		api.mu.Lock()
		id := strconv.Itoa(api.nextID)
		api.nextID++
		api.records[id] = fakeRecord{Type: q.Get("record-type"), Host: q.Get("host"), Record: q.Get("record")}
		api.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "Success"})
	})
	mux.HandleFunc("/dns/mod-record.json", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		api.mu.Lock()
		if rec, ok := api.records[q.Get("record-id")]; ok {
			rec.Record = q.Get("record")
			api.records[q.Get("record-id")] = rec
		}
		api.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "Success"})
	})
	mux.HandleFunc("/dns/delete-record.json", func(w http.ResponseWriter, r *http.Request) {
		api.mu.Lock()
		delete(api.records, r.URL.Query().Get("record-id"))
		api.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "Success"})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	pub, err := cloudns.New(certorder.DNSProviderConfig{
		Type:       certorder.ProviderCloudns,
		Credential: "authid:password",
	}, cloudns.WithBaseURL(srv.URL))
	require.NoError(t, err)
	return api, pub
}

func (f *fakeAPI) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

func TestPublishRemoveRoundTrip(t *testing.T) {
	t.Parallel()

	api, pub := startServer(t)
	ctx := context.Background()

	// Zone discovery probes suffixes until ClouDNS recognizes one.
	zone, err := pub.Publish(ctx, "deep.www.example.com", "value-1")
	require.NoError(t, err)
	assert.Equal(t, "example.com", zone)
	assert.Equal(t, 1, api.count())

	_, err = pub.Publish(ctx, "deep.www.example.com", "value-2")
	require.NoError(t, err)
	assert.Equal(t, 1, api.count())

	require.NoError(t, pub.Remove(ctx, "deep.www.example.com", zone))
	assert.Equal(t, 0, api.count())
}

func TestUnknownZone(t *testing.T) {
	t.Parallel()

	_, pub := startServer(t)
	_, err := pub.Publish(context.Background(), "www.example.org", "v")
	assert.ErrorIs(t, err, dnspublisher.ErrZoneNotFound)
}

// ClouDNS reports failures in-band with HTTP 200, which must still become
// an APIError.
func TestInBandFailureBecomesAPIError(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/dns/get-zone-info.json", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"name": "example.com", "type": "master"})
	})
	mux.HandleFunc("/dns/records.json", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]any{})
	})
	mux.HandleFunc("/dns/add-record.json", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "Failed", "statusDescription": "record quota exceeded"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	pub, err := cloudns.New(certorder.DNSProviderConfig{
		Type:       certorder.ProviderCloudns,
		Credential: "authid:password",
	}, cloudns.WithBaseURL(srv.URL))
	require.NoError(t, err)

	_, err = pub.Publish(context.Background(), "www.example.com", "v")
	var apiErr *dnspublisher.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Contains(t, apiErr.Message, "record quota exceeded")
}
