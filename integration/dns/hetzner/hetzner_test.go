package hetzner_test

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
	"github.com/certflow/certflow/integration/dns/hetzner"
)

type fakeRecord struct {
	ID     string `json:"id"`
	ZoneID string `json:"zone_id"`
	Type   string `json:"type"`
	Name   string `json:"name"`
	Value  string `json:"value"`
	TTL    int    `json:"ttl"`
}

type fakeAPI struct {
	mu      sync.Mutex
	records map[string]fakeRecord
	nextID  int
}

func startServer(t *testing.T) (*fakeAPI, *hetzner.Publisher) {
	t.Helper()
	api := &fakeAPI{records: make(map[string]fakeRecord), nextID: 1}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /zones", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Auth-API-Token") != "hz-token" {
			http.Error(w, `{"message":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"zones": []map[string]string{
			{"id": "zone-1", "name": "example.com"},
		}})
	})
	mux.HandleFunc("GET /records", func(w http.ResponseWriter, r *http.Request) {
		api.mu.Lock()
		defer api.mu.Unlock()
		var out []fakeRecord
		for _, rec := range api.records {
			if rec.ZoneID == r.URL.Query().Get("zone_id") {
				out = append(out, rec)
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"records": out})
	})
	mux.HandleFunc("POST /records", func(w http.ResponseWriter, r *http.Request) {
		var rec fakeRecord
		_ = json.NewDecoder(r.Body).Decode(&rec)
		api.mu.Lock()
		rec.ID = "rec-" + strconv.Itoa(api.nextID)
		api.nextID++
		api.records[rec.ID] = rec
		api.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{"record": rec})
	})
	mux.HandleFunc("PUT /records/{id}", func(w http.ResponseWriter, r *http.Request) {
		var rec fakeRecord
		_ = json.NewDecoder(r.Body).Decode(&rec)
		api.mu.Lock()
		rec.ID = r.PathValue("id")
		api.records[rec.ID] = rec
		api.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{"record": rec})
	})
	mux.HandleFunc("DELETE /records/{id}", func(w http.ResponseWriter, r *http.Request) {
		api.mu.Lock()
		delete(api.records, r.PathValue("id"))
		api.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	pub, err := hetzner.New(certorder.DNSProviderConfig{
		Type:       certorder.ProviderHetzner,
		Credential: "hz-token",
	}, hetzner.WithBaseURL(srv.URL))
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

	zoneID, err := pub.Publish(ctx, "www.example.com", "value-1")
	require.NoError(t, err)
	assert.Equal(t, "zone-1", zoneID)
	require.Equal(t, 1, api.count())

	// The record is stored zone-relative.
	for _, rec := range api.records {
		assert.Equal(t, "_acme-challenge.www", rec.Name)
		assert.Equal(t, "value-1", rec.Value)
	}

	// Upsert replaces.
	_, err = pub.Publish(ctx, "www.example.com", "value-2")
	require.NoError(t, err)
	assert.Equal(t, 1, api.count())

	require.NoError(t, pub.Remove(ctx, "www.example.com", zoneID))
	assert.Equal(t, 0, api.count())
}

func TestUnknownZone(t *testing.T) {
	t.Parallel()

	_, pub := startServer(t)
	_, err := pub.Publish(context.Background(), "example.org", "v")
	assert.ErrorIs(t, err, dnspublisher.ErrZoneNotFound)
}
