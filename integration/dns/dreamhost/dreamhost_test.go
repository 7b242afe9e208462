package dreamhost_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/certflow/certflow/core/certorder"
	"github.com/certflow/certflow/core/dnspublisher"
	"github.com/certflow/certflow/integration/dns/dreamhost"
)

type recordKey struct {
	record string
	value  string
}

func startServer(t *testing.T) (*sync.Map, *dreamhost.Publisher) {
	t.Helper()
	var records sync.Map // recordKey -> struct{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("key") != "dh-key" {
			_ = json.NewEncoder(w).Encode(map[string]string{"result": "error", "data": "invalid_api_key"})
			return
		}
		key := recordKey{record: q.Get("record"), value: q.Get("value")}
		switch q.Get("cmd") {
		case "dns-add_record":
			records.Store(key, struct{}{})
			_ = json.NewEncoder(w).Encode(map[string]string{"result": "success", "data": "record_added"})
		case "dns-remove_record":
			if _, ok := records.Load(key); !ok {
				_ = json.NewEncoder(w).Encode(map[string]string{"result": "error", "data": "no_such_record"})
				return
			}
			records.Delete(key)
			_ = json.NewEncoder(w).Encode(map[string]string{"result": "success", "data": "record_removed"})
		default:
			_ = json.NewEncoder(w).Encode(map[string]string{"result": "error", "data": "unknown_command"})
		}
	}))
	t.Cleanup(srv.Close)

	pub, err := dreamhost.New(certorder.DNSProviderConfig{
		Type:       certorder.ProviderDreamHost,
		Credential: "dh-key",
	}, dreamhost.WithBaseURL(srv.URL))
	require.NoError(t, err)
	return &records, pub
}

func TestPublishRemoveRoundTrip(t *testing.T) {
	t.Parallel()

	records, pub := startServer(t)
	ctx := context.Background()

	// The handle is the published value; DreamHost removal must name it.
	handle, err := pub.Publish(ctx, "www.example.com", "value-1")
	require.NoError(t, err)
	assert.Equal(t, "value-1", handle)

	key := recordKey{record: "_acme-challenge.www.example.com", value: "value-1"}
	_, ok := records.Load(key)
	require.True(t, ok)

	require.NoError(t, pub.Remove(ctx, "www.example.com", handle))
	_, ok = records.Load(key)
	assert.False(t, ok)

	// Removing a record that is already gone is not an error.
	assert.NoError(t, pub.Remove(ctx, "www.example.com", handle))
}

func TestAPIErrorSurfaces(t *testing.T) {
	t.Parallel()

	_, pubOK := startServer(t)
	_, err := pubOK.Publish(context.Background(), "www.example.com", "v")
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"result": "error", "data": "invalid_api_key"})
	}))
	t.Cleanup(srv.Close)

	pub, err := dreamhost.New(certorder.DNSProviderConfig{
		Type:       certorder.ProviderDreamHost,
		Credential: "wrong",
	}, dreamhost.WithBaseURL(srv.URL))
	require.NoError(t, err)

	_, err = pub.Publish(context.Background(), "www.example.com", "v")
	var apiErr *dnspublisher.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "invalid_api_key", apiErr.Message)
}
