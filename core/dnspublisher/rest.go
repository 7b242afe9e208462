package dnspublisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/certflow/certflow/core/certorder"
)

// DefaultHTTPTimeout bounds every vendor API call issued through RESTClient.
const DefaultHTTPTimeout = 30 * time.Second

// maxErrorBody limits how much of a vendor error response is captured into
// the returned APIError.
const maxErrorBody = 2048

// RESTClient is a minimal JSON-over-HTTP helper shared by the hand-rolled
// vendor adapters. It encodes request bodies, decodes 2xx responses, and
// converts everything else into *APIError with a truncated response excerpt.
type RESTClient struct {
	Provider certorder.ProviderType
	HTTP     *http.Client

	// Prepare is applied to every request, typically to set auth headers.
	Prepare func(*http.Request)
}

// NewRESTClient creates a client for the given provider with the default
// timeout. prepare may be nil.
func NewRESTClient(provider certorder.ProviderType, prepare func(*http.Request)) *RESTClient {
	return &RESTClient{
		Provider: provider,
		HTTP:     &http.Client{Timeout: DefaultHTTPTimeout},
		Prepare:  prepare,
	}
}

// Do issues the request and decodes the JSON response into out when out is
// non-nil. A nil body is allowed for body-less requests.
func (c *RESTClient) Do(ctx context.Context, method, url string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return &APIError{Provider: c.Provider, Err: fmt.Errorf("encode request: %w", err)}
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return &APIError{Provider: c.Provider, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Prepare != nil {
		c.Prepare(req)
	}

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return &APIError{Provider: c.Provider, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{
			Provider:   c.Provider,
			StatusCode: resp.StatusCode,
			Message:    string(bytes.TrimSpace(excerpt)),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &APIError{Provider: c.Provider, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// Get is shorthand for a body-less GET.
func (c *RESTClient) Get(ctx context.Context, url string, out any) error {
	return c.Do(ctx, http.MethodGet, url, nil, out)
}
