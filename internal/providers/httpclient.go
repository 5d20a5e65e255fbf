package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"idserver/internal/identity"
	"idserver/pkg/platform/circuit"
)

const maxResponseBytes = 4 << 20

// HTTPClient performs vendor JSON calls and normalizes their failures.
// It never retries; retry policy belongs to the caller. Repeated outages open
// a per-vendor breaker and later calls fail fast until the cooldown passes.
type HTTPClient struct {
	provider identity.Provider
	client   *http.Client
	breaker  *circuit.Breaker
}

func NewHTTPClient(provider identity.Provider, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPClient{
		provider: provider,
		client:   &http.Client{Timeout: timeout},
		breaker:  circuit.New(string(provider), circuit.WithFailureThreshold(5), circuit.WithCooldown(30*time.Second)),
	}
}

// WithBreaker replaces the default breaker.
func (c *HTTPClient) WithBreaker(b *circuit.Breaker) *HTTPClient {
	c.breaker = b
	return c
}

// Breaker exposes the vendor breaker for health reporting.
func (c *HTTPClient) Breaker() *circuit.Breaker {
	return c.breaker
}

// WithHTTPClient swaps the underlying client, mostly for tests.
func (c *HTTPClient) WithHTTPClient(hc *http.Client) *HTTPClient {
	c.client = hc
	return c
}

// Do sends body (when non-nil) as JSON and decodes a 2xx response into out
// (when non-nil).
func (c *HTTPClient) Do(ctx context.Context, method, url string, body any, headers map[string]string, out any) error {
	if !c.breaker.Allow() {
		return NewProviderError(ErrorProviderOutage, c.provider, "circuit open", nil)
	}
	err := c.do(ctx, method, url, body, headers, out)
	switch {
	case ctx.Err() != nil:
		// the caller cancelled or ran out of time; the vendor may be fine
		c.breaker.Abandon()
	case tripsBreaker(err):
		c.breaker.RecordFailure()
	default:
		c.breaker.RecordSuccess()
	}
	return err
}

// tripsBreaker is true for failures that say the vendor itself is unhealthy.
// A 404 or a failed verification is a healthy answer.
func tripsBreaker(err error) bool {
	var pe *ProviderError
	if !errors.As(err, &pe) {
		return false
	}
	switch pe.Category {
	case ErrorTimeout, ErrorProviderOutage:
		return true
	}
	return false
}

func (c *HTTPClient) do(ctx context.Context, method, url string, body any, headers map[string]string, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return NewProviderError(ErrorInternal, c.provider, "encode request", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return NewProviderError(ErrorInternal, c.provider, "build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return NewProviderError(classifyTransport(err), c.provider, method+" "+req.URL.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return NewProviderError(ErrorProviderOutage, c.provider, "read response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return NewProviderError(classifyStatus(resp.StatusCode), c.provider,
			fmt.Sprintf("%s %s returned %d", method, req.URL.Path, resp.StatusCode), nil)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return NewProviderError(ErrorBadData, c.provider, "decode response", err)
	}
	return nil
}
