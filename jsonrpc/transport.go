package jsonrpc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/time/rate"
)

// HTTPResponse is the outcome of a single transport exchange.
type HTTPResponse struct {
	StatusCode int
	Status     string
	Body       []byte
}

// Transport performs exactly one request/response exchange with the node.
// A returned error means the exchange itself failed; a non-2xx status is
// reported through HTTPResponse and classified by the Channel.
type Transport func(ctx context.Context, body []byte) (*HTTPResponse, error)

type httpTransport struct {
	url     string
	client  *http.Client
	headers map[string]string
	limiter *rate.Limiter
}

// HTTPOption configures the HTTP transport.
type HTTPOption func(*httpTransport)

// WithHTTPClient sets the http.Client used for requests.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(t *httpTransport) {
		t.client = c
	}
}

// WithHeader adds a header sent with every request.
func WithHeader(key, value string) HTTPOption {
	return func(t *httpTransport) {
		t.headers[key] = value
	}
}

// WithRateLimit caps outgoing requests per second. Zero or negative
// disables the limit.
func WithRateLimit(rps float64) HTTPOption {
	return func(t *httpTransport) {
		if rps <= 0 {
			t.limiter = nil
			return
		}
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		t.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// NewHTTPTransport returns a Transport that POSTs JSON bodies to url.
func NewHTTPTransport(url string, opts ...HTTPOption) Transport {
	t := &httpTransport{
		url:     url,
		client:  http.DefaultClient,
		headers: map[string]string{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t.roundTrip
}

func (t *httpTransport) roundTrip(ctx context.Context, body []byte) (*HTTPResponse, error) {
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &HTTPResponse{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       data,
	}, nil
}
