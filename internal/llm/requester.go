package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/time/rate"
)

// Option configures the HTTP behaviour shared by Client and EmbeddingsClient.
type Option func(*requester)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(r *requester) {
		r.client = c
	}
}

// NewLimiter returns a limiter allowing rps requests per second, or nil when rps is not positive.
func NewLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(rps), 1)
}

// WithLimiter paces outbound requests with l. Clients given the same limiter
// share one budget. A nil limiter disables pacing.
func WithLimiter(l *rate.Limiter) Option {
	return func(r *requester) {
		r.limiter = l
	}
}

// requester sends authenticated JSON requests and classifies failures.
type requester struct {
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
}

func newRequester(apiKey string, opts []Option) requester {
	r := requester{
		apiKey: apiKey,
		client: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

func (r *requester) wait(ctx context.Context) error {
	if r.limiter == nil {
		return nil
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}

// do issues a request and decodes a 200 JSON body into out.
func (r *requester) do(ctx context.Context, method, url string, payload, out any) error {
	if err := r.wait(ctx); err != nil {
		return err
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", r.apiKey))
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("failed to send request: %w", ctx.Err())
		}
		return fmt.Errorf("failed to send request: %w: %w", ErrUnavailable, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{
			Code:       resp.StatusCode,
			Body:       string(raw),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w: %w", ErrMalformedResponse, err)
	}
	return nil
}
