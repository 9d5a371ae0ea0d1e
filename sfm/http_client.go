package sfm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// DefaultFetchTimeout bounds one scene request.
	DefaultFetchTimeout = 30 * time.Second

	// DefaultMaxRetries is the number of attempts made per fetch.
	DefaultMaxRetries = 3

	defaultBaseBackoff = 500 * time.Millisecond

	// Scenes with dense tracks get large; refuse anything past 128 MB.
	maxResponseBytes = 128 << 20
)

// FetchOption configures a scene fetch.
type FetchOption func(*fetchConfig)

type fetchConfig struct {
	timeout     time.Duration
	maxRetries  int
	baseBackoff time.Duration
	client      *http.Client
}

func defaultFetchConfig() fetchConfig {
	return fetchConfig{
		timeout:     DefaultFetchTimeout,
		maxRetries:  DefaultMaxRetries,
		baseBackoff: defaultBaseBackoff,
	}
}

// WithTimeout sets the per-request timeout of the default client.
func WithTimeout(d time.Duration) FetchOption {
	return func(c *fetchConfig) { c.timeout = d }
}

// WithMaxRetries sets how many attempts a fetch makes before giving up.
func WithMaxRetries(n int) FetchOption {
	return func(c *fetchConfig) { c.maxRetries = n }
}

// WithBaseBackoff sets the first retry delay; later delays double it.
func WithBaseBackoff(d time.Duration) FetchOption {
	return func(c *fetchConfig) { c.baseBackoff = d }
}

// WithHTTPClient replaces the client built from WithTimeout.
func WithHTTPClient(client *http.Client) FetchOption {
	return func(c *fetchConfig) { c.client = client }
}

// statusError is a non-200 answer from a scene source
type statusError struct {
	url  string
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("HTTP GET %s: status %d", e.url, e.code)
}

// retryable reports whether another attempt could succeed. Client errors
// other than timeouts and rate limiting will not change on retry.
func retryable(err error) bool {
	var se *statusError
	if !errors.As(err, &se) {
		return true
	}
	switch {
	case se.code == http.StatusRequestTimeout, se.code == http.StatusTooManyRequests:
		return true
	case se.code >= 400 && se.code < 500:
		return false
	}
	return true
}

// FetchSceneFromAPI downloads one scene, raw or zlib-compressed JSON, from
// apiURL.
func FetchSceneFromAPI(apiURL string, opts ...FetchOption) (*Scene, error) {
	return FetchSceneFromAPIWithContext(context.Background(), apiURL, opts...)
}

// FetchSceneFromAPIWithContext downloads one scene from apiURL. Network
// failures, 5xx, 408 and 429 answers are retried with doubling delays; other
// 4xx answers and undecodable bodies fail at once.
func FetchSceneFromAPIWithContext(ctx context.Context, apiURL string, opts ...FetchOption) (*Scene, error) {
	if apiURL == "" {
		return nil, fmt.Errorf("fetch scene: API URL is empty")
	}

	cfg := defaultFetchConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	attempts := max(cfg.maxRetries, 1)
	client := cfg.client
	if client == nil {
		client = &http.Client{Timeout: cfg.timeout}
	}

	delay := cfg.baseBackoff
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("fetch scene: %w", ctx.Err())
			case <-time.After(delay):
			}
			delay *= 2
		}

		body, err := getSceneBody(ctx, client, apiURL)
		if err != nil {
			if !retryable(err) {
				return nil, fmt.Errorf("fetch scene: %w", err)
			}
			lastErr = err
			continue
		}

		s, err := DecodeScenePayload(body)
		if err != nil {
			return nil, fmt.Errorf("fetch scene: %w", err)
		}
		return s, nil
	}

	return nil, fmt.Errorf("fetch scene: all %d attempts failed: %w", attempts, lastErr)
}

// getSceneBody performs one GET and returns the body
func getSceneBody(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP GET %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{url: url, code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", url, err)
	}
	if len(body) > maxResponseBytes {
		return nil, &statusError{url: url, code: http.StatusRequestEntityTooLarge}
	}
	return body, nil
}
