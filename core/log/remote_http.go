package log

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
	"github.com/hashicorp/go-retryablehttp"
)

// HTTPClientConfig configures delivery to an HTTP log collector.
type HTTPClientConfig struct {
	Endpoint  string
	AuthToken string
	Timeout   time.Duration
	Headers   map[string]string
	// RetryMax is the number of in-request retries on 429 and 5xx responses
	// before the shipper's own backoff takes over. Negative disables them.
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

// httpBatch is the request body posted to the collector.
type httpBatch struct {
	LogName string  `json:"logName"`
	Entries []Entry `json:"entries"`
}

// HTTPClientFactory posts entry batches as JSON to a collector endpoint. The
// underlying connection pool is shared; each handle only owns its batch.
type HTTPClientFactory struct {
	client   *resty.Client
	endpoint string
}

// NewHTTPClientFactory creates a factory for the given collector.
func NewHTTPClientFactory(cfg HTTPClientConfig) (*HTTPClientFactory, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("remote log endpoint is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	if cfg.RetryMax == 0 {
		cfg.RetryMax = 2
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryWaitMin <= 0 {
		cfg.RetryWaitMin = 100 * time.Millisecond
	}
	if cfg.RetryWaitMax < cfg.RetryWaitMin {
		cfg.RetryWaitMax = cfg.RetryWaitMin * 10
	}

	// Transient collector errors are retried inside the request; anything
	// left over is retried per entry by the shipper.
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.RetryMax
	retryClient.RetryWaitMin = cfg.RetryWaitMin
	retryClient.RetryWaitMax = cfg.RetryWaitMax
	retryClient.Logger = nil

	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetTransport(&retryablehttp.RoundTripper{Client: retryClient}).
		SetHeader("User-Agent", "fsbridge-log-shipper/1.0").
		SetHeader("Content-Type", "application/json").
		SetJSONMarshaler(json.Marshal).
		SetJSONUnmarshaler(json.Unmarshal)

	for k, v := range cfg.Headers {
		client.SetHeader(k, v)
	}
	if cfg.AuthToken != "" {
		client.SetAuthToken(cfg.AuthToken)
	}

	return &HTTPClientFactory{
		client:   client,
		endpoint: cfg.Endpoint,
	}, nil
}

// NewClient returns a fresh handle with an empty batch.
func (f *HTTPClientFactory) NewClient(ctx context.Context) (Client, error) {
	return &httpClient{factory: f}, nil
}

// Close is a no-op; resty clients hold no resources beyond the transport.
func (f *HTTPClientFactory) Close() error {
	return nil
}

type httpClient struct {
	factory *HTTPClientFactory
	pending []Entry
	closed  bool
}

func (c *httpClient) Write(ctx context.Context, entries []Entry) error {
	if c.closed {
		return errors.New("remote log client closed")
	}
	c.pending = append(c.pending, entries...)
	return nil
}

func (c *httpClient) Flush(ctx context.Context) error {
	if c.closed {
		return errors.New("remote log client closed")
	}
	if len(c.pending) == 0 {
		return nil
	}

	resp, err := c.factory.client.R().
		SetContext(ctx).
		SetBody(httpBatch{LogName: LogName, Entries: c.pending}).
		Post(c.factory.endpoint)
	if err != nil {
		return fmt.Errorf("failed to post log batch: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("log collector returned status %d", resp.StatusCode())
	}

	c.pending = nil
	return nil
}

func (c *httpClient) Close() error {
	c.closed = true
	c.pending = nil
	return nil
}
