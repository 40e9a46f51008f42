// Package client provides the outbound HTTP client for the upstream origin.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"rewrite-proxy-go/internal/config"
	"rewrite-proxy-go/internal/metrics"
	"rewrite-proxy-go/internal/model"
)

// ErrBodyTooLarge is returned when the upstream body exceeds upstream.max_body_bytes.
var ErrBodyTooLarge = errors.New("upstream response body too large")

// UpstreamClient sends requests to the upstream origin. Redirects are
// returned to the caller, never followed.
type UpstreamClient struct {
	httpClient  *http.Client
	logger      *slog.Logger
	metrics     *metrics.Metrics
	maxBodySize int64
}

// NewUpstreamClient creates an UpstreamClient with connection pooling and timeouts.
// The metrics parameter is optional; pass nil to disable upstream metrics recording.
func NewUpstreamClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *UpstreamClient {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.Upstream.IdleConnections,
		MaxIdleConnsPerHost: cfg.Upstream.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	return &UpstreamClient{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger:      logger.With("component", "upstream_client"),
		metrics:     m,
		maxBodySize: cfg.Upstream.MaxBodyBytes,
	}
}

// Do issues the upstream request and reads the whole response body.
// The provided context bounds the call together with the client timeout.
func (c *UpstreamClient) Do(ctx context.Context, ur *model.UpstreamRequest) (*model.UpstreamResponse, error) {
	var body io.Reader
	if ur.Body != nil {
		body = bytes.NewReader(ur.Body)
	}
	req, err := http.NewRequestWithContext(ctx, ur.Method, ur.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header = ur.Header.Clone()
	if req.Header == nil {
		req.Header = make(http.Header)
	}

	c.logger.Debug("upstream request",
		"method", req.Method,
		"path", req.URL.Path,
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	method := metrics.NormalizeMethod(req.Method)
	if err != nil {
		c.observe(method, "", time.Since(start))
		return nil, fmt.Errorf("upstream request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := c.readBody(resp.Body)
	c.observe(method, strconv.Itoa(resp.StatusCode), time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("read upstream body: %w", err)
	}

	return &model.UpstreamResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}

func (c *UpstreamClient) readBody(r io.Reader) ([]byte, error) {
	if c.maxBodySize <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, c.maxBodySize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > c.maxBodySize {
		return nil, fmt.Errorf("%w: limit %d bytes", ErrBodyTooLarge, c.maxBodySize)
	}
	return data, nil
}

// observe records upstream latency and, when a status is known, the response count.
func (c *UpstreamClient) observe(method, status string, d time.Duration) {
	if c.metrics == nil {
		return
	}
	c.metrics.UpstreamDuration.WithLabelValues(method).Observe(d.Seconds())
	if status != "" {
		c.metrics.UpstreamResponses.WithLabelValues(method, status).Inc()
	}
}
