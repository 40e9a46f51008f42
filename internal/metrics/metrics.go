// Package metrics provides Prometheus metrics for the proxy.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Default histogram buckets for request latency.
var defaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

// ProxyLabel is the path label for requests served by the rewrite pipeline.
const ProxyLabel = "proxy"

// Metrics holds all Prometheus metric collectors for the proxy.
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	UpstreamDuration  *prometheus.HistogramVec
	UpstreamResponses *prometheus.CounterVec

	ResponsesByClass *prometheus.CounterVec
	PipelineFailures *prometheus.CounterVec

	mountPrefix string
}

// New creates a Metrics instance with a custom registry and all collectors registered.
// mountPrefix is the path under which proxied requests arrive; it is folded into a
// single path label.
func New(mountPrefix string) *Metrics {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rewrite_proxy_http_requests_total",
			Help: "Total inbound HTTP requests.",
		}, []string{"method", "status_code", "path_prefix"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rewrite_proxy_http_request_duration_seconds",
			Help:    "Inbound HTTP request latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"method", "status_code", "path_prefix"}),

		RequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rewrite_proxy_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed.",
		}),

		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rewrite_proxy_upstream_request_duration_seconds",
			Help:    "Upstream call latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"method"}),

		UpstreamResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rewrite_proxy_upstream_responses_total",
			Help: "Total upstream responses by method and status code.",
		}, []string{"method", "status_code"}),

		ResponsesByClass: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rewrite_proxy_responses_by_class_total",
			Help: "Upstream responses by content class (html, text, binary).",
		}, []string{"class"}),

		PipelineFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rewrite_proxy_pipeline_failures_total",
			Help: "Requests that failed in the rewrite pipeline, by stage.",
		}, []string{"stage"}),

		mountPrefix: mountPrefix,
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RequestsInFlight,
		m.UpstreamDuration,
		m.UpstreamResponses,
		m.ResponsesByClass,
		m.PipelineFailures,
	)

	return m
}

// knownMethods lists the allowed HTTP method label values (bounded cardinality).
var knownMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"PATCH": true, "HEAD": true, "OPTIONS": true,
}

// NormalizeMethod returns a bounded HTTP method label for Prometheus metrics.
// Non-standard methods are mapped to "other" to prevent cardinality explosion.
func NormalizeMethod(method string) string {
	if knownMethods[method] {
		return method
	}
	return "other"
}

// knownPrefixes lists the service routes that get their own path label.
var knownPrefixes = []string{"/healthz", "/_proxy/status", "/_function/invoke", "/metrics"}

// NormalizePath returns a bounded path label for Prometheus metrics. Every
// request under the mount prefix shares ProxyLabel.
func (m *Metrics) NormalizePath(path string) string {
	for _, prefix := range knownPrefixes {
		if hasPathPrefix(path, prefix) {
			return prefix
		}
	}
	if m.mountPrefix == "" || hasPathPrefix(path, m.mountPrefix) {
		return ProxyLabel
	}
	return "other"
}

func hasPathPrefix(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/") || strings.HasPrefix(path, prefix+"?")
}
