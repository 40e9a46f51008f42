package handler

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"rewrite-proxy-go/internal/client"
	"rewrite-proxy-go/internal/config"
	"rewrite-proxy-go/internal/service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newUpstream starts an httptest server and returns a config pointing the
// proxy at it.
func newUpstream(t *testing.T, h http.HandlerFunc) *config.Config {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	return &config.Config{
		Server: config.ServerConfig{FunctionEndpoint: true},
		Upstream: config.UpstreamConfig{
			Domain:          strings.TrimPrefix(srv.URL, "http://"),
			LandingPath:     "/pages/main.html",
			TimeoutSeconds:  10,
			IdleConnections: 10,
		},
		Rewrite: config.RewriteConfig{
			Mode:         "prefix",
			MountPrefix:  "/proxy",
			CookiePolicy: "samesite_lax",
		},
	}
}

func newTestService(t *testing.T, cfg *config.Config) *service.ProxyService {
	t.Helper()
	logger := testLogger()
	svc, err := service.NewProxyServiceForTest(client.NewUpstreamClient(cfg, logger, nil), cfg, logger)
	if err != nil {
		t.Fatalf("NewProxyServiceForTest: %v", err)
	}
	return svc
}
