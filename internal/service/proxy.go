// Package service implements the request/response rewriting pipeline.
package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"rewrite-proxy-go/internal/config"
	"rewrite-proxy-go/internal/content"
	"rewrite-proxy-go/internal/metrics"
	"rewrite-proxy-go/internal/model"
	"rewrite-proxy-go/internal/rewrite"
)

// Forwarder issues upstream requests. *client.UpstreamClient implements it.
type Forwarder interface {
	Do(ctx context.Context, ur *model.UpstreamRequest) (*model.UpstreamResponse, error)
}

// ProxyService runs one request through translate, forward, classify,
// rewrite and sanitize. It keeps no per-request state and is safe for
// concurrent use.
type ProxyService struct {
	forwarder   Forwarder
	translator  *Translator
	rewriter    *rewrite.Rewriter
	metrics     *metrics.Metrics
	logger      *slog.Logger
	hideDetails bool
}

// NewProxyService creates a ProxyService targeting https://<upstream.domain>.
// The metrics parameter is optional.
func NewProxyService(f Forwarder, cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) (*ProxyService, error) {
	return newProxyService(f, NewTranslator(cfg), cfg, m, logger)
}

// NewProxyServiceForTest creates a ProxyService that talks plain HTTP to the
// upstream. This is intended only for tests that use httptest servers; set
// upstream.domain to the server's host:port.
func NewProxyServiceForTest(f Forwarder, cfg *config.Config, logger *slog.Logger) (*ProxyService, error) {
	return newProxyService(f, newTranslator(cfg, "http"), cfg, nil, logger)
}

func newProxyService(f Forwarder, t *Translator, cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) (*ProxyService, error) {
	mode, err := rewrite.ParseMode(orDefault(cfg.Rewrite.Mode, string(rewrite.ModePrefix)))
	if err != nil {
		return nil, fmt.Errorf("rewrite.mode: %w", err)
	}
	cookies, err := rewrite.ParseCookiePolicy(orDefault(cfg.Rewrite.CookiePolicy, string(rewrite.CookieSameSiteLax)))
	if err != nil {
		return nil, fmt.Errorf("rewrite.cookie_policy: %w", err)
	}

	return &ProxyService{
		forwarder:   f,
		translator:  t,
		rewriter:    rewrite.New(cfg.RewriteContext(), mode, cookies),
		metrics:     m,
		logger:      logger.With("component", "proxy_service"),
		hideDetails: cfg.Server.HideErrorDetails,
	}, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// Rewriter returns the rewriter used by the pipeline.
func (s *ProxyService) Rewriter() *rewrite.Rewriter { return s.rewriter }

// Handle runs the pipeline for req. It never returns nil: any failure is
// turned into the 500 diagnostic response.
func (s *ProxyService) Handle(ctx context.Context, req *model.Request) *model.Response {
	resp, err := s.run(ctx, req)
	if err != nil {
		return s.fail(req, err)
	}
	s.logger.Debug("pipeline complete",
		"stage", StageEmitted,
		"path", req.Path,
		"status", resp.StatusCode,
	)
	return resp
}

func (s *ProxyService) run(ctx context.Context, req *model.Request) (*model.Response, error) {
	ur, err := s.translator.Translate(req)
	if err != nil {
		return nil, &PipelineError{Stage: StageTranslated, Err: err}
	}
	s.logger.Debug("forwarding request",
		"stage", StageTranslated,
		"method", ur.Method,
		"url", ur.URL,
	)

	up, err := s.forwarder.Do(ctx, ur)
	if err != nil {
		return nil, &PipelineError{Stage: StageForwarded, Err: err}
	}

	header := up.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	out := &model.Response{StatusCode: up.StatusCode}

	// Redirects are never rendered; only their headers matter. The emitted
	// body is empty, so no Content-Encoding applies to it.
	if isRedirect(up) || len(up.Body) == 0 {
		s.logger.Debug("empty or redirect response", "stage", StageForwarded, "status", up.StatusCode)
		header.Del("Content-Encoding")
		out.Headers, out.MultiValueHeaders = model.FlattenHeaders(s.rewriter.Headers(up.StatusCode, header))
		return out, nil
	}

	body, decoded, err := content.Decode(header.Get("Content-Encoding"), up.Body)
	if err != nil {
		return nil, &PipelineError{Stage: StageClassified, Err: err}
	}
	kind := content.KindBinary
	if decoded {
		header.Del("Content-Encoding")
		kind = content.Classify(up.ContentType())
	}
	if s.metrics != nil {
		s.metrics.ResponsesByClass.WithLabelValues(kind.String()).Inc()
	}
	s.logger.Debug("classified response",
		"stage", StageClassified,
		"class", kind.String(),
		"content_type", up.ContentType(),
	)

	switch kind {
	case content.KindHTML:
		doc, err := s.rewriter.HTML(body, up.ContentType())
		if err != nil {
			return nil, &PipelineError{Stage: StageRewritten, Err: err}
		}
		header.Set("Content-Type", rewrite.HTMLContentType)
		out.Body = doc
	case content.KindText:
		out.Body = string(body)
	default:
		out.Body = base64.StdEncoding.EncodeToString(body)
		out.IsBase64Encoded = true
	}

	out.Headers, out.MultiValueHeaders = model.FlattenHeaders(s.rewriter.Headers(up.StatusCode, header))
	return out, nil
}

func isRedirect(up *model.UpstreamResponse) bool {
	return up.StatusCode >= 300 && up.StatusCode < 400 && up.Header.Get("Location") != ""
}

func (s *ProxyService) fail(req *model.Request, err error) *model.Response {
	stage := StageFailed
	var pe *PipelineError
	if errors.As(err, &pe) {
		stage = pe.Stage
	}
	s.logger.Error("proxy error",
		"err", err,
		"stage", stage,
		"method", req.Method,
		"path", req.Path,
	)
	if s.metrics != nil {
		s.metrics.PipelineFailures.WithLabelValues(string(stage)).Inc()
	}
	return ErrorResponse(err, !s.hideDetails)
}
