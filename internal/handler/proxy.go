package handler

import (
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"rewrite-proxy-go/internal/model"
	"rewrite-proxy-go/internal/service"
)

// ProxyHandler serves mounted paths through the rewriting pipeline.
type ProxyHandler struct {
	service *service.ProxyService
	logger  *slog.Logger
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(svc *service.ProxyService, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		service: svc,
		logger:  logger.With("component", "proxy_handler"),
	}
}

// Handle reads the whole client request, runs it through the pipeline and
// writes the buffered result.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()

	body, err := io.ReadAll(req.Body)
	if err != nil {
		h.logger.Warn("read request body", "err", err, "path", req.URL.Path)
		return echo.NewHTTPError(http.StatusBadRequest, "could not read request body").SetInternal(err)
	}

	resp := h.service.Handle(req.Context(), &model.Request{
		Method:   req.Method,
		Path:     req.URL.Path,
		RawQuery: req.URL.RawQuery,
		Query:    req.URL.Query(),
		Header:   req.Header,
		Body:     body,
	})

	return writeResponse(c.Response(), resp)
}

// writeResponse emits resp on w. Multi-valued headers are written as
// repeated fields and take precedence over their joined single value.
func writeResponse(w *echo.Response, resp *model.Response) error {
	body := []byte(resp.Body)
	if resp.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(resp.Body)
		if err != nil {
			return fmt.Errorf("decode response body: %w", err)
		}
		body = decoded
	}

	h := w.Header()
	for k, v := range resp.Headers {
		if _, multi := resp.MultiValueHeaders[k]; multi {
			continue
		}
		h.Set(k, v)
	}
	for k, vals := range resp.MultiValueHeaders {
		for _, v := range vals {
			h.Add(k, v)
		}
	}

	w.WriteHeader(resp.StatusCode)
	_, err := w.Write(body)
	return err
}
