package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"rewrite-proxy-go/internal/config"
	"rewrite-proxy-go/internal/rewrite"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	cfg     *config.Config
	mode    rewrite.Mode
	version Version
}

// NewHealthHandler creates a HealthHandler reporting the active rewrite mode.
func NewHealthHandler(cfg *config.Config, rw *rewrite.Rewriter, v Version) *HealthHandler {
	return &HealthHandler{cfg: cfg, mode: rw.Mode(), version: v}
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Status returns proxy status information.
func (h *HealthHandler) Status(c echo.Context) error {
	mount := h.cfg.Rewrite.MountPrefix
	if mount == "" {
		mount = "/"
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status":          "ok",
		"version":         string(h.version),
		"upstream_domain": h.cfg.Upstream.Domain,
		"mount_prefix":    mount,
		"mode":            string(h.mode),
	})
}
