package handler

import (
	"github.com/labstack/echo/v4"

	"rewrite-proxy-go/internal/config"
)

// RegisterRoutes wires all route handlers onto the Echo instance. Service
// routes are static and win over the mount wildcard when mounted at root.
func RegisterRoutes(e *echo.Echo, cfg *config.Config, proxy *ProxyHandler, health *HealthHandler, invoke *InvokeHandler) {
	e.GET("/healthz", health.Healthz)
	e.GET("/_proxy/status", health.Status)

	if cfg.Server.FunctionEndpoint && invoke != nil {
		e.POST("/_function/invoke", invoke.Invoke)
	}

	if mp := cfg.Rewrite.MountPrefix; mp != "" {
		e.Any(mp, proxy.Handle)
		e.Any(mp+"/*", proxy.Handle)
	} else {
		e.Any("/*", proxy.Handle)
	}
}
