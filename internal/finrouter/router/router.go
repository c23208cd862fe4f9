// Package router provides finrouter service routing.
package router

import (
	"github.com/kart-io/logger"

	"github.com/kart-io/finrouter/internal/finrouter/handler"
	"github.com/kart-io/finrouter/pkg/infra/server"
)

// Register registers the finrouter HTTP routes.
func Register(mgr *server.Manager, h *handler.Handler) error {
	logger.Info("Registering finrouter routes...")

	engine := mgr.HTTPServer().Engine()

	engine.GET("/healthz", h.Healthz)
	engine.GET("/readyz", h.Readyz)
	engine.GET("/metrics", h.Metrics)

	v1 := engine.Group("/v1")
	{
		v1.POST("/query", h.Query)
		v1.POST("/ingest", h.Ingest)
		v1.GET("/stats", h.Stats)

		sessions := v1.Group("/sessions")
		{
			sessions.GET("/:id/history", h.History)
			sessions.DELETE("/:id/memory", h.ClearMemory)
		}
	}

	logger.Info("HTTP routes registered")
	return nil
}
