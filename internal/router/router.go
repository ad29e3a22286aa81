package router

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"quickedit/internal/handler/api"
	"quickedit/internal/middleware"
)

// Setup configures all routes for the Echo server.
func Setup(
	e *echo.Echo,
	syncHandler *api.SyncHandler,
	metricsHandler http.Handler,
	logger *zap.Logger,
	apiKey string,
	deduper middleware.RequestDeduper,
) {
	// Global middleware
	e.Use(echomw.Recover())
	e.Use(middleware.CORS())

	if apiKey == "" {
		logger.Warn("API_KEY is empty, /api routes are unauthenticated")
	}

	// API group with auth + logging middleware
	apiGroup := e.Group("/api")
	apiGroup.Use(middleware.RequestLogger(logger))
	apiGroup.Use(middleware.APIAuth(apiKey))
	apiGroup.Use(middleware.Idempotency(deduper))

	apiGroup.POST("/sync", syncHandler.Handle)
	apiGroup.POST("/sync/keyset", syncHandler.KeySetSync)
	apiGroup.POST("/sync/ean", syncHandler.EANSync)
	apiGroup.POST("/sync/columns", syncHandler.Columns)

	if metricsHandler != nil {
		e.GET("/metrics", echo.WrapHandler(metricsHandler))
	}

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
}
