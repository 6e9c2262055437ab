package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/javainthinking/skillspick/internal/logger"
)

// HealthChecker reports the health of one dependency; nil means healthy.
type HealthChecker func(ctx context.Context) error

// RouterConfig wires the router.
type RouterConfig struct {
	ServiceName    string
	ServiceVersion string
	IngestSecret   string
	Debug          bool
	// Metrics serves GET /metrics when set.
	Metrics http.Handler
	Checks  map[string]HealthChecker
}

const healthCheckTimeout = 2 * time.Second

// NewRouter builds the gin engine with middleware and all routes.
func NewRouter(cfg RouterConfig, h *Handler, log logger.Logger) *gin.Engine {
	if log == nil {
		log = logger.NewNop()
	}
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(RecoveryMiddleware(log))
	router.Use(RequestIDMiddleware(log))
	router.Use(LoggerMiddleware(log))

	router.GET("/health", healthHandler(cfg))
	router.HEAD("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(cfg.Metrics))
	}

	v1 := router.Group("/api/v1")
	v1.GET("/skills", h.SearchSkills)
	v1.GET("/skills/:slug", h.GetSkill)
	v1.GET("/ingest/status", h.IngestStatus)

	admin := v1.Group("/admin", IngestSecretMiddleware(cfg.IngestSecret))
	admin.POST("/ingest/:kind", h.TriggerIngest)
	admin.POST("/import", h.ImportSkill)
	admin.POST("/skills/:id/highlight", h.SetHighlight)

	return router
}

func healthHandler(cfg RouterConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := http.StatusOK
		resp := gin.H{
			"status":  "healthy",
			"service": cfg.ServiceName,
			"version": cfg.ServiceVersion,
		}

		if len(cfg.Checks) > 0 {
			ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
			defer cancel()

			checks := make(map[string]string, len(cfg.Checks))
			for name, check := range cfg.Checks {
				if err := check(ctx); err != nil {
					checks[name] = err.Error()
					status = http.StatusServiceUnavailable
					resp["status"] = "unhealthy"
					continue
				}
				checks[name] = "ok"
			}
			resp["checks"] = checks
		}

		c.JSON(status, resp)
	}
}
