package app

import (
	"context"
	"net/http"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/qchat-dev/qchat-go/internal/buildinfo"
	"github.com/qchat-dev/qchat-go/internal/config"
	"github.com/qchat-dev/qchat-go/internal/sentry"
	"github.com/qchat-dev/qchat-go/internal/tracing"
)

// newRouter registers every route. Global middleware also runs for
// unmatched routes, which is how CORS preflights get their 204.
func (a *Application) newRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	if sentry.IsEnabled() {
		router.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	}
	router.Use(otelgin.Middleware(tracing.ServiceName))
	router.Use(securityHeadersMiddleware())
	router.Use(corsMiddleware())
	router.Use(loggingMiddleware(a.logger))

	router.GET("/livez", a.livenessCheck)
	router.HEAD("/livez", a.livenessCheck)
	router.GET("/readyz", a.readinessCheck)
	router.HEAD("/readyz", a.readinessCheck)
	if a.registry != nil {
		router.GET("/metrics",
			metricsAuthMiddleware(a.cfg.MetricsUsername, a.cfg.MetricsPassword),
			gin.WrapH(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})))
	}

	api := router.Group("/api")
	api.POST("/chat", a.handleChat)
	api.GET("/profile", a.handleGetProfile)
	api.POST("/profile", a.handlePostProfile)
	api.GET("/history", a.handleListHistory)
	api.POST("/history", a.handlePostHistory)
	api.GET("/health", a.handleHealth)

	return router
}

func (a *Application) livenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "alive",
	})
}

// readinessCheck reports 503 until startup warmup finishes (or its grace
// period runs out) and whenever the database does not answer.
func (a *Application) readinessCheck(c *gin.Context) {
	if !a.readiness.IsReady() {
		status := a.readiness.Status()
		a.logger.WithField("elapsed_seconds", status.ElapsedSeconds).
			Debug("Readiness check: warmup in progress")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": status.Reason,
			"progress": gin.H{
				"elapsedSeconds": status.ElapsedSeconds,
				"graceSeconds":   status.GraceSeconds,
			},
		})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), config.ReadinessCheck)
	defer cancel()
	if err := a.db.Ping(ctx); err != nil {
		a.logger.WithError(err).Warn("Readiness check failed: database unavailable")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "database unavailable",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "ready",
		"database":   "connected",
		"indexReady": a.readiness.IndexReady(),
		"version":    buildinfo.String(),
	})
}
