package api_gateway

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/fsp-disbursement/internal/api_gateway/handler"
	"github.com/fsp-disbursement/internal/api_gateway/middleware"
	"github.com/fsp-disbursement/internal/platform/metrics"
	"github.com/gin-gonic/gin"
)

// HealthCheck pings one backing store
type HealthCheck func(ctx context.Context) error

const healthCheckTimeout = 2 * time.Second

type handlers struct {
	payments  *handler.PaymentHandler
	callbacks *handler.CallbackHandler
	admin     *handler.AdminHandler
}

// setupRouter configures API routes and middleware for the application
func setupRouter(logger *slog.Logger, r *gin.Engine, h handlers, callbackSecrets map[string]string, checks map[string]HealthCheck) {
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CorrelationID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Metrics())

	v1 := r.Group("/api/v1")
	{
		payments := v1.Group("/payments")
		{
			payments.POST("/batches", h.payments.EnqueueBatch)
		}

		programs := v1.Group("/programs/:programId")
		{
			programs.POST("/payments/:paymentNumber/retry", h.payments.RetryFailed)
		}

		// Provider webhooks, authenticated per provider
		callbacks := v1.Group("/fsp-callbacks")
		{
			callbacks.POST("/:provider/:kind", middleware.CallbackAuth(logger, callbackSecrets), h.callbacks.Receive)
		}

		admin := v1.Group("/admin")
		{
			admin.DELETE("/queues", h.admin.PurgeQueues)
			admin.GET("/callbacks/:provider/:reference", h.admin.ListCallbacks)
		}
	}

	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	r.GET("/health", healthHandler(logger, checks))
}

// healthHandler reports 503 when any backing store fails its ping
func healthHandler(logger *slog.Logger, checks map[string]HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
		defer cancel()

		status := http.StatusOK
		deps := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				logger.Warn("Health check failed", "dependency", name, "error", err)
				deps[name] = "down"
				status = http.StatusServiceUnavailable
				continue
			}
			deps[name] = "up"
		}

		state := "ok"
		if status != http.StatusOK {
			state = "degraded"
		}
		c.JSON(status, gin.H{"status": state, "dependencies": deps, "timestamp": time.Now().UTC()})
	}
}
