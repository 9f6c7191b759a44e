package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

const healthCheckTimeout = 2 * time.Second

// HealthCheck godoc
// @Summary Health check endpoint
// @Description Check if the service and its stores are reachable
// @Tags health
// @Accept json
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /health [get]
func handleHealthCheck(checks map[string]HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
		defer cancel()

		body := gin.H{"message": "ok"}
		status := http.StatusOK
		for name, check := range checks {
			if err := check(ctx); err != nil {
				body[name] = err.Error()
				body["message"] = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			body[name] = "ok"
		}
		c.JSON(status, body)
	}
}
