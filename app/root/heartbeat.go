// Package root serves the endpoints that live outside /api/auth
package root

import (
	"context"
	"net/http"
	"time"

	"helpinghands/api/internal"
	"helpinghands/api/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const Version = "1.0.0"

var startedAt = time.Now()

func Heartbeat(c *gin.Context) {
	c.Status(http.StatusOK)
}

// Health pings the database, a dead connection pool turns the answer into
// a 503
func Health(c *gin.Context, d *internal.Deps) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	health, database := "healthy", "connected"
	status := http.StatusOK

	sqlDB, err := d.DB.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}

	if err != nil {
		zap.L().Error("Health check failed", zap.Error(err), zap.String("requestID", middleware.RequestID(c)))

		health, database = "unhealthy", "disconnected"
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"status":    health,
		"uptime":    time.Since(startedAt).Seconds(),
		"timestamp": time.Now().UTC(),
		"database":  database,
	})
}
