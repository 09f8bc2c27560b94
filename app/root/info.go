package root

import (
	"net/http"
	"time"

	"helpinghands/api/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// Index runs behind the optional auth gate and greets signed in users
func Index(c *gin.Context) {
	var user any
	u, ok := middleware.CurrentUser(c)
	if ok {
		user = gin.H{"id": u.ID, "email": u.Email, "role": u.Role}
	}

	c.JSON(http.StatusOK, gin.H{
		"message":       "Helping Hands API",
		"version":       Version,
		"status":        "running",
		"authenticated": ok,
		"user":          user,
		"endpoints": gin.H{
			"auth":   "/api/auth",
			"health": "/health",
		},
		"timestamp": time.Now().UTC(),
	})
}

var authRoutes = []string{
	"POST /api/auth/register",
	"POST /api/auth/login",
	"POST /api/auth/logout",
	"POST /api/auth/logout-all",
	"POST /api/auth/refresh",
	"POST /api/auth/verify-email",
	"POST /api/auth/resend-verification",
	"POST /api/auth/request-password-reset",
	"POST /api/auth/reset-password",
	"POST /api/auth/change-password",
	"GET /api/auth/profile",
	"GET /api/auth/check",
	"GET /api/auth/users",
}

// Info lists the public endpoints. The answer never changes so the router
// caches it.
func Info(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":    "Helping Hands API",
		"version": Version,
		"endpoints": gin.H{
			"/api/auth": gin.H{
				"description": "Authentication endpoints",
				"methods":     []string{"GET", "POST"},
				"routes":      authRoutes,
			},
		},
	})
}

func NotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{
		"error":     "Route not found",
		"code":      "NOT_FOUND",
		"method":    c.Request.Method,
		"url":       c.Request.URL.RequestURI(),
		"requestID": middleware.RequestID(c),
	})
}
