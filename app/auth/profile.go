package auth

import (
	"net/http"
	"strconv"

	"helpinghands/api/internal"
	"helpinghands/api/internal/apperr"
	"helpinghands/api/pkg/middleware"

	"github.com/gin-gonic/gin"
)

func Profile(c *gin.Context, d *internal.Deps) {
	u, ok := middleware.CurrentUser(c)
	if !ok {
		middleware.RespondError(c, apperr.ErrNoUser)
		return
	}

	sessions, err := d.Auth.ActiveSessions(c.Request.Context(), u.ID)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user":           u.Public(),
		"activeSessions": sessions,
	})
}

func Check(c *gin.Context) {
	u, ok := middleware.CurrentUser(c)
	if !ok {
		middleware.RespondError(c, apperr.ErrNoUser)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"authenticated": true,
		"user":          u.Public(),
	})
}

// ListUsers is admin only. Bad paging values fall back to the defaults.
func ListUsers(c *gin.Context, d *internal.Deps) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	users, total, err := d.Auth.ListUsers(c.Request.Context(), page, limit)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	if page < 1 {
		page = 1
	}

	c.JSON(http.StatusOK, gin.H{
		"users": users,
		"total": total,
		"page":  page,
	})
}
