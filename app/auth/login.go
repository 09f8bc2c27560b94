package auth

import (
	"net/http"
	"strings"

	"helpinghands/api/internal"
	"helpinghands/api/internal/apperr"
	"helpinghands/api/pkg/middleware"

	"github.com/gin-gonic/gin"
)

type loginBody struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func Login(c *gin.Context, d *internal.Deps) {
	var data loginBody
	if !bind(c, &data) {
		return
	}

	res, err := d.Auth.Login(c.Request.Context(), strings.TrimSpace(data.Email), data.Password)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	setTokenCookies(c, d, res.Tokens)
	c.JSON(http.StatusOK, gin.H{
		"message":     "Login successful",
		"user":        res.User.Public(),
		"accessToken": res.Tokens.AccessToken,
		"expiresIn":   res.Tokens.AccessExpiresIn,
	})
}

type refreshBody struct {
	RefreshToken string `json:"refreshToken" binding:"omitempty,min=64,max=256"`
}

// Refresh rotates the refresh token. Any failure clears both cookies so a
// dead session doesn't keep retrying.
func Refresh(c *gin.Context, d *internal.Deps) {
	var data refreshBody
	if !bindOptional(c, &data) {
		return
	}

	raw := refreshTokenFrom(c, data.RefreshToken)
	if raw == "" {
		middleware.RespondError(c, apperr.ErrNoRefreshToken)
		return
	}

	pair, _, err := d.Auth.Refresh(c.Request.Context(), raw)
	if err != nil {
		clearTokenCookies(c, d)
		middleware.RespondError(c, err)
		return
	}

	setTokenCookies(c, d, pair)
	c.JSON(http.StatusOK, gin.H{
		"message":     "Token refreshed successfully",
		"accessToken": pair.AccessToken,
		"expiresIn":   pair.AccessExpiresIn,
	})
}

type logoutBody struct {
	RefreshToken string `json:"refreshToken"`
}

// Logout always succeeds, store failures are logged by the service
func Logout(c *gin.Context, d *internal.Deps) {
	var data logoutBody
	_ = c.ShouldBindJSON(&data)

	d.Auth.Logout(c.Request.Context(), refreshTokenFrom(c, data.RefreshToken))

	clearTokenCookies(c, d)
	c.JSON(http.StatusOK, gin.H{"message": "Logout successful"})
}

func LogoutAll(c *gin.Context, d *internal.Deps) {
	if u, ok := middleware.CurrentUser(c); ok {
		d.Auth.LogoutAll(c.Request.Context(), u.ID)
	}

	clearTokenCookies(c, d)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out from all devices successfully"})
}
