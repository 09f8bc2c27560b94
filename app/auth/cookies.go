// Package auth holds the handlers of every /auth endpoint. Handlers only
// bind input, call the lifecycle engine and decide how tokens travel.
package auth

import (
	"errors"
	"io"
	"net/http"

	"helpinghands/api/internal"
	"helpinghands/api/internal/apperr"
	"helpinghands/api/internal/token"
	"helpinghands/api/pkg/middleware"
	"helpinghands/api/validators"

	"github.com/gin-gonic/gin"
)

// Both cookies are http-only and strict same-site. They are only marked
// secure in production so local development works over plain http.
func setTokenCookies(c *gin.Context, d *internal.Deps, p *token.Pair) {
	secure := d.Config.IsProduction()

	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(middleware.AccessTokenCookie, p.AccessToken, int(p.AccessTTL.Seconds()), "/", "", secure, true)
	c.SetCookie(middleware.RefreshTokenCookie, p.RefreshToken, int(p.RefreshTTL.Seconds()), "/", "", secure, true)
}

func clearTokenCookies(c *gin.Context, d *internal.Deps) {
	secure := d.Config.IsProduction()

	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(middleware.AccessTokenCookie, "", -1, "/", "", secure, true)
	c.SetCookie(middleware.RefreshTokenCookie, "", -1, "/", "", secure, true)
}

// bind decodes the JSON body into dst and answers 400 VALIDATION_ERROR
// when that fails
func bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		middleware.RespondError(c, apperr.Validation(validators.Details(err)...))
		return false
	}

	return true
}

// refreshTokenFrom prefers the cookie over the body like the access token
// gate does
func refreshTokenFrom(c *gin.Context, body string) string {
	if v, err := c.Cookie(middleware.RefreshTokenCookie); err == nil && v != "" {
		return v
	}

	return body
}

// bindOptional is bind for endpoints where the whole body may be left out
func bindOptional(c *gin.Context, dst any) bool {
	err := c.ShouldBindJSON(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}

	middleware.RespondError(c, apperr.Validation(validators.Details(err)...))
	return false
}
