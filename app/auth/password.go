package auth

import (
	"net/http"
	"strings"

	"helpinghands/api/internal"
	"helpinghands/api/internal/apperr"
	"helpinghands/api/pkg/middleware"

	"github.com/gin-gonic/gin"
)

type resetRequestBody struct {
	Email string `json:"email" binding:"required,email"`
}

// RequestPasswordReset answers the same way whether or not the account
// exists
func RequestPasswordReset(c *gin.Context, d *internal.Deps) {
	var data resetRequestBody
	if !bind(c, &data) {
		return
	}

	if err := d.Auth.RequestPasswordReset(c.Request.Context(), strings.TrimSpace(data.Email)); err != nil {
		middleware.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "If an account with that email exists, a password reset link has been sent.",
	})
}

type resetPasswordBody struct {
	Token           string `json:"token" binding:"required,min=32,max=128"`
	Password        string `json:"password" binding:"required,strongpassword"`
	ConfirmPassword string `json:"confirmPassword" binding:"required,eqfield=Password"`
}

func ResetPassword(c *gin.Context, d *internal.Deps) {
	var data resetPasswordBody
	if !bind(c, &data) {
		return
	}

	if err := d.Auth.ResetPassword(c.Request.Context(), data.Token, data.Password); err != nil {
		middleware.RespondError(c, err)
		return
	}

	clearTokenCookies(c, d)
	c.JSON(http.StatusOK, gin.H{
		"message": "Password reset successful. Please log in with your new password.",
	})
}

type changePasswordBody struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required,strongpassword"`
	ConfirmPassword string `json:"confirmPassword" binding:"required,eqfield=NewPassword"`
}

// ChangePassword signs the user out of every device, including this one
func ChangePassword(c *gin.Context, d *internal.Deps) {
	u, ok := middleware.CurrentUser(c)
	if !ok {
		middleware.RespondError(c, apperr.ErrNoUser)
		return
	}

	var data changePasswordBody
	if !bind(c, &data) {
		return
	}

	if err := d.Auth.ChangePassword(c.Request.Context(), u, data.CurrentPassword, data.NewPassword); err != nil {
		middleware.RespondError(c, err)
		return
	}

	clearTokenCookies(c, d)
	c.JSON(http.StatusOK, gin.H{
		"message": "Password changed successfully. Please log in again.",
	})
}
