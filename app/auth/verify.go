package auth

import (
	"net/http"
	"strings"

	"helpinghands/api/internal"
	"helpinghands/api/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type verifyBody struct {
	Token string `json:"token" binding:"required,min=32,max=128"`
}

func VerifyEmail(c *gin.Context, d *internal.Deps) {
	var data verifyBody
	if !bind(c, &data) {
		return
	}

	u, err := d.Auth.VerifyEmail(c.Request.Context(), data.Token)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	zap.L().Info("Email verified", zap.String("userID", u.ID), zap.String("requestID", middleware.RequestID(c)))

	c.JSON(http.StatusOK, gin.H{
		"message": "Email verified successfully. Your account is now active.",
	})
}

type resendBody struct {
	Email string `json:"email" binding:"required,email"`
}

// ResendVerification runs behind the optional gate. A signed in caller
// asking about their own address learns that it is already verified,
// everyone else gets the generic answer.
func ResendVerification(c *gin.Context, d *internal.Deps) {
	var data resendBody
	if !bind(c, &data) {
		return
	}

	caller, _ := middleware.CurrentUser(c)

	err := d.Auth.ResendVerification(c.Request.Context(), strings.TrimSpace(data.Email), caller)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "If an account with that email exists and is unverified, a new verification email has been sent.",
	})
}
