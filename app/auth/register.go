package auth

import (
	"net/http"
	"strings"

	"helpinghands/api/internal"
	"helpinghands/api/internal/model"
	"helpinghands/api/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type registerBody struct {
	Email           string `json:"email" binding:"required,realemail"`
	Password        string `json:"password" binding:"required,strongpassword"`
	ConfirmPassword string `json:"confirmPassword" binding:"required,eqfield=Password"`
	Role            string `json:"role" binding:"required,signuprole"`
	AcceptTerms     bool   `json:"acceptTerms" binding:"accepted"`
}

func Register(c *gin.Context, d *internal.Deps) {
	var data registerBody
	if !bind(c, &data) {
		return
	}

	u, err := d.Auth.Register(c.Request.Context(), strings.TrimSpace(data.Email), data.Password, model.Role(data.Role))
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	zap.L().Info("User registered",
		zap.String("userID", u.ID),
		zap.String("role", string(u.Role)),
		zap.String("requestID", middleware.RequestID(c)))

	c.JSON(http.StatusCreated, gin.H{
		"message": "Registration successful. Please check your email to verify your account.",
		"user":    u.Public(),
	})
}
