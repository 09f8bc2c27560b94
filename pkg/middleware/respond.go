package middleware

import (
	"helpinghands/api/internal/apperr"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ExposeInternalErrors adds the cause of 500 responses to the body under
// "detail". Only enable it outside production.
var ExposeInternalErrors = false

// RequestID returns the id set by NewRequestIDMiddleware, or "" when the
// middleware didn't run
func RequestID(c *gin.Context) string {
	id, _ := c.Get("requestID")
	s, _ := id.(string)
	return s
}

func errorBody(c *gin.Context, e *apperr.Error) gin.H {
	body := gin.H{
		"error":     e.Message,
		"code":      e.Code,
		"requestID": RequestID(c),
	}

	for k, val := range e.Details {
		body[k] = val
	}

	if e.Kind == apperr.KindInternal {
		fields := []zap.Field{
			zap.Error(e.Err),
			zap.String("requestID", RequestID(c)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("ip", c.ClientIP()),
		}

		if u, ok := CurrentUser(c); ok {
			fields = append(fields, zap.String("userID", u.ID))
		}

		zap.L().Error("Internal server error", fields...)

		if ExposeInternalErrors && e.Err != nil {
			body["detail"] = e.Err.Error()
		}
	}

	return body
}

// RespondError writes err as a JSON error response. Errors that aren't
// *apperr.Error become a generic 500.
func RespondError(c *gin.Context, err error) {
	e := apperr.From(err)
	c.JSON(e.Status, errorBody(c, e))
}

// AbortWithError is RespondError for middleware, the rest of the chain is
// skipped
func AbortWithError(c *gin.Context, err error) {
	e := apperr.From(err)
	c.AbortWithStatusJSON(e.Status, errorBody(c, e))
}
