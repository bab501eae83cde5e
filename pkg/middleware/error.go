package middleware

import (
	"errors"

	"licensehub-engine/pkg/errutil"

	"github.com/gin-gonic/gin"
)

// Error renders the last handler error as the standard error envelope.
// Handlers that already wrote a response are left alone.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err

		var be errutil.BaseError
		if errors.As(err, &be) {
			c.JSON(be.Code.HTTPCode(), be.JSON())
			return
		}

		code := errutil.StatusOf(err)
		c.JSON(code.HTTPCode(), gin.H{
			"error": gin.H{
				"code":    code,
				"message": err.Error(),
			},
		})
	}
}
