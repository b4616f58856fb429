package middlewares

import "github.com/gin-gonic/gin"

// abortWithError writes the same error envelope the handlers use. Middlewares
// run before any handler so they cannot borrow handlers.RespondError.
func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error": gin.H{
			"code":      code,
			"message":   message,
			"requestId": c.GetString(CtxRequestID),
		},
	})
}
