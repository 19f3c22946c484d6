package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// DevOnly 非 debug 環境下開發端點一律回 404，不透露端點存在
func DevOnly(debug bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !debug {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
				"error":   "Not found",
				"success": false,
			})
			return
		}
		c.Next()
	}
}
