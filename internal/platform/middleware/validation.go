package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ValidateID 驗證路徑或標頭中的 ID
func ValidateID(name, value string, maxLength int) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s 不能為空", name)
	}

	if len(value) > maxLength {
		return fmt.Errorf("%s 超過最大長度限制 (%d 字符)", name, maxLength)
	}

	// 防止 NULL 字符注入和操作符字元
	if strings.ContainsAny(value, "\x00${}[]") {
		return fmt.Errorf("%s 包含非法字符", name)
	}

	return nil
}

// ValidateParam 驗證路徑參數的中間件
func ValidateParam(param string, maxLength int) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := ValidateID(param, c.Param(param), maxLength); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":      err.Error(),
				"success":    false,
				"request_id": GetRequestID(c),
			})
			return
		}
		c.Next()
	}
}

// RequestSizeLimiter 限制請求體大小的中間件
func RequestSizeLimiter(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxSize {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
				"error":   fmt.Sprintf("請求體過大，最大允許 %d 字節", maxSize),
				"success": false,
			})
			return
		}

		// 未帶 Content-Length 的請求在讀取時截斷
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}
