package httputil

import (
	"net/http"
	"strings"

	"chat-sanitizer/internal/platform/logger"

	"github.com/gin-gonic/gin"
)

// 出現這些字眼的錯誤可能帶有存儲層細節，只寫日誌不回給客戶端
var sensitiveKeywords = []string{
	"mongo",
	"database",
	"connection",
	"cursor",
	"transaction",
	"bulk",
	"password",
	"token",
	"secret",
	"credential",
	"grpc",
	"internal",
	"stack",
	"panic",
	"failed",
}

// SafeError 回傳 userMessage，完整錯誤只寫日誌
func SafeError(c *gin.Context, statusCode, code int, err error, userMessage string) {
	logger.Error(c.Request.Context(), "API 錯誤",
		logger.WithError(err),
		logger.WithDetails(map[string]interface{}{
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
			"status": statusCode,
			"code":   code,
		}))

	message := userMessage
	if shouldShowError(err) {
		message = err.Error()
	}
	writeError(c, statusCode, code, message)
}

func shouldShowError(err error) bool {
	if err == nil {
		return false
	}

	lowerMsg := strings.ToLower(err.Error())
	for _, keyword := range sensitiveKeywords {
		if strings.Contains(lowerMsg, keyword) {
			return false
		}
	}
	return true
}

// InternalServerError 內部服務器錯誤
func InternalServerError(c *gin.Context, err error) {
	SafeError(c, http.StatusInternalServerError, ErrorCodeProcessingFailed, err, "服務器內部錯誤，請稍後再試")
}

// BadRequest 參數錯誤，message 原樣回給客戶端
func BadRequest(c *gin.Context, code int, message string) {
	writeError(c, http.StatusBadRequest, code, message)
}
