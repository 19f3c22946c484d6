package httputil

import (
	"chat-sanitizer/internal/platform/middleware"

	"github.com/gin-gonic/gin"
)

// 成功訊息常數.
const (
	DataRetrieved  = "Data retrieved successfully"
	ScanCompleted  = "Scan completed"
	CleanCompleted = "Cleanup completed"
	DryRunComplete = "Dry run completed, no changes written"
)

// SuccessResponse 成功回應結構.
type SuccessResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Count   int         `json:"count,omitempty"`
}

// ErrorResponse 錯誤回應結構，request_id 供對照伺服器日誌.
type ErrorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	Code      int    `json:"code"`
	RequestID string `json:"request_id"`
}

// NewSuccessResponse 創建成功回應.
func NewSuccessResponse(message string, data interface{}) *SuccessResponse {
	return &SuccessResponse{Success: true, Message: message, Data: data}
}

// NewSuccessResponseWithCount 列表回應.
func NewSuccessResponseWithCount(message string, data interface{}, count int) *SuccessResponse {
	resp := NewSuccessResponse(message, data)
	resp.Count = count
	return resp
}

func writeError(c *gin.Context, status, code int, message string) {
	c.AbortWithStatusJSON(status, &ErrorResponse{
		Error:     message,
		Code:      code,
		RequestID: middleware.GetRequestID(c),
	})
}
