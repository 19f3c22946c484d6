package middleware

import (
	"net/http"
	"time"

	"chat-sanitizer/internal/platform/logger"

	"github.com/gin-gonic/gin"
)

// AccessLogMiddleware 以 GCP httpRequest 格式記錄每個請求
func AccessLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		req := &logger.HTTPRequest{
			RequestMethod: c.Request.Method,
			RequestURL:    c.Request.URL.RequestURI(),
			RequestSize:   c.Request.ContentLength,
			Status:        status,
			ResponseSize:  int64(c.Writer.Size()),
			UserAgent:     c.Request.UserAgent(),
			RemoteIP:      GetClientIP(c),
			Latency:       logger.FormatLatency(time.Since(start)),
			Protocol:      c.Request.Proto,
		}

		ctx := c.Request.Context()
		switch {
		case status >= http.StatusInternalServerError:
			logger.Error(ctx, "HTTP 請求", logger.WithHTTPRequest(req))
		case status >= http.StatusBadRequest:
			logger.Warning(ctx, "HTTP 請求", logger.WithHTTPRequest(req))
		default:
			logger.Info(ctx, "HTTP 請求", logger.WithHTTPRequest(req))
		}
	}
}
