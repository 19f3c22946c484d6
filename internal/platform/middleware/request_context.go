package middleware

import (
	"context"
	"net"
	"strings"

	"github.com/gin-gonic/gin"
)

// ActorIDHeader 操作者 ID 標頭
const ActorIDHeader = "X-Actor-ID"

const metadataKey = "request_metadata"

type metadataCtxKey struct{}

// RequestMetadata 請求來源，寫入清理紀錄與審計日誌
type RequestMetadata struct {
	RequestID string
	IPAddress string
	UserAgent string
	ActorID   string
}

// RequestMetadataMiddleware 需接在 RequestIDMiddleware 之後
func RequestMetadataMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		meta := collectMetadata(c)
		c.Set(metadataKey, meta)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), metadataCtxKey{}, meta))
		c.Next()
	}
}

func collectMetadata(c *gin.Context) *RequestMetadata {
	return &RequestMetadata{
		RequestID: GetRequestID(c),
		IPAddress: GetClientIP(c),
		UserAgent: c.Request.UserAgent(),
		ActorID:   strings.TrimSpace(c.GetHeader(ActorIDHeader)),
	}
}

// Metadata 取出中間件存的元數據，未掛中間件時即時計算
func Metadata(c *gin.Context) *RequestMetadata {
	if v, ok := c.Get(metadataKey); ok {
		if meta, ok := v.(*RequestMetadata); ok {
			return meta
		}
	}
	return collectMetadata(c)
}

// MetadataFromContext 非 gin 層使用
func MetadataFromContext(ctx context.Context) (*RequestMetadata, bool) {
	meta, ok := ctx.Value(metadataCtxKey{}).(*RequestMetadata)
	return meta, ok
}

// GetClientIP X-Forwarded-For 第一段、X-Real-IP、連線位址，依序取第一個合法 IP
func GetClientIP(c *gin.Context) string {
	if forwarded := c.GetHeader("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := parseIP(first); ip != "" {
			return ip
		}
	}
	if ip := parseIP(c.GetHeader("X-Real-IP")); ip != "" {
		return ip
	}
	return c.ClientIP()
}

func parseIP(s string) string {
	ip := net.ParseIP(strings.TrimSpace(s))
	if ip == nil {
		return ""
	}
	return ip.String()
}
