package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"chat-sanitizer/internal/constants"
	"chat-sanitizer/internal/httputil"
	"chat-sanitizer/internal/platform/config"
	"chat-sanitizer/internal/platform/health"
	"chat-sanitizer/internal/platform/middleware"
	"chat-sanitizer/internal/sanitizer"
	"chat-sanitizer/internal/security/audit"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Sanitizer HTTP 層使用的清理服務
type Sanitizer interface {
	Run(ctx context.Context, req sanitizer.RunRequest) (*sanitizer.RunResult, error)
	History() []sanitizer.RunRecord
}

// Deps HTTP 路由依賴
type Deps struct {
	Config   *config.Config
	Service  Sanitizer
	Store    health.Pinger
	Registry *prometheus.Registry
	Audit    *audit.AuditService
}

// HTTPHandler 路由與其背景資源
type HTTPHandler struct {
	engine  *gin.Engine
	limiter *middleware.RateLimiter
}

// ServeHTTP 實作 http.Handler
func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.engine.ServeHTTP(w, r)
}

// Close 停止速率限制器的清理 goroutine
func (h *HTTPHandler) Close() {
	if h.limiter != nil {
		h.limiter.Stop()
	}
}

// securityHeadersMiddleware 添加安全標頭
func securityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none';")
		c.Header("Referrer-Policy", "no-referrer")
		c.Header("Cache-Control", "no-store")

		c.Next()
	}
}

// corsMiddleware 只允許本地開發工具的來源
func corsMiddleware() gin.HandlerFunc {
	allowedOrigins := map[string]bool{
		"http://localhost:3000": true,
		"http://localhost:8080": true,
		"http://127.0.0.1:8080": true,
	}

	return func(c *gin.Context) {
		if origin := c.Request.Header.Get("Origin"); allowedOrigins[origin] {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}

		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, X-Request-ID, "+middleware.ActorIDHeader)
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// NewHTTPHandler 設定路由
func NewHTTPHandler(deps Deps) *HTTPHandler {
	cfg := deps.Config
	if cfg == nil {
		cfg = config.Default()
	}

	r := gin.New()
	r.Use(gin.Recovery())

	// 請求 ID 最優先
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.AccessLogMiddleware())
	r.Use(corsMiddleware())
	r.Use(securityHeadersMiddleware())
	r.Use(middleware.RequestMetadataMiddleware())

	maxBody := int64(constants.DefaultMaxRequestBodySize)
	if cfg.Limits.Request.MaxBodySize > 0 {
		maxBody = cfg.Limits.Request.MaxBodySize
	}
	r.Use(middleware.RequestSizeLimiter(maxBody))

	h := &HTTPHandler{engine: r}
	api := &handlers{service: deps.Service}

	healthHandler := health.NewHealthHandler(cfg, deps.Store)
	r.GET("/health", healthHandler.HealthCheck)
	r.GET("/ready", healthHandler.Readiness)

	if deps.Registry != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{})))
	}

	dev := r.Group("/api/v1/dev", middleware.DevOnly(cfg.App.Debug))
	if rl := cfg.Limits.RateLimiting; rl.Enabled {
		h.limiter = middleware.NewRateLimiter(rl.DevPerMinute, rl.Burst,
			time.Duration(rl.CleanupInterval)*time.Minute, deps.Audit)
		dev.Use(h.limiter.Middleware())
	}

	dev.POST("/conversations/:conversation_id/sanitize",
		middleware.ValidateParam("conversation_id", constants.MaxConversationIDLength),
		api.sanitizeConversation)
	dev.GET("/runs", api.listRuns)

	return h
}

type handlers struct {
	service Sanitizer
}

type sanitizeRequest struct {
	Mode    string `json:"mode"`
	DryRun  bool   `json:"dry_run"`
	Confirm bool   `json:"confirm"`
}

// 掃描或清理單一對話
func (h *handlers) sanitizeConversation(c *gin.Context) {
	var req sanitizeRequest
	// 空 body 視為 scan
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		httputil.BadRequest(c, httputil.ErrorCodeInvalidParameter, "無效的請求格式")
		return
	}

	mode, err := sanitizer.ParseMode(req.Mode)
	if err != nil {
		httputil.BadRequest(c, httputil.ErrorCodeInvalidMode, err.Error())
		return
	}

	if err := sanitizer.CheckConfirmation(mode, req.DryRun, req.Confirm); err != nil {
		httputil.BadRequest(c, httputil.ErrorCodeConfirmationRequired, err.Error())
		return
	}

	meta := middleware.Metadata(c)
	res, err := h.service.Run(c.Request.Context(), sanitizer.RunRequest{
		ConversationID: c.Param("conversation_id"),
		Mode:           mode,
		ActorID:        meta.ActorID,
		DryRun:         req.DryRun,
		Source:         "http",
		ClientIP:       meta.IPAddress,
	})
	if err != nil {
		writeRunError(c, err)
		return
	}

	c.JSON(http.StatusOK, httputil.NewSuccessResponse(runMessage(res), res))
}

// 最近的執行紀錄
func (h *handlers) listRuns(c *gin.Context) {
	runs := h.service.History()
	c.JSON(http.StatusOK, httputil.NewSuccessResponseWithCount(httputil.DataRetrieved, runs, len(runs)))
}

func writeRunError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, sanitizer.ErrMissingConversationID),
		errors.Is(err, sanitizer.ErrInvalidConversationID),
		errors.Is(err, sanitizer.ErrInvalidActorID):
		httputil.BadRequest(c, httputil.ErrorCodeInvalidParameter, err.Error())
	case errors.Is(err, sanitizer.ErrInvalidMode):
		httputil.BadRequest(c, httputil.ErrorCodeInvalidMode, err.Error())
	case errors.Is(err, sanitizer.ErrCountFailed):
		httputil.SafeError(c, http.StatusInternalServerError, httputil.ErrorCodeCountFailed, err, "無法計算訊息數量，請稍後再試")
	case errors.Is(err, sanitizer.ErrScanFailed):
		httputil.SafeError(c, http.StatusInternalServerError, httputil.ErrorCodeScanFailed, err, "掃描對話失敗，請稍後再試")
	default:
		httputil.InternalServerError(c, err)
	}
}

func runMessage(res *sanitizer.RunResult) string {
	switch {
	case res.Mode == sanitizer.ModeScan:
		return httputil.ScanCompleted
	case res.DryRun:
		return httputil.DryRunComplete
	default:
		return httputil.CleanCompleted
	}
}
