package health

import (
	"context"
	"errors"
	"net/http"
	"runtime"
	"time"

	"chat-sanitizer/internal/platform/config"
	"chat-sanitizer/internal/platform/logger"

	"github.com/gin-gonic/gin"
)

const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
	statusWarning   = "warning"
	statusDegraded  = "degraded"

	memoryMB          = 1024 * 1024
	memoryThresholdMB = 1024

	pingTimeout = 5 * time.Second
)

var errNoStore = errors.New("message store not configured")

// Pinger 可檢查連線的存儲.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Report /health 回應內容.
type Report struct {
	Status    string          `json:"status"`
	Timestamp int64           `json:"timestamp"`
	App       AppInfo         `json:"app"`
	Database  ComponentStatus `json:"database"`
	Sanitizer SanitizerInfo   `json:"sanitizer"`
	System    SystemStatus    `json:"system"`
}

// AppInfo 服務版本資訊.
type AppInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Debug   bool   `json:"debug"`
}

// ComponentStatus 單一依賴的狀態.
type ComponentStatus struct {
	Status string `json:"status"`
	Driver string `json:"driver,omitempty"`
	Error  string `json:"error,omitempty"`
}

// SanitizerInfo 目前生效的清理設定.
type SanitizerInfo struct {
	BatchSize    int  `json:"batch_size"`
	SkipRedacted bool `json:"skip_redacted"`
}

// SystemStatus 行程資源使用.
type SystemStatus struct {
	Status     string  `json:"status"`
	Goroutines int     `json:"goroutines"`
	NumCPU     int     `json:"num_cpu"`
	AllocMB    float64 `json:"alloc_mb"`
	SysMB      float64 `json:"sys_mb"`
	NumGC      uint32  `json:"num_gc"`
	Uptime     string  `json:"uptime"`
}

// Handler 健康檢查處理器.
type Handler struct {
	cfg       *config.Config
	db        Pinger
	startTime time.Time
}

// NewHealthHandler cfg 為 nil 時使用預設配置.
func NewHealthHandler(cfg *config.Config, db Pinger) *Handler {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Handler{
		cfg:       cfg,
		db:        db,
		startTime: time.Now(),
	}
}

// HealthCheck 存儲失敗時仍回 200，狀態為 degraded.
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, h.report(c.Request.Context()))
}

// Readiness 存儲不可用時回 503，供負載平衡器摘除節點.
func (h *Handler) Readiness(c *gin.Context) {
	db := h.checkDatabase(c.Request.Context())
	if db.Status != statusHealthy {
		c.JSON(http.StatusServiceUnavailable, db)
		return
	}
	c.JSON(http.StatusOK, db)
}

func (h *Handler) report(ctx context.Context) Report {
	r := Report{
		Status:    statusHealthy,
		Timestamp: time.Now().Unix(),
		App: AppInfo{
			Name:    h.cfg.App.Name,
			Version: h.cfg.App.Version,
			Debug:   h.cfg.App.Debug,
		},
		Database: h.checkDatabase(ctx),
		Sanitizer: SanitizerInfo{
			BatchSize:    h.cfg.Sanitizer.BatchSize,
			SkipRedacted: h.cfg.Sanitizer.SkipRedacted,
		},
		System: h.checkSystemResources(),
	}
	if r.Database.Status != statusHealthy {
		r.Status = statusDegraded
	}
	return r
}

func (h *Handler) checkSystemResources() SystemStatus {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	s := SystemStatus{
		Status:     statusHealthy,
		Goroutines: runtime.NumGoroutine(),
		NumCPU:     runtime.NumCPU(),
		AllocMB:    float64(m.Alloc) / memoryMB,
		SysMB:      float64(m.Sys) / memoryMB,
		NumGC:      m.NumGC,
		Uptime:     time.Since(h.startTime).Round(time.Second).String(),
	}
	if m.Sys/memoryMB > memoryThresholdMB {
		s.Status = statusWarning
	}
	return s
}

func (h *Handler) checkDatabase(ctx context.Context) ComponentStatus {
	status := ComponentStatus{Status: statusHealthy, Driver: h.cfg.Database.Driver}

	err := errNoStore
	if h.db != nil {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		err = h.db.Ping(pingCtx)
		cancel()
	}
	if err != nil {
		logger.Errorf(ctx, "健康檢查 - 資料庫連線失敗: %v", err)
		status.Status = statusUnhealthy
		status.Error = err.Error()
	}
	return status
}
