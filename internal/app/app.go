// Package app 組裝存儲、加密、審計與清理服務，供各個 cmd 共用.
package app

import (
	"context"
	"fmt"

	"chat-sanitizer/internal/platform/config"
	"chat-sanitizer/internal/platform/logger"
	"chat-sanitizer/internal/sanitizer"
	"chat-sanitizer/internal/security/audit"
	"chat-sanitizer/internal/security/encryption"
	"chat-sanitizer/internal/storage/database"
)

// App 組裝完成的元件.
type App struct {
	Config  *config.Config
	Repos   *database.Repositories
	Service *sanitizer.Service
	Metrics *sanitizer.Metrics
	Audit   *audit.AuditService
}

// New 依配置建立 App，呼叫端負責 Close.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	repos, err := database.NewRepositories(ctx, cfg)
	if err != nil {
		return nil, err
	}

	auditSvc := audit.NewAuditService(cfg.Security.Audit.Enabled)
	metrics := sanitizer.NewMetrics()

	opts := sanitizer.OptionsFromConfig(cfg)
	opts.Audit = auditSvc
	opts.Metrics = metrics

	if cfg.Security.Encryption.Enabled {
		enc, err := newMessageEncryption(ctx)
		if err != nil {
			_ = repos.Close(ctx)
			return nil, err
		}
		opts.Revealer = enc
	}

	return &App{
		Config:  cfg,
		Repos:   repos,
		Service: sanitizer.NewService(repos.Messages, opts),
		Metrics: metrics,
		Audit:   auditSvc,
	}, nil
}

// Close 釋放存儲連線.
func (a *App) Close(ctx context.Context) error {
	if a == nil {
		return nil
	}
	return a.Repos.Close(ctx)
}

// newMessageEncryption 載入主密鑰
// 啟用解密時缺少密鑰一律拒絕啟動，debug 模式也一樣
func newMessageEncryption(ctx context.Context) (*encryption.MessageEncryption, error) {
	masterKey, found, err := encryption.LoadMasterKey()
	if err != nil {
		logger.Error(ctx, "Master Key 格式錯誤", logger.WithError(err))
		return nil, fmt.Errorf("invalid master key configuration")
	}
	if !found {
		logger.Error(ctx, "已啟用解密但未設置 MASTER_KEY")
		logger.Info(ctx, "生成方式：export MASTER_KEY=$(openssl rand -base64 32)")
		return nil, fmt.Errorf("encryption enabled but MASTER_KEY is not set")
	}

	logger.Info(ctx, "[SUCCESS] 成功從環境變量載入主密鑰", logger.WithDetails(map[string]interface{}{
		"masked": fmt.Sprintf("%x****", masterKey[:2]),
		"source": "MASTER_KEY environment variable",
	}))
	return encryption.NewMessageEncryption(true, masterKey)
}
