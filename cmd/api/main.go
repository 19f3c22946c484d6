package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chat-sanitizer/internal/app"
	"chat-sanitizer/internal/platform/config"
	"chat-sanitizer/internal/platform/logger"
	"chat-sanitizer/internal/platform/server"
)

func main() {
	if err := mainNoExit(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// mainNoExit 分離主要邏輯以避免 exitAfterDefer 問題，確保 defer 函數正常執行.
func mainNoExit() error {
	// 初始化日誌.
	if err := logger.InitLogger(); err != nil {
		return err
	}
	defer logger.CloseLogger()

	// 載入配置.
	if err := config.Load(); err != nil {
		return err
	}
	cfg := config.Get()
	logger.LogInfof("設定載入成功，環境: %s，存儲: %s", config.GetEnv(), cfg.Database.Driver)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Error(ctx, "服務初始化失敗", logger.WithError(err))
		return fmt.Errorf("server initialization failed: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.Close(closeCtx); err != nil {
			logger.Errorf(closeCtx, "關閉存儲連線失敗: %v", err)
		}
	}()

	if !cfg.App.Debug {
		logger.Info(ctx, "[System] 非 debug 模式，dev 清理端點已停用")
	}

	return server.Run(ctx, server.Deps{
		Config:   cfg,
		Service:  a.Service,
		Store:    a.Repos,
		Registry: a.Metrics.Registry(),
		Audit:    a.Audit,
	})
}
